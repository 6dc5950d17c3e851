// persistence/memory.go
package persistence

import (
	"sort"
	"strings"
	"sync"

	"github.com/wfunc/gametrack/models"
)

// Memory is an in-process implementation of Database. It backs the
// tests and a no-database development mode; query semantics (filter,
// sort, pagination) match the SQL implementations.
type Memory struct {
	mu sync.RWMutex

	users         map[string]models.User
	usernameIndex map[string]string
	games         map[string]models.Game
	covers        map[string]models.Cover
	avatars       map[string]models.Cover
	messages      []models.Message
	userGames     map[userGameKey]models.UserGame
	userGameOrder []userGameKey
}

type userGameKey struct {
	userID string
	gameID string
}

func NewMemory() *Memory {
	return &Memory{
		users:         make(map[string]models.User),
		usernameIndex: make(map[string]string),
		games:         make(map[string]models.Game),
		covers:        make(map[string]models.Cover),
		avatars:       make(map[string]models.Cover),
		userGames:     make(map[userGameKey]models.UserGame),
	}
}

var _ Database = (*Memory)(nil)

// --- Games ---

func (m *Memory) CreateGame(game models.Game, cover models.Cover) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.games[game.ID]; exists {
		return ErrDuplicate
	}
	m.games[game.ID] = game
	m.covers[game.ID] = cover
	return nil
}

func (m *Memory) GetGame(id string) (models.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	game, ok := m.games[id]
	if !ok {
		return models.Game{}, ErrRecordNotFound
	}
	return game, nil
}

func (m *Memory) GetGameCover(id string) (models.Cover, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cover, ok := m.covers[id]
	if !ok || len(cover.Data) == 0 {
		return models.Cover{}, ErrRecordNotFound
	}
	return cover, nil
}

func (m *Memory) ListGames(filter GameFilter) ([]models.Game, error) {
	m.mu.RLock()
	matched := m.matchGames(filter.NameContains)
	m.mu.RUnlock()

	sortGames(matched, filter.Sort)

	if filter.Offset >= len(matched) {
		return []models.Game{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (m *Memory) ListGamesByUser(userID string) ([]models.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var games []models.Game
	for _, g := range m.games {
		if g.AddedBy == userID {
			games = append(games, g)
		}
	}
	sortGames(games, SortNameAsc)
	return games, nil
}

func (m *Memory) CountGames(nameContains string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.matchGames(nameContains))), nil
}

// matchGames is called with the lock held.
func (m *Memory) matchGames(nameContains string) []models.Game {
	needle := strings.ToLower(nameContains)
	matched := make([]models.Game, 0, len(m.games))
	for _, g := range m.games {
		if needle == "" || strings.Contains(strings.ToLower(g.Name), needle) {
			matched = append(matched, g)
		}
	}
	return matched
}

func sortGames(games []models.Game, key GameSort) {
	sort.SliceStable(games, func(i, j int) bool {
		switch key {
		case SortNameDesc:
			return strings.ToLower(games[i].Name) > strings.ToLower(games[j].Name)
		case SortReleaseDateAsc:
			return games[i].ReleaseDate.Before(games[j].ReleaseDate)
		case SortReleaseDateDesc:
			return games[j].ReleaseDate.Before(games[i].ReleaseDate)
		default:
			return strings.ToLower(games[i].Name) < strings.ToLower(games[j].Name)
		}
	})
}

// --- Messages ---

func (m *Memory) SaveMessage(msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *Memory) MessagesByGame(gameID string, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var msgs []models.Message
	for _, msg := range m.messages {
		if msg.GameID == gameID {
			msgs = append(msgs, msg)
		}
	}
	// Newest first; equal timestamps keep insertion order.
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[j].Timestamp.Before(msgs[i].Timestamp)
	})
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// --- Users ---

func (m *Memory) CreateUser(user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.usernameIndex[user.Username]; exists {
		return ErrDuplicate
	}
	m.users[user.ID] = user
	m.usernameIndex[user.Username] = user.ID
	return nil
}

func (m *Memory) GetUser(id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return models.User{}, ErrRecordNotFound
	}
	return user, nil
}

func (m *Memory) GetUserByUsername(username string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usernameIndex[username]
	if !ok {
		return models.User{}, ErrRecordNotFound
	}
	return m.users[id], nil
}

func (m *Memory) UpdateUser(user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[user.ID]
	if !ok {
		return ErrRecordNotFound
	}
	if existing.Username != user.Username {
		delete(m.usernameIndex, existing.Username)
		m.usernameIndex[user.Username] = user.ID
	}
	existing.Username = user.Username
	existing.Description = user.Description
	m.users[user.ID] = existing
	return nil
}

func (m *Memory) SetUserAvatar(id string, avatar models.Cover) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrRecordNotFound
	}
	m.avatars[id] = avatar
	return nil
}

func (m *Memory) GetUserAvatar(id string) (models.Cover, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	avatar, ok := m.avatars[id]
	if !ok || len(avatar.Data) == 0 {
		return models.Cover{}, ErrRecordNotFound
	}
	return avatar, nil
}

func (m *Memory) DeleteUser(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return ErrRecordNotFound
	}
	delete(m.users, id)
	delete(m.usernameIndex, user.Username)
	delete(m.avatars, id)
	// 级联删除用户的游戏关联
	kept := m.userGameOrder[:0]
	for _, key := range m.userGameOrder {
		if key.userID == id {
			delete(m.userGames, key)
			continue
		}
		kept = append(kept, key)
	}
	m.userGameOrder = kept
	return nil
}

// --- User-game associations ---

func (m *Memory) UpsertUserGame(assoc models.UserGame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userGameKey{userID: assoc.UserID, gameID: assoc.GameID}
	if _, exists := m.userGames[key]; !exists {
		m.userGameOrder = append(m.userGameOrder, key)
	}
	m.userGames[key] = assoc
	return nil
}

func (m *Memory) GetUserGame(userID, gameID string) (models.UserGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	assoc, ok := m.userGames[userGameKey{userID: userID, gameID: gameID}]
	if !ok {
		return models.UserGame{}, ErrRecordNotFound
	}
	return assoc, nil
}

func (m *Memory) DeleteUserGame(userID, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userGameKey{userID: userID, gameID: gameID}
	if _, ok := m.userGames[key]; !ok {
		return ErrRecordNotFound
	}
	delete(m.userGames, key)
	for i, k := range m.userGameOrder {
		if k == key {
			m.userGameOrder = append(m.userGameOrder[:i], m.userGameOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) ListUserGames(userID string) ([]models.LibraryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []models.LibraryEntry
	for _, key := range m.userGameOrder {
		if key.userID != userID {
			continue
		}
		assoc := m.userGames[key]
		game, ok := m.games[key.gameID]
		if !ok {
			continue
		}
		entries = append(entries, models.LibraryEntry{
			Game:   game,
			Status: assoc.Status,
			Rating: assoc.Rating,
		})
	}
	return entries, nil
}

func (m *Memory) Close() error {
	return nil
}
