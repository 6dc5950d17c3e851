// catalog/catalog.go
package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/gametrack/models"
	"github.com/wfunc/gametrack/persistence"
)

var (
	ErrGameNotFound = errors.New("game not found")
	ErrCoverMissing = errors.New("cover image is required")
)

// Sort values accepted by ListGames. Anything else falls back to
// SortNameAsc without error.
const (
	SortNameAsc         = "name_asc"
	SortNameDesc        = "name_desc"
	SortReleaseDateAsc  = "release_date_asc"
	SortReleaseDateDesc = "release_date_desc"
)

// Service answers paginated, filtered, sorted catalog listings.
type Service struct {
	db           persistence.Database
	defaultLimit int
	maxLimit     int
}

func NewService(db persistence.Database, defaultLimit, maxLimit int) *Service {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &Service{db: db, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// ListResult is one catalog page plus the unpaginated filtered count,
// so clients can compute page counts themselves.
type ListResult struct {
	Games      []models.Game `json:"games"`
	TotalCount int64         `json:"total_count"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	Window     PageWindow    `json:"window"`
}

// ListGames returns one page of the catalog. filterText does a
// case-insensitive substring match on the game name. page and limit
// are normalized: page < 1 becomes 1, limit < 1 becomes the default,
// and limit is clamped to the configured maximum.
func (s *Service) ListGames(filterText string, page, limit int, sortKey string) (ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	filter := persistence.GameFilter{
		NameContains: filterText,
		Offset:       (page - 1) * limit,
		Limit:        limit,
		Sort:         mapSort(sortKey),
	}

	games, err := s.db.ListGames(filter)
	if err != nil {
		return ListResult{}, fmt.Errorf("list games: %w", err)
	}
	total, err := s.db.CountGames(filterText)
	if err != nil {
		return ListResult{}, fmt.Errorf("count games: %w", err)
	}
	if games == nil {
		games = []models.Game{}
	}

	return ListResult{
		Games:      games,
		TotalCount: total,
		Page:       page,
		Limit:      limit,
		Window:     ComputeWindow(total, page, limit),
	}, nil
}

func mapSort(key string) persistence.GameSort {
	switch key {
	case SortNameDesc:
		return persistence.SortNameDesc
	case SortReleaseDateAsc:
		return persistence.SortReleaseDateAsc
	case SortReleaseDateDesc:
		return persistence.SortReleaseDateDesc
	default:
		return persistence.SortNameAsc
	}
}

// GetGameInfo returns one game's metadata.
func (s *Service) GetGameInfo(gameID string) (models.Game, error) {
	game, err := s.db.GetGame(gameID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return models.Game{}, ErrGameNotFound
		}
		return models.Game{}, err
	}
	return game, nil
}

// GetGameCover returns the stored cover image.
func (s *Service) GetGameCover(gameID string) (models.Cover, error) {
	cover, err := s.db.GetGameCover(gameID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return models.Cover{}, ErrGameNotFound
		}
		return models.Cover{}, err
	}
	return cover, nil
}

// GamesAddedBy lists the catalog entries a user contributed.
func (s *Service) GamesAddedBy(userID string) ([]models.Game, error) {
	games, err := s.db.ListGamesByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list games by user: %w", err)
	}
	if games == nil {
		games = []models.Game{}
	}
	return games, nil
}

// CreateGame adds a catalog entry. The cover image is required.
func (s *Service) CreateGame(name, genre, description string, releaseDate time.Time, addedBy string, cover models.Cover) (models.Game, error) {
	if len(cover.Data) == 0 {
		return models.Game{}, ErrCoverMissing
	}
	game := models.Game{
		ID:          uuid.New().String(),
		Name:        name,
		Genre:       genre,
		ReleaseDate: releaseDate,
		Description: description,
		AddedBy:     addedBy,
	}
	if err := s.db.CreateGame(game, cover); err != nil {
		return models.Game{}, fmt.Errorf("create game: %w", err)
	}
	return game, nil
}
