// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/gametrack/network"
)

// Session is one live websocket connection. UserID and Username are
// empty until the connection authenticates; a session may sit in any
// number of chat rooms at once.
type Session struct {
	ID         string
	Conn       network.Connection
	UserID     string
	Username   string
	CreatedAt  time.Time
	LastActive time.Time
	rooms      map[string]struct{}
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
		rooms:      make(map[string]struct{}),
	}
}

// Authenticate binds the session to a verified identity.
func (s *Session) Authenticate(userID, username string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.UserID = userID
	s.Username = username
}

// Identity returns the bound user id and display name, and whether
// the session has authenticated at all.
func (s *Session) Identity() (userID, username string, ok bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.UserID, s.Username, s.UserID != ""
}

// EnterRoom records membership; a session can re-join without effect.
func (s *Session) EnterRoom(roomID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.rooms[roomID] = struct{}{}
}

// LeaveRoom forgets membership.
func (s *Session) LeaveRoom(roomID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.rooms, roomID)
}

// Rooms returns a snapshot of the rooms the session has joined.
func (s *Session) Rooms() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	rooms := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

func (s *Session) InRoom(roomID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

func (s *Session) Touch() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.LastActive = time.Now()
}

func (s *Session) IdleSince() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.LastActive
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.Touch()
	return s.Conn.Send(msgID, data)
}

func (s *Session) SendJSON(msgID uint16, v interface{}) error {
	s.Touch()
	return s.Conn.SendJSON(msgID, v)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

func (m *Manager) GetByUserID(userID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.UserID == userID {
			result = append(result, session)
		}
	}
	return result
}

// IdleLongerThan returns sessions whose last activity is older than
// the cutoff. Used by the idle reaper.
func (m *Manager) IdleLongerThan(cutoff time.Time) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.IdleSince().Before(cutoff) {
			result = append(result, session)
		}
	}
	return result
}
