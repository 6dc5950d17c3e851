// room/room.go
package room

import (
	"sync"
	"time"

	"github.com/wfunc/gametrack/session"
)

// Room 是一个游戏聊天室：以游戏ID标识的广播组。
// Rooms carry no business state of their own; membership is the only
// thing they track.
type Room struct {
	ID          string // game id
	CreatedAt   time.Time
	members     map[string]*session.Session // sessionID -> session
	memberMutex sync.RWMutex
}

// NewRoom 创建一个新房间
func NewRoom(id string) *Room {
	return &Room{
		ID:        id,
		CreatedAt: time.Now(),
		members:   make(map[string]*session.Session),
	}
}

// GetID 返回房间ID
func (r *Room) GetID() string {
	return r.ID
}

// AddMember 添加一个会话到房间。重复加入无副作用。
func (r *Room) AddMember(s *session.Session) {
	r.memberMutex.Lock()
	defer r.memberMutex.Unlock()
	r.members[s.ID] = s
	s.EnterRoom(r.ID)
}

// RemoveMember 从房间移除一个会话
func (r *Room) RemoveMember(sessionID string) {
	r.memberMutex.Lock()
	defer r.memberMutex.Unlock()
	if member, exists := r.members[sessionID]; exists {
		member.LeaveRoom(r.ID)
		delete(r.members, sessionID)
	}
}

// HasMember 查询会话是否在房间内
func (r *Room) HasMember(sessionID string) bool {
	r.memberMutex.RLock()
	defer r.memberMutex.RUnlock()
	_, exists := r.members[sessionID]
	return exists
}

// GetSessions returns a slice of all sessions in the room (thread-safe).
func (r *Room) GetSessions() []*session.Session {
	r.memberMutex.RLock()
	defer r.memberMutex.RUnlock()

	sessions := make([]*session.Session, 0, len(r.members))
	for _, s := range r.members {
		sessions = append(sessions, s)
	}
	return sessions
}

// MemberCount 返回房间成员数
func (r *Room) MemberCount() int {
	r.memberMutex.RLock()
	defer r.memberMutex.RUnlock()
	return len(r.members)
}

// --- 房间管理器 ---

// Manager 管理所有房间。房间在第一次加入时惰性创建，
// 最后一个成员离开后被回收。
type Manager struct {
	rooms map[string]*Room
	mutex sync.RWMutex
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager() *Manager {
	return &Manager{
		rooms: make(map[string]*Room),
	}
}

// GetOrCreate 返回房间，不存在则创建
func (m *Manager) GetOrCreate(id string) *Room {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if room, exists := m.rooms[id]; exists {
		return room
	}
	room := NewRoom(id)
	m.rooms[id] = room
	return room
}

// Join 原子地获取或创建房间并加入会话。创建与加入必须在同一临界区
// 内完成，否则 Leave/Sweep 可能在两步之间回收空房间，把会话挂在一个
// 管理器已不再持有的房间上。
func (m *Manager) Join(id string, s *session.Session) *Room {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	room, exists := m.rooms[id]
	if !exists {
		room = NewRoom(id)
		m.rooms[id] = room
	}
	room.AddMember(s)
	return room
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[id]
	return room, exists
}

// Leave 将会话从一个房间移除，房间为空时回收
func (m *Manager) Leave(roomID, sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	room, exists := m.rooms[roomID]
	if !exists {
		return
	}
	room.RemoveMember(sessionID)
	if room.MemberCount() == 0 {
		delete(m.rooms, roomID)
	}
}

// LeaveAll 断开连接时将会话从其所有房间移除
func (m *Manager) LeaveAll(s *session.Session) {
	for _, roomID := range s.Rooms() {
		m.Leave(roomID, s.ID)
	}
}

// Count 返回活跃房间数
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Sweep 移除空房间，返回回收数量。定时任务兜底：正常路径在
// Leave 时已经回收。
func (m *Manager) Sweep() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	removed := 0
	for id, room := range m.rooms {
		if room.MemberCount() == 0 {
			delete(m.rooms, id)
			removed++
		}
	}
	return removed
}

// Occupancy 返回各房间的成员数快照
func (m *Manager) Occupancy() map[string]int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snapshot := make(map[string]int, len(m.rooms))
	for id, room := range m.rooms {
		snapshot[id] = room.MemberCount()
	}
	return snapshot
}
