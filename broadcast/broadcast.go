// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/gametrack/room"

	"github.com/wfunc/gametrack/session"
)

var (
	ErrRoomNotFound = errors.New("room not found")
)

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
	BroadcastToUser(userID string, msgID uint16, data []byte) error
}

// 基于房间的广播器
type RoomBroadcaster struct {
	roomManager    *room.Manager
	sessionManager *session.Manager
}

func NewRoomBroadcaster(roomManager *room.Manager, sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomManager:    roomManager,
		sessionManager: sessionManager,
	}
}

// BroadcastToRoom 向房间内所有成员投递一条消息，包括发送者本人。
// 单个连接发送失败不影响其他成员。
func (b *RoomBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	room, exists := b.roomManager.GetRoom(roomID)
	if !exists {
		return ErrRoomNotFound
	}

	// Get a thread-safe copy of the sessions
	sessions := room.GetSessions()

	for _, s := range sessions {
		if err := s.Send(msgID, data); err != nil {
			// 发送失败的连接由读循环的断开处理负责清理
			continue
		}
	}

	return nil
}

// BroadcastToUser 向一个用户的所有在线会话投递一条消息
func (b *RoomBroadcaster) BroadcastToUser(userID string, msgID uint16, data []byte) error {
	sessions := b.sessionManager.GetByUserID(userID)
	for _, s := range sessions {
		if err := s.Send(msgID, data); err != nil {
			continue
		}
	}
	return nil
}
