package network

import (
	"github.com/wfunc/gametrack/models"
)

const (
	MsgTypeHeartbeat = 1
	MsgTypeAuth      = 2

	MsgTypeJoinRoom    = 101
	MsgTypeSendMessage = 201

	MsgTypePreviousMessages = 301
	MsgTypeNewMessage       = 302
	MsgTypeAck              = 303
)

// AuthRequest binds a connection to an authenticated identity. The
// sender of every later message is derived from this, never from a
// client-supplied field.
type AuthRequest struct {
	Token string `json:"token"`
}

// JoinRequest admits the session to a game's chat room.
type JoinRequest struct {
	RoomID string `json:"room_id"`
}

// SendRequest posts a message to a joined room.
type SendRequest struct {
	RoomID string `json:"room_id"`
	Body   string `json:"body"`
}

// Ack reports the outcome of an Auth, Join, or Send request.
type Ack struct {
	Op    string `json:"op"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// History is the one-shot batch of stored messages delivered to a
// joining session, newest first.
type History struct {
	RoomID   string           `json:"room_id"`
	Messages []models.Message `json:"messages"`
}
