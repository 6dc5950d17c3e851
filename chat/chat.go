// chat/chat.go
package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/gametrack/models"
	"github.com/wfunc/gametrack/persistence"
)

var (
	ErrRoomNotFound   = errors.New("room has no backing game")
	ErrEmptyMessage   = errors.New("message body is empty")
	ErrMessageTooLong = errors.New("message body too long")
	ErrSenderRequired = errors.New("sender is required")
)

// Service persists chat messages and serves per-room history. A room
// id is a game id; a message can only be written against an existing
// game.
type Service struct {
	db           persistence.Database
	historyLimit int
	maxBodyLen   int
}

func NewService(db persistence.Database, historyLimit, maxBodyLen int) *Service {
	if maxBodyLen <= 0 {
		maxBodyLen = 2000
	}
	return &Service{db: db, historyLimit: historyLimit, maxBodyLen: maxBodyLen}
}

// Append validates and persists a message with a server-assigned
// timestamp, returning the stored message for broadcast.
func (s *Service) Append(roomID, sender, body string) (models.Message, error) {
	if sender == "" {
		return models.Message{}, ErrSenderRequired
	}
	if body == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if len(body) > s.maxBodyLen {
		return models.Message{}, ErrMessageTooLong
	}

	// Messages must reference an existing game at creation time.
	if _, err := s.db.GetGame(roomID); err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return models.Message{}, ErrRoomNotFound
		}
		return models.Message{}, fmt.Errorf("resolve room: %w", err)
	}

	msg := models.Message{
		ID:        uuid.New().String(),
		GameID:    roomID,
		Sender:    sender,
		Body:      body,
		Timestamp: time.Now(),
	}
	if err := s.db.SaveMessage(msg); err != nil {
		return models.Message{}, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

// History returns the room's messages, newest first, bounded by the
// configured history limit.
func (s *Service) History(roomID string) ([]models.Message, error) {
	msgs, err := s.db.MessagesByGame(roomID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}
