// models/gorm_models.go
package models

import (
	"time"
)

// GormUser 用户模型
type GormUser struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	Description  string `gorm:"default:'No description provided'"`
	Avatar       []byte `gorm:"type:bytea"`
	AvatarType   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// GormGame 游戏模型
type GormGame struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Name        string    `gorm:"index;not null"`
	Genre       string    `gorm:"not null"`
	ReleaseDate time.Time `gorm:"index;not null"`
	Description string    `gorm:"not null"`
	Cover       []byte    `gorm:"type:bytea;not null"`
	CoverType   string    `gorm:"not null"`
	AddedBy     string    `gorm:"size:36;index;not null"`
	CreatedAt   time.Time
}

// GormMessage 聊天消息模型
type GormMessage struct {
	ID        string    `gorm:"primaryKey;size:36"`
	GameID    string    `gorm:"size:36;index;not null"`
	Sender    string    `gorm:"not null"`
	Body      string    `gorm:"not null"`
	Timestamp time.Time `gorm:"index;not null"`
}

// GormUserGame 用户-游戏关联模型
type GormUserGame struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"size:36;uniqueIndex:idx_user_game;not null"`
	GameID    string `gorm:"size:36;uniqueIndex:idx_user_game;not null"`
	Status    string `gorm:"type:varchar(20);not null"`
	Rating    int    `gorm:"default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *GormUser) Domain() User {
	return User{ID: u.ID, Username: u.Username, PasswordHash: u.PasswordHash, Description: u.Description}
}

func (g *GormGame) Domain() Game {
	return Game{
		ID:          g.ID,
		Name:        g.Name,
		Genre:       g.Genre,
		ReleaseDate: g.ReleaseDate,
		Description: g.Description,
		AddedBy:     g.AddedBy,
	}
}

func (m *GormMessage) Domain() Message {
	return Message{ID: m.ID, GameID: m.GameID, Sender: m.Sender, Body: m.Body, Timestamp: m.Timestamp}
}

func (ug *GormUserGame) Domain() UserGame {
	return UserGame{UserID: ug.UserID, GameID: ug.GameID, Status: LibraryStatus(ug.Status), Rating: ug.Rating}
}
