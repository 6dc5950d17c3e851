// persistence/interface.go
package persistence

import (
	"fmt"

	"github.com/wfunc/gametrack/models"
)

// GameFilter 游戏目录查询条件
type GameFilter struct {
	NameContains string // case-insensitive substring match, empty matches all
	Offset       int
	Limit        int
	Sort         GameSort
}

// GameSort 目录排序键
type GameSort int

const (
	SortNameAsc GameSort = iota
	SortNameDesc
	SortReleaseDateAsc
	SortReleaseDateDesc
)

// Database 数据库接口
type Database interface {
	// Games
	CreateGame(game models.Game, cover models.Cover) error
	GetGame(id string) (models.Game, error)
	GetGameCover(id string) (models.Cover, error)
	ListGames(filter GameFilter) ([]models.Game, error)
	ListGamesByUser(userID string) ([]models.Game, error)
	CountGames(nameContains string) (int64, error)

	// Messages
	SaveMessage(msg models.Message) error
	// MessagesByGame returns up to limit messages for one game, newest
	// first. limit <= 0 means no bound.
	MessagesByGame(gameID string, limit int) ([]models.Message, error)

	// Users
	CreateUser(user models.User) error
	GetUser(id string) (models.User, error)
	GetUserByUsername(username string) (models.User, error)
	UpdateUser(user models.User) error
	SetUserAvatar(id string, avatar models.Cover) error
	GetUserAvatar(id string) (models.Cover, error)
	// DeleteUser removes the account and cascades its library rows.
	DeleteUser(id string) error

	// User-game associations
	UpsertUserGame(assoc models.UserGame) error
	GetUserGame(userID, gameID string) (models.UserGame, error)
	DeleteUserGame(userID, gameID string) error
	ListUserGames(userID string) ([]models.LibraryEntry, error)

	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
	ErrDuplicate      = fmt.Errorf("record already exists")
)
