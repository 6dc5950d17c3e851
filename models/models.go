// models/models.go
package models

import (
	"time"
)

// Game is a catalog entry. The cover itself is stored alongside the
// record and served separately; listings carry only the metadata.
type Game struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Genre       string    `json:"genre"`
	ReleaseDate time.Time `json:"release_date"`
	Description string    `json:"description"`
	AddedBy     string    `json:"added_by"`
}

// Message is a single chat entry in a game's room. Messages are
// immutable: once written they are never edited or deleted.
type Message struct {
	ID        string    `json:"id"`
	GameID    string    `json:"game_id"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// LibraryStatus is a user's relationship to a game. The absence of an
// association row means "none".
type LibraryStatus string

const (
	StatusPlayed     LibraryStatus = "played"
	StatusWantToPlay LibraryStatus = "want_to_play"
)

// ValidStatus reports whether s is one of the storable states.
func ValidStatus(s LibraryStatus) bool {
	return s == StatusPlayed || s == StatusWantToPlay
}

// UserGame links a user to a game in their library. Rating is only
// meaningful for played games; 0 means unrated.
type UserGame struct {
	UserID string        `json:"user_id"`
	GameID string        `json:"game_id"`
	Status LibraryStatus `json:"status"`
	Rating int           `json:"rating"`
}

// LibraryEntry is a user-game association joined with its game data,
// as returned to the profile/library views.
type LibraryEntry struct {
	Game   Game          `json:"game"`
	Status LibraryStatus `json:"status"`
	Rating int           `json:"rating"`
}

// User is an account. PasswordHash never leaves the persistence layer
// except for credential checks.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Description  string `json:"description"`
}

// Cover is a stored image with its content type.
type Cover struct {
	Data        []byte
	ContentType string
}
