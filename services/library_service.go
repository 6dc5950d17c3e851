// services/library_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/wfunc/gametrack/models"
	"github.com/wfunc/gametrack/persistence"
)

var (
	ErrNotInLibrary     = errors.New("game not found in user list")
	ErrUnknownGame      = errors.New("game not found")
	ErrBadStatus        = errors.New("unknown library status")
	ErrRatingOutOfRange = errors.New("rating must be between 0 and 10")
)

// LibraryService manages user-game associations: played/want-to-play
// status and ratings.
type LibraryService struct {
	db persistence.Database
}

func NewLibraryService(db persistence.Database) *LibraryService {
	return &LibraryService{db: db}
}

// SetStatus creates or updates the association for (userID, gameID).
// Statuses are mutually exclusive and re-applying the current status
// is a no-op.
func (s *LibraryService) SetStatus(userID, gameID string, status models.LibraryStatus) error {
	if !models.ValidStatus(status) {
		return ErrBadStatus
	}
	if _, err := s.db.GetGame(gameID); err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return ErrUnknownGame
		}
		return err
	}

	assoc, err := s.db.GetUserGame(userID, gameID)
	if err != nil {
		if !errors.Is(err, persistence.ErrRecordNotFound) {
			return err
		}
		assoc = models.UserGame{UserID: userID, GameID: gameID}
	}
	if assoc.Status == status {
		return nil
	}
	assoc.Status = status
	if err := s.db.UpsertUserGame(assoc); err != nil {
		return fmt.Errorf("upsert association: %w", err)
	}
	return nil
}

// SetRating stores a rating in [0,10] for an existing association.
func (s *LibraryService) SetRating(userID, gameID string, rating int) error {
	if rating < 0 || rating > 10 {
		return ErrRatingOutOfRange
	}
	assoc, err := s.db.GetUserGame(userID, gameID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return ErrNotInLibrary
		}
		return err
	}
	assoc.Rating = rating
	if err := s.db.UpsertUserGame(assoc); err != nil {
		return fmt.Errorf("upsert association: %w", err)
	}
	return nil
}

// Remove deletes the association.
func (s *LibraryService) Remove(userID, gameID string) error {
	if err := s.db.DeleteUserGame(userID, gameID); err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return ErrNotInLibrary
		}
		return err
	}
	return nil
}

// Get returns the association for (userID, gameID).
func (s *LibraryService) Get(userID, gameID string) (models.UserGame, error) {
	assoc, err := s.db.GetUserGame(userID, gameID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return models.UserGame{}, ErrNotInLibrary
		}
		return models.UserGame{}, err
	}
	return assoc, nil
}

// List returns all of a user's library entries with game data joined.
func (s *LibraryService) List(userID string) ([]models.LibraryEntry, error) {
	entries, err := s.db.ListUserGames(userID)
	if err != nil {
		return nil, fmt.Errorf("list library: %w", err)
	}
	return entries, nil
}

// Split partitions a user's library into played and want-to-play
// lists, the shape the profile view renders.
func (s *LibraryService) Split(userID string) (played, wantToPlay []models.LibraryEntry, err error) {
	entries, err := s.List(userID)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		switch e.Status {
		case models.StatusPlayed:
			played = append(played, e)
		case models.StatusWantToPlay:
			wantToPlay = append(wantToPlay, e)
		}
	}
	return played, wantToPlay, nil
}
