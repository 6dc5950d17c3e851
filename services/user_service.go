// services/user_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/wfunc/gametrack/models"
	"github.com/wfunc/gametrack/persistence"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// UserService handles accounts: registration, credential checks, and
// profile settings.
type UserService struct {
	db persistence.Database
}

func NewUserService(db persistence.Database) *UserService {
	return &UserService{db: db}
}

// Register creates an account with a bcrypt-hashed password.
func (s *UserService) Register(username, password, description string) (models.User, error) {
	if _, err := s.db.GetUserByUsername(username); err == nil {
		return models.User{}, ErrUsernameTaken
	} else if !errors.Is(err, persistence.ErrRecordNotFound) {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		Description:  description,
	}
	if err := s.db.CreateUser(user); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			return models.User{}, ErrUsernameTaken
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate checks credentials and returns the account on success.
func (s *UserService) Authenticate(username, password string) (models.User, error) {
	user, err := s.db.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) Get(userID string) (models.User, error) {
	user, err := s.db.GetUser(userID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// UpdateSettings changes username and/or description. Empty fields
// keep their current value.
func (s *UserService) UpdateSettings(userID, username, description string) (models.User, error) {
	user, err := s.Get(userID)
	if err != nil {
		return models.User{}, err
	}
	if username != "" && username != user.Username {
		if _, err := s.db.GetUserByUsername(username); err == nil {
			return models.User{}, ErrUsernameTaken
		} else if !errors.Is(err, persistence.ErrRecordNotFound) {
			return models.User{}, err
		}
		user.Username = username
	}
	if description != "" {
		user.Description = description
	}
	if err := s.db.UpdateUser(user); err != nil {
		return models.User{}, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func (s *UserService) SetAvatar(userID string, avatar models.Cover) error {
	if err := s.db.SetUserAvatar(userID, avatar); err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

func (s *UserService) GetAvatar(userID string) (models.Cover, error) {
	avatar, err := s.db.GetUserAvatar(userID)
	if err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return models.Cover{}, ErrUserNotFound
		}
		return models.Cover{}, err
	}
	return avatar, nil
}

// DeleteAccount removes the user and cascades their library rows.
func (s *UserService) DeleteAccount(userID string) error {
	if err := s.db.DeleteUser(userID); err != nil {
		if errors.Is(err, persistence.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
