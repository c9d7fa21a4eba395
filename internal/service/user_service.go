package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"mood-tracker/internal/domain"
	"mood-tracker/internal/moodstore"
	"mood-tracker/internal/repository"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserAlreadyExists is returned when attempting to register with an existing username.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrUserNotFound is returned when the user id is unknown.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidInput is returned for missing registration fields.
	ErrInvalidInput = errors.New("invalid input")
)

// MoodAccounts is the part of the mood store that follows the user lifecycle.
type MoodAccounts interface {
	RegisterUser(ctx context.Context, userID int64) error
	DeleteUser(ctx context.Context, userID int64) (moodstore.Account, error)
	Restore(ctx context.Context, account moodstore.Account) error
	Streak(userID int64) (domain.StreakState, error)
}

// Profile is the public view of a user.
type Profile struct {
	ID             int64
	Username       string
	Streak         int
	LastSubmission *time.Time
}

// UserService describes user lifecycle operations.
type UserService interface {
	Register(ctx context.Context, username, password string) (*domain.User, error)
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	Profile(ctx context.Context, id int64) (*Profile, error)
	Delete(ctx context.Context, id int64) error
}

type userService struct {
	users  repository.UserRepository
	moods  MoodAccounts
	cost   int
	logger logrus.FieldLogger
}

// NewUserService wires the user directory to the mood store. A zero cost uses bcrypt.DefaultCost.
func NewUserService(users repository.UserRepository, moods MoodAccounts, cost int, logger logrus.FieldLogger) UserService {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &userService{
		users:  users,
		moods:  moods,
		cost:   cost,
		logger: logger,
	}
}

func (s *userService) Register(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required: %w", ErrInvalidInput)
	}
	if password == "" {
		return nil, fmt.Errorf("password is required: %w", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: string(hash),
	}

	if _, err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}

	if err := s.moods.RegisterUser(ctx, user.ID); err != nil {
		// undo the directory row so the two stay in step
		if delErr := s.users.Delete(ctx, user.ID); delErr != nil {
			s.logger.WithField("user_id", user.ID).Errorf("roll back user after mood registration failure: %v", delErr)
		}
		return nil, fmt.Errorf("register moods: %w", err)
	}

	s.logger.WithField("user_id", user.ID).Info("user registered")
	return sanitizeUser(user), nil
}

func (s *userService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return sanitizeUser(user), nil
}

func (s *userService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) Profile(ctx context.Context, id int64) (*Profile, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	state, err := s.moods.Streak(id)
	if err != nil {
		if errors.Is(err, moodstore.ErrUnknownUser) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &Profile{
		ID:             user.ID,
		Username:       user.Username,
		Streak:         state.Count,
		LastSubmission: state.LastSubmission,
	}, nil
}

// Delete removes the mood history first and the directory entry second. If the
// directory refuses, the mood history is put back.
func (s *userService) Delete(ctx context.Context, id int64) error {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	removed, err := s.moods.DeleteUser(ctx, id)
	if err != nil {
		if errors.Is(err, moodstore.ErrUnknownUser) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete moods: %w", err)
	}

	if err := s.users.Delete(ctx, id); err != nil {
		if restoreErr := s.moods.Restore(ctx, removed); restoreErr != nil {
			s.logger.WithField("user_id", id).Errorf("restore moods after failed user delete: %v", restoreErr)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	s.logger.WithField("user_id", id).Info("user deleted")
	return nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:        user.ID,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
