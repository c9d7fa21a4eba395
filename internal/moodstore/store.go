// Package moodstore owns the in-memory mood logs and streaks of every known
// user and keeps them in step with the durable mood record.
//
// Every mutation follows the same sequence under one lock: compute the new
// state, hand the complete staged state to the repository, and only then
// commit it to memory. A failed flush leaves memory exactly as it was.
package moodstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mood-tracker/internal/domain"
	"mood-tracker/internal/repository"
	"mood-tracker/internal/streak"
)

var (
	// ErrUnknownUser is returned when the user id has no mood log.
	ErrUnknownUser = errors.New("unknown user")
	// ErrInvalidMood is returned for empty or unstorable labels.
	ErrInvalidMood = errors.New("invalid mood")
	// ErrPersistence wraps failures of the durable record.
	ErrPersistence = errors.New("persistence failure")
	// ErrUserExists is returned when registering a user id twice.
	ErrUserExists = errors.New("user already registered")
)

// Account is the full mood state of one user.
type Account struct {
	UserID int64
	Log    domain.MoodLog
	Streak domain.StreakState
}

// Options tune a Store. Zero values fall back to defaults.
type Options struct {
	FlushTimeout time.Duration
	Location     *time.Location
	Logger       logrus.FieldLogger
}

// Store is safe for concurrent use.
type Store struct {
	repo         repository.MoodRepository
	flushTimeout time.Duration
	loc          *time.Location
	logger       logrus.FieldLogger

	mu       sync.Mutex
	accounts map[int64]*Account
}

func New(repo repository.MoodRepository, opts Options) *Store {
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 5 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Store{
		repo:         repo,
		flushTimeout: opts.FlushTimeout,
		loc:          opts.Location,
		logger:       opts.Logger,
		accounts:     make(map[int64]*Account),
	}
}

// Load replaces the in-memory state with one account per known user id.
// Users without a durable row start with an empty log. Rows for ids that are
// not in userIDs are ignored. Streaks always start from zero.
func (s *Store) Load(ctx context.Context, userIDs []int64, records map[int64][]string) {
	accounts := make(map[int64]*Account, len(userIDs))
	for _, id := range userIDs {
		accounts[id] = &Account{
			UserID: id,
			Log:    domain.LogFromLabels(records[id]),
		}
	}

	for id, labels := range records {
		if _, ok := accounts[id]; !ok && len(labels) > 0 {
			s.logger.WithField("user_id", id).Warnf("dropping %d stored moods for unknown user", len(labels))
		}
	}

	s.mu.Lock()
	s.accounts = accounts
	s.mu.Unlock()

	s.logger.Infof("mood store loaded %d users", len(accounts))
}

// LoadFrom reads the durable record through the repository and calls Load.
func (s *Store) LoadFrom(ctx context.Context, userIDs []int64) error {
	records, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: load moods: %w", ErrPersistence, err)
	}
	s.Load(ctx, userIDs, records)
	return nil
}

// Moods returns a copy of the user's log.
func (s *Store) Moods(userID int64) (domain.MoodLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", userID, ErrUnknownUser)
	}
	out := make(domain.MoodLog, len(account.Log))
	copy(out, account.Log)
	return out, nil
}

// Streak returns the user's current streak state.
func (s *Store) Streak(userID int64) (domain.StreakState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[userID]
	if !ok {
		return domain.StreakState{}, fmt.Errorf("user %d: %w", userID, ErrUnknownUser)
	}
	state := account.Streak
	if state.LastSubmission != nil {
		ts := *state.LastSubmission
		state.LastSubmission = &ts
	}
	return state, nil
}

// SubmitMood appends label to the user's log and advances the streak. The
// label is stored as submitted. The call only succeeds once the durable
// record has been rewritten.
func (s *Store) SubmitMood(ctx context.Context, userID int64, label string, at time.Time) (string, error) {
	if strings.TrimSpace(label) == "" {
		return "", fmt.Errorf("empty label: %w", ErrInvalidMood)
	}
	if strings.ContainsAny(label, "\r\n") {
		return "", fmt.Errorf("label contains a line break: %w", ErrInvalidMood)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[userID]
	if !ok {
		return "", fmt.Errorf("user %d: %w", userID, ErrUnknownUser)
	}

	// full slice expression forces a fresh backing array so the committed log is untouched
	staged := &Account{
		UserID: userID,
		Log:    append(current.Log[:len(current.Log):len(current.Log)], domain.MoodEntry{Label: label}),
		Streak: streak.Advance(current.Streak, at.In(s.loc)),
	}

	if err := s.flushLocked(ctx, staged, 0); err != nil {
		return "", err
	}
	s.accounts[userID] = staged

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"streak":  staged.Streak.Count,
	}).Debug("mood accepted")
	return label, nil
}

// RegisterUser creates an empty log and a zero streak for a new user.
func (s *Store) RegisterUser(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[userID]; ok {
		return fmt.Errorf("user %d: %w", userID, ErrUserExists)
	}

	staged := &Account{UserID: userID, Log: domain.MoodLog{}}
	if err := s.flushLocked(ctx, staged, 0); err != nil {
		return err
	}
	s.accounts[userID] = staged
	return nil
}

// DeleteUser removes the user's log and streak and returns what was removed.
func (s *Store) DeleteUser(ctx context.Context, userID int64) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[userID]
	if !ok {
		return Account{}, fmt.Errorf("user %d: %w", userID, ErrUnknownUser)
	}

	if err := s.flushLocked(ctx, nil, userID); err != nil {
		return Account{}, err
	}
	delete(s.accounts, userID)
	return *current, nil
}

// Restore puts back an account removed by DeleteUser, for callers whose
// accompanying directory change failed.
func (s *Store) Restore(ctx context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.UserID]; ok {
		return fmt.Errorf("user %d: %w", account.UserID, ErrUserExists)
	}
	staged := account
	if err := s.flushLocked(ctx, &staged, 0); err != nil {
		return err
	}
	s.accounts[account.UserID] = &staged
	return nil
}

// Records returns a snapshot of every log ordered by user id.
func (s *Store) Records() []domain.MoodRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordsLocked(nil, 0)
}

// flushLocked writes the current state with staged swapped in (or added) and
// the user `without` left out. Callers hold s.mu.
func (s *Store) flushLocked(ctx context.Context, staged *Account, without int64) error {
	records := s.recordsLocked(staged, without)

	ctx, cancel := context.WithTimeout(ctx, s.flushTimeout)
	defer cancel()

	start := time.Now()
	if err := s.repo.SaveAll(ctx, records); err != nil {
		s.logger.WithError(err).Error("flush mood record")
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	s.logger.WithFields(logrus.Fields{
		"users":   len(records),
		"elapsed": time.Since(start),
	}).Debug("mood record flushed")
	return nil
}

func (s *Store) recordsLocked(staged *Account, without int64) []domain.MoodRecord {
	records := make([]domain.MoodRecord, 0, len(s.accounts)+1)
	for id, account := range s.accounts {
		if id == without {
			continue
		}
		if staged != nil && id == staged.UserID {
			continue
		}
		records = append(records, domain.MoodRecord{UserID: id, Labels: account.Log.Labels()})
	}
	if staged != nil {
		records = append(records, domain.MoodRecord{UserID: staged.UserID, Labels: staged.Log.Labels()})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].UserID < records[j].UserID })
	return records
}
