package repository

import (
	"context"

	"mood-tracker/internal/domain"
)

// MoodRepository is the durable record behind the in-memory mood store.
// SaveAll always receives the complete state and replaces whatever was stored.
type MoodRepository interface {
	Init(ctx context.Context) error
	LoadAll(ctx context.Context) (map[int64][]string, error)
	SaveAll(ctx context.Context, records []domain.MoodRecord) error
}
