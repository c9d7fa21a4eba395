// Package flatfile stores mood logs in a single line-oriented text file.
package flatfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mood-tracker/internal/domain"
	"mood-tracker/internal/repository"
)

// MoodRepository rewrites the whole mood file on every save. Writes go to a
// temporary sibling that is synced and renamed over the target, so readers
// only ever see a complete file.
type MoodRepository struct {
	path   string
	format Format
}

func NewMoodRepository(path string, format Format) repository.MoodRepository {
	return &MoodRepository{path: path, format: format}
}

func (r *MoodRepository) Init(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create mood file dir: %w", err)
	}
	return nil
}

func (r *MoodRepository) LoadAll(ctx context.Context) (map[int64][]string, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[int64][]string{}, nil
		}
		return nil, fmt.Errorf("open mood file: %w", err)
	}
	defer f.Close()

	records, err := Decode(bufio.NewReader(f), r.format)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}
	return records, nil
}

func (r *MoodRepository) SaveAll(ctx context.Context, records []domain.MoodRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp mood file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := Encode(w, r.format, records); err != nil {
		return fmt.Errorf("encode moods: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush temp mood file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp mood file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp mood file: %w", err)
	}

	// last chance to abandon the write before it becomes visible
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace mood file: %w", err)
	}
	committed = true
	return nil
}
