package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"mood-tracker/internal/domain"
	"mood-tracker/internal/repository"
)

// No foreign key to users: the mood store commits deletions on its own schedule.
const createMoodsTable = `
CREATE TABLE IF NOT EXISTS moods (
	user_id INTEGER NOT NULL,
	position INTEGER NOT NULL,
	label TEXT NOT NULL,
	PRIMARY KEY (user_id, position)
);
CREATE TABLE IF NOT EXISTS mood_users (
	user_id INTEGER PRIMARY KEY
);
`

// MoodRepository keeps mood logs in sqlite. mood_users records which users
// exist so that users with an empty log survive a reload.
type MoodRepository struct {
	db *sql.DB
}

func NewMoodRepository(db *sql.DB) repository.MoodRepository {
	return &MoodRepository{db: db}
}

func (r *MoodRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createMoodsTable); err != nil {
		return fmt.Errorf("create moods table: %w", err)
	}
	return nil
}

func (r *MoodRepository) LoadAll(ctx context.Context) (map[int64][]string, error) {
	records := make(map[int64][]string)

	users, err := r.db.QueryContext(ctx, `SELECT user_id FROM mood_users`)
	if err != nil {
		return nil, fmt.Errorf("query mood users: %w", err)
	}
	defer users.Close()
	for users.Next() {
		var id int64
		if err := users.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan mood user: %w", err)
		}
		records[id] = []string{}
	}
	if err := users.Err(); err != nil {
		return nil, fmt.Errorf("iterate mood users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT user_id, label
FROM moods
ORDER BY user_id ASC, position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query moods: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			label string
		)
		if err := rows.Scan(&id, &label); err != nil {
			return nil, fmt.Errorf("scan mood: %w", err)
		}
		records[id] = append(records[id], label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moods: %w", err)
	}
	return records, nil
}

func (r *MoodRepository) SaveAll(ctx context.Context, records []domain.MoodRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM moods`); err != nil {
		return fmt.Errorf("delete moods: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mood_users`); err != nil {
		return fmt.Errorf("delete mood users: %w", err)
	}

	userStmt, err := tx.PrepareContext(ctx, `INSERT INTO mood_users (user_id) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("prepare mood user insert: %w", err)
	}
	defer userStmt.Close()

	moodStmt, err := tx.PrepareContext(ctx, `
INSERT INTO moods (user_id, position, label)
VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare mood insert: %w", err)
	}
	defer moodStmt.Close()

	for _, record := range records {
		if _, err := userStmt.ExecContext(ctx, record.UserID); err != nil {
			return fmt.Errorf("insert mood user %d: %w", record.UserID, err)
		}
		for pos, label := range record.Labels {
			if _, err := moodStmt.ExecContext(ctx, record.UserID, pos, label); err != nil {
				return fmt.Errorf("insert mood for user %d: %w", record.UserID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
