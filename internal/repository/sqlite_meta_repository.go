package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteMetaRepository is the embedded alternative to UserMetaRepository.
type SQLiteMetaRepository struct {
	db *sql.DB
}

func NewSQLiteMetaRepository(db *sql.DB) *SQLiteMetaRepository {
	return &SQLiteMetaRepository{db: db}
}

func (r *SQLiteMetaRepository) Load(ctx context.Context, userID int64, key string) ([]int64, error) {
	row := r.db.QueryRowContext(ctx, "SELECT meta_value FROM user_meta WHERE user_id = ? AND meta_key = ?", userID, key)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return decodeIDs([]byte(raw))
}

func (r *SQLiteMetaRepository) Store(ctx context.Context, userID int64, key string, ids []int64) error {
	raw, err := encodeIDs(ids)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_meta (user_id, meta_key, meta_value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, meta_key) DO UPDATE SET meta_value = excluded.meta_value, updated_at = excluded.updated_at`,
		userID, key, string(raw), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}
