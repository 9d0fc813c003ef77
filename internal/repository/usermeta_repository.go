package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserMetaRepository keeps per-user id lists in the user_meta table.
type UserMetaRepository struct {
	pool *pgxpool.Pool
}

func NewUserMetaRepository(pool *pgxpool.Pool) *UserMetaRepository {
	return &UserMetaRepository{pool: pool}
}

func (r *UserMetaRepository) Load(ctx context.Context, userID int64, key string) ([]int64, error) {
	const query = `SELECT meta_value FROM user_meta WHERE user_id = $1 AND meta_key = $2`

	var raw []byte
	if err := r.pool.QueryRow(ctx, query, userID, key).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return decodeIDs(raw)
}

func (r *UserMetaRepository) Store(ctx context.Context, userID int64, key string, ids []int64) error {
	const query = `
		INSERT INTO user_meta (user_id, meta_key, meta_value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, meta_key)
		DO UPDATE SET meta_value = EXCLUDED.meta_value, updated_at = NOW()
	`

	raw, err := encodeIDs(ids)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query, userID, key, raw)
	return err
}

func encodeIDs(ids []int64) ([]byte, error) {
	if ids == nil {
		ids = []int64{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode meta value: %w", err)
	}
	return raw, nil
}

func decodeIDs(raw []byte) ([]int64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode meta value: %w", err)
	}
	return ids, nil
}
