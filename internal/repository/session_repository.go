package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"picturecoupon/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

const sessionColumns = `id, user_id, device_id, device_name, refresh_token_hash,
	ip_address, user_agent, created_at, last_seen_at, expires_at`

// touchInterval bounds how often Touch rewrites last_seen_at for one session.
const touchInterval = "1 minute"

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create signs a device in. Signing in again from the same device replaces
// its previous session and refresh token.
func (r *SessionRepository) Create(ctx context.Context, s models.Session) error {
	query := `INSERT INTO user_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), $8)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			id = EXCLUDED.id,
			device_name = EXCLUDED.device_name,
			refresh_token_hash = EXCLUDED.refresh_token_hash,
			ip_address = EXCLUDED.ip_address,
			user_agent = EXCLUDED.user_agent,
			last_seen_at = NOW(),
			expires_at = EXCLUDED.expires_at`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.UserID, s.DeviceID, s.DeviceName, s.RefreshTokenHash,
		s.IPAddress, s.UserAgent, s.ExpiresAt,
	)
	return err
}

func (r *SessionRepository) CountByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_sessions WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

// DeleteOldestSessions keeps the keepLatest most recently used sessions of
// userID and drops the rest.
func (r *SessionRepository) DeleteOldestSessions(ctx context.Context, userID int64, keepLatest int) error {
	const query = `
		DELETE FROM user_sessions s
		USING (
			SELECT id, ROW_NUMBER() OVER (ORDER BY last_seen_at DESC, created_at DESC) AS pos
			FROM user_sessions WHERE user_id = $1
		) ranked
		WHERE s.id = ranked.id AND ranked.pos > $2`
	_, err := r.pool.Exec(ctx, query, userID, keepLatest)
	return err
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (models.Session, error) {
	return r.findOne(ctx, `id = $1`, id)
}

// FindByRefreshHash looks a refresh token up within one user's sessions.
func (r *SessionRepository) FindByRefreshHash(ctx context.Context, userID int64, refreshHash []byte) (models.Session, error) {
	return r.findOne(ctx, `user_id = $1 AND refresh_token_hash = $2`, userID, refreshHash)
}

// ListByUser returns the live sessions of userID, most recently used first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID int64) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+`
		FROM user_sessions
		WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY last_seen_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Session, error) {
		return scanSession(row)
	})
}

func (r *SessionRepository) DeleteByID(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteByDevice signs one device out. Unknown devices are not an error.
func (r *SessionRepository) DeleteByDevice(ctx context.Context, userID int64, deviceID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE user_id = $1 AND device_id = $2`, userID, deviceID)
	return err
}

// Touch records activity on a session. Blank ip or userAgent keep the stored
// values, and sessions seen within touchInterval are not rewritten.
func (r *SessionRepository) Touch(ctx context.Context, sessionID string, ip string, userAgent string) error {
	const query = `
		UPDATE user_sessions
		SET last_seen_at = NOW(),
		    ip_address = COALESCE(NULLIF($2, ''), ip_address),
		    user_agent = COALESCE(NULLIF($3, ''), user_agent)
		WHERE id = $1 AND last_seen_at < NOW() - INTERVAL '` + touchInterval + `'`
	_, err := r.pool.Exec(ctx, query, sessionID, ip, userAgent)
	return err
}

// DeleteExpired removes sessions whose refresh token can no longer be used.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) findOne(ctx context.Context, where string, args ...any) (models.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM user_sessions WHERE `+where, args...)
	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Session{}, ErrSessionNotFound
	}
	return session, err
}

func scanSession(row pgx.Row) (models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID, &s.UserID, &s.DeviceID, &s.DeviceName, &s.RefreshTokenHash,
		&s.IPAddress, &s.UserAgent, &s.CreatedAt, &s.LastSeenAt, &s.ExpiresAt,
	)
	return s, err
}
