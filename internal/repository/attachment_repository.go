package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"picturecoupon/internal/models"
)

var ErrAttachmentNotFound = errors.New("attachment not found")

type AttachmentRepository struct {
	pool *pgxpool.Pool
}

func NewAttachmentRepository(pool *pgxpool.Pool) *AttachmentRepository {
	return &AttachmentRepository{pool: pool}
}

const attachmentColumns = `
	id, user_id, bucket, object_key, file_name, mime, format, width, height,
	size_bytes, status, checksum, signature, created_at, updated_at
`

// Create inserts the attachment and returns it with the generated id.
func (r *AttachmentRepository) Create(ctx context.Context, attachment models.Attachment) (models.Attachment, error) {
	const query = `
		INSERT INTO attachments (
			user_id, bucket, object_key, file_name, mime, format, width, height,
			size_bytes, status, checksum, signature, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, NOW(), NOW()
		)
		RETURNING id, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		attachment.UserID,
		attachment.Bucket,
		attachment.ObjectKey,
		attachment.FileName,
		attachment.MIME,
		attachment.Format,
		attachment.Width,
		attachment.Height,
		attachment.SizeBytes,
		attachment.Status,
		attachment.Checksum,
		attachment.Signature,
	).Scan(&attachment.ID, &attachment.CreatedAt, &attachment.UpdatedAt)
	if err != nil {
		return models.Attachment{}, err
	}
	return attachment, nil
}

func (r *AttachmentRepository) GetByID(ctx context.Context, id int64) (models.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE id = $1`

	attachment, err := scanAttachment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Attachment{}, ErrAttachmentNotFound
		}
		return models.Attachment{}, err
	}
	return attachment, nil
}

func (r *AttachmentRepository) UpdateProcessed(ctx context.Context, id int64, status models.AttachmentStatus, width, height int) error {
	const query = `
		UPDATE attachments
		SET status = $2,
		    width = $3,
		    height = $4,
		    updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, status, width, height)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAttachmentNotFound
	}
	return nil
}

func (r *AttachmentRepository) List(ctx context.Context, limit, offset int) ([]models.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachments ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAttachments(rows)
}

// ListOrphans returns attachments older than olderThan that no history under
// metaKey and no order snapshot references.
func (r *AttachmentRepository) ListOrphans(ctx context.Context, metaKey string, olderThan time.Time, limit int) ([]models.Attachment, error) {
	query := `SELECT ` + attachmentColumns + `
		FROM attachments a
		WHERE a.created_at < $2
		  AND NOT EXISTS (
			SELECT 1 FROM user_meta m
			WHERE m.meta_key = $1 AND m.meta_value @> jsonb_build_array(a.id)
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM order_meta o WHERE o.picture_id = a.id
		  )
		ORDER BY a.created_at
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, metaKey, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAttachments(rows)
}

func (r *AttachmentRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAttachmentNotFound
	}
	return nil
}

func collectAttachments(rows pgx.Rows) ([]models.Attachment, error) {
	var attachments []models.Attachment
	for rows.Next() {
		attachment, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, attachment)
	}
	return attachments, rows.Err()
}

func scanAttachment(row pgx.Row) (models.Attachment, error) {
	var a models.Attachment
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Bucket,
		&a.ObjectKey,
		&a.FileName,
		&a.MIME,
		&a.Format,
		&a.Width,
		&a.Height,
		&a.SizeBytes,
		&a.Status,
		&a.Checksum,
		&a.Signature,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}
