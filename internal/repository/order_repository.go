package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"picturecoupon/internal/models"
)

// OrderPictureMetaKey marks the order_meta row holding the checkout picture.
const OrderPictureMetaKey = "picture_at_checkout"

var (
	ErrOrderPictureNotFound = errors.New("order picture not found")
	ErrOrderPictureConflict = errors.New("order picture belongs to another user")
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// SavePicture inserts the snapshot or replaces one saved earlier by the same
// user. A snapshot owned by a different user is left untouched.
func (r *OrderRepository) SavePicture(ctx context.Context, snapshot models.OrderPicture) error {
	const query = `
		INSERT INTO order_meta (order_id, meta_key, user_id, picture_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (order_id, meta_key)
		DO UPDATE SET picture_id = EXCLUDED.picture_id
		WHERE order_meta.user_id = EXCLUDED.user_id
	`
	tag, err := r.pool.Exec(ctx, query, snapshot.OrderID, OrderPictureMetaKey, snapshot.UserID, snapshot.PictureID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderPictureConflict
	}
	return nil
}

func (r *OrderRepository) GetPicture(ctx context.Context, orderID string) (models.OrderPicture, error) {
	const query = `
		SELECT order_id, user_id, picture_id, created_at
		FROM order_meta WHERE order_id = $1 AND meta_key = $2
	`
	var snapshot models.OrderPicture
	err := r.pool.QueryRow(ctx, query, orderID, OrderPictureMetaKey).Scan(
		&snapshot.OrderID,
		&snapshot.UserID,
		&snapshot.PictureID,
		&snapshot.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.OrderPicture{}, ErrOrderPictureNotFound
		}
		return models.OrderPicture{}, err
	}
	return snapshot, nil
}
