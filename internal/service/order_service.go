package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"picturecoupon/internal/models"
	"picturecoupon/internal/pictures"
	"picturecoupon/internal/repository"
)

var ErrInvalidOrderID = errors.New("invalid order id")

type orderStore interface {
	SavePicture(ctx context.Context, snapshot models.OrderPicture) error
	GetPicture(ctx context.Context, orderID string) (models.OrderPicture, error)
}

// OrderService remembers which profile picture a customer had when an order
// was placed, so later picture changes do not alter past orders.
type OrderService struct {
	orders orderStore
	loader *pictures.Loader
	log    zerolog.Logger
}

func NewOrderService(orders orderStore, loader *pictures.Loader, log zerolog.Logger) *OrderService {
	return &OrderService{orders: orders, loader: loader, log: log}
}

// SnapshotAtCheckout stores the current picture of userID on the order. ok is
// false and nothing is stored when the user has no picture.
func (s *OrderService) SnapshotAtCheckout(ctx context.Context, orderID string, userID int64) (picture *pictures.Picture, ok bool, err error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, false, ErrInvalidOrderID
	}

	history, err := s.loader.UserHistory(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	current := history.Current()
	if !current.IsValid() {
		return current, false, nil
	}

	if err := s.orders.SavePicture(ctx, models.OrderPicture{
		OrderID:   orderID,
		UserID:    userID,
		PictureID: current.ID(),
	}); err != nil {
		return nil, false, err
	}

	s.log.Debug().Str("order_id", orderID).Int64("picture_id", current.ID()).Msg("order picture saved")
	return current, true, nil
}

// PictureForOrder returns the picture saved at checkout, or the invalid
// sentinel when the order has none.
func (s *OrderService) PictureForOrder(ctx context.Context, orderID string) (*pictures.Picture, models.OrderPicture, error) {
	snapshot, err := s.orders.GetPicture(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderPictureNotFound) {
			return &pictures.Picture{}, models.OrderPicture{OrderID: orderID}, nil
		}
		return nil, models.OrderPicture{}, err
	}
	return s.loader.NewPicture(snapshot.PictureID), snapshot, nil
}
