package models

import "time"

// OrderPicture records which profile picture a shopper had at checkout.
type OrderPicture struct {
	OrderID   string
	UserID    int64
	PictureID int64
	CreatedAt time.Time
}
