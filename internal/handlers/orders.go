package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"picturecoupon/internal/repository"
	"picturecoupon/internal/service"
)

const noCheckoutPicture = "The user had no profile picture set at the checkout."

func (h HandlerSet) SnapshotOrderPicture(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	orderID := c.Param("orderId")

	picture, saved, err := h.orders.SnapshotAtCheckout(ctx, orderID, user.ID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrderID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_orderId"})
			return
		}
		if errors.Is(err, repository.ErrOrderPictureConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "order_picture_conflict"})
			return
		}
		h.log.Error().Err(err).Str("order_id", orderID).Msg("save order picture failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order_picture_unavailable"})
		return
	}

	resp := gin.H{"orderId": orderID, "saved": saved}
	if saved {
		resp["picture"] = toPictureResponse(ctx, picture, checkoutAvatarPx)
	}
	c.JSON(http.StatusOK, resp)
}

func (h HandlerSet) AdminOrderPicture(c *gin.Context) {
	ctx := c.Request.Context()
	orderID := c.Param("orderId")

	picture, snapshot, err := h.orders.PictureForOrder(ctx, orderID)
	if err != nil {
		h.log.Error().Err(err).Str("order_id", orderID).Msg("load order picture failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order_picture_unavailable"})
		return
	}

	if !picture.IsValid() {
		c.JSON(http.StatusOK, gin.H{"orderId": orderID, "picture": nil, "message": noCheckoutPicture})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orderId":   orderID,
		"userId":    snapshot.UserID,
		"createdAt": snapshot.CreatedAt,
		"picture":   toPictureResponse(ctx, picture, checkoutAvatarPx),
	})
}
