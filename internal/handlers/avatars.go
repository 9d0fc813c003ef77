package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"picturecoupon/internal/repository"
)

const defaultAvatarPx = 96

// Avatar serves the current picture of a user addressed by id or email.
// Callers fall back to their own default avatar on 404.
func (h HandlerSet) Avatar(c *gin.Context) {
	ctx := c.Request.Context()

	user, err := h.pictures.ResolveUser(ctx, c.Param("userRef"))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
			return
		}
		h.log.Error().Err(err).Msg("resolve avatar user failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "avatar_unavailable"})
		return
	}

	size := avatarSize(c, defaultAvatarPx)
	avatar, ok, err := h.pictures.Avatar(ctx, user.ID, size)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", user.ID).Msg("render avatar failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "avatar_unavailable"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_profile_picture"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId": user.ID,
		"size":   size,
		"avatar": avatar,
	})
}
