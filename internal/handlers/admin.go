package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"picturecoupon/internal/repository"
	"picturecoupon/internal/security"
)

func (h HandlerSet) AdminListAttachments(c *gin.Context) {
	limit, offset := pagination(c)

	attachments, err := h.attachments.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]gin.H, 0, len(attachments))
	for _, a := range attachments {
		items = append(items, gin.H{
			"id":        a.ID,
			"userId":    a.UserID,
			"fileName":  a.FileName,
			"format":    a.Format,
			"status":    a.Status,
			"width":     a.Width,
			"height":    a.Height,
			"sizeBytes": a.SizeBytes,
			"createdAt": a.CreatedAt,
			"verified":  security.VerifyAttachment(h.cfg.Security.SignatureSecret, a.UserID, a.ObjectKey, a.Signature),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
	})
}

// AdminListHistories exports every user's history, empty ones included.
func (h HandlerSet) AdminListHistories(c *gin.Context) {
	limit, offset := pagination(c)

	histories, err := h.pictures.AllHistories(c.Request.Context(), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("export histories failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history_unavailable"})
		return
	}

	c.JSON(http.StatusOK, histories)
}

// AdminUserHistory answers [] for a user without pictures.
func (h HandlerSet) AdminUserHistory(c *gin.Context) {
	userID, ok := positiveID(c, "userId")
	if !ok {
		return
	}

	data, empty, err := h.pictures.HistoryData(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "invalid user", "message": "User with id " + c.Param("userId") + " was not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", userID).Msg("export history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history_unavailable"})
		return
	}

	if empty {
		c.JSON(http.StatusOK, []any{})
		return
	}
	c.JSON(http.StatusOK, data)
}

type settingsRequest struct {
	MaxProfilePictures string `json:"maxProfilePictures"`
}

func (h HandlerSet) AdminGetSettings(c *gin.Context) {
	ctx := c.Request.Context()

	raw, err := h.settings.RawMaxProfilePictures(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"maxProfilePictures":          raw,
		"effectiveMaxProfilePictures": h.settings.MaxProfilePictures(ctx),
		"defaultMaxProfilePictures":   h.settings.Fallback(),
	})
}

// AdminUpdateSettings stores the value as entered; unusable values make the
// service fall back to the configured capacity.
func (h HandlerSet) AdminUpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.settings.SetMaxProfilePictures(c.Request.Context(), req.MaxProfilePictures); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.AdminGetSettings(c)
}
