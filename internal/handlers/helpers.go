package handlers

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"picturecoupon/internal/middleware"
	"picturecoupon/internal/models"
)

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

func requireUser(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return models.User{}, false
	}
	return user, true
}

// positiveID parses a numeric path parameter. Zero and negatives are rejected
// since they never name a stored row.
func positiveID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_" + name})
		return 0, false
	}
	return id, true
}

// pagination reads ?perPage= and ?page=. Pages past what an int32 offset can
// address are clamped to the last addressable page.
func pagination(c *gin.Context) (limit, offset int) {
	limit = defaultPerPage
	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= maxPerPage {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			v = min(v, math.MaxInt32/limit)
			offset = (v - 1) * limit
		}
	}
	return limit, offset
}

// avatarSize reads ?size=, falling back to def for missing or bad values.
func avatarSize(c *gin.Context, def int) int {
	if raw := c.Query("size"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 1024 {
			return v
		}
	}
	return def
}
