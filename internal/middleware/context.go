package middleware

import (
	"github.com/gin-gonic/gin"

	"picturecoupon/internal/models"
	"picturecoupon/internal/security"
)

const (
	ctxAccessToken  = "access_token"
	ctxAccessClaims = "access_claims"
	ctxCurrentUser  = "current_user"
)

// CurrentUser returns the user stored by Auth.
func CurrentUser(c *gin.Context) (models.User, bool) {
	val, exists := c.Get(ctxCurrentUser)
	if !exists {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}

// Claims returns the access token claims stored by Auth.
func Claims(c *gin.Context) (security.AccessClaims, bool) {
	val, exists := c.Get(ctxAccessClaims)
	if !exists {
		return security.AccessClaims{}, false
	}
	switch claims := val.(type) {
	case security.AccessClaims:
		return claims, true
	case *security.AccessClaims:
		if claims != nil {
			return *claims, true
		}
	}
	return security.AccessClaims{}, false
}
