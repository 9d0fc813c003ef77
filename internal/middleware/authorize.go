package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"picturecoupon/internal/models"
)

// RequireRoles must run after Auth. A token minted before the user's role
// changed is refused so demoted admins lose access before it expires.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := slices.Clone(roles)

	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if claims, ok := Claims(c); ok && claims.Role != string(user.Role) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "stale_token"})
			return
		}

		if !slices.Contains(allowed, user.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Next()
	}
}
