package middleware

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"picturecoupon/internal/config"
	"picturecoupon/internal/security"
)

const (
	maxClockSkewPast   = 5 * time.Minute
	maxClockSkewFuture = 2 * time.Minute
	nonceTTL           = 5 * time.Minute
)

// Signature verifies the HMAC request signature bound to the caller's device
// and rejects replayed nonces. It must run after Auth.
func Signature(cfg *config.AppConfig, redisClient *redis.Client, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		date, nonce, signature, err := security.SignatureHeaders(c.Request.Header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "signature_required"})
			return
		}

		requestTime, err := time.Parse(time.RFC3339, date)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_date"})
			return
		}

		if time.Since(requestTime) > maxClockSkewPast || time.Until(requestTime) > maxClockSkewFuture {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "request_expired"})
			return
		}

		rawBody, err := c.GetRawData()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(rawBody))

		claims, ok := Claims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_access_claims"})
			return
		}

		signed := security.NewSignedRequest(c.Request, claims.DeviceID, rawBody, date, nonce)
		valid := security.VerifySignature(cfg.Security.SignatureSecret, signature, signed)
		if !valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature"})
			return
		}

		if redisClient != nil {
			nonceKey := fmt.Sprintf("sig:%s:%s", claims.DeviceID, nonce)
			fresh, err := redisClient.SetNX(c.Request.Context(), nonceKey, "1", nonceTTL).Result()
			if err != nil {
				log.Error().Err(err).Msg("nonce check failed")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "nonce_check_unavailable"})
				return
			}
			if !fresh {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "replay_detected"})
				return
			}
		}

		c.Next()
	}
}
