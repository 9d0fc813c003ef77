package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"picturecoupon/internal/security"
)

var allowedHeaders = strings.Join([]string{
	"Authorization",
	"Content-Type",
	requestIDHeader,
	security.HeaderDate,
	security.HeaderNonce,
	security.HeaderSignature,
}, ", ")

const allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"

// originPolicy matches exact origins and "https://*.shop.test" style
// subdomain wildcards. An empty policy allows any origin without credentials.
type originPolicy struct {
	exact    map[string]struct{}
	suffixes []string
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{exact: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" {
			continue
		}
		if scheme, host, ok := strings.Cut(origin, "://*."); ok {
			p.suffixes = append(p.suffixes, scheme+"://|."+host)
			continue
		}
		p.exact[origin] = struct{}{}
	}
	return p
}

func (p originPolicy) open() bool {
	return len(p.exact) == 0 && len(p.suffixes) == 0
}

func (p originPolicy) allows(origin string) bool {
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, suffix := range p.suffixes {
		scheme, host, _ := strings.Cut(suffix, "|")
		if strings.HasPrefix(origin, scheme) && strings.HasSuffix(origin, host) {
			return true
		}
	}
	return false
}

func CORS(allowedOrigins []string) gin.HandlerFunc {
	policy := newOriginPolicy(allowedOrigins)

	return func(c *gin.Context) {
		header := c.Writer.Header()
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			header.Add("Vary", "Origin")
			switch {
			case policy.open():
				header.Set("Access-Control-Allow-Origin", "*")
			case policy.allows(origin):
				header.Set("Access-Control-Allow-Origin", origin)
				header.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		header.Set("Access-Control-Allow-Headers", allowedHeaders)
		header.Set("Access-Control-Expose-Headers", requestIDHeader)
		header.Set("Access-Control-Allow-Methods", allowedMethods)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
