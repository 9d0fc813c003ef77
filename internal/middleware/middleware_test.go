package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picturecoupon/internal/config"
	"picturecoupon/internal/models"
	"picturecoupon/internal/security"
)

type stubUsers map[int64]models.User

func (s stubUsers) GetByID(_ context.Context, id int64) (models.User, error) {
	u, ok := s[id]
	if !ok {
		return models.User{}, errors.New("not found")
	}
	return u, nil
}

type stubSessions map[string]models.Session

func (s stubSessions) GetByID(_ context.Context, id string) (models.Session, error) {
	sess, ok := s[id]
	if !ok {
		return models.Session{}, errors.New("not found")
	}
	return sess, nil
}

func (s stubSessions) Touch(context.Context, string, string, string) error {
	return nil
}

func testConfig() *config.AppConfig {
	cfg := &config.AppConfig{}
	cfg.Security.JWTAccessSecret = "access"
	cfg.Security.SignatureSecret = "signing"
	return cfg
}

func newRouter(cfg *config.AppConfig, users stubUsers, sessions stubSessions, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{Auth(cfg, users, sessions)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		user, _ := CurrentUser(c)
		claims, _ := Claims(c)
		c.JSON(http.StatusOK, gin.H{"user": user.ID, "device": claims.DeviceID})
	})
	r.POST("/api/v1/pictures", handlers...)
	return r
}

func fixtures(t *testing.T, cfg *config.AppConfig, role models.UserRole, status models.UserStatus) (stubUsers, stubSessions, string) {
	t.Helper()
	users := stubUsers{7: {ID: 7, Role: role, Status: status}}
	sessions := stubSessions{"s1": {ID: "s1", UserID: 7, DeviceID: "d1", ExpiresAt: time.Now().Add(time.Hour)}}
	token, err := security.GenerateAccessToken(cfg.Security.JWTAccessSecret, 7, "s1", "d1", string(role), nil, time.Minute)
	require.NoError(t, err)
	return users, sessions, token
}

func TestAuthAcceptsValidToken(t *testing.T) {
	cfg := testConfig()
	users, sessions, token := fixtures(t, cfg, models.UserRoleUser, models.UserStatusActive)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pictures", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	newRouter(cfg, users, sessions).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":7,"device":"d1"}`, w.Body.String())
}

func TestAuthRejections(t *testing.T) {
	cfg := testConfig()
	users, sessions, token := fixtures(t, cfg, models.UserRoleUser, models.UserStatusSuspended)

	cases := map[string]struct {
		header string
		status int
	}{
		"missing":   {"", http.StatusUnauthorized},
		"garbage":   {"Bearer nope", http.StatusUnauthorized},
		"suspended": {"Bearer " + token, http.StatusForbidden},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/pictures", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			newRouter(cfg, users, sessions).ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestAuthRejectsExpiredSession(t *testing.T) {
	cfg := testConfig()
	users, sessions, token := fixtures(t, cfg, models.UserRoleUser, models.UserStatusActive)
	expired := sessions["s1"]
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	sessions["s1"] = expired

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pictures", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	newRouter(cfg, users, sessions).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "session_expired")
}

func TestRequireRoles(t *testing.T) {
	cfg := testConfig()
	users, sessions, token := fixtures(t, cfg, models.UserRoleUser, models.UserStatusActive)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pictures", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	newRouter(cfg, users, sessions, RequireRoles(models.UserRoleAdmin)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRolesAdmitsAdminAndRejectsStaleToken(t *testing.T) {
	cfg := testConfig()
	users, sessions, token := fixtures(t, cfg, models.UserRoleAdmin, models.UserStatusActive)
	router := newRouter(cfg, users, sessions, RequireRoles(models.AdminRoles...))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pictures", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send())

	demoted := users[7]
	demoted.Role = models.UserRoleUser
	users[7] = demoted
	assert.Equal(t, http.StatusUnauthorized, send())
}

func TestSignature(t *testing.T) {
	cfg := testConfig()
	users, sessions, token := fixtures(t, cfg, models.UserRoleUser, models.UserStatusActive)
	router := newRouter(cfg, users, sessions, Signature(cfg, nil, zerolog.Nop()))

	body := `{"orderId":"1"}`
	date := time.Now().UTC().Format(time.RFC3339)
	sig := security.Sign(cfg.Security.SignatureSecret, security.SignedRequest{
		DeviceID: "d1",
		Method:   http.MethodPost,
		Path:     "/api/v1/pictures",
		Body:     []byte(body),
		Date:     date,
		Nonce:    "n1",
	})

	send := func(signature, date string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pictures", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(security.HeaderDate, date)
		req.Header.Set(security.HeaderNonce, "n1")
		req.Header.Set(security.HeaderSignature, signature)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send(sig, date))
	assert.Equal(t, http.StatusUnauthorized, send("bad", date))
	assert.Equal(t, http.StatusUnauthorized, send(sig, time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)))
	assert.Equal(t, http.StatusUnauthorized, send(sig, "yesterday"))
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"https://shop.example.test"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://shop.example.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://shop.example.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), security.HeaderSignature)
}

func TestOriginPolicy(t *testing.T) {
	p := newOriginPolicy([]string{"https://shop.example.test/", "https://*.cdn.example.test"})

	assert.True(t, p.allows("https://shop.example.test"))
	assert.True(t, p.allows("https://eu.cdn.example.test"))
	assert.False(t, p.allows("http://eu.cdn.example.test"))
	assert.False(t, p.allows("https://cdn.example.test"))
	assert.False(t, p.allows("https://evil.test"))
	assert.False(t, p.open())
	assert.True(t, newOriginPolicy(nil).open())
}

func TestCORSOpenPolicyOmitsCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(nil))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://anywhere.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRequestIDPropagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(zerolog.Nop()))
	r.GET("/x", func(c *gin.Context) {
		assert.Equal(t, RequestIDFrom(c), c.Writer.Header().Get(requestIDHeader))
		assert.NotNil(t, zerolog.Ctx(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(requestIDHeader, "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(requestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Len(t, w.Header().Get(requestIDHeader), 36)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(requestIDHeader, "bad id forged=1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Len(t, w.Header().Get(requestIDHeader), 36)
}

func TestRecoveryAnswers500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(zerolog.Nop()), Logger(zerolog.Nop()), Recovery(zerolog.Nop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal_server_error"}`, w.Body.String())
}
