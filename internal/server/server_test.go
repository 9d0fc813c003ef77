package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picturecoupon/internal/config"
	"picturecoupon/internal/handlers"
)

func testConfig() *config.AppConfig {
	cfg := &config.AppConfig{Environment: "test"}
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 8080
	cfg.Pictures.MaxUploadBytes = 1 << 20
	return cfg
}

func TestProtectedRoutesRunThroughMiddleware(t *testing.T) {
	srv, err := NewHTTPServer(testConfig(), zerolog.Nop(), handlers.HandlerSet{})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", srv.server.Addr)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pictures", nil)
	req.Header.Set("Origin", "https://shop.example.test")
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, int64(1<<20), srv.engine.MaxMultipartMemory)
}

func TestRejectsInvalidTrustedProxies(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.TrustedProxies = []string{"not-an-ip"}

	_, err := NewHTTPServer(cfg, zerolog.Nop(), handlers.HandlerSet{})
	assert.Error(t, err)
}
