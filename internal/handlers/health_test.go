package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"picturecoupon/internal/config"
)

func healthRouter(probes ...probe) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.AppConfig{Environment: "test"}
	cfg.Pictures.MetaStore = config.MetaStoreSQLite

	h := HandlerSet{log: zerolog.Nop(), cfg: cfg, probes: probes}
	r := gin.New()
	r.GET("/healthz", h.Health)
	return r
}

func probeResult(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestHealth(t *testing.T) {
	down := errors.New("down")

	cases := map[string]struct {
		probes []probe
		code   int
		body   string
	}{
		"all ok": {
			probes: []probe{{name: "database", required: true, check: probeResult(nil)}, {name: "cache", check: probeResult(nil)}},
			code:   http.StatusOK,
			body:   `{"status":"ok","checks":{"database":"ok","cache":"ok"},"metaStore":"sqlite","environment":"test"}`,
		},
		"cache down": {
			probes: []probe{{name: "database", required: true, check: probeResult(nil)}, {name: "cache", check: probeResult(down)}},
			code:   http.StatusOK,
			body:   `{"status":"degraded","checks":{"database":"ok","cache":"error"},"metaStore":"sqlite","environment":"test"}`,
		},
		"database down": {
			probes: []probe{{name: "database", required: true, check: probeResult(down)}, {name: "storage", check: probeResult(down)}},
			code:   http.StatusServiceUnavailable,
			body:   `{"status":"unavailable","checks":{"database":"error","storage":"error"},"metaStore":"sqlite","environment":"test"}`,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			healthRouter(tc.probes...).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tc.code, w.Code)
			assert.JSONEq(t, tc.body, w.Body.String())
		})
	}
}

func TestDefaultProbesSkipMissingDependencies(t *testing.T) {
	assert.Empty(t, defaultProbes(nil, nil, nil))
}
