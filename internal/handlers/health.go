package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"picturecoupon/internal/storage"
)

const probeTimeout = 2 * time.Second

// probe is one dependency check. Required probes turn the service unhealthy;
// the others only degrade it.
type probe struct {
	name     string
	required bool
	check    func(ctx context.Context) error
}

func defaultProbes(db *pgxpool.Pool, cache *redis.Client, store *storage.ObjectStore) []probe {
	var probes []probe
	if db != nil {
		probes = append(probes, probe{name: "database", required: true, check: db.Ping})
	}
	if cache != nil {
		probes = append(probes, probe{name: "cache", check: func(ctx context.Context) error {
			return cache.Ping(ctx).Err()
		}})
	}
	if store != nil {
		probes = append(probes, probe{name: "storage", check: store.Ping})
	}
	return probes
}

type healthResponse struct {
	Status      string            `json:"status"`
	Checks      map[string]string `json:"checks"`
	MetaStore   string            `json:"metaStore"`
	Environment string            `json:"environment"`
}

// Health answers 503 only when a required dependency is down.
func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	resp := healthResponse{
		Status:      "ok",
		Checks:      make(map[string]string, len(h.probes)),
		MetaStore:   h.cfg.Pictures.MetaStore,
		Environment: h.cfg.Environment,
	}
	code := http.StatusOK

	for _, p := range h.probes {
		if err := p.check(ctx); err != nil {
			h.log.Error().Err(err).Str("probe", p.name).Msg("health probe failed")
			resp.Checks[p.name] = "error"
			if p.required {
				resp.Status = "unavailable"
				code = http.StatusServiceUnavailable
			} else if resp.Status == "ok" {
				resp.Status = "degraded"
			}
			continue
		}
		resp.Checks[p.name] = "ok"
	}

	c.JSON(code, resp)
}
