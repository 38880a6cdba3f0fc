package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vaultline/aa-relayer-go/internal/config"
	"github.com/vaultline/aa-relayer-go/internal/database"
	"github.com/vaultline/aa-relayer-go/internal/httputil"
	"github.com/vaultline/aa-relayer-go/internal/redis"
	"github.com/vaultline/aa-relayer-go/internal/sponsor"
)

// HealthHandler exposes the operational surface: process liveness, backing
// store reachability and per-provider sponsor health.
type HealthHandler struct {
	db      *database.DB
	redis   *redis.Client
	gateway *sponsor.Gateway
}

func NewHealthHandler(db *database.DB, redisClient *redis.Client, gateway *sponsor.Gateway) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient, gateway: gateway}
}

func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Health)
	r.Get("/sponsors", h.Sponsors)
	return r
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{"database": "ok", "redis": "ok"}

	if err := h.db.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.redis.Client.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	httputil.WriteJSON(w, status, map[string]any{
		"status":    statusWord(status),
		"checks":    checks,
		"timestamp": time.Now().UnixMilli(),
	})
}

func (h *HealthHandler) Sponsors(w http.ResponseWriter, r *http.Request) {
	results := h.gateway.HealthCheck(r.Context())

	status := http.StatusOK
	for _, healthy := range results {
		if !healthy {
			status = http.StatusServiceUnavailable
			break
		}
	}
	httputil.WriteJSON(w, status, map[string]any{
		"status":    statusWord(status),
		"providers": results,
		"timestamp": time.Now().UnixMilli(),
	})
}

func statusWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}
