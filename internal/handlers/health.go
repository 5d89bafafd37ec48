package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/aura-apparel/api/internal/platform/httpx"
	"github.com/aura-apparel/api/internal/repositories"
)

const readinessTimeout = 2 * time.Second

// HealthHandlers exposes liveness and readiness probes.
type HealthHandlers struct {
	readiness repositories.HealthRepository
	startedAt time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithReadinessCheck wires the repository used by the readiness probe.
func WithReadinessCheck(repo repositories.HealthRepository) HealthOption {
	return func(h *HealthHandlers) {
		h.readiness = repo
	}
}

// NewHealthHandlers constructs health handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{startedAt: time.Now().UTC()}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(h.startedAt).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz reports whether downstream storage can serve requests.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.readiness == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := h.readiness.CheckReadiness(ctx); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "storage unavailable", http.StatusServiceUnavailable))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
}
