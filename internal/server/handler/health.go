package handler

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"
)

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// healthTimeout bounds all probes of one health request.
const healthTimeout = 3 * time.Second

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	checks map[string]Check
	logger *slog.Logger
	now    func() time.Time
}

// NewHealthHandler creates a HealthHandler that runs checks on every request.
func NewHealthHandler(checks map[string]Check, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger, now: time.Now}
}

// HealthCheck probes every dependency concurrently and reports "ok" with 200,
// or "degraded" with 503 when any probe fails.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		components = make(map[string]string, len(h.checks))
	)
	for _, name := range slices.Sorted(maps.Keys(h.checks)) {
		check := h.checks[name]
		wg.Go(func() {
			state := "ok"
			if err := check(ctx); err != nil {
				state = "error: " + err.Error()
				h.logger.WarnContext(ctx, "health check failed",
					slog.String("component", name),
					slog.String("error", err.Error()),
				)
			}
			mu.Lock()
			components[name] = state
			mu.Unlock()
		})
	}
	wg.Wait()

	status, code := "ok", http.StatusOK
	for _, state := range components {
		if state != "ok" {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  h.now().UTC().Format(time.RFC3339),
	})
}
