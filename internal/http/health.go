package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-deck/internal/lifecycle"
	"github.com/kjstillabower/weather-deck/internal/traffic"
)

// HealthConfig holds health thresholds and probes.
type HealthConfig struct {
	// FailureWindow and FailurePct mark the service degraded when at least
	// FailurePct percent of loads in the window failed.
	FailureWindow time.Duration
	FailurePct    int
	// MinLoads avoids flapping on a handful of loads.
	MinLoads  int
	StartTime time.Time
	// Online reports device connectivity.
	Online func() bool
	// StorePing, when set, checks the favorites backend.
	StorePing func(ctx context.Context) error
}

type healthState struct {
	mu   sync.Mutex
	prev string
}

type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.health.mu.Lock()
	if h.health.prev != "" && h.health.prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", h.health.prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.health.prev = result.status
	h.health.mu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if result.reason == "load_failure_rate" {
		checks["weatherApi"] = "unhealthy"
	}
	if cfg := h.healthConfig; cfg != nil {
		if cfg.Online != nil {
			checks["connectivity"] = "online"
			if !cfg.Online() {
				checks["connectivity"] = "offline"
			}
		}
		if cfg.StorePing != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			checks["favoritesStore"] = "healthy"
			if cfg.StorePing(ctx) != nil {
				checks["favoritesStore"] = "unhealthy"
			}
			cancel()
		}
	}

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-deck",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && !h.healthConfig.StartTime.IsZero() {
		resp["uptime"] = time.Since(h.healthConfig.StartTime).Round(time.Second).String()
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates, in order: shutting-down > starting > offline > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	switch lifecycle.CurrentPhase() {
	case lifecycle.PhaseDraining:
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	case lifecycle.PhaseStarting:
		return healthResult{"starting", http.StatusServiceUnavailable, "startup"}
	}
	cfg := h.healthConfig
	if cfg == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	// Offline is a device condition; the service itself keeps answering.
	if cfg.Online != nil && !cfg.Online() {
		return healthResult{"offline", http.StatusOK, "no_connectivity"}
	}
	if cfg.FailureWindow > 0 && cfg.FailurePct > 0 {
		failures, total := traffic.FailureRate(cfg.FailureWindow)
		if total > 0 && total >= cfg.MinLoads {
			if failures*100 >= cfg.FailurePct*total {
				return healthResult{"degraded", http.StatusServiceUnavailable, "load_failure_rate"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}
