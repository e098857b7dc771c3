package api

import (
	"context"
	"net/http"
	"sync"
)

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
)

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// runChecks executes all checks in parallel under one timeout.
func (h *handler) runChecks(ctx context.Context) HealthResponse {
	if len(h.cfg.checks) == 0 {
		return HealthResponse{Status: statusHealthy}
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.healthTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]CheckResult, len(h.cfg.checks))
		failed  bool
	)

	for name, check := range h.cfg.checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()

			result := CheckResult{Status: statusHealthy}
			if err := check(ctx); err != nil {
				result.Status = statusUnhealthy
				result.Error = err.Error()
				h.cfg.logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
			}

			mu.Lock()
			results[name] = result
			if result.Status == statusUnhealthy {
				failed = true
			}
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	status := statusHealthy
	if failed {
		status = statusUnhealthy
	}
	return HealthResponse{Status: status, Checks: results}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	resp := h.runChecks(r.Context())
	code := http.StatusOK
	if resp.Status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
