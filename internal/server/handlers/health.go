package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"

	apperrors "github.com/3leaps/cloudkit/internal/errors"
)

// HealthChecker probes one dependency.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

// CheckHealth calls f.
func (f HealthCheckerFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

// Check statuses.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
	StatusTimeout   = "timeout"
)

// CheckTimeout bounds each checker.
const CheckTimeout = 5 * time.Second

// HealthResponse is the body of a successful health probe.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthManager runs registered checkers for the health endpoints.
type HealthManager struct {
	version   string
	startTime time.Time

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthManager creates a manager reporting version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:   version,
		startTime: time.Now(),
		checkers:  make(map[string]HealthChecker),
	}
}

// RegisterChecker adds or replaces a named checker.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// HealthHandler runs every checker.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	hm.respond(w, r, hm.runChecks(r.Context()))
}

// LivenessHandler reports that the process is serving requests.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.respond(w, r, nil)
}

// ReadinessHandler reports whether the dependencies are reachable.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.respond(w, r, hm.runChecks(r.Context()))
}

// StartupHandler reports that initialization has finished.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.respond(w, r, nil)
}

func (hm *HealthManager) runChecks(ctx context.Context) map[string]string {
	hm.mu.RLock()
	checkers := make(map[string]HealthChecker, len(hm.checkers))
	for name, c := range hm.checkers {
		checkers[name] = c
	}
	hm.mu.RUnlock()

	results := make(map[string]string, len(checkers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, checker := range checkers {
		wg.Add(1)
		go func(name string, checker HealthChecker) {
			defer wg.Done()

			cctx, cancel := context.WithTimeout(ctx, CheckTimeout)
			defer cancel()

			status := StatusHealthy
			if err := checker.CheckHealth(cctx); err != nil {
				status = StatusUnhealthy
				if errors.Is(err, context.DeadlineExceeded) {
					status = StatusTimeout
				}
			}

			mu.Lock()
			results[name] = status
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()
	return results
}

func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := StatusHealthy
	for _, s := range checks {
		switch s {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusTimeout, StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

func (hm *HealthManager) respond(w http.ResponseWriter, r *http.Request, checks map[string]string) {
	status := hm.determineOverallStatus(checks)
	if status == StatusUnhealthy {
		envelope := gferrors.NewErrorEnvelope(apperrors.CodeServiceUnavailable, "one or more health checks failed").
			WithCorrelationID(r.Header.Get("X-Request-ID")).
			WithDetails(map[string]interface{}{"checks": checks, "version": hm.version})
		apperrors.WriteEnvelope(w, http.StatusServiceUnavailable, envelope)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Version:   hm.version,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(hm.startTime).Round(time.Second).String(),
		Checks:    checks,
	})
}

var globalHealthManager *HealthManager

// InitHealthManager sets the process-wide manager used by the package-level
// handlers.
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the process-wide manager, or nil.
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

// HealthHandler serves /health from the process-wide manager.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	withManager(w, r, (*HealthManager).HealthHandler)
}

// LivenessHandler serves /health/live from the process-wide manager.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	withManager(w, r, (*HealthManager).LivenessHandler)
}

// ReadinessHandler serves /health/ready from the process-wide manager.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	withManager(w, r, (*HealthManager).ReadinessHandler)
}

// StartupHandler serves /health/startup from the process-wide manager.
func StartupHandler(w http.ResponseWriter, r *http.Request) {
	withManager(w, r, (*HealthManager).StartupHandler)
}

func withManager(w http.ResponseWriter, r *http.Request, h func(*HealthManager, http.ResponseWriter, *http.Request)) {
	hm := globalHealthManager
	if hm == nil {
		apperrors.WriteEnvelope(w, http.StatusServiceUnavailable,
			gferrors.NewErrorEnvelope(apperrors.CodeServiceUnavailable, "health manager not initialized"))
		return
	}
	h(hm, w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
