package observability

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/croplink/croplink/pkg/httputil"
)

// HealthChecker reports liveness and readiness of the service's dependencies
type HealthChecker struct {
	db    *sql.DB
	redis *redis.Client
}

// NewHealthChecker creates a health checker; redis may be nil when rate
// limiting is disabled.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redis: redisClient}
}

// CheckResult describes the status of a single dependency
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthStatus is the aggregate health report
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Check pings every dependency with a bounded timeout
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status := HealthStatus{Status: "ok", Checks: map[string]CheckResult{}}

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			status.Status = "degraded"
			status.Checks["postgres"] = CheckResult{Status: "down", Error: err.Error()}
		} else {
			status.Checks["postgres"] = CheckResult{Status: "up"}
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			status.Status = "degraded"
			status.Checks["redis"] = CheckResult{Status: "down", Error: err.Error()}
		} else {
			status.Checks["redis"] = CheckResult{Status: "up"}
		}
	}

	return status
}

// LivenessHandler always returns 200 while the process is running
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// ReadinessHandler returns 200 when all dependencies respond, 503 otherwise
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())
		code := http.StatusOK
		if status.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, status)
	})
}
