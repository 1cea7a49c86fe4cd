package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"okrtrack/internal/core/policy"
	"okrtrack/internal/infrastructure/storage/postgres"
	"okrtrack/internal/infrastructure/storage/postgres/rls"
)

// Database is what the readiness probe needs from the request pool.
type Database interface {
	rls.Querier
	Ping(ctx context.Context) error
}

// GuardStatter reports the connection guard counters.
type GuardStatter interface {
	Stats() postgres.GuardStats
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	db    Database
	guard GuardStatter
	model policy.Model
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db Database, guard GuardStatter, model policy.Model) *HealthHandler {
	return &HealthHandler{db: db, guard: guard, model: model}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness probe. The service is ready when the database
// answers, every policy of the model is attached and enforced, and no
// connection has been returned with tenant context still on it.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true

	if err := h.db.Ping(ctx); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
		ready = false
	} else {
		checks["database"] = "healthy"

		st, err := rls.ReadStatus(ctx, h.db, h.model)
		switch {
		case err != nil:
			checks["policies"] = "unknown: " + err.Error()
			ready = false
		case !st.OK():
			checks["policies"] = st.String()
			ready = false
		default:
			checks["policies"] = "installed"
		}
	}

	gs := h.guard.Stats()
	if gs.Healthy() {
		checks["context_guard"] = "healthy"
	} else {
		checks["context_guard"] = "unhealthy"
		ready = false
	}

	status, code := "ok", http.StatusOK
	if !ready {
		status, code = "error", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"guard": gin.H{
			"marked":         gs.Marked,
			"destroyed":      gs.Destroyed,
			"clear_failures": gs.ClearFailures,
			"unhealthy":      gs.Unhealthy,
		},
	})
}
