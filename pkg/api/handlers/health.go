package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sdwan-controller/pkg/api/models"
	"github.com/sdwan-controller/pkg/flowrule"
	"github.com/sdwan-controller/pkg/metrics"
	"github.com/sdwan-controller/pkg/topology"
)

var startTime = time.Now()

// HealthHandler handles health and status requests
type HealthHandler struct {
	store    *metrics.Store
	registry *topology.Registry
	rules    *flowrule.Manager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store *metrics.Store, registry *topology.Registry, rules *flowrule.Manager) *HealthHandler {
	return &HealthHandler{
		store:    store,
		registry: registry,
		rules:    rules,
	}
}

// GetHealth handles GET /api/v1/health
// Simple health check endpoint
func (h *HealthHandler) GetHealth(c *gin.Context) {
	response := models.HealthResponse{
		Status:  "ok",
		Message: "Controller is healthy",
	}

	c.JSON(http.StatusOK, response)
}

// GetStatus handles GET /api/v1/status
// Detailed status with switch, path and rule summaries
func (h *HealthHandler) GetStatus(c *gin.Context) {
	switches := models.SwitchSummary{}
	for _, sw := range h.registry.Switches() {
		switches.Total++
		if sw.State == topology.StateConnected {
			switches.Connected++
		}
	}

	paths := models.PathSummary{}
	for _, p := range h.store.List() {
		paths.Total++
		switch p.Status {
		case metrics.StatusUp:
			paths.Up++
		case metrics.StatusDown:
			paths.Down++
		default:
			paths.Degraded++
		}
	}

	// Overall state follows the worst path: any DOWN path degrades the
	// controller view, all paths down means the overlay is down.
	overall := "ok"
	if paths.Down > 0 || paths.Degraded > 0 {
		overall = "degraded"
	}
	if paths.Total > 0 && paths.Down == paths.Total {
		overall = "down"
	}

	response := models.StatusResponse{
		Status:   overall,
		Version:  "0.1.0",
		Uptime:   int64(time.Since(startTime).Seconds()),
		Switches: switches,
		Paths:    paths,
		Rules: models.RuleSummary{
			Installed: len(h.rules.Rules()),
			Pending:   h.rules.PendingCount(),
		},
	}

	c.JSON(http.StatusOK, response)
}
