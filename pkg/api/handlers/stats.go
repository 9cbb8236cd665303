package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sdwan-controller/pkg/api/models"
	"github.com/sdwan-controller/pkg/flowrule"
	"github.com/sdwan-controller/pkg/metrics"
	"github.com/sdwan-controller/pkg/topology"
)

// StatsHandler handles aggregate statistics requests
type StatsHandler struct {
	store    *metrics.Store
	registry *topology.Registry
	rules    *flowrule.Manager
}

// NewStatsHandler creates a new statistics handler
func NewStatsHandler(store *metrics.Store, registry *topology.Registry, rules *flowrule.Manager) *StatsHandler {
	return &StatsHandler{
		store:    store,
		registry: registry,
		rules:    rules,
	}
}

// GetStats handles GET /api/v1/stats
func (h *StatsHandler) GetStats(c *gin.Context) {
	response := models.StatsResponse{
		InstalledRules: len(h.rules.Rules()),
		PendingRules:   h.rules.PendingCount(),
		BandwidthMbps:  make(map[string]float64),
		QualityScores:  make(map[string]float64),
	}

	for _, p := range h.store.List() {
		response.TotalAnomalies += p.AnomalyCount
		response.BandwidthMbps[p.Site] = p.ThroughputMbps
		response.QualityScores[p.Site] = p.Quality
	}

	for _, sw := range h.registry.Switches() {
		if sw.State == topology.StateConnected {
			response.ConnectedSwitches++
		}
	}

	c.JSON(http.StatusOK, response)
}
