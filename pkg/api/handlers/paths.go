package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sdwan-controller/pkg/api/models"
	"github.com/sdwan-controller/pkg/metrics"
)

// PathHandler handles path health requests
type PathHandler struct {
	store *metrics.Store
}

// NewPathHandler creates a new path handler
func NewPathHandler(store *metrics.Store) *PathHandler {
	return &PathHandler{store: store}
}

// ListPaths handles GET /api/v1/paths
func (h *PathHandler) ListPaths(c *gin.Context) {
	paths := h.store.List()

	response := make([]models.PathResponse, 0, len(paths))
	for _, p := range paths {
		response = append(response, toPathResponse(p))
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(response),
		"paths": response,
	})
}

// GetPath handles GET /api/v1/paths/:site
func (h *PathHandler) GetPath(c *gin.Context) {
	site := c.Param("site")

	p, err := h.store.Get(site)
	if err != nil {
		c.JSON(http.StatusNotFound, models.NewErrorResponse(
			http.StatusNotFound, "not_found", "Unknown path: "+site))
		return
	}

	c.JSON(http.StatusOK, toPathResponse(p))
}

func toPathResponse(p metrics.PathMetrics) models.PathResponse {
	return models.PathResponse{
		Site:           p.Site,
		Status:         string(p.Status),
		LatencyMs:      p.LatencyMs,
		LossPct:        p.LossPct,
		ThroughputMbps: p.ThroughputMbps,
		Quality:        p.Quality,
		Available:      p.Available,
		AnomalyCount:   p.AnomalyCount,
		History:        p.History,
		LastUpdate:     p.LastUpdate,
		LastFailover:   p.LastFailover,
	}
}
