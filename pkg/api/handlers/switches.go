package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sdwan-controller/pkg/api/models"
	"github.com/sdwan-controller/pkg/topology"
)

// SwitchHandler handles switch inventory requests
type SwitchHandler struct {
	registry *topology.Registry
}

// NewSwitchHandler creates a new switch handler
func NewSwitchHandler(registry *topology.Registry) *SwitchHandler {
	return &SwitchHandler{registry: registry}
}

// ListSwitches handles GET /api/v1/switches
func (h *SwitchHandler) ListSwitches(c *gin.Context) {
	infos := h.registry.Switches()

	response := make([]models.SwitchResponse, 0, len(infos))
	for _, sw := range infos {
		response = append(response, models.SwitchResponse{
			ID:            sw.ID,
			State:         string(sw.State),
			IsHub:         sw.ID == h.registry.Hub(),
			Ports:         sw.Ports,
			LearnedHosts:  sw.LearnedHosts,
			BandwidthMbps: sw.BandwidthMbps,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(response),
		"switches": response,
	})
}
