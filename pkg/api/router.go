package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sdwan-controller/pkg/api/handlers"
)

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.store, s.registry, s.rules)
	pathHandler := handlers.NewPathHandler(s.store)
	ruleHandler := handlers.NewRuleHandler(s.rules)
	switchHandler := handlers.NewSwitchHandler(s.registry)
	statsHandler := handlers.NewStatsHandler(s.store, s.registry, s.rules)

	// API v1 group
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.GetHealth)
		v1.GET("/status", healthHandler.GetStatus)

		v1.GET("/paths", pathHandler.ListPaths)
		v1.GET("/paths/:site", pathHandler.GetPath)

		v1.GET("/rules", ruleHandler.ListRules)
		v1.GET("/switches", switchHandler.ListSwitches)
		v1.GET("/stats", statsHandler.GetStats)
	}

	// Prometheus scrape endpoint
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
