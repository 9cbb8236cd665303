package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/sdwan-controller/pkg/flowrule"
	"github.com/sdwan-controller/pkg/metrics"
	"github.com/sdwan-controller/pkg/topology"
)

// Server is the northbound HTTP server. All endpoints are read-only;
// state changes belong to the monitoring and protocol loops.
type Server struct {
	config     *Config
	store      *metrics.Store
	registry   *topology.Registry
	rules      *flowrule.Manager
	httpServer *http.Server
	router     *gin.Engine
}

// NewAPIServer creates and initializes a new API server instance.
// It sets up the Gin router, configures middleware, and registers all
// routes. A nil config uses defaults.
func NewAPIServer(cfg *Config, store *metrics.Store, registry *topology.Registry, rules *flowrule.Manager) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.applyDefaults()

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	server := &Server{
		config:   cfg,
		store:    store,
		registry: registry,
		rules:    rules,
		router:   router,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server, nil
}

// Start starts the HTTP server in a background goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	log.Infof("Starting API server on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start API server: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	log.Info("Shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Errorf("API server forced to shutdown: %v", err)
		return err
	}

	log.Info("API server stopped gracefully")
	return nil
}

// GetRouter returns the underlying Gin router instance, primarily for
// injecting test requests without a listening socket.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
