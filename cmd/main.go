package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sdwan-controller/pkg/api"
	"github.com/sdwan-controller/pkg/config"
	"github.com/sdwan-controller/pkg/dataplane"
	"github.com/sdwan-controller/pkg/eventlog"
	"github.com/sdwan-controller/pkg/flowrule"
	"github.com/sdwan-controller/pkg/metrics"
	"github.com/sdwan-controller/pkg/monitor"
	"github.com/sdwan-controller/pkg/qos"
	"github.com/sdwan-controller/pkg/topology"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "sdwan-controller",
	Short: "SD-WAN hub-and-spoke controller",
	Long:  `A controller for hub-and-spoke SD-WAN overlays: per-path health monitoring, QoS classification, and automatic failover of forwarding rules`,
	Run:   runController,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "controller.yaml", "Path to the controller configuration file")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "info", "Log level (debug, info, warn, error)")
}

func runController(cmd *cobra.Command, args []string) {
	// Setup logging
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Infof("Starting SD-WAN controller (hub switch %d, %d sites)", cfg.Hub, len(cfg.Sites))

	// Audit log
	events, err := eventlog.Open(cfg.EventLogPath, nil)
	if err != nil {
		log.Fatalf("Failed to open event log: %v", err)
	}
	defer events.Close()
	events.Append(eventlog.CategorySystem, "controller starting")

	// Topology and health state
	sites := make([]topology.Site, 0, len(cfg.Sites))
	for _, s := range cfg.Sites {
		sites = append(sites, topology.Site{
			Name:       s.Name,
			SwitchID:   s.SwitchID,
			EgressPort: s.EgressPort,
			ProbeAddr:  s.ProbeAddr,
		})
	}
	registry := topology.NewRegistry(nil, cfg.Hub, sites, cfg.HostTTL())
	store := metrics.NewStore(nil)

	log.Info("✓ Topology registry initialized")

	// Southbound listener and rule management
	southbound := dataplane.NewServer(cfg.Southbound)

	storage, err := flowrule.NewSQLiteStorage(cfg.RuleDBPath)
	if err != nil {
		log.Fatalf("Failed to open rule storage: %v", err)
	}
	defer storage.Close()

	rules := flowrule.NewManagerWithStorage(southbound, events, storage)
	if err := rules.LoadPersisted(); err != nil {
		log.Warnf("Could not replay persisted rules: %v", err)
	}

	classifier := qos.NewClassifier(cfg.QoS.CriticalPorts, cfg.QoS.VoIPPorts)
	southbound.SetDispatcher(dataplane.NewDispatcher(registry, classifier, rules, events))

	if err := southbound.Start(); err != nil {
		log.Fatalf("Failed to start southbound listener: %v", err)
	}

	log.Infof("✓ Southbound listener started on %s", cfg.Southbound)

	// Telemetry and failover loop
	mon := monitor.New(cfg.Monitor, nil, store, registry, rules, events, nil, cfg.SnapshotPath)
	go mon.Run()

	log.Info("✓ Path monitoring started")

	// Northbound API
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.NewAPIServer(api.FromControllerConfig(cfg.API, logLevel), store, registry, rules)
		if err != nil {
			log.Fatalf("Failed to create API server: %v", err)
		}
		if err := apiServer.Start(); err != nil {
			log.Fatalf("Failed to start API server: %v", err)
		}

		log.Infof("✓ API server started on http://%s:%d", cfg.API.Host, cfg.API.Port)
	}

	// Wait for interrupt signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	log.Info("✓ Controller running. Press Ctrl+C to exit")

	<-sig
	log.Info("Shutting down...")
	events.Append(eventlog.CategorySystem, "controller stopping")

	// Stop order: no more reroutes, then no more switch events, then
	// the read-only surface, then flush the audit log via defer.
	mon.Stop()

	if err := southbound.Stop(); err != nil {
		log.Errorf("Error stopping southbound listener: %v", err)
	}

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			log.Errorf("Error stopping API server: %v", err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
