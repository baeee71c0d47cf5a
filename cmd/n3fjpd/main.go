package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/config"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/logging"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/verbose"
)

var (
	configPath = flag.String("config", "config.yaml", "Configuration file path")
	version    = flag.Bool("version", false, "Show version information")
	verboseLog = flag.Bool("v", false, "Trace raw telemetry and serial bytes")
	mock       = flag.Bool("mock", false, "Use in-memory tuner and radio devices")
)

const (
	Version = "0.1.0-dev"
	Build   = "development"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("n3fjpd version %s (%s)\n", Version, Build)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Mock runs do not need real device paths
	if !*mock {
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
	}

	if err := logging.InitGlobalLogger(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseGlobalLogger()

	verbose.SetEnabled(*verboseLog)

	logging.Info("main", fmt.Sprintf("n3fjpd version %s starting...", Version))
	logging.Info("main", fmt.Sprintf("Station: %s", cfg.Station.Callsign))
	logging.Info("main", fmt.Sprintf("Logger API: %s", cfg.TelemetryAddress()))
	logging.Info("main", fmt.Sprintf("Antenna switch: %s", cfg.Switch.BaseURL))
	logging.Info("main", fmt.Sprintf("Tuner: %s, autotune: %v", cfg.Tuner.Device, cfg.AutoTuneEnabled()))
	if cfg.WebEnabled() {
		logging.Info("main", fmt.Sprintf("Web interface: http://%s:%d", cfg.Web.BindAddress, cfg.Web.Port))
	}

	daemon, err := NewDaemon(cfg, *mock)
	if err != nil {
		logging.Error("main", fmt.Sprintf("Failed to create daemon: %v", err))
		os.Exit(1)
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := daemon.Start(); err != nil {
		logging.Error("main", fmt.Sprintf("Failed to start daemon: %v", err))
		daemon.Stop()
		os.Exit(1)
	}

	logging.Info("main", "n3fjpd started successfully")

	<-sigChan
	logging.Info("main", "Shutting down...")

	if err := daemon.Stop(); err != nil {
		logging.Error("main", fmt.Sprintf("Error during shutdown: %v", err))
	}

	logging.Info("main", "n3fjpd stopped")
}
