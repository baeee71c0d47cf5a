package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/antswitch"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/bandtable"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/client"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/config"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/engine"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/hardware"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/logging"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/protocol"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/storage"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/telemetry"
)

// Daemon wires the logger telemetry, the coordinator and its hardware
type Daemon struct {
	config *config.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Core components
	hardware     *hardware.HardwareManager
	coordinator  *engine.Coordinator
	session      *telemetry.Session
	server       *engine.Server
	store        *storage.ChangeStore
	socketClient *client.SocketClient

	router    *gin.Engine
	webServer *http.Server

	socketPath string
}

// NewDaemon opens the hardware and builds every component. mock swaps the
// serial ports for in-memory devices
func NewDaemon(cfg *config.Config, mock bool) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:       cfg,
		ctx:          ctx,
		cancel:       cancel,
		socketPath:   cfg.API.UnixSocket,
		socketClient: client.NewSocketClient(cfg.API.UnixSocket),
	}

	table, err := bandtable.FromConfig(cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build band table: %w", err)
	}
	logging.Info("daemon", "band table loaded", logging.Fields{"bands": table.Len()})

	d.hardware = hardware.NewHardwareManager(hardware.HardwareConfigFromConfig(cfg, mock))
	if err := d.hardware.Initialize(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize hardware: %w", err)
	}

	switcher := antswitch.NewController(antswitch.Config{
		BaseURL:     cfg.Switch.BaseURL,
		MaxAttempts: cfg.Switch.MaxAttempts,
		RetryDelay:  cfg.Switch.RetryDelay,
		Timeout:     cfg.Switch.Timeout,
	}, nil)

	d.session = telemetry.NewSession(telemetry.SessionConfig{
		Handshake:      []byte(cfg.Telemetry.Handshake),
		ReconnectDelay: cfg.Telemetry.ReconnectDelay,
	}, telemetry.TCPDialer(cfg.TelemetryAddress(), cfg.Telemetry.DialTimeout))

	d.coordinator = engine.NewCoordinator(table, switcher, d.hardware.Tuner(), d.hardware.Sequencer(),
		engine.WithLink(func() (bool, int64) {
			return d.session.Connected(), d.session.Reconnects()
		}),
		engine.WithStation(cfg.Station.Callsign, Version))

	var history engine.HistorySource
	if cfg.Storage.DatabasePath != "" {
		store, err := storage.NewChangeStore(cfg.Storage.DatabasePath, cfg.Storage.MaxEvents)
		if err != nil {
			d.hardware.Close()
			cancel()
			return nil, fmt.Errorf("failed to open change history: %w", err)
		}
		d.store = store
		d.coordinator.OnResult(store.Observer())
		history = store
	}

	d.server = engine.NewServer(d.coordinator, history, d.socketPath)

	if cfg.WebEnabled() {
		d.setupWebServer()
	}

	return d, nil
}

// Start starts the daemon
func (d *Daemon) Start() error {
	logging.Info("daemon", "starting n3fjpd daemon")

	d.coordinator.Start(d.ctx)

	if err := d.server.Start(); err != nil {
		return fmt.Errorf("failed to start control socket: %w", err)
	}

	// Wait a moment for socket to be ready
	time.Sleep(100 * time.Millisecond)

	if !d.socketClient.IsConnected() {
		return fmt.Errorf("failed to connect to control socket")
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		err := d.session.Run(d.ctx, d.coordinator.HandleEvent)
		if err != nil && err != context.Canceled {
			logging.Error("daemon", "telemetry session stopped", logging.Fields{"error": err})
		}
	}()

	if d.webServer != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			logging.Info("web", "starting web server", logging.Fields{"addr": d.webServer.Addr})
			if err := d.webServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error("web", "web server error", logging.Fields{"error": err})
			}
		}()
	}

	d.wg.Add(1)
	go d.statusDisplay()

	return nil
}

// Stop stops the daemon gracefully
func (d *Daemon) Stop() error {
	logging.Info("daemon", "stopping daemon")

	d.cancel()

	if d.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.webServer.Shutdown(ctx); err != nil {
			logging.Warn("web", "web server shutdown error", logging.Fields{"error": err})
		}
	}

	if err := d.server.Stop(); err != nil {
		logging.Warn("daemon", "control socket shutdown error", logging.Fields{"error": err})
	}

	d.coordinator.Stop()
	d.wg.Wait()

	if d.store != nil {
		if err := d.store.Close(); err != nil {
			logging.Warn("storage", "failed to close change history", logging.Fields{"error": err})
		}
	}

	if err := d.hardware.Close(); err != nil {
		return err
	}

	logging.Info("daemon", "daemon stopped")
	return nil
}

// setupWebServer initializes the web server and routes
func (d *Daemon) setupWebServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/status", d.handleGetStatus)
		api.GET("/bands", d.handleGetBands)
		api.GET("/history", d.handleGetHistory)
		api.GET("/stats", d.handleGetStats)
	}
	router.GET("/ws/status", d.handleStatusWebSocket)

	d.router = router
	d.webServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", d.config.Web.BindAddress, d.config.Web.Port),
		Handler: router,
	}
}

// statusDisplay logs the station status whenever a displayed field changes
func (d *Daemon) statusDisplay() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Web.StatusRefresh)
	defer ticker.Stop()

	var shown protocol.Status
	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			status := d.coordinator.Status()
			if !displayChanged(shown, status) {
				continue
			}
			shown = status
			logging.Info("display", fmt.Sprintf("%s  %s MHz  ANT %s  TUNER %s  [%s]",
				status.Band, status.Frequency, status.SwitchPosition, status.TunerSetting, status.State))
		}
	}
}

func displayChanged(a, b protocol.Status) bool {
	return a.Band != b.Band ||
		a.Frequency != b.Frequency ||
		a.SwitchPosition != b.SwitchPosition ||
		a.TunerSetting != b.TunerSetting ||
		a.State != b.State
}
