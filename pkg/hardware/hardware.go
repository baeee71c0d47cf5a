package hardware

import (
	"fmt"
	"sync"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/config"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/logging"
)

// HardwareConfig represents hardware configuration
type HardwareConfig struct {
	TunerDevice   string
	TunerBaudRate int
	TunerInit     []byte

	EnableRadio   bool
	RadioDevice   string
	RadioBaudRate int
	Tune          TuneConfig

	UseMock bool
}

// HardwareConfigFromConfig maps the tuner and radio sections
func HardwareConfigFromConfig(cfg *config.Config, mock bool) HardwareConfig {
	tune := DefaultTuneConfig()
	tune.Enabled = cfg.AutoTuneEnabled()
	tune.Begin = []byte(cfg.Radio.TuneBegin)
	tune.End = []byte(cfg.Radio.TuneEnd)
	tune.Lead = cfg.Radio.TuneLead
	tune.Settle = cfg.Radio.TuneSettle

	return HardwareConfig{
		TunerDevice:   cfg.Tuner.Device,
		TunerBaudRate: cfg.Tuner.BaudRate,
		TunerInit:     []byte(cfg.Tuner.InitCommand),
		EnableRadio:   cfg.AutoTuneEnabled(),
		RadioDevice:   cfg.Radio.Device,
		RadioBaudRate: cfg.Radio.BaudRate,
		Tune:          tune,
		UseMock:       mock,
	}
}

// OpenFunc opens a device
type OpenFunc func(name string, baud int, lowControlLines bool) (Device, error)

func openSerial(name string, baud int, lowControlLines bool) (Device, error) {
	return OpenSerialDevice(name, baud, lowControlLines)
}

func openMock(name string, baud int, lowControlLines bool) (Device, error) {
	return NewMockDevice(name), nil
}

// HardwareManager owns the tuner and radio ports
type HardwareManager struct {
	config HardwareConfig
	open   OpenFunc
	mutex  sync.RWMutex

	tunerDev  Device
	radioDev  Device
	tuner     *Tuner
	sequencer *TuneSequencer

	initialized bool
}

// NewHardwareManager creates a new hardware manager
func NewHardwareManager(config HardwareConfig) *HardwareManager {
	open := openSerial
	if config.UseMock {
		open = openMock
	}
	return &HardwareManager{config: config, open: open}
}

// SetOpener replaces the device opener. Must be called before Initialize
func (h *HardwareManager) SetOpener(open OpenFunc) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.open = open
}

// Initialize opens the devices and sends the tuner startup command
func (h *HardwareManager) Initialize() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.initialized {
		return nil
	}

	logging.Info("hardware", "initializing hardware manager", logging.Fields{"mock": h.config.UseMock})

	tunerDev, err := h.open(h.config.TunerDevice, h.config.TunerBaudRate, false)
	if err != nil {
		return fmt.Errorf("failed to open tuner: %w", err)
	}
	tuner := NewTuner(tunerDev)
	// A failed init write is not fatal; the first band change reconfigures the tuner
	if err := tuner.Initialize(h.config.TunerInit); err != nil {
		logging.Error("hardware", "tuner init write failed", logging.Fields{"error": err})
	}
	logging.Info("hardware", "tuner initialized", logging.Fields{
		"device": h.config.TunerDevice,
		"baud":   h.config.TunerBaudRate,
	})

	// The radio port stays closed unless tune cycles are enabled
	var radioDev Device
	if h.config.EnableRadio {
		radioDev, err = h.open(h.config.RadioDevice, h.config.RadioBaudRate, true)
		if err != nil {
			tunerDev.Close()
			return fmt.Errorf("failed to open radio: %w", err)
		}
		logging.Info("hardware", "radio initialized", logging.Fields{
			"device": h.config.RadioDevice,
			"baud":   h.config.RadioBaudRate,
		})
	}

	tune := h.config.Tune
	tune.Enabled = tune.Enabled && h.config.EnableRadio

	h.tunerDev = tunerDev
	h.radioDev = radioDev
	h.tuner = tuner
	h.sequencer = NewTuneSequencer(radioDev, tune)
	h.initialized = true
	logging.Info("hardware", "hardware manager initialized", logging.Fields{"autotune": h.sequencer.Enabled()})
	return nil
}

// Close shuts down all hardware interfaces
func (h *HardwareManager) Close() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.initialized {
		return nil
	}

	logging.Info("hardware", "shutting down hardware manager")

	var firstErr error
	if h.radioDev != nil {
		if err := h.radioDev.Close(); err != nil {
			logging.Error("hardware", "error closing radio", logging.Fields{"error": err})
			firstErr = err
		}
	}
	if h.tunerDev != nil {
		if err := h.tunerDev.Close(); err != nil {
			logging.Error("hardware", "error closing tuner", logging.Fields{"error": err})
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	h.initialized = false
	return firstErr
}

// IsInitialized returns whether Initialize succeeded
func (h *HardwareManager) IsInitialized() bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.initialized
}

// Tuner returns the tuner controller
func (h *HardwareManager) Tuner() *Tuner {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.tuner
}

// Sequencer returns the tune sequencer
func (h *HardwareManager) Sequencer() *TuneSequencer {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.sequencer
}

// Devices returns the open tuner and radio devices (radio may be nil)
func (h *HardwareManager) Devices() (tuner, radio Device) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.tunerDev, h.radioDev
}
