package hardware

import (
	"fmt"
	"sync"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/logging"
)

// Tuner sends antenna/mode selection commands to the KAT500 tuner
type Tuner struct {
	dev     Device
	mu      sync.Mutex
	setting string
}

// NewTuner wraps dev
func NewTuner(dev Device) *Tuner {
	return &Tuner{dev: dev}
}

// Configure writes cmd once. The tuner gives no acknowledgment and the
// write is not retried; errors are returned for logging only
func (t *Tuner) Configure(cmd []byte) error {
	if len(cmd) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.dev.Write(cmd); err != nil {
		return fmt.Errorf("failed to configure tuner: %w", err)
	}
	t.setting = string(cmd)
	logging.Info("tuner", "setting written", logging.Fields{"command": t.setting})
	return nil
}

// Initialize sends the startup selection
func (t *Tuner) Initialize(cmd []byte) error {
	if err := t.Configure(cmd); err != nil {
		return fmt.Errorf("tuner init: %w", err)
	}
	return nil
}

// Setting returns the last command written successfully
func (t *Tuner) Setting() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setting
}
