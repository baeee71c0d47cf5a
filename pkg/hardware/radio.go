package hardware

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/logging"
)

// K3 front-panel switch emulation used for a tune carrier
const (
	TuneBeginK3 = "SWH16;" // TUNE held: carrier on
	TuneEndK3   = "SWT16;" // TUNE tapped: carrier off
)

// TuneConfig configures a TuneSequencer
type TuneConfig struct {
	Enabled bool
	Begin   []byte
	End     []byte
	Lead    time.Duration // wait before keying
	Settle  time.Duration // wait after unkeying

	// Sleep waits d or until ctx is done. Defaults to a timer
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultTuneConfig returns the K3 tune cycle
func DefaultTuneConfig() TuneConfig {
	return TuneConfig{
		Enabled: true,
		Begin:   []byte(TuneBeginK3),
		End:     []byte(TuneEndK3),
		Lead:    time.Second,
		Settle:  200 * time.Millisecond,
	}
}

// TuneSequencer keys a low-power carrier on the radio for a fixed time so
// the automatic tuner can match the antenna
type TuneSequencer struct {
	dev Device
	cfg TuneConfig

	mu     sync.Mutex
	active atomic.Bool
	cycles atomic.Int64
}

// NewTuneSequencer creates a sequencer. dev may be nil when tuning is disabled
func NewTuneSequencer(dev Device, cfg TuneConfig) *TuneSequencer {
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	return &TuneSequencer{dev: dev, cfg: cfg}
}

// Enabled reports whether RunTune will key the radio
func (s *TuneSequencer) Enabled() bool {
	return s.cfg.Enabled && s.dev != nil
}

// Active reports whether the carrier is keyed right now
func (s *TuneSequencer) Active() bool {
	return s.active.Load()
}

// Cycles returns the number of completed tune cycles
func (s *TuneSequencer) Cycles() int64 {
	return s.cycles.Load()
}

// RunTune runs one tune cycle of the given length: wait Lead, send Begin,
// hold, send End, wait Settle. It does nothing when tuning is disabled or
// seconds is not positive. Only one cycle runs at a time
//
// If ctx is cancelled while the carrier is up, End is still sent
func (s *TuneSequencer) RunTune(ctx context.Context, seconds int) error {
	if !s.Enabled() || seconds <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cfg.Sleep(ctx, s.cfg.Lead); err != nil {
		return err
	}

	logging.Info("tune", "carrier on", logging.Fields{"seconds": seconds})
	if _, err := s.dev.Write(s.cfg.Begin); err != nil {
		return fmt.Errorf("failed to start tune: %w", err)
	}
	s.active.Store(true)

	holdErr := s.cfg.Sleep(ctx, time.Duration(seconds)*time.Second)

	_, err := s.dev.Write(s.cfg.End)
	s.active.Store(false)
	if err != nil {
		logging.Error("tune", "failed to drop carrier", logging.Fields{"error": err})
		return fmt.Errorf("failed to end tune: %w", err)
	}
	logging.Info("tune", "carrier off")

	if holdErr != nil {
		return holdErr
	}
	if err := s.cfg.Sleep(ctx, s.cfg.Settle); err != nil {
		return err
	}
	s.cycles.Add(1)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
