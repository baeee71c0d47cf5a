package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/antswitch"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/bandtable"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/logging"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/protocol"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/telemetry"
)

// State is the coordinator's position in a band change
type State int

const (
	StateIdle State = iota
	StateSwitching
	StateTuning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSwitching:
		return "SWITCHING"
	case StateTuning:
		return "TUNING"
	default:
		return "UNKNOWN"
	}
}

// Switcher selects an antenna path
type Switcher interface {
	SetPosition(ctx context.Context, pos bandtable.SwitchPosition, onSuccess func()) antswitch.Result
}

// TunerConfigurer writes a tuner setting
type TunerConfigurer interface {
	Configure(cmd []byte) error
}

// Sequencer runs a tune carrier cycle
type Sequencer interface {
	RunTune(ctx context.Context, seconds int) error
	Enabled() bool
}

// historySize bounds the in-memory change history
const historySize = 100

// maxWarnedMisses bounds how many distinct unmatched values are remembered
const maxWarnedMisses = 64

type changeJob struct {
	entry    bandtable.BandEntry
	accepted time.Time
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLink reports telemetry link health in status snapshots
func WithLink(link func() (connected bool, reconnects int64)) Option {
	return func(c *Coordinator) { c.link = link }
}

// WithStation sets the callsign and version shown in status
func WithStation(callsign, version string) Option {
	return func(c *Coordinator) {
		c.status.Callsign = callsign
		c.status.Version = version
	}
}

// Coordinator turns band telemetry into switch, tuner and tune actions
//
// Telemetry handling never blocks: accepted changes go to a single worker
// through a one-slot queue. A change arriving while another is in flight
// waits; if one is already waiting, the newer change replaces it. Hardware
// sequences therefore never interleave
type Coordinator struct {
	table     *bandtable.Table
	switcher  Switcher
	tuner     TunerConfigurer
	sequencer Sequencer

	now  func() time.Time
	link func() (bool, int64)

	mu           sync.RWMutex
	state        State
	status       protocol.Status
	haveBand     bool
	lastBandCode int
	warnedMisses map[string]bool
	history      []protocol.ChangeRecord
	subscribers  map[chan protocol.Status]struct{}
	observers    []func(protocol.ChangeRecord)

	pending chan changeJob

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewCoordinator creates a coordinator. sequencer may be nil when tune
// cycles are not wanted
func NewCoordinator(table *bandtable.Table, switcher Switcher, tuner TunerConfigurer, sequencer Sequencer, opts ...Option) *Coordinator {
	c := &Coordinator{
		table:        table,
		switcher:     switcher,
		tuner:        tuner,
		sequencer:    sequencer,
		now:          time.Now,
		warnedMisses: make(map[string]bool),
		subscribers:  make(map[chan protocol.Status]struct{}),
		pending:      make(chan changeJob, 1),
	}
	c.status.Band = protocol.DisplayUnknown
	c.status.Frequency = protocol.DisplayUnknown
	c.status.SwitchPosition = protocol.DisplayUnknown
	c.status.TunerSetting = protocol.DisplayUnknown

	for _, opt := range opts {
		opt(c)
	}
	c.status.StartTime = c.now()
	c.status.UpdatedAt = c.status.StartTime
	return c
}

// Table returns the band table
func (c *Coordinator) Table() *bandtable.Table {
	return c.table
}

// OnResult registers fn to receive every finished change. Must be called
// before Start
func (c *Coordinator) OnResult(fn func(protocol.ChangeRecord)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Start launches the worker
func (c *Coordinator) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.worker(ctx, c.done)
	logging.Info("coordinator", "started", logging.Fields{"bands": c.table.Len()})
}

// Stop abandons any in-flight retry or tune wait and waits for the worker
func (c *Coordinator) Stop() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if !c.running {
		return
	}

	c.cancel()
	<-c.done
	c.running = false
	logging.Info("coordinator", "stopped")
}

// HandleEvent consumes one telemetry event. Safe for concurrent use
func (c *Coordinator) HandleEvent(ev telemetry.Event) {
	switch ev.Tag {
	case telemetry.TagFrequency:
		c.setFrequency(ev.Value)
	case telemetry.TagBand:
		c.handleBand(ev)
	}
}

func (c *Coordinator) setFrequency(value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}

	c.mu.Lock()
	if c.status.Frequency == value {
		c.mu.Unlock()
		return
	}
	c.status.Frequency = value
	c.touchLocked()
	c.mu.Unlock()
	c.broadcast()
}

func (c *Coordinator) handleBand(ev telemetry.Event) {
	value := strings.TrimSpace(ev.Value)
	code, err := bandtable.ParseCode(value)

	c.mu.Lock()
	if err == nil && c.haveBand && code == c.lastBandCode {
		c.mu.Unlock()
		return
	}

	var entry bandtable.BandEntry
	if err == nil {
		entry, err = c.table.Lookup(code)
	}
	if err != nil {
		c.status.TableMisses++
		first := !c.warnedMisses[value]
		if first {
			if len(c.warnedMisses) >= maxWarnedMisses {
				c.warnedMisses = make(map[string]bool)
			}
			c.warnedMisses[value] = true
		}
		c.mu.Unlock()

		if first {
			logging.Warn("coordinator", "unmatched band code", logging.Fields{"value": value, "error": err})
		}
		return
	}

	c.haveBand = true
	c.lastBandCode = code
	// Misses are warned again after a real change
	if len(c.warnedMisses) > 0 {
		c.warnedMisses = make(map[string]bool)
	}
	c.status.LastBandCode = code
	c.touchLocked()
	c.enqueueLocked(changeJob{entry: entry, accepted: c.now()})
	c.mu.Unlock()

	logging.Info("coordinator", "band change accepted", logging.Fields{
		"code":     code,
		"label":    entry.Label,
		"position": entry.SwitchPosition,
	})
	c.broadcast()
}

// enqueueLocked puts job in the single slot, replacing a waiting job.
// Callers hold c.mu, so the second send cannot block
func (c *Coordinator) enqueueLocked(job changeJob) {
	select {
	case c.pending <- job:
		return
	default:
	}

	select {
	case old := <-c.pending:
		c.status.Superseded++
		logging.Info("coordinator", "pending change superseded", logging.Fields{
			"dropped": old.entry.Label,
			"next":    job.entry.Label,
		})
	default:
	}
	c.pending <- job
}

func (c *Coordinator) worker(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-c.pending:
			c.process(ctx, job)
		}
	}
}

// process runs one change: switch, then tuner, then tune. A failed switch
// skips the rest
func (c *Coordinator) process(ctx context.Context, job changeJob) {
	entry := job.entry
	started := c.now()
	rec := protocol.ChangeRecord{
		Timestamp:      job.accepted,
		BandCode:       entry.Code,
		Label:          entry.Label,
		SwitchPosition: string(entry.SwitchPosition),
		TunerCommand:   entry.TunerSetting(),
		TuneSeconds:    entry.TuneSeconds,
	}
	defer func() {
		rec.DurationMs = c.now().Sub(started).Milliseconds()
		c.finish(rec)
	}()

	c.setState(StateSwitching)
	res := c.switcher.SetPosition(ctx, entry.SwitchPosition, func() {
		c.mu.Lock()
		c.status.SwitchPosition = string(entry.SwitchPosition)
		c.status.Band = entry.Label
		c.touchLocked()
		c.mu.Unlock()
		c.broadcast()
	})
	rec.Attempts = res.Attempts
	rec.Outcome = res.Outcome.String()

	if !res.OK() {
		rec.Error = errString(res.Err)
		c.mu.Lock()
		c.status.Failures++
		c.status.LastError = rec.Error
		c.mu.Unlock()
		c.setState(StateIdle)
		return
	}

	if err := c.tuner.Configure(entry.TunerCommand); err != nil {
		logging.Error("coordinator", "tuner write failed", logging.Fields{"error": err})
		rec.Error = err.Error()
		c.mu.Lock()
		c.status.LastError = rec.Error
		c.mu.Unlock()
	}
	if len(entry.TunerCommand) > 0 {
		c.mu.Lock()
		c.status.TunerSetting = entry.TunerSetting()
		c.touchLocked()
		c.mu.Unlock()
		c.broadcast()
	}

	if entry.TuneSeconds > 0 && c.sequencer != nil && c.sequencer.Enabled() {
		c.setState(StateTuning)
		if err := c.sequencer.RunTune(ctx, entry.TuneSeconds); err != nil {
			if !errors.Is(err, context.Canceled) {
				logging.Error("coordinator", "tune cycle failed", logging.Fields{"error": err})
			}
			rec.Error = err.Error()
			c.mu.Lock()
			c.status.LastError = rec.Error
			c.mu.Unlock()
		} else {
			rec.Tuned = true
		}
	}

	c.mu.Lock()
	c.status.Changes++
	c.mu.Unlock()
	c.setState(StateIdle)
}

func (c *Coordinator) finish(rec protocol.ChangeRecord) {
	c.mu.Lock()
	c.history = append(c.history, rec)
	if len(c.history) > historySize {
		c.history = c.history[len(c.history)-historySize:]
	}
	observers := append([]func(protocol.ChangeRecord){}, c.observers...)
	c.mu.Unlock()

	logging.Info("coordinator", "band change finished", logging.Fields{
		"label":    rec.Label,
		"outcome":  rec.Outcome,
		"attempts": rec.Attempts,
		"tuned":    rec.Tuned,
	})
	for _, fn := range observers {
		fn(rec)
	}
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.touchLocked()
	c.mu.Unlock()
	c.broadcast()
}

func (c *Coordinator) touchLocked() {
	c.status.UpdatedAt = c.now()
}

// State returns the current state
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status returns a snapshot for display
func (c *Coordinator) Status() protocol.Status {
	c.mu.RLock()
	status := c.status
	status.State = c.state.String()
	c.mu.RUnlock()

	status.Uptime = c.now().Sub(status.StartTime).Truncate(time.Second).String()
	if c.link != nil {
		status.Connected, status.Reconnects = c.link()
	}
	return status
}

// Recent returns up to limit finished changes, newest first
func (c *Coordinator) Recent(limit int) ([]protocol.ChangeRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if limit <= 0 || limit > len(c.history) {
		limit = len(c.history)
	}
	out := make([]protocol.ChangeRecord, 0, limit)
	for i := len(c.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, c.history[i])
	}
	return out, nil
}

// Subscribe returns a channel receiving a snapshot after every status
// change. Slow readers miss intermediate snapshots
func (c *Coordinator) Subscribe() <-chan protocol.Status {
	ch := make(chan protocol.Status, 8)
	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	c.mu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch and closes it
func (c *Coordinator) Unsubscribe(ch <-chan protocol.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sub := range c.subscribers {
		if sub == ch {
			delete(c.subscribers, sub)
			close(sub)
			return
		}
	}
}

func (c *Coordinator) broadcast() {
	status := c.Status()

	c.mu.RLock()
	defer c.mu.RUnlock()
	for ch := range c.subscribers {
		select {
		case ch <- status:
		default:
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
