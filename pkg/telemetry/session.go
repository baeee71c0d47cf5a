package telemetry

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/logging"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/verbose"
)

// DialFunc opens one connection to the telemetry source
type DialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// TCPDialer dials address with the given timeout
func TCPDialer(address string, timeout time.Duration) DialFunc {
	dialer := &net.Dialer{Timeout: timeout}
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot open telemetry connection to %s", address)
		}
		return conn, nil
	}
}

// SessionConfig configures a Session
type SessionConfig struct {
	Handshake      []byte
	ReconnectDelay time.Duration
	Sleep          SleepFunc
}

// Session keeps a band connection and a frequency connection open as a pair.
// When either stream ends both are closed and, after ReconnectDelay, both
// are redialled and re-handshaken
type Session struct {
	cfg  SessionConfig
	dial DialFunc

	connected  atomic.Bool
	reconnects atomic.Int64
}

// NewSession returns a session using dial for both connections
func NewSession(cfg SessionConfig, dial DialFunc) *Session {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	return &Session{cfg: cfg, dial: dial}
}

// Connected reports whether both streams are currently up
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Reconnects returns how many times the pair has been re-established
func (s *Session) Reconnects() int64 {
	return s.reconnects.Load()
}

// Run delivers events from both streams to handler until ctx is done.
// handler is called from two goroutines and must be safe for that
func (s *Session) Run(ctx context.Context, handler func(Event)) error {
	for {
		err := s.runOnce(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logging.Warn("telemetry", "session ended, reconnecting", logging.Fields{
			"error": err,
			"delay": s.cfg.ReconnectDelay,
		})
		if err := s.cfg.Sleep(ctx, s.cfg.ReconnectDelay); err != nil {
			return err
		}
		s.reconnects.Add(1)
	}
}

func (s *Session) connect(ctx context.Context, tag Tag) (io.ReadWriteCloser, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	if len(s.cfg.Handshake) > 0 {
		verbose.Bytes("telemetry", "tx "+string(tag), s.cfg.Handshake)
		if _, err := conn.Write(s.cfg.Handshake); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "handshake on %s connection", tag)
		}
	}
	return conn, nil
}

func (s *Session) runOnce(ctx context.Context, handler func(Event)) error {
	bandConn, err := s.connect(ctx, TagBand)
	if err != nil {
		return err
	}
	freqConn, err := s.connect(ctx, TagFrequency)
	if err != nil {
		bandConn.Close()
		return err
	}

	s.connected.Store(true)
	logging.Info("telemetry", "connected band and frequency streams")

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, stream := range []struct {
		conn io.Reader
		tag  Tag
	}{{bandConn, TagBand}, {freqConn, TagFrequency}} {
		wg.Add(1)
		go func(conn io.Reader, tag Tag) {
			defer wg.Done()
			reader := NewReader(conn, tag)
			for {
				ev, err := reader.Next()
				if err != nil {
					errs <- errors.Wrapf(err, "%s stream", tag)
					return
				}
				handler(ev)
			}
		}(stream.conn, stream.tag)
	}

	var first error
	select {
	case first = <-errs:
	case <-ctx.Done():
		first = ctx.Err()
	}

	// Both streams share framing with the source, so they go down together
	s.connected.Store(false)
	bandConn.Close()
	freqConn.Close()
	wg.Wait()
	return first
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
