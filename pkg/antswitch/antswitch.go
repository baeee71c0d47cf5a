// Package antswitch drives the WR9R remote antenna selector over HTTP
//
// The selector is addressed by appending a position token to its base URL
// and issuing a GET. A 2xx response means the relays moved. A 404 means the
// position (or the switch) does not exist and retrying cannot help.
// Anything else, including transport errors, is retried
package antswitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/bandtable"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/logging"
)

var (
	// ErrNotFound is returned when the switch answers 404
	ErrNotFound = errors.New("switch position not found")
	// ErrExhausted is returned when every attempt failed transiently
	ErrExhausted = errors.New("switch attempts exhausted")
)

// IsTerminal reports whether err stopped the retry loop early
func IsTerminal(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Outcome classifies a SetPosition call
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeNotFound
	OutcomeExhausted
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result describes one SetPosition call
type Result struct {
	Position bandtable.SwitchPosition
	Attempts int
	Outcome  Outcome
	Err      error
}

// OK reports whether the switch confirmed the position
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// Config holds switch controller settings
type Config struct {
	BaseURL     string
	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration

	// Sleep waits between attempts. Defaults to a context-aware timer
	Sleep func(ctx context.Context, d time.Duration) error
}

// Controller issues position requests to the switch
type Controller struct {
	cfg    Config
	client *http.Client
}

// NewController creates a controller. A nil client gets one with cfg.Timeout
func NewController(cfg Config, client *http.Client) *Controller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Controller{cfg: cfg, client: client}
}

// URL returns the request URL for pos
func (c *Controller) URL(pos bandtable.SwitchPosition) string {
	return c.cfg.BaseURL + string(pos)
}

// SetPosition requests pos, retrying transient failures up to MaxAttempts
// with RetryDelay between attempts. onSuccess, if non-nil, is called once
// when the switch confirms. Repeating a call for the same position is
// harmless
func (c *Controller) SetPosition(ctx context.Context, pos bandtable.SwitchPosition, onSuccess func()) Result {
	res := Result{Position: pos}
	target := c.URL(pos)

	for res.Attempts < c.cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			res.Outcome = OutcomeCancelled
			res.Err = err
			return res
		}

		res.Attempts++
		logging.Debug("switch", "sending request", logging.Fields{
			"attempt": res.Attempts,
			"url":     target,
		})

		status, err := c.get(ctx, target)
		switch {
		case err == nil && status >= 200 && status < 300:
			logging.Info("switch", "position set", logging.Fields{
				"position": pos,
				"attempts": res.Attempts,
			})
			res.Outcome = OutcomeSuccess
			res.Err = nil
			if onSuccess != nil {
				onSuccess()
			}
			return res
		case err == nil && status == http.StatusNotFound:
			logging.Error("switch", "web switch not found", logging.Fields{"url": target})
			res.Outcome = OutcomeNotFound
			res.Err = fmt.Errorf("%w: %s", ErrNotFound, target)
			return res
		case err == nil:
			res.Err = fmt.Errorf("unexpected status %d", status)
		default:
			if ctx.Err() != nil {
				res.Outcome = OutcomeCancelled
				res.Err = ctx.Err()
				return res
			}
			res.Err = err
		}

		logging.Warn("switch", "attempt failed", logging.Fields{
			"attempt":  res.Attempts,
			"position": pos,
			"error":    res.Err,
		})

		if res.Attempts < c.cfg.MaxAttempts {
			if err := c.cfg.Sleep(ctx, c.cfg.RetryDelay); err != nil {
				res.Outcome = OutcomeCancelled
				res.Err = err
				return res
			}
		}
	}

	logging.Error("switch", "failed to set position", logging.Fields{
		"position": pos,
		"attempts": res.Attempts,
	})
	res.Outcome = OutcomeExhausted
	res.Err = fmt.Errorf("%w after %d attempts: %v", ErrExhausted, res.Attempts, res.Err)
	return res
}

func (c *Controller) get(ctx context.Context, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
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
