package antswitch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/bandtable"
)

// scriptedSwitch answers successive requests with the given status codes.
// A zero status hijacks and drops the connection to simulate a network error
type scriptedSwitch struct {
	mu       sync.Mutex
	statuses []int
	paths    []string
}

func (s *scriptedSwitch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	idx := len(s.paths)
	s.paths = append(s.paths, r.URL.Path)
	status := http.StatusOK
	if idx < len(s.statuses) {
		status = s.statuses[idx]
	}
	s.mu.Unlock()

	if status == 0 {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
		return
	}
	w.WriteHeader(status)
}

func (s *scriptedSwitch) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestController(t *testing.T, statuses ...int) (*Controller, *scriptedSwitch, *sleepRecorder) {
	t.Helper()
	sw := &scriptedSwitch{statuses: statuses}
	srv := httptest.NewServer(sw)
	t.Cleanup(srv.Close)

	rec := &sleepRecorder{}
	ctrl := NewController(Config{
		BaseURL:     srv.URL + "/",
		MaxAttempts: 3,
		RetryDelay:  2 * time.Second,
		Sleep:       rec.sleep,
	}, srv.Client())
	return ctrl, sw, rec
}

func TestSetPositionSuccessFirstTry(t *testing.T) {
	ctrl, sw, rec := newTestController(t, http.StatusOK)

	calls := 0
	res := ctrl.SetPosition(context.Background(), bandtable.PositionTwo, func() { calls++ })

	assert.True(t, res.OK())
	assert.Equal(t, 1, res.Attempts)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"/TWO"}, sw.requests())
	assert.Empty(t, rec.delays)
}

func TestSetPositionRetriesTransientFailures(t *testing.T) {
	ctrl, sw, rec := newTestController(t, 0, http.StatusInternalServerError, http.StatusOK)

	calls := 0
	res := ctrl.SetPosition(context.Background(), bandtable.PositionThree, func() { calls++ })

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 1, calls)
	assert.Len(t, sw.requests(), 3)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, rec.delays)
}

func TestSetPositionNotFoundIsTerminal(t *testing.T) {
	ctrl, sw, rec := newTestController(t, http.StatusNotFound, http.StatusOK)

	calls := 0
	res := ctrl.SetPosition(context.Background(), bandtable.PositionFour, func() { calls++ })

	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	assert.True(t, errors.Is(res.Err, ErrNotFound))
	assert.True(t, IsTerminal(res.Err))
	assert.Zero(t, calls)
	assert.Len(t, sw.requests(), 1)
	assert.Empty(t, rec.delays)
}

func TestSetPositionExhausted(t *testing.T) {
	ctrl, sw, rec := newTestController(t,
		http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusOK)

	calls := 0
	res := ctrl.SetPosition(context.Background(), bandtable.PositionOne, func() { calls++ })

	assert.Equal(t, OutcomeExhausted, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.True(t, errors.Is(res.Err, ErrExhausted))
	assert.False(t, IsTerminal(res.Err))
	assert.Zero(t, calls)
	assert.Len(t, sw.requests(), 3, "no fourth attempt")
	assert.Len(t, rec.delays, 2)
}

func TestSetPositionIdempotent(t *testing.T) {
	ctrl, sw, _ := newTestController(t)

	calls := 0
	for i := 0; i < 2; i++ {
		res := ctrl.SetPosition(context.Background(), bandtable.PositionTwo, func() { calls++ })
		require.True(t, res.OK())
	}
	assert.Equal(t, 2, calls, "one callback per call")
	assert.Equal(t, []string{"/TWO", "/TWO"}, sw.requests())
}

func TestSetPositionCancelledBetweenAttempts(t *testing.T) {
	sw := &scriptedSwitch{statuses: []int{http.StatusInternalServerError}}
	srv := httptest.NewServer(sw)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ctrl := NewController(Config{
		BaseURL: srv.URL + "/",
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}, srv.Client())

	res := ctrl.SetPosition(ctx, bandtable.PositionTwo, nil)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestNewControllerDefaults(t *testing.T) {
	ctrl := NewController(Config{BaseURL: "http://192.168.1.179"}, nil)
	assert.Equal(t, "http://192.168.1.179/FIVE", ctrl.URL(bandtable.PositionFive))
	assert.Equal(t, 3, ctrl.cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, ctrl.cfg.RetryDelay)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "not_found", OutcomeNotFound.String())
	assert.Equal(t, "exhausted", OutcomeExhausted.String())
	assert.Equal(t, "cancelled", OutcomeCancelled.String())
}
