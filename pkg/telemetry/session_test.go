package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is a telemetry connection whose inbound bytes are fed by the test
type fakeConn struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
}

func newFakeConn() *fakeConn {
	pr, pw := io.Pipe()
	return &fakeConn{pr: pr, pw: pw}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	return c.pr.Read(p)
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.Write(p)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.pr.Close()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) handshake() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.String()
}

type sessionHarness struct {
	dials  chan *fakeConn
	sleeps chan time.Duration
	// release, when set, holds each back-off until the test sends on it
	release chan struct{}

	mu           sync.Mutex
	dialCount    int
	dialsAtSleep []int
	events       []Event
}

func newSessionHarness() *sessionHarness {
	return &sessionHarness{
		dials:  make(chan *fakeConn, 16),
		sleeps: make(chan time.Duration, 16),
	}
}

func (h *sessionHarness) dial(ctx context.Context) (io.ReadWriteCloser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dialCount++
	conn := newFakeConn()
	h.dials <- conn
	return conn, nil
}

func (h *sessionHarness) sleep(ctx context.Context, d time.Duration) error {
	h.mu.Lock()
	h.dialsAtSleep = append(h.dialsAtSleep, h.dialCount)
	h.mu.Unlock()
	h.sleeps <- d
	if h.release != nil {
		select {
		case <-h.release:
		case <-ctx.Done():
		}
	}
	return ctx.Err()
}

func (h *sessionHarness) handle(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *sessionHarness) eventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

const handshake = "<CMD><READ><CONTROL>TXTENTRYFREQUENCY</CONTROL></CMD>\n"

func TestSessionReconnectsPairAfterBackoff(t *testing.T) {
	h := newSessionHarness()
	session := NewSession(SessionConfig{
		Handshake:      []byte(handshake),
		ReconnectDelay: 5 * time.Second,
		Sleep:          h.sleep,
	}, h.dial)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx, h.handle) }()

	band := <-h.dials
	freq := <-h.dials
	assert.Equal(t, handshake, band.handshake())
	assert.Equal(t, handshake, freq.handshake())
	require.Eventually(t, session.Connected, time.Second, 5*time.Millisecond)

	go band.pw.Write([]byte("<BAND>20</BAND>"))
	go freq.pw.Write([]byte("<FREQ>14.074</FREQ>"))
	require.Eventually(t, func() bool { return h.eventCount() == 2 }, time.Second, 5*time.Millisecond)

	// Band stream drops: the frequency stream must be torn down with it
	band.pw.CloseWithError(io.ErrUnexpectedEOF)
	require.Eventually(t, freq.isClosed, time.Second, 5*time.Millisecond)
	assert.True(t, band.isClosed())

	select {
	case d := <-h.sleeps:
		assert.Equal(t, 5*time.Second, d)
	case <-time.After(time.Second):
		t.Fatal("expected reconnect back-off")
	}

	band2 := <-h.dials
	freq2 := <-h.dials
	assert.Equal(t, handshake, band2.handshake())
	assert.Equal(t, handshake, freq2.handshake())

	h.mu.Lock()
	assert.Equal(t, []int{2}, h.dialsAtSleep, "no redial may happen before the back-off")
	h.mu.Unlock()
	require.Eventually(t, func() bool { return session.Reconnects() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("session did not stop on cancel")
	}
	assert.True(t, band2.isClosed())
	assert.True(t, freq2.isClosed())
	assert.False(t, session.Connected())
}

func TestSessionDialFailureBacksOffAndClosesPartner(t *testing.T) {
	h := newSessionHarness()
	h.release = make(chan struct{})

	var mu sync.Mutex
	calls := 0
	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 2 {
			return nil, errors.New("connection refused")
		}
		return h.dial(ctx)
	}
	session := NewSession(SessionConfig{ReconnectDelay: 5 * time.Second, Sleep: h.sleep}, dial)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx, h.handle) }()

	select {
	case d := <-h.sleeps:
		assert.Equal(t, 5*time.Second, d)
	case <-time.After(time.Second):
		t.Fatal("expected back-off after refused dial")
	}
	band := <-h.dials
	assert.True(t, band.isClosed(), "the connected partner must be closed")
	assert.False(t, session.Connected())

	h.mu.Lock()
	assert.Equal(t, []int{1}, h.dialsAtSleep, "no redial may happen during the back-off")
	h.mu.Unlock()
	select {
	case <-h.dials:
		t.Fatal("redialled before the back-off ended")
	default:
	}

	// The retry dials both connections again
	close(h.release)
	band2 := <-h.dials
	freq2 := <-h.dials
	require.Eventually(t, session.Connected, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return session.Reconnects() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.True(t, band2.isClosed())
	assert.True(t, freq2.isClosed())
}
