package hardware

import (
	"fmt"
	"sync"
	"time"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/logging"
)

// MockWrite is one command captured by MockDevice
type MockWrite struct {
	Data []byte
	At   time.Time
}

// MockDevice implements Device for testing and -mock runs
type MockDevice struct {
	name string
	mu   sync.Mutex

	writes   []MockWrite
	closed   bool
	writeErr error

	// Clock stamps captured writes. Defaults to time.Now
	Clock func() time.Time
}

// NewMockDevice creates a mock device
func NewMockDevice(name string) *MockDevice {
	return &MockDevice{name: name, Clock: time.Now}
}

// Write records p
func (m *MockDevice) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, fmt.Errorf("device %s is closed", m.name)
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}

	logging.Debug("mock", "device write", logging.Fields{"device": m.name, "data": string(p)})
	m.writes = append(m.writes, MockWrite{
		Data: append([]byte(nil), p...),
		At:   m.Clock(),
	})
	return len(p), nil
}

// Close marks the device closed
func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Name returns the device name
func (m *MockDevice) Name() string {
	return m.name
}

// SetWriteError makes subsequent writes fail with err (nil restores)
func (m *MockDevice) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Writes returns a copy of the captured writes
func (m *MockDevice) Writes() []MockWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockWrite, len(m.writes))
	copy(out, m.writes)
	return out
}

// Commands returns the captured writes as strings
func (m *MockDevice) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.writes))
	for _, w := range m.writes {
		out = append(out, string(w.Data))
	}
	return out
}

// IsClosed reports whether Close was called
func (m *MockDevice) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Reset drops the captured writes
func (m *MockDevice) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
}
