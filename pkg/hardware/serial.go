package hardware

import (
	"fmt"
	"sync"

	"go.bug.st/serial"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/verbose"
)

// Device is a write-only command port. Neither the tuner nor the radio
// acknowledges the commands sent to it
type Device interface {
	Write(p []byte) (int, error)
	Close() error
	Name() string
}

// SerialDevice is a Device backed by a serial port
type SerialDevice struct {
	name string
	port serial.Port
	mu   sync.Mutex
}

// OpenSerialDevice opens name at baud, 8N1. With lowControlLines set RTS and
// DTR are driven low after opening, which keeps the K3 from keying on the
// control lines
func OpenSerialDevice(name string, baud int, lowControlLines bool) (*SerialDevice, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}

	if lowControlLines {
		if err := port.SetRTS(false); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to clear RTS on %s: %w", name, err)
		}
		if err := port.SetDTR(false); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to clear DTR on %s: %w", name, err)
		}
	}

	return &SerialDevice{name: name, port: port}, nil
}

// Write sends p to the port
func (d *SerialDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	verbose.Bytes("serial", "tx "+d.name, p)
	n, err := d.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("write to %s failed: %w", d.name, err)
	}
	return n, nil
}

// Close closes the port
func (d *SerialDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port.Close()
}

// Name returns the port name
func (d *SerialDevice) Name() string {
	return d.name
}
