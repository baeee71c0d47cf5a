// Package verbose traces raw wire traffic (telemetry frames, serial commands)
// when the daemon runs with -v
package verbose

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/logging"
)

var enabled atomic.Bool

// SetEnabled sets the global verbose flag
func SetEnabled(enable bool) {
	enabled.Store(enable)
}

// IsEnabled returns whether verbose tracing is enabled
func IsEnabled() bool {
	return enabled.Load()
}

// Printf logs a verbose message if verbose tracing is enabled
func Printf(component, format string, args ...interface{}) {
	if IsEnabled() {
		logging.Info(component, "[VERBOSE] "+fmt.Sprintf(format, args...))
	}
}

// Bytes logs a quoted dump of data moving in direction ("rx", "tx")
func Bytes(component, direction string, data []byte) {
	if IsEnabled() {
		logging.Info(component, fmt.Sprintf("[VERBOSE] %s %d bytes %s", direction, len(data), strconv.Quote(string(data))))
	}
}
