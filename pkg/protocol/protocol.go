package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Command represents a command sent to the control socket
type Command struct {
	Type string                 `json:"type"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// Response represents a response from the control socket
type Response struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// DisplayUnknown is shown for status fields that have not been set yet
const DisplayUnknown = "Unknown"

// Status is a snapshot of the coordinator for display
type Status struct {
	Band           string    `json:"band"`
	Frequency      string    `json:"frequency"`
	SwitchPosition string    `json:"switch_position"`
	TunerSetting   string    `json:"tuner_setting"`
	State          string    `json:"state"`
	LastBandCode   int       `json:"last_band_code"`
	Changes        int64     `json:"changes"`
	Failures       int64     `json:"failures"`
	TableMisses    int64     `json:"table_misses"`
	Superseded     int64     `json:"superseded"`
	LastError      string    `json:"last_error,omitempty"`
	Connected      bool      `json:"connected"`
	Reconnects     int64     `json:"reconnects"`
	Callsign       string    `json:"callsign,omitempty"`
	Uptime         string    `json:"uptime"`
	StartTime      time.Time `json:"start_time"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        string    `json:"version"`
}

// Band is one band table row as shown to clients
type Band struct {
	Code           int    `json:"code"`
	Label          string `json:"label"`
	SwitchPosition string `json:"switch_position"`
	TuneSeconds    int    `json:"tune_seconds"`
	TunerCommand   string `json:"tuner_command"`
}

// ChangeRecord describes one processed band change
type ChangeRecord struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	BandCode       int       `json:"band_code"`
	Label          string    `json:"label"`
	SwitchPosition string    `json:"switch_position"`
	Outcome        string    `json:"outcome"`
	Attempts       int       `json:"attempts"`
	TunerCommand   string    `json:"tuner_command,omitempty"`
	TuneSeconds    int       `json:"tune_seconds"`
	Tuned          bool      `json:"tuned"`
	Error          string    `json:"error,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
}

// Succeeded reports whether the switch confirmed the change
func (r ChangeRecord) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// Outcome values stored in ChangeRecord.Outcome
const (
	OutcomeSuccess   = "success"
	OutcomeNotFound  = "not_found"
	OutcomeExhausted = "exhausted"
	OutcomeCancelled = "cancelled"
)

// Stats summarizes the band change history
type Stats struct {
	TotalChanges int64            `json:"total_changes"`
	Successful   int64            `json:"successful"`
	Failed       int64            `json:"failed"`
	Tuned        int64            `json:"tuned"`
	ByBand       map[string]int64 `json:"by_band"`
	LastChange   *time.Time       `json:"last_change,omitempty"`
}

// ParseCommand parses a text command into a Command struct
func ParseCommand(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	parts := strings.SplitN(text, ":", 2)

	cmd := &Command{
		Type: strings.ToUpper(parts[0]),
		Args: make(map[string]interface{}),
	}

	if len(parts) > 1 {
		args := strings.TrimSpace(parts[1])

		switch cmd.Type {
		case CmdHistory:
			// HISTORY:20
			cmd.Args["limit"] = args

		case CmdBands:
			// BANDS:20 shows one code
			cmd.Args["code"] = args
		}
	}

	return cmd, nil
}

// IntArg returns the named argument as an int, or def when absent or invalid
func (c *Command) IntArg(name string, def int) int {
	raw, ok := c.Args[name]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// String converts a Response to JSON string
func (r *Response) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data map[string]interface{}) *Response {
	return &Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// Protocol commands
const (
	CmdStatus  = "STATUS"
	CmdBands   = "BANDS"
	CmdHistory = "HISTORY"
	CmdStats   = "STATS"
	CmdQuit    = "QUIT"
	CmdPing    = "PING"
)
