package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseCommand(t *testing.T) {
	t.Run("STATUS Command", func(t *testing.T) {
		cmd, err := ParseCommand("STATUS")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if cmd.Type != CmdStatus {
			t.Errorf("Expected type STATUS, got %s", cmd.Type)
		}
		if len(cmd.Args) != 0 {
			t.Errorf("Expected no args for STATUS, got %d", len(cmd.Args))
		}
	})

	t.Run("HISTORY Command with Limit", func(t *testing.T) {
		cmd, err := ParseCommand("HISTORY:20")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if cmd.Type != CmdHistory {
			t.Errorf("Expected type HISTORY, got %s", cmd.Type)
		}
		if cmd.Args["limit"] != "20" {
			t.Errorf("Expected limit 20, got %v", cmd.Args["limit"])
		}
		if cmd.IntArg("limit", 10) != 20 {
			t.Errorf("Expected IntArg 20, got %d", cmd.IntArg("limit", 10))
		}
	})

	t.Run("BANDS Command with Code", func(t *testing.T) {
		cmd, err := ParseCommand("bands: 40 ")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if cmd.Type != CmdBands {
			t.Errorf("Expected type BANDS, got %s", cmd.Type)
		}
		if cmd.IntArg("code", 0) != 40 {
			t.Errorf("Expected code 40, got %v", cmd.Args["code"])
		}
	})

	t.Run("Simple Commands", func(t *testing.T) {
		commands := []string{"QUIT", "PING", "STATS", "BANDS", "HISTORY"}
		for _, cmdText := range commands {
			t.Run(cmdText, func(t *testing.T) {
				cmd, err := ParseCommand(cmdText)
				if err != nil {
					t.Fatalf("Expected no error for %s, got: %v", cmdText, err)
				}
				if cmd.Type != cmdText {
					t.Errorf("Expected type %s, got %s", cmdText, cmd.Type)
				}
				if len(cmd.Args) != 0 {
					t.Errorf("Expected no args for %s, got %d", cmdText, len(cmd.Args))
				}
			})
		}
	})

	t.Run("Case Insensitive", func(t *testing.T) {
		cmd, err := ParseCommand("status")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Type != "STATUS" {
			t.Errorf("Expected uppercase STATUS, got %s", cmd.Type)
		}
	})

	t.Run("Whitespace Handling", func(t *testing.T) {
		cmd, err := ParseCommand("  PING  \r\n")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if cmd.Type != "PING" {
			t.Errorf("Expected type PING, got %s", cmd.Type)
		}
	})

	t.Run("Unknown Command", func(t *testing.T) {
		cmd, err := ParseCommand("UNKNOWN:test")
		if err != nil {
			t.Fatalf("Expected no error for unknown command, got: %v", err)
		}
		if cmd.Type != "UNKNOWN" {
			t.Errorf("Expected type UNKNOWN, got %s", cmd.Type)
		}
		if len(cmd.Args) != 0 {
			t.Errorf("Expected no args for unknown command, got %d", len(cmd.Args))
		}
	})

	t.Run("Empty Command", func(t *testing.T) {
		cmd, err := ParseCommand("")
		if err != nil {
			t.Fatalf("Expected no error for empty command, got: %v", err)
		}
		if cmd.Type != "" {
			t.Errorf("Expected empty type, got %s", cmd.Type)
		}
	})
}

func TestIntArg(t *testing.T) {
	cmd := &Command{Args: map[string]interface{}{
		"int":    7,
		"float":  float64(12),
		"string": "30",
		"bad":    "thirty",
	}}

	tests := []struct {
		name string
		want int
	}{
		{"int", 7},
		{"float", 12},
		{"string", 30},
		{"bad", 5},
		{"missing", 5},
	}
	for _, tc := range tests {
		if got := cmd.IntArg(tc.name, 5); got != tc.want {
			t.Errorf("IntArg(%s): expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestResponse(t *testing.T) {
	t.Run("Success Response JSON", func(t *testing.T) {
		resp := NewSuccessResponse(map[string]interface{}{
			"band":            "20M",
			"switch_position": "TWO",
		})

		if !resp.Success {
			t.Error("Expected success to be true")
		}
		if resp.Error != "" {
			t.Errorf("Expected no error, got %s", resp.Error)
		}

		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(resp.String()), &parsed); err != nil {
			t.Fatalf("Failed to parse JSON: %v", err)
		}
		if parsed["success"] != true {
			t.Error("Expected success true in JSON")
		}
		data := parsed["data"].(map[string]interface{})
		if data["band"] != "20M" {
			t.Errorf("Expected band 20M, got %v", data["band"])
		}
	})

	t.Run("Error Response JSON", func(t *testing.T) {
		resp := NewErrorResponse("unknown command: FOO")

		if resp.Success {
			t.Error("Expected success to be false")
		}
		if resp.Data != nil {
			t.Errorf("Expected no data for error response, got %v", resp.Data)
		}

		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(resp.String()), &parsed); err != nil {
			t.Fatalf("Failed to parse JSON: %v", err)
		}
		if parsed["error"] != "unknown command: FOO" {
			t.Errorf("Expected error in JSON, got %v", parsed["error"])
		}
	})
}

func TestStatus(t *testing.T) {
	t.Run("Status JSON Field Names", func(t *testing.T) {
		status := Status{
			Band:           "20M",
			Frequency:      "14.074",
			SwitchPosition: "TWO",
			TunerSetting:   "AN2;MDA;",
			State:          "IDLE",
			LastBandCode:   20,
			StartTime:      time.Date(2024, 11, 27, 0, 0, 0, 0, time.UTC),
		}

		data, err := json.Marshal(status)
		if err != nil {
			t.Fatalf("Failed to marshal status: %v", err)
		}

		var parsed map[string]interface{}
		if err := json.Unmarshal(data, &parsed); err != nil {
			t.Fatalf("Failed to parse status: %v", err)
		}
		for key, want := range map[string]interface{}{
			"band":            "20M",
			"frequency":       "14.074",
			"switch_position": "TWO",
			"tuner_setting":   "AN2;MDA;",
			"state":           "IDLE",
			"last_band_code":  float64(20),
		} {
			if parsed[key] != want {
				t.Errorf("Expected %s=%v, got %v", key, want, parsed[key])
			}
		}
		if _, ok := parsed["last_error"]; ok {
			t.Error("Expected empty last_error to be omitted")
		}
	})
}

func TestChangeRecord(t *testing.T) {
	rec := ChangeRecord{Outcome: OutcomeSuccess}
	if !rec.Succeeded() {
		t.Error("Expected success outcome to report success")
	}

	for _, outcome := range []string{OutcomeNotFound, OutcomeExhausted, OutcomeCancelled} {
		rec.Outcome = outcome
		if rec.Succeeded() {
			t.Errorf("Expected %s to report failure", outcome)
		}
	}
}
