// Package bandtable maps band codes reported by the logging program to the
// station hardware configuration for that band
package bandtable

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/config"
)

// SwitchPosition is the path token appended to the remote switch URL
type SwitchPosition string

// Positions of the WR9R remote antenna selector
const (
	PositionOne   SwitchPosition = "ONE"
	PositionTwo   SwitchPosition = "TWO"
	PositionThree SwitchPosition = "THREE"
	PositionFour  SwitchPosition = "FOUR"
	PositionFive  SwitchPosition = "FIVE"
)

// ErrNotFound is returned by Lookup for codes absent from the table
var ErrNotFound = errors.New("band code not in table")

// BandEntry is the hardware configuration for one band
type BandEntry struct {
	Code           int            `json:"code"`
	SwitchPosition SwitchPosition `json:"switch_position"`
	TuneSeconds    int            `json:"tune_seconds"`
	TunerCommand   []byte         `json:"-"`
	Label          string         `json:"label"`
}

// TunerSetting returns the tuner command as display text
func (e BandEntry) TunerSetting() string {
	return string(e.TunerCommand)
}

// Table is an immutable code to BandEntry index
type Table struct {
	entries map[int]BandEntry
}

// New validates entries and builds a table. Entries are copied
func New(entries []BandEntry) (*Table, error) {
	t := &Table{entries: make(map[int]BandEntry, len(entries))}
	for _, e := range entries {
		if _, dup := t.entries[e.Code]; dup {
			return nil, fmt.Errorf("duplicate band code %d", e.Code)
		}
		if e.SwitchPosition == "" {
			return nil, fmt.Errorf("band code %d: empty switch position", e.Code)
		}
		if e.TuneSeconds < 0 {
			return nil, fmt.Errorf("band code %d: negative tune seconds", e.Code)
		}
		e.TunerCommand = append([]byte(nil), e.TunerCommand...)
		t.entries[e.Code] = e
	}
	return t, nil
}

// Lookup returns the entry for code, or ErrNotFound
func (t *Table) Lookup(code int) (BandEntry, error) {
	e, ok := t.entries[code]
	if !ok {
		return BandEntry{}, fmt.Errorf("%w: %d", ErrNotFound, code)
	}
	e.TunerCommand = append([]byte(nil), e.TunerCommand...)
	return e, nil
}

// Len returns the number of entries
func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns a copy of every entry ordered by code
func (t *Table) Entries() []BandEntry {
	out := make([]BandEntry, 0, len(t.entries))
	for _, e := range t.entries {
		e.TunerCommand = append([]byte(nil), e.TunerCommand...)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ParseCode converts a telemetry band value ("20", " 40 ") to a code
func ParseCode(value string) (int, error) {
	code, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid band code %q: %w", value, err)
	}
	return code, nil
}

// Default returns the WR9R station table. Codes are the band in metres as
// reported by N3FJP
func Default() *Table {
	t, err := New([]BandEntry{
		{Code: 160, SwitchPosition: PositionFive, TuneSeconds: 0, TunerCommand: []byte("AN3;MDB;"), Label: "160M"}, // dummy load
		{Code: 80, SwitchPosition: PositionThree, TuneSeconds: 4, TunerCommand: []byte("AN2;MDA;"), Label: "80M"},
		{Code: 60, SwitchPosition: PositionThree, TuneSeconds: 4, TunerCommand: []byte("AN2;MDA;"), Label: "60M"},
		{Code: 40, SwitchPosition: PositionThree, TuneSeconds: 4, TunerCommand: []byte("AN2;MDA;"), Label: "40M"},
		{Code: 30, SwitchPosition: PositionOne, TuneSeconds: 4, TunerCommand: []byte("AN1;MDM;"), Label: "30M"},
		{Code: 20, SwitchPosition: PositionTwo, TuneSeconds: 1, TunerCommand: []byte("AN2;MDA;"), Label: "20M"},
		{Code: 17, SwitchPosition: PositionThree, TuneSeconds: 4, TunerCommand: []byte("AN2;MDA;"), Label: "17M"},
		{Code: 15, SwitchPosition: PositionTwo, TuneSeconds: 1, TunerCommand: []byte("AN2;MDA;"), Label: "15M"},
		{Code: 12, SwitchPosition: PositionThree, TuneSeconds: 4, TunerCommand: []byte("AN2;MDA;"), Label: "12M"},
		{Code: 10, SwitchPosition: PositionTwo, TuneSeconds: 1, TunerCommand: []byte("AN2;MDA;"), Label: "10M"},
		{Code: 6, SwitchPosition: PositionThree, TuneSeconds: 1, TunerCommand: []byte("AN2;MDA;"), Label: "6M"},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// FromConfig builds the table from the bands section, or Default when empty
func FromConfig(cfg *config.Config) (*Table, error) {
	if len(cfg.Bands) == 0 {
		return Default(), nil
	}

	entries := make([]BandEntry, 0, len(cfg.Bands))
	for _, b := range cfg.Bands {
		label := b.Label
		if label == "" {
			label = fmt.Sprintf("%dM", b.Code)
		}
		entries = append(entries, BandEntry{
			Code:           b.Code,
			SwitchPosition: SwitchPosition(strings.ToUpper(b.Switch)),
			TuneSeconds:    b.TuneSeconds,
			TunerCommand:   []byte(b.TunerCommand),
			Label:          label,
		})
	}
	return New(entries)
}
