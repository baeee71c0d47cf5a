package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/protocol"
)

// ChangeQuery represents query parameters for retrieving band changes
type ChangeQuery struct {
	Limit    int
	Offset   int
	Since    *time.Time
	Until    *time.Time
	BandCode *int
	Outcome  string
}

// GetChanges retrieves band changes, newest first
func (cs *ChangeStore) GetChanges(query ChangeQuery) ([]protocol.ChangeRecord, error) {
	var args []interface{}

	sqlQuery := `
		SELECT id, timestamp, band_code, label, switch_position, outcome, attempts,
			   tuner_command, tune_seconds, tuned, error, duration_ms
		FROM band_changes
		WHERE 1=1
	`

	if query.Since != nil {
		sqlQuery += " AND timestamp >= ?"
		args = append(args, query.Since.UTC())
	}

	if query.Until != nil {
		sqlQuery += " AND timestamp <= ?"
		args = append(args, query.Until.UTC())
	}

	if query.BandCode != nil {
		sqlQuery += " AND band_code = ?"
		args = append(args, *query.BandCode)
	}

	if query.Outcome != "" {
		sqlQuery += " AND outcome = ?"
		args = append(args, query.Outcome)
	}

	sqlQuery += " ORDER BY id DESC"

	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)

		if query.Offset > 0 {
			sqlQuery += " OFFSET ?"
			args = append(args, query.Offset)
		}
	}

	rows, err := cs.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	changes := []protocol.ChangeRecord{}
	for rows.Next() {
		var rec protocol.ChangeRecord
		err := rows.Scan(
			&rec.ID,
			&rec.Timestamp,
			&rec.BandCode,
			&rec.Label,
			&rec.SwitchPosition,
			&rec.Outcome,
			&rec.Attempts,
			&rec.TunerCommand,
			&rec.TuneSeconds,
			&rec.Tuned,
			&rec.Error,
			&rec.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		changes = append(changes, rec)
	}

	return changes, rows.Err()
}

// Recent retrieves the most recent changes
func (cs *ChangeStore) Recent(limit int) ([]protocol.ChangeRecord, error) {
	return cs.GetChanges(ChangeQuery{Limit: limit})
}

// GetStats retrieves history statistics
func (cs *ChangeStore) GetStats() (*protocol.Stats, error) {
	stats := &protocol.Stats{ByBand: make(map[string]int64)}

	err := cs.db.QueryRow(`
		SELECT total_changes, successful, failed, tuned
		FROM change_stats WHERE id = 1
	`).Scan(&stats.TotalChanges, &stats.Successful, &stats.Failed, &stats.Tuned)
	if err != nil {
		return nil, fmt.Errorf("failed to get change stats: %w", err)
	}

	rows, err := cs.db.Query(`
		SELECT label, COUNT(*) FROM band_changes
		WHERE outcome = ?
		GROUP BY label
	`, protocol.OutcomeSuccess)
	if err != nil {
		return nil, fmt.Errorf("failed to count changes by band: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var label string
		var count int64
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan band count: %w", err)
		}
		stats.ByBand[label] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var last time.Time
	err = cs.db.QueryRow("SELECT timestamp FROM band_changes ORDER BY id DESC LIMIT 1").Scan(&last)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("failed to get last change: %w", err)
	default:
		stats.LastChange = &last
	}

	return stats, nil
}

// GetChangeCount returns the number of stored changes
func (cs *ChangeStore) GetChangeCount() (int, error) {
	var count int
	err := cs.db.QueryRow("SELECT COUNT(*) FROM band_changes").Scan(&count)
	return count, err
}
