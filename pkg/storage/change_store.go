package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/logging"
	"github.com/ldocull/N2FJP-Rig-Automation/pkg/protocol"
)

// ChangeStore keeps a persistent history of band changes
type ChangeStore struct {
	db        *sql.DB
	dbPath    string
	maxEvents int
}

// NewChangeStore creates a new change store with SQLite backend
func NewChangeStore(dbPath string, maxEvents int) (*ChangeStore, error) {
	store := &ChangeStore{
		dbPath:    dbPath,
		maxEvents: maxEvents,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize change store: %w", err)
	}

	return store, nil
}

// initialize sets up the database connection and creates tables
func (cs *ChangeStore) initialize() error {
	if cs.dbPath == "" {
		cs.dbPath = "./n3fjpd.db"
	}

	if err := os.MkdirAll(filepath.Dir(cs.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	connectionString := cs.dbPath + "?_busy_timeout=10000&_journal_mode=WAL"

	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	cs.db = db

	if err := cs.createTables(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if err := cs.createIndexes(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logging.Info("storage", "change store initialized", logging.Fields{
		"path":       cs.dbPath,
		"max_events": cs.maxEvents,
	})
	return nil
}

// createTables creates the database schema
func (cs *ChangeStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS band_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		band_code INTEGER NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		switch_position TEXT NOT NULL,
		outcome TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		tuner_command TEXT NOT NULL DEFAULT '',
		tune_seconds INTEGER NOT NULL DEFAULT 0,
		tuned BOOLEAN NOT NULL DEFAULT FALSE,
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS change_stats (
		id INTEGER PRIMARY KEY,
		total_changes INTEGER NOT NULL DEFAULT 0,
		successful INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		tuned INTEGER NOT NULL DEFAULT 0,
		last_cleanup DATETIME,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO change_stats (id, total_changes, successful, failed, tuned)
	VALUES (1, 0, 0, 0, 0);
	`

	_, err := cs.db.Exec(schema)
	return err
}

// createIndexes creates database indexes for the history queries
func (cs *ChangeStore) createIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_band_changes_timestamp ON band_changes(timestamp DESC)",
		"CREATE INDEX IF NOT EXISTS idx_band_changes_band_code ON band_changes(band_code)",
		"CREATE INDEX IF NOT EXISTS idx_band_changes_outcome ON band_changes(outcome)",
	}

	for _, indexSQL := range indexes {
		if _, err := cs.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// RecordChange stores a finished band change and returns its ID
func (cs *ChangeStore) RecordChange(rec protocol.ChangeRecord) (int64, error) {
	tx, err := cs.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO band_changes (
			timestamp, band_code, label, switch_position, outcome, attempts,
			tuner_command, tune_seconds, tuned, error, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Timestamp.UTC(), rec.BandCode, rec.Label, rec.SwitchPosition, rec.Outcome, rec.Attempts,
		rec.TunerCommand, rec.TuneSeconds, rec.Tuned, rec.Error, rec.DurationMs,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert change: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get change ID: %w", err)
	}

	if err := cs.updateStats(tx, rec); err != nil {
		return 0, fmt.Errorf("failed to update stats: %w", err)
	}

	if err := cs.cleanupOldChanges(tx); err != nil {
		logging.Warn("storage", "failed to cleanup old changes", logging.Fields{"error": err})
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// Observer returns a callback that records every change it receives.
// Storage errors are logged and dropped
func (cs *ChangeStore) Observer() func(protocol.ChangeRecord) {
	return func(rec protocol.ChangeRecord) {
		if _, err := cs.RecordChange(rec); err != nil {
			logging.Error("storage", "failed to record band change", logging.Fields{
				"label": rec.Label,
				"error": err,
			})
		}
	}
}

// updateStats updates the running totals
func (cs *ChangeStore) updateStats(tx *sql.Tx, rec protocol.ChangeRecord) error {
	_, err := tx.Exec(`
		UPDATE change_stats SET
			total_changes = total_changes + 1,
			successful = successful + CASE WHEN ? THEN 1 ELSE 0 END,
			failed = failed + CASE WHEN ? THEN 0 ELSE 1 END,
			tuned = tuned + CASE WHEN ? THEN 1 ELSE 0 END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`, rec.Succeeded(), rec.Succeeded(), rec.Tuned)
	return err
}

// CleanupOldChanges removes changes beyond the maximum limit
func (cs *ChangeStore) CleanupOldChanges() error {
	tx, err := cs.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := cs.cleanupOldChanges(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// cleanupOldChanges removes changes beyond the maximum limit
func (cs *ChangeStore) cleanupOldChanges(tx *sql.Tx) error {
	if cs.maxEvents <= 0 {
		return nil // No limit
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM band_changes").Scan(&count); err != nil {
		return err
	}

	if count <= cs.maxEvents {
		return nil
	}

	_, err := tx.Exec(`
		DELETE FROM band_changes
		WHERE id IN (
			SELECT id FROM band_changes
			ORDER BY id ASC
			LIMIT ?
		)
	`, count-cs.maxEvents)
	if err != nil {
		return err
	}

	_, err = tx.Exec("UPDATE change_stats SET last_cleanup = CURRENT_TIMESTAMP WHERE id = 1")
	return err
}

// Close closes the database connection
func (cs *ChangeStore) Close() error {
	if cs.db != nil {
		return cs.db.Close()
	}
	return nil
}
