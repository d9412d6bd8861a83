// Package persistence provides SQLite-based run storage: history records and
// resumable snapshots, keyed by run.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/citysim/internal/config"
	"github.com/talgya/citysim/internal/engine"
	"github.com/talgya/citysim/internal/indicators"
)

// ErrNotFound is returned when a run or snapshot does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps a SQLite connection for run persistence.
type DB struct {
	conn *sqlx.DB
}

// Run is one stored simulation run.
type Run struct {
	ID         string    `db:"id"`
	Seed       int64     `db:"seed"`
	CreatedAt  time.Time `db:"created_at"`
	ConfigYAML string    `db:"config_yaml"`
}

// Config decodes the configuration the run started with.
func (r *Run) Config() (config.Config, error) {
	return config.Decode(strings.NewReader(r.ConfigYAML))
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows a single writer.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		config_yaml TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS history (
		run_id TEXT NOT NULL REFERENCES runs(id),
		period INTEGER NOT NULL,
		phase TEXT NOT NULL,
		gdp REAL NOT NULL,
		real_gdp REAL NOT NULL,
		unemployment REAL NOT NULL,
		price_index REAL NOT NULL,
		inflation REAL NOT NULL,
		gini REAL NOT NULL,
		record_json TEXT NOT NULL,
		PRIMARY KEY (run_id, period)
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL REFERENCES runs(id),
		period INTEGER NOT NULL,
		state_json TEXT NOT NULL,
		PRIMARY KEY (run_id, period)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

const insertRecord = `INSERT OR REPLACE INTO history
	(run_id, period, phase, gdp, real_gdp, unemployment, price_index, inflation, gini, record_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// CreateRun registers a new run and returns its id.
func (db *DB) CreateRun(cfg config.Config) (string, error) {
	raw, err := cfg.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	id := uuid.NewString()
	_, err = db.conn.Exec(
		"INSERT INTO runs (id, seed, created_at, config_yaml) VALUES (?, ?, ?, ?)",
		id, cfg.Simulation.Seed, time.Now().UTC(), string(raw),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	slog.Info("run created", "run", id, "seed", cfg.Simulation.Seed)
	return id, nil
}

// Run loads one run by id.
func (db *DB) Run(id string) (*Run, error) {
	var r Run
	err := db.conn.Get(&r, "SELECT id, seed, created_at, config_yaml FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Runs lists stored runs, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		"SELECT id, seed, created_at, config_yaml FROM runs ORDER BY created_at DESC LIMIT ?",
		limit,
	)
	return runs, err
}

// SaveRecord appends one period's history record.
func (db *DB) SaveRecord(runID string, rec indicators.HistoryRecord) error {
	raw, err := rec.Marshal()
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(insertRecord,
		runID, rec.Period, rec.Phase, rec.GDP, rec.RealGDP, rec.Unemployment,
		rec.PriceIndex, rec.Inflation, rec.Gini, string(raw),
	)
	if err != nil {
		return fmt.Errorf("insert record %d: %w", rec.Period, err)
	}
	return nil
}

// SavePeriod stores a record and the snapshot taken after it in one
// transaction, so a resumed run never sees one without the other.
func (db *DB) SavePeriod(runID string, rec indicators.HistoryRecord, st engine.State) error {
	recJSON, err := rec.Marshal()
	if err != nil {
		return err
	}
	stJSON, err := st.Marshal()
	if err != nil {
		return err
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(insertRecord,
		runID, rec.Period, rec.Phase, rec.GDP, rec.RealGDP, rec.Unemployment,
		rec.PriceIndex, rec.Inflation, rec.Gini, string(recJSON),
	); err != nil {
		return fmt.Errorf("insert record %d: %w", rec.Period, err)
	}
	// Only the latest snapshot is needed to resume.
	if _, err := tx.Exec("DELETE FROM snapshots WHERE run_id = ?", runID); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO snapshots (run_id, period, state_json) VALUES (?, ?, ?)",
		runID, st.Period, string(stJSON),
	); err != nil {
		return fmt.Errorf("insert snapshot %d: %w", st.Period, err)
	}

	return tx.Commit()
}

// History loads a run's records in period order.
func (db *DB) History(runID string) (*indicators.History, error) {
	var rows []string
	if err := db.conn.Select(&rows,
		"SELECT record_json FROM history WHERE run_id = ? ORDER BY period",
		runID,
	); err != nil {
		return nil, err
	}
	records := make([]indicators.HistoryRecord, 0, len(rows))
	for _, raw := range rows {
		rec, err := indicators.UnmarshalRecord([]byte(raw))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return indicators.RestoreHistory(records)
}

// LatestSnapshot loads the most recent snapshot of a run.
func (db *DB) LatestSnapshot(runID string) (engine.State, error) {
	var raw string
	err := db.conn.Get(&raw,
		"SELECT state_json FROM snapshots WHERE run_id = ? ORDER BY period DESC LIMIT 1",
		runID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.State{}, fmt.Errorf("snapshot for run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return engine.State{}, err
	}
	return engine.UnmarshalState([]byte(raw))
}

// Resume rebuilds a stored run's simulation at its latest snapshot. History
// beyond the snapshot is discarded.
func (db *DB) Resume(runID string) (*engine.Simulation, error) {
	run, err := db.Run(runID)
	if err != nil {
		return nil, err
	}
	cfg, err := run.Config()
	if err != nil {
		return nil, err
	}
	st, err := db.LatestSnapshot(runID)
	if err != nil {
		return nil, err
	}
	if _, err := db.conn.Exec("DELETE FROM history WHERE run_id = ? AND period >= ?", runID, st.Period); err != nil {
		return nil, err
	}
	hist, err := db.History(runID)
	if err != nil {
		return nil, err
	}
	return engine.Restore(cfg, st, hist)
}
