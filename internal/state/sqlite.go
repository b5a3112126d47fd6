package state

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // sqlite driver
)

// SQLiteStore persists run history in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new store instance.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens the SQLite database. Use ":memory:" for an in-memory store.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(on)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping state database: %w", err)
	}

	s.db = db
	s.path = path
	s.logger.Debug("state store opened", "path", path)
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateRun inserts a new run in running state.
func (s *SQLiteStore) CreateRun() (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, status, error, started_at) VALUES (?, ?, '', ?)`,
		run.ID, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun marks a run finished with the given status.
func (s *SQLiteStore) CompleteRun(id string, status RunStatus, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		status, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// GetRun fetches one run.
func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, status, error, started_at, completed_at FROM runs WHERE id = ?`, id,
	)
	var run Run
	var completed sql.NullTime
	if err := row.Scan(&run.ID, &run.Status, &run.Error, &run.StartedAt, &completed); err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	if completed.Valid {
		run.CompletedAt = &completed.Time
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	rows, err := s.db.Query(
		`SELECT id, status, error, started_at, completed_at FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		var run Run
		var completed sql.NullTime
		if err := rows.Scan(&run.ID, &run.Status, &run.Error, &run.StartedAt, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if completed.Valid {
			run.CompletedAt = &completed.Time
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// RecordStageRun inserts a stage run row and assigns its ID.
func (s *SQLiteStore) RecordStageRun(sr *StageRun) error {
	sr.ID = uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO stage_runs (id, run_id, stage_id, kind, status, rows_in, rows_out, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sr.ID, sr.RunID, sr.StageID, sr.Kind, sr.Status, sr.RowsIn, sr.RowsOut, sr.DurationMS, sr.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record stage run: %w", err)
	}
	return nil
}

// UpdateStageRun updates the result fields of a stage run.
func (s *SQLiteStore) UpdateStageRun(id string, status StageStatus, rowsIn, rowsOut int, durationMS int64, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE stage_runs SET status = ?, rows_in = ?, rows_out = ?, duration_ms = ?, error = ? WHERE id = ?`,
		status, rowsIn, rowsOut, durationMS, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update stage run: %w", err)
	}
	return nil
}

// ListStageRuns returns the stage runs of a run in insertion order.
func (s *SQLiteStore) ListStageRuns(runID string) ([]*StageRun, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, stage_id, kind, status, rows_in, rows_out, duration_ms, error
		 FROM stage_runs WHERE run_id = ? ORDER BY rowid`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*StageRun
	for rows.Next() {
		var sr StageRun
		if err := rows.Scan(&sr.ID, &sr.RunID, &sr.StageID, &sr.Kind, &sr.Status,
			&sr.RowsIn, &sr.RowsOut, &sr.DurationMS, &sr.Error); err != nil {
			return nil, fmt.Errorf("failed to scan stage run: %w", err)
		}
		out = append(out, &sr)
	}
	return out, rows.Err()
}

// RecordWarnings persists data-quality warnings surfaced by a stage.
func (s *SQLiteStore) RecordWarnings(warnings []Warning) error {
	for _, w := range warnings {
		_, err := s.db.Exec(
			`INSERT INTO warnings (run_id, stage_id, message) VALUES (?, ?, ?)`,
			w.RunID, w.StageID, w.Message,
		)
		if err != nil {
			return fmt.Errorf("failed to record warning: %w", err)
		}
	}
	return nil
}

// ListWarnings returns the warnings recorded for a run.
func (s *SQLiteStore) ListWarnings(runID string) ([]Warning, error) {
	rows, err := s.db.Query(
		`SELECT run_id, stage_id, message FROM warnings WHERE run_id = ? ORDER BY rowid`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list warnings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Warning
	for rows.Next() {
		var w Warning
		if err := rows.Scan(&w.RunID, &w.StageID, &w.Message); err != nil {
			return nil, fmt.Errorf("failed to scan warning: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
