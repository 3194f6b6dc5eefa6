package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/seantiz/inductor/internal/model"

	_ "modernc.org/sqlite"
)

const createAttemptsTable = `
CREATE TABLE IF NOT EXISTS attempts (
    id             TEXT PRIMARY KEY,
    correlation_id TEXT NOT NULL,
    type           TEXT NOT NULL,
    class_name     TEXT,
    action         TEXT,
    ns_path        TEXT,
    slot           TEXT NOT NULL,
    outcome        TEXT NOT NULL,
    queue_time     REAL,
    error          TEXT,
    started_at     DATETIME NOT NULL,
    finished_at    DATETIME NOT NULL,
    duration_ms    INTEGER NOT NULL
)`

const createAttemptsCorrelationIndex = `
CREATE INDEX IF NOT EXISTS attempts_correlation_id ON attempts (correlation_id)`

const attemptColumns = `id, correlation_id, type, class_name, action, ns_path,
	slot, outcome, queue_time, error, started_at, finished_at, duration_ms`

// ErrNotFound is returned when an attempt is not found.
var ErrNotFound = errors.New("attempt not found")

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each :memory: connection would get its own empty database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createAttemptsTable, createAttemptsCorrelationIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate attempts: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordAttempt inserts an attempt record.
func (s *SQLiteStore) RecordAttempt(ctx context.Context, a *model.Attempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (`+attemptColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CorrelationID, a.Type, a.ClassName, a.Action, a.NsPath,
		a.Slot, a.Outcome, a.QueueTimeS, a.Error, a.StartedAt.UTC(), a.FinishedAt.UTC(), a.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(r rowScanner) (*model.Attempt, error) {
	a := &model.Attempt{}
	var className, action, nsPath sql.NullString
	err := r.Scan(
		&a.ID, &a.CorrelationID, &a.Type, &className, &action, &nsPath,
		&a.Slot, &a.Outcome, &a.QueueTimeS, &a.Error, &a.StartedAt, &a.FinishedAt, &a.DurationMS,
	)
	if err != nil {
		return nil, err
	}
	a.ClassName = className.String
	a.Action = action.String
	a.NsPath = nsPath.String
	return a, nil
}

// GetAttempt retrieves an attempt by ID.
func (s *SQLiteStore) GetAttempt(ctx context.Context, id string) (*model.Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

// ListAttempts returns a page of attempts, newest first, along with the total
// count of all attempts.
func (s *SQLiteStore) ListAttempts(ctx context.Context, limit, offset int) ([]*model.Attempt, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM attempts").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count attempts: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate attempts: %w", err)
	}

	return attempts, total, nil
}

// GetAttemptStats aggregates counts by outcome and type plus average
// processing duration and queue wait.
func (s *SQLiteStore) GetAttemptStats(ctx context.Context) (*AttemptStats, error) {
	stats := &AttemptStats{
		CountByOutcome: make(map[string]int),
		CountByType:    make(map[string]int),
	}

	var avgDuration, avgQueue sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(duration_ms), AVG(queue_time) FROM attempts`,
	).Scan(&stats.Total, &avgDuration, &avgQueue)
	if err != nil {
		return nil, fmt.Errorf("aggregate attempts: %w", err)
	}
	stats.AvgDurationMS = avgDuration.Float64
	stats.AvgQueueTimeS = avgQueue.Float64

	if err := s.countBy(ctx, "outcome", stats.CountByOutcome); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "type", stats.CountByType); err != nil {
		return nil, err
	}
	return stats, nil
}

// countBy fills into with row counts grouped by column. column is always a
// constant from this package.
func (s *SQLiteStore) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM attempts GROUP BY `+column,
	)
	if err != nil {
		return fmt.Errorf("count attempts by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		into[key] = n
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s counts: %w", column, err)
	}
	return nil
}
