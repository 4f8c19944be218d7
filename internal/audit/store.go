// Package audit keeps a SQLite history of the operations filestage served.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Operation is one recorded request.
type Operation struct {
	ID         int64
	RequestID  string
	Op         string // upload, list, max-size, min-size, list-users, list-users-range
	FileName   string
	Status     int
	Outcome    string // created/replaced for uploads, empty otherwise
	DurationMs int64
	Error      string
	RemoteAddr string
	Timestamp  time.Time
}

// Failed reports whether the operation ended with a 4xx or 5xx status.
func (o *Operation) Failed() bool {
	return o.Status >= 400
}

// Recorder is the write side of the store, used by the HTTP layer.
type Recorder interface {
	Record(ctx context.Context, op *Operation) error
}

// Store manages the SQLite audit database
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the audit database at dbPath.
// ":memory:" opens a private in-memory database.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return store, nil
}

// execWithRetry executes a statement with exponential backoff on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record inserts op and fills in its ID. A zero Timestamp is set to now.
func (s *Store) Record(ctx context.Context, op *Operation) error {
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now()
	}

	query := `INSERT INTO operations
		(request_id, op, file_name, status, outcome, duration_ms, error, remote_addr, timestamp_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		op.RequestID,
		op.Op,
		op.FileName,
		op.Status,
		op.Outcome,
		op.DurationMs,
		op.Error,
		op.RemoteAddr,
		op.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert operation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	op.ID = id
	return nil
}

// Filter narrows Recent.
type Filter struct {
	Op         string // exact op name, empty for all
	FailedOnly bool
}

// Recent returns up to limit operations, newest first.
func (s *Store) Recent(ctx context.Context, limit int, filter Filter) ([]*Operation, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0, got %d", limit)
	}

	var (
		where []string
		args  []any
	)
	if filter.Op != "" {
		where = append(where, "op = ?")
		args = append(args, filter.Op)
	}
	if filter.FailedOnly {
		where = append(where, "status >= 400")
	}

	query := `SELECT id, request_id, op, file_name, status, outcome, duration_ms, error, remote_addr, timestamp_ms
		FROM operations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp_ms DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		op := &Operation{}
		var tsMillis int64
		if err := rows.Scan(
			&op.ID,
			&op.RequestID,
			&op.Op,
			&op.FileName,
			&op.Status,
			&op.Outcome,
			&op.DurationMs,
			&op.Error,
			&op.RemoteAddr,
			&tsMillis,
		); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		op.Timestamp = time.UnixMilli(tsMillis)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return ops, nil
}

// Prune deletes operations recorded before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM operations WHERE timestamp_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune operations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Count returns the number of stored operations.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count operations: %w", err)
	}
	return n, nil
}
