package events

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_events (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	severity TEXT NOT NULL,
	item_id INTEGER NOT NULL DEFAULT 0,
	message TEXT NOT NULL,
	data TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_item ON pipeline_events(item_id);
CREATE INDEX IF NOT EXISTS idx_events_created ON pipeline_events(created_at);
`

// Log is the sqlite-backed event store. Safe for concurrent use; the
// database handle serializes writers.
type Log struct {
	db *sql.DB
}

// Open creates or opens the event database at path. The special path
// ":memory:" creates an in-memory database (useful for tests).
func Open(path string) (*Log, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create event log directory: %w", err)
		}
		// WAL keeps readers (query API) from blocking pipeline writers
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open event database: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping event database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize event schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Store appends an event. ID and CreatedAt are filled in when zero.
func (l *Log) Store(ctx context.Context, ev *Event) error {
	if ev.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Severity == "" {
		ev.Severity = SeverityInfo
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO pipeline_events (id, type, severity, item_id, message, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), string(ev.Severity), ev.ItemID, ev.Message, ev.Data, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// Recent returns the newest events, newest first
func (l *Log) Recent(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, type, severity, item_id, message, data, created_at
		 FROM pipeline_events ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ByItem returns all events for one item, oldest first
func (l *Log) ByItem(ctx context.Context, itemID int64) ([]*Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, type, severity, item_id, message, data, created_at
		 FROM pipeline_events WHERE item_id = ? ORDER BY created_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for item %d: %w", itemID, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Counts returns the total row count and a per-type breakdown
func (l *Log) Counts(ctx context.Context) (int, map[Type]int, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM pipeline_events GROUP BY type`)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	total := 0
	byType := make(map[Type]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return 0, nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		byType[Type(t)] = n
		total += n
	}
	return total, byType, rows.Err()
}

// CleanupByAge deletes events older than the retention window, at most
// batchSize rows per call. Returns the number of rows deleted.
func (l *Log) CleanupByAge(ctx context.Context, retention time.Duration, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	cutoff := time.Now().UTC().Add(-retention)

	res, err := l.db.ExecContext(ctx,
		`DELETE FROM pipeline_events WHERE id IN (
			SELECT id FROM pipeline_events WHERE created_at < ? ORDER BY created_at ASC LIMIT ?
		)`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read cleanup row count: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying database
func (l *Log) Close() error {
	return l.db.Close()
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var out []*Event
	for rows.Next() {
		ev := &Event{}
		var typ, sev string
		if err := rows.Scan(&ev.ID, &typ, &sev, &ev.ItemID, &ev.Message, &ev.Data, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Type = Type(typ)
		ev.Severity = Severity(sev)
		out = append(out, ev)
	}
	return out, rows.Err()
}
