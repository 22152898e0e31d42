package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jingkaihe/gameward/internal/errx"
)

// tsLayout is fixed width so ts sorts lexically in time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

type migration struct {
	Version int
	Name    string
	SQL     string
}

var eventMigrations = []migration{
	{
		Version: 1,
		Name:    "create_events",
		SQL: `
CREATE TABLE IF NOT EXISTS events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts TEXT NOT NULL,
  run_id TEXT NOT NULL,
  host TEXT NOT NULL,
  event_type TEXT NOT NULL,
  summary TEXT NOT NULL,
  tags TEXT,
  data TEXT
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
CREATE INDEX IF NOT EXISTS idx_events_type_ts ON events(event_type, ts DESC);
`,
	},
	{
		Version: 2,
		Name:    "index_events_run",
		SQL:     `CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id);`,
	},
}

// SQLiteSink stores events in a SQLite database so they can be queried
// after the fact. It implements Sink and is safe for concurrent use.
type SQLiteSink struct {
	mu sync.Mutex
	db *sql.DB
}

// QueryOptions filters the events returned by Query.
type QueryOptions struct {
	EventType string
	RunID     string
	// Limit caps the number of rows; zero means no cap.
	Limit int
}

// OpenSQLiteSink opens (creating if needed) the event database at path and
// applies pending migrations.
func OpenSQLiteSink(ctx context.Context, path string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errx.Wrap(ErrOpenDatabase, err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errx.Wrap(ErrOpenDatabase, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errx.Wrap(ErrOpenDatabase, err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteSink{db: db}, nil
}

func applyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, name TEXT NOT NULL, applied_at TEXT NOT NULL)`); err != nil {
		return errx.Wrap(ErrMigrate, err)
	}
	for _, m := range eventMigrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return errx.With(ErrMigrate, " check %d: %w", m.Version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return errx.With(ErrMigrate, " begin %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return errx.With(ErrMigrate, " apply %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name, applied_at) VALUES (?, ?, datetime('now'))`, m.Version, m.Name); err != nil {
			tx.Rollback() //nolint:errcheck
			return errx.With(ErrMigrate, " record %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return errx.With(ErrMigrate, " commit %d: %w", m.Version, err)
		}
	}
	return nil
}

// Write inserts the event as one row.
func (s *SQLiteSink) Write(event *Event) error {
	var tags, data any
	if len(event.Tags) > 0 {
		b, err := json.Marshal(event.Tags)
		if err != nil {
			return errx.Wrap(ErrWriteEvent, err)
		}
		tags = string(b)
	}
	if len(event.Data) > 0 {
		data = string(event.Data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
INSERT INTO events(ts, run_id, host, event_type, summary, tags, data)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, event.Timestamp.UTC().Format(tsLayout), event.RunID, event.Host, event.EventType, event.Summary, tags, data)
	if err != nil {
		return errx.Wrap(ErrWriteEvent, err)
	}
	return nil
}

// Query returns matching events, newest first.
func (s *SQLiteSink) Query(ctx context.Context, opts QueryOptions) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if opts.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, opts.EventType)
	}
	if opts.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, opts.RunID)
	}
	query := `SELECT ts, run_id, host, event_type, summary, tags, data FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errx.Wrap(ErrQueryEvents, err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev         Event
			ts         string
			tags, data sql.NullString
		)
		if err := rows.Scan(&ts, &ev.RunID, &ev.Host, &ev.EventType, &ev.Summary, &tags, &data); err != nil {
			return nil, errx.Wrap(ErrQueryEvents, err)
		}
		if ev.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, errx.Wrap(ErrQueryEvents, err)
		}
		if tags.Valid {
			if err := json.Unmarshal([]byte(tags.String), &ev.Tags); err != nil {
				return nil, errx.Wrap(ErrQueryEvents, err)
			}
		}
		if data.Valid {
			ev.Data = json.RawMessage(data.String)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.Wrap(ErrQueryEvents, err)
	}
	return events, nil
}

// Close closes the underlying database.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		return errx.Wrap(ErrCloseWriter, err)
	}
	return nil
}
