package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Store persists audit entries in SQLite, capped ring-style: inserting
// beyond maxEntries evicts the oldest rows. The default ":memory:" DSN
// keeps the trail process-local, matching the no-persistence contract of
// the emulator.
type Store struct {
	db  *sql.DB
	max int
}

// OpenStore opens (or creates) the audit database. maxEntries bounds the
// retained trail.
func OpenStore(path string, maxEntries int) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// SQLite performs best with a single write connection; it also keeps
	// an in-memory database from fragmenting across pool connections.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_requests (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			ts           DATETIME NOT NULL,
			method       TEXT NOT NULL,
			path         TEXT NOT NULL,
			query        TEXT NOT NULL DEFAULT '',
			status       INTEGER NOT NULL,
			duration_ms  REAL NOT NULL,
			client_ip    TEXT NOT NULL DEFAULT '',
			body_preview TEXT NOT NULL DEFAULT '',
			error        TEXT NOT NULL DEFAULT ''
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit_requests: %w", err)
	}

	return &Store{db: db, max: maxEntries}, nil
}

// Insert appends an entry and trims the trail to the configured cap.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_requests
			(ts, method, path, query, status, duration_ms, client_ip, body_preview, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TS.UTC(), e.Method, e.Path, e.Query, e.Status, e.DurationMs,
		e.ClientIP, e.BodyPreview, e.Error,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM audit_requests
		WHERE id <= (SELECT MAX(id) FROM audit_requests) - ?`, s.max)
	if err != nil {
		return fmt.Errorf("trim audit trail: %w", err)
	}
	return nil
}

// List returns the newest entries up to limit, oldest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, method, path, query, status, duration_ms, client_ip, body_preview, error
		FROM (
			SELECT * FROM audit_requests ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts time.Time
		if err := rows.Scan(&ts, &e.Method, &e.Path, &e.Query, &e.Status,
			&e.DurationMs, &e.ClientIP, &e.BodyPreview, &e.Error); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.TS = ts
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear deletes every entry, returning the number removed.
func (s *Store) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_requests`)
	if err != nil {
		return 0, fmt.Errorf("clear audit trail: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Size returns the current entry count.
func (s *Store) Size(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_requests`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
