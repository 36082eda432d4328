package accessaudit

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGo
)

// SQLiteLogger persists audit entries durably, for deployments that want a
// trail surviving a relay or agent restart. This is audit-trail
// persistence only: it never caches session state or file content, so it
// sits outside this project's no-persistent-session/no-content-cache
// scope.
type SQLiteLogger struct {
	db *sql.DB
}

// NewSQLiteLogger opens (creating if absent) a SQLite database at dbPath
// and ensures its schema exists. Use ":memory:" in tests.
func NewSQLiteLogger(dbPath string) (*SQLiteLogger, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("accessaudit: open sqlite %s: %w", dbPath, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		node_id TEXT NOT NULL,
		operation TEXT NOT NULL,
		path TEXT NOT NULL,
		decision TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("accessaudit: migrate: %w", err)
	}
	return &SQLiteLogger{db: db}, nil
}

// LogDecision persists entry and discards any write error — callers treat
// audit logging as best-effort so a storage hiccup never blocks a
// filesystem operation; use LogDecisionErr to observe failures directly.
func (l *SQLiteLogger) LogDecision(entry Entry) {
	_ = l.LogDecisionErr(entry)
}

// LogDecisionErr is LogDecision with the write error surfaced, for callers
// that want to know (e.g. a background audit-health check).
func (l *SQLiteLogger) LogDecisionErr(entry Entry) error {
	_, err := l.db.Exec(
		`INSERT INTO audit_entries (timestamp, node_id, operation, path, decision, reason)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Timestamp, entry.NodeID, entry.Operation, entry.Path, entry.Decision, entry.Reason,
	)
	return err
}

// Query returns entries matching opts, oldest first.
func (l *SQLiteLogger) Query(opts QueryOptions) ([]Entry, error) {
	query := `SELECT timestamp, node_id, operation, path, decision, reason FROM audit_entries WHERE 1=1`
	var args []any
	if opts.NodeID != "" {
		query += ` AND node_id = ?`
		args = append(args, opts.NodeID)
	}
	if opts.Decision != "" {
		query += ` AND decision = ?`
		args = append(args, string(opts.Decision))
	}
	if !opts.Since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, opts.Since)
	}
	query += ` ORDER BY id ASC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("accessaudit: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var decision, reason string
		var ts time.Time
		if err := rows.Scan(&ts, &e.NodeID, &e.Operation, &e.Path, &decision, &reason); err != nil {
			return nil, fmt.Errorf("accessaudit: scan: %w", err)
		}
		e.Timestamp = ts
		e.Decision = Decision(decision)
		e.Reason = reason
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (l *SQLiteLogger) Close() error { return l.db.Close() }
