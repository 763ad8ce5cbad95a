// Package usage keeps a SQLite ledger of completion API calls and their cost.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS api_calls (
	id            TEXT PRIMARY KEY,
	created_at    TEXT NOT NULL,
	model         TEXT NOT NULL,
	command       TEXT NOT NULL DEFAULT '',
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost          REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_api_calls_created ON api_calls(created_at);
`

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Call is one recorded completion.
type Call struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	Model        string    `json:"model"`
	Command      string    `json:"command"`
	InputTokens  int       `json:"inputTokens"`
	OutputTokens int       `json:"outputTokens"`
	Cost         float64   `json:"cost"`
}

// Totals aggregates a set of calls.
type Totals struct {
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	Cost         float64 `json:"cost"`
}

// Day is the aggregate of one UTC calendar day.
type Day struct {
	Date string `json:"date"`
	Totals
}

// Ledger records and summarises API calls.
type Ledger interface {
	Record(ctx context.Context, c Call) (Call, error)
	Totals(ctx context.Context) (Totals, error)
	Daily(ctx context.Context, from time.Time) ([]Day, error)
	Recent(ctx context.Context, limit int) ([]Call, error)
	Close() error
}

// Verify *DB satisfies Ledger at compile time.
var _ Ledger = (*DB)(nil)

// DB is the SQLite-backed Ledger.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the ledger database and applies the schema.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("usage: create db dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("usage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("usage: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("usage: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Record stores c, assigning an id and timestamp when unset.
func (db *DB) Record(ctx context.Context, c Call) (Call, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.CreatedAt = c.CreatedAt.UTC()
	if c.ID == "" {
		c.ID = ulid.MustNew(ulid.Timestamp(c.CreatedAt), ulid.DefaultEntropy()).String()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO api_calls (id, created_at, model, command, input_tokens, output_tokens, cost)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.CreatedAt.Format(timeLayout), c.Model, c.Command, c.InputTokens, c.OutputTokens, c.Cost)
	if err != nil {
		return Call{}, fmt.Errorf("usage: record: %w", err)
	}
	return c, nil
}

// Totals returns the aggregate of every recorded call.
func (db *DB) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := db.conn.QueryRowContext(ctx, `
		SELECT count(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost), 0)
		FROM api_calls
	`).Scan(&t.Calls, &t.InputTokens, &t.OutputTokens, &t.Cost)
	if err != nil {
		return Totals{}, fmt.Errorf("usage: totals: %w", err)
	}
	return t, nil
}

// Daily returns per-day aggregates from the given instant onward, oldest first.
func (db *DB) Daily(ctx context.Context, from time.Time) ([]Day, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT substr(created_at, 1, 10) AS day, count(*), SUM(input_tokens), SUM(output_tokens), SUM(cost)
		FROM api_calls
		WHERE created_at >= ?
		GROUP BY day
		ORDER BY day
	`, from.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("usage: daily: %w", err)
	}
	defer rows.Close()

	var out []Day
	for rows.Next() {
		var d Day
		if err := rows.Scan(&d.Date, &d.Calls, &d.InputTokens, &d.OutputTokens, &d.Cost); err != nil {
			return nil, fmt.Errorf("usage: scan day: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Recent returns the newest calls first.
func (db *DB) Recent(ctx context.Context, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, created_at, model, command, input_tokens, output_tokens, cost
		FROM api_calls
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("usage: recent: %w", err)
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		var c Call
		var created string
		if err := rows.Scan(&c.ID, &created, &c.Model, &c.Command, &c.InputTokens, &c.OutputTokens, &c.Cost); err != nil {
			return nil, fmt.Errorf("usage: scan call: %w", err)
		}
		c.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, c)
	}
	return out, rows.Err()
}
