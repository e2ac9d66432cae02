// Package sqlite implements the KVBackend capability over SQLite.
//
// SQLite is a lightweight, file-based database suitable for local
// development and single-node deployments. Keys and values are stored in a
// single table; prefix scans use a `key >= prefix AND key < upper` range
// that SQLite can satisfy with the primary-key index.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/memenex/memengine/internal/enginerr"
	"github.com/memenex/memengine/pkg/kvbackend"
)

// Client implements kvbackend.Backend over a SQLite database file.
type Client struct {
	db *sql.DB
}

// Config configures a SQLite-backed Backend.
type Config struct {
	// DBPath is the path to the SQLite database file. Parent directories
	// are created if missing.
	DBPath string
}

// NewClient opens (creating if needed) a SQLite database and ensures the
// kv table exists.
func NewClient(cfg *Config) (*Client, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, enginerr.New("sqlite.NewClient", enginerr.CodeStorage, fmt.Errorf("create directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, enginerr.New("sqlite.NewClient", enginerr.CodeStorage, err)
	}
	if err := db.Ping(); err != nil {
		return nil, enginerr.New("sqlite.NewClient", enginerr.CodeStorage, err)
	}

	c := &Client{db: db}
	if err := c.initTable(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) initTable(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	);
	`
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return enginerr.New("sqlite.initTable", enginerr.CodeStorage, err)
	}
	return nil
}

// Put upserts key/value.
func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return enginerr.New("sqlite.Put", enginerr.CodeStorage, err)
	}
	return nil
}

// Get returns the value for key, or found=false if absent.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, enginerr.New("sqlite.Get", enginerr.CodeStorage, err)
	}
	return value, true, nil
}

// Delete removes key if present; deleting an absent key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return enginerr.New("sqlite.Delete", enginerr.CodeStorage, err)
	}
	return nil
}

// Scan returns every key with the given prefix in lexicographic order.
// The prefix range [prefix, prefixUpperBound(prefix)) is expressed as a half-open
// string range so the primary-key index can be used directly.
func (c *Client) Scan(ctx context.Context, prefix string, limit int) ([]kvbackend.KV, error) {
	upper := prefixUpperBound(prefix)
	query := `SELECT key, value FROM kv WHERE key >= ? AND key < ? ORDER BY key ASC`
	args := []any{prefix, upper}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, enginerr.New("sqlite.Scan", enginerr.CodeStorage, err)
	}
	defer rows.Close()

	var out []kvbackend.KV
	for rows.Next() {
		var kv kvbackend.KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, enginerr.New("sqlite.Scan", enginerr.CodeStorage, err)
		}
		out = append(out, kv)
	}
	if err := rows.Err(); err != nil {
		return nil, enginerr.New("sqlite.Scan", enginerr.CodeStorage, err)
	}
	return out, nil
}

// Batch applies ops atomically within a single transaction.
func (c *Client) Batch(ctx context.Context, ops []kvbackend.Op) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return enginerr.New("sqlite.Batch", enginerr.CodeStorage, err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		switch op.Kind {
		case kvbackend.OpPut:
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
				op.Key, op.Value); err != nil {
				return enginerr.New("sqlite.Batch", enginerr.CodeStorage, err)
			}
		case kvbackend.OpDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, op.Key); err != nil {
				return enginerr.New("sqlite.Batch", enginerr.CodeStorage, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return enginerr.New("sqlite.Batch", enginerr.CodeStorage, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (c *Client) Close() error {
	return c.db.Close()
}

// prefixUpperBound returns the smallest string greater than every string
// starting with prefix, so `key >= prefix AND key < upper` is a prefix scan.
func prefixUpperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	// prefix is all 0xff bytes (or empty); no finite upper bound exists,
	// so fall back to a value guaranteed greater than any realistic key.
	return prefix + "\xff\xff\xff\xff"
}
