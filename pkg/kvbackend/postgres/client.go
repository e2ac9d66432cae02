// Package postgres implements the KVBackend capability over PostgreSQL, for
// operators who want a shared or remote backend instead of the default
// local SQLite file.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/memenex/memengine/internal/enginerr"
	"github.com/memenex/memengine/pkg/kvbackend"
)

// Client implements kvbackend.Backend over a PostgreSQL table.
type Client struct {
	db *sql.DB
}

// Config configures a PostgreSQL-backed Backend.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewClient opens a connection and ensures the kv table exists.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, enginerr.New("postgres.NewClient", enginerr.CodeStorage, err)
	}
	if err := db.Ping(); err != nil {
		return nil, enginerr.New("postgres.NewClient", enginerr.CodeStorage, err)
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
		value BYTEA NOT NULL
	);
	`
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return enginerr.New("postgres.initTable", enginerr.CodeStorage, err)
	}
	return nil
}

// Put upserts key/value.
func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return enginerr.New("postgres.Put", enginerr.CodeStorage, err)
	}
	return nil
}

// Get returns the value for key, or found=false if absent.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, enginerr.New("postgres.Get", enginerr.CodeStorage, err)
	}
	return value, true, nil
}

// Delete removes key if present.
func (c *Client) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM kv WHERE key = $1`, key); err != nil {
		return enginerr.New("postgres.Delete", enginerr.CodeStorage, err)
	}
	return nil
}

// Scan returns every key with the given prefix in lexicographic order.
func (c *Client) Scan(ctx context.Context, prefix string, limit int) ([]kvbackend.KV, error) {
	query := `SELECT key, value FROM kv WHERE key LIKE $1 ORDER BY key ASC`
	args := []any{prefix + "%"}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, enginerr.New("postgres.Scan", enginerr.CodeStorage, err)
	}
	defer rows.Close()

	var out []kvbackend.KV
	for rows.Next() {
		var kv kvbackend.KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, enginerr.New("postgres.Scan", enginerr.CodeStorage, err)
		}
		out = append(out, kv)
	}
	return out, rows.Err()
}

// Batch applies ops atomically within a single transaction.
func (c *Client) Batch(ctx context.Context, ops []kvbackend.Op) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return enginerr.New("postgres.Batch", enginerr.CodeStorage, err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		switch op.Kind {
		case kvbackend.OpPut:
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO kv (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
				op.Key, op.Value); err != nil {
				return enginerr.New("postgres.Batch", enginerr.CodeStorage, err)
			}
		case kvbackend.OpDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = $1`, op.Key); err != nil {
				return enginerr.New("postgres.Batch", enginerr.CodeStorage, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return enginerr.New("postgres.Batch", enginerr.CodeStorage, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (c *Client) Close() error {
	return c.db.Close()
}
