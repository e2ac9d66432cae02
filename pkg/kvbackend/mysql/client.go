// Package mysql implements the KVBackend capability over the MySQL wire
// protocol, adapted from the teacher's OceanBase client (OceanBase speaks
// the MySQL wire protocol, so one driver serves both).
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/memenex/memengine/internal/enginerr"
	"github.com/memenex/memengine/pkg/kvbackend"
)

// Client implements kvbackend.Backend over a MySQL-wire-protocol table.
type Client struct {
	db *sql.DB
}

// Config configures a MySQL-backed Backend.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// NewClient opens a connection and ensures the kv table exists.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, enginerr.New("mysql.NewClient", enginerr.CodeStorage, err)
	}
	if err := db.Ping(); err != nil {
		return nil, enginerr.New("mysql.NewClient", enginerr.CodeStorage, err)
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
		kv_key VARCHAR(512) PRIMARY KEY,
		kv_value LONGBLOB NOT NULL
	);
	`
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return enginerr.New("mysql.initTable", enginerr.CodeStorage, err)
	}
	return nil
}

// Put upserts key/value.
func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO kv (kv_key, kv_value) VALUES (?, ?) ON DUPLICATE KEY UPDATE kv_value = VALUES(kv_value)`,
		key, value)
	if err != nil {
		return enginerr.New("mysql.Put", enginerr.CodeStorage, err)
	}
	return nil
}

// Get returns the value for key, or found=false if absent.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.db.QueryRowContext(ctx, `SELECT kv_value FROM kv WHERE kv_key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, enginerr.New("mysql.Get", enginerr.CodeStorage, err)
	}
	return value, true, nil
}

// Delete removes key if present.
func (c *Client) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM kv WHERE kv_key = ?`, key); err != nil {
		return enginerr.New("mysql.Delete", enginerr.CodeStorage, err)
	}
	return nil
}

// Scan returns every key with the given prefix in lexicographic order.
func (c *Client) Scan(ctx context.Context, prefix string, limit int) ([]kvbackend.KV, error) {
	query := `SELECT kv_key, kv_value FROM kv WHERE kv_key LIKE ? ORDER BY kv_key ASC`
	args := []any{prefix + "%"}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, enginerr.New("mysql.Scan", enginerr.CodeStorage, err)
	}
	defer rows.Close()

	var out []kvbackend.KV
	for rows.Next() {
		var kv kvbackend.KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, enginerr.New("mysql.Scan", enginerr.CodeStorage, err)
		}
		out = append(out, kv)
	}
	return out, rows.Err()
}

// Batch applies ops atomically within a single transaction.
func (c *Client) Batch(ctx context.Context, ops []kvbackend.Op) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return enginerr.New("mysql.Batch", enginerr.CodeStorage, err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		switch op.Kind {
		case kvbackend.OpPut:
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO kv (kv_key, kv_value) VALUES (?, ?) ON DUPLICATE KEY UPDATE kv_value = VALUES(kv_value)`,
				op.Key, op.Value); err != nil {
				return enginerr.New("mysql.Batch", enginerr.CodeStorage, err)
			}
		case kvbackend.OpDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE kv_key = ?`, op.Key); err != nil {
				return enginerr.New("mysql.Batch", enginerr.CodeStorage, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return enginerr.New("mysql.Batch", enginerr.CodeStorage, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (c *Client) Close() error {
	return c.db.Close()
}
