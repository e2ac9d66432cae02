package postgres

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memenex/memengine/pkg/kvbackend"
)

// setupPostgresTest builds a Client from environment variables, the same
// connection convention the teacher's postgres storage test used. The
// test is skipped, not failed, when no live PostgreSQL is reachable.
func setupPostgresTest(t *testing.T) *Client {
	t.Helper()

	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	portStr := os.Getenv("POSTGRES_PORT")
	if portStr == "" {
		portStr = "5432"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Skipf("skipping postgres test: invalid POSTGRES_PORT: %s", portStr)
	}
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}
	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		t.Skip("skipping postgres test: POSTGRES_PASSWORD not set")
	}
	dbName := os.Getenv("POSTGRES_DATABASE")
	if dbName == "" {
		dbName = "memengine_test"
	}

	c, err := NewClient(&Config{Host: host, Port: port, User: user, Password: password, DBName: dbName})
	if err != nil {
		t.Skipf("skipping postgres test: cannot connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPostgresClientPutGetDelete(t *testing.T) {
	c := setupPostgresTest(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "memengine-test/k1", []byte("v1")))
	t.Cleanup(func() { _ = c.Delete(ctx, "memengine-test/k1") })

	v, found, err := c.Get(ctx, "memengine-test/k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v1"), v)

	require.NoError(t, c.Delete(ctx, "memengine-test/k1"))
	_, found, err = c.Get(ctx, "memengine-test/k1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPostgresClientBatchAndScan(t *testing.T) {
	c := setupPostgresTest(t)
	ctx := context.Background()
	prefix := "memengine-test/batch/"
	t.Cleanup(func() {
		_ = c.Delete(ctx, prefix+"1")
		_ = c.Delete(ctx, prefix+"2")
	})

	err := c.Batch(ctx, []kvbackend.Op{
		{Kind: kvbackend.OpPut, Key: prefix + "1", Value: []byte("a")},
		{Kind: kvbackend.OpPut, Key: prefix + "2", Value: []byte("b")},
	})
	require.NoError(t, err)

	kvs, err := c.Scan(ctx, prefix, 0)
	require.NoError(t, err)
	assert.Len(t, kvs, 2)
}
