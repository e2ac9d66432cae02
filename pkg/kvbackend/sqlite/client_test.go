package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memenex/memengine/pkg/kvbackend"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	c, err := NewClient(&Config{DBPath: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSQLiteClientPutGetDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, found, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Put(ctx, "k1", []byte("v1")))
	v, found, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v1"), v)

	// Upsert on conflict.
	require.NoError(t, c.Put(ctx, "k1", []byte("v2")))
	v, _, err = c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)

	require.NoError(t, c.Delete(ctx, "k1"))
	_, found, err = c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSQLiteClientScanPrefixRange(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	require.NoError(t, c.Put(ctx, "a/1", []byte("1")))
	require.NoError(t, c.Put(ctx, "a/2", []byte("2")))
	require.NoError(t, c.Put(ctx, "b/1", []byte("b")))

	kvs, err := c.Scan(ctx, "a/", 0)
	require.NoError(t, err)
	require.Len(t, kvs, 2)
	assert.Equal(t, "a/1", kvs[0].Key)
	assert.Equal(t, "a/2", kvs[1].Key)

	limited, err := c.Scan(ctx, "a/", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteClientBatch(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	require.NoError(t, c.Put(ctx, "k1", []byte("old")))

	err := c.Batch(ctx, []kvbackend.Op{
		{Kind: kvbackend.OpPut, Key: "k1", Value: []byte("new")},
		{Kind: kvbackend.OpPut, Key: "k2", Value: []byte("v2")},
		{Kind: kvbackend.OpDelete, Key: "k3"},
	})
	require.NoError(t, err)

	v, _, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)

	v2, found, err := c.Get(ctx, "k2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v2"), v2)
}

func TestPrefixUpperBound(t *testing.T) {
	assert.Equal(t, "a0", prefixUpperBound("a/"))
	assert.Greater(t, prefixUpperBound("a/"), "a/")
}
