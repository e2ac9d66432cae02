// Package memkv implements an in-process KVBackend for tests and examples.
// It carries no third-party dependency because it is pure test scaffolding,
// not a deployable backend (see DESIGN.md).
package memkv

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/memenex/memengine/pkg/kvbackend"
)

// Client implements kvbackend.Backend over a guarded map. Safe for
// concurrent use.
type Client struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty in-memory backend.
func New() *Client {
	return &Client{data: make(map[string][]byte)}
}

func (c *Client) Put(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	c.data[key] = cp
	return nil
}

func (c *Client) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (c *Client) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *Client) Scan(_ context.Context, prefix string, limit int) ([]kvbackend.KV, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var keys []string
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]kvbackend.KV, 0, len(keys))
	for _, k := range keys {
		v := c.data[k]
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, kvbackend.KV{Key: k, Value: cp})
	}
	return out, nil
}

func (c *Client) Batch(_ context.Context, ops []kvbackend.Op) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, op := range ops {
		switch op.Kind {
		case kvbackend.OpPut:
			cp := make([]byte, len(op.Value))
			copy(cp, op.Value)
			c.data[op.Key] = cp
		case kvbackend.OpDelete:
			delete(c.data, op.Key)
		}
	}
	return nil
}

func (c *Client) Close() error { return nil }
