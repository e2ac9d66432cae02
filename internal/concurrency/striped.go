// Package concurrency implements the striped and keyed lock tables shared
// by the record store, the hierarchy manager's scope counters, and the
// core-memory block subsystem.
package concurrency

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// StripedLocks serializes access to a large, open-ended key space (record
// ids) over a fixed number of RWMutex stripes hashed by FNV-1a. This bounds
// memory to the stripe count instead of growing with the key space, at the
// cost of unrelated keys occasionally sharing a stripe.
type StripedLocks struct {
	stripes []sync.RWMutex
	mask    uint64
}

// NewStripedLocks creates a table with n stripes. n is rounded up to the
// next power of two so the modulo reduces to a mask.
func NewStripedLocks(n int) *StripedLocks {
	if n <= 0 {
		n = 1024
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return &StripedLocks{
		stripes: make([]sync.RWMutex, p),
		mask:    uint64(p - 1),
	}
}

func (s *StripedLocks) stripeFor(key string) *sync.RWMutex {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	idx := h.Sum64() & s.mask
	return &s.stripes[idx]
}

// Lock acquires the exclusive (writer) stripe for key.
func (s *StripedLocks) Lock(key string) { s.stripeFor(key).Lock() }

// Unlock releases the exclusive stripe for key.
func (s *StripedLocks) Unlock(key string) { s.stripeFor(key).Unlock() }

// RLock acquires the shared (reader) stripe for key.
func (s *StripedLocks) RLock(key string) { s.stripeFor(key).RLock() }

// RUnlock releases the shared stripe for key.
func (s *StripedLocks) RUnlock(key string) { s.stripeFor(key).RUnlock() }

// WithLock runs fn while holding the exclusive stripe for key.
func (s *StripedLocks) WithLock(key string, fn func()) {
	s.Lock(key)
	defer s.Unlock(key)
	fn()
}

// WithRLock runs fn while holding the shared stripe for key.
func (s *StripedLocks) WithRLock(key string, fn func()) {
	s.RLock(key)
	defer s.RUnlock(key)
	fn()
}

// ScopeCounters tracks a live-record count per scope name with atomic
// increments, plus a per-scope exclusive lock used by eviction so that
// eviction of one scope never blocks inserts or reads on another.
type ScopeCounters struct {
	mu       sync.Mutex
	counts   map[string]*atomic.Int64
	evictMus map[string]*sync.RWMutex
}

// NewScopeCounters creates an empty counter/lock table.
func NewScopeCounters() *ScopeCounters {
	return &ScopeCounters{
		counts:   make(map[string]*atomic.Int64),
		evictMus: make(map[string]*sync.RWMutex),
	}
}

func (c *ScopeCounters) counter(scope string) *atomic.Int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctr, ok := c.counts[scope]
	if !ok {
		ctr = &atomic.Int64{}
		c.counts[scope] = ctr
	}
	return ctr
}

// EvictLock returns the scope-wide RWMutex guarding eviction for scope.
// Eviction takes it exclusively, so eviction passes on one scope run one at
// a time; inserts do not take it.
func (c *ScopeCounters) EvictLock(scope string) *sync.RWMutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	mu, ok := c.evictMus[scope]
	if !ok {
		mu = &sync.RWMutex{}
		c.evictMus[scope] = mu
	}
	return mu
}

// Inc increments the live count for scope and returns the new value.
func (c *ScopeCounters) Inc(scope string) int64 { return c.counter(scope).Add(1) }

// Dec decrements the live count for scope and returns the new value.
func (c *ScopeCounters) Dec(scope string) int64 { return c.counter(scope).Add(-1) }

// Count returns the current live count for scope.
func (c *ScopeCounters) Count(scope string) int64 { return c.counter(scope).Load() }

// KeyedMutex hands out a *sync.Mutex per composite key (e.g. "agentID/blockName")
// for the core-memory block locking scheme in spec section 5.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedMutex creates an empty keyed-mutex table.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *KeyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// WithLock runs fn while holding the mutex for key.
func (k *KeyedMutex) WithLock(key string, fn func()) {
	m := k.get(key)
	m.Lock()
	defer m.Unlock()
	fn()
}
