package concurrency

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripedLocksRoundsUpToPowerOfTwo(t *testing.T) {
	locks := NewStripedLocks(10)
	assert.Equal(t, uint64(15), locks.mask)
}

func TestStripedLocksDefaultWhenNonPositive(t *testing.T) {
	locks := NewStripedLocks(0)
	assert.Equal(t, uint64(1023), locks.mask)
}

func TestStripedLocksWithLockSerializesWrites(t *testing.T) {
	locks := NewStripedLocks(16)
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.WithLock("shared-key", func() { counter++ })
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}

func TestStripedLocksWithRLockAllowsConcurrentReaders(t *testing.T) {
	locks := NewStripedLocks(16)
	entered := false
	locks.WithRLock("k", func() {
		// A second reader of the same key gets in while the first still
		// holds its read lock.
		locks.WithRLock("k", func() { entered = true })
	})
	assert.True(t, entered)
}

func TestScopeCountersIncDecCount(t *testing.T) {
	c := NewScopeCounters()
	assert.Equal(t, int64(0), c.Count("agent"))
	assert.Equal(t, int64(1), c.Inc("agent"))
	assert.Equal(t, int64(2), c.Inc("agent"))
	assert.Equal(t, int64(1), c.Dec("agent"))
	assert.Equal(t, int64(1), c.Count("agent"))
}

func TestScopeCountersAreIndependentPerScope(t *testing.T) {
	c := NewScopeCounters()
	c.Inc("a")
	c.Inc("a")
	c.Inc("b")
	assert.Equal(t, int64(2), c.Count("a"))
	assert.Equal(t, int64(1), c.Count("b"))
}

func TestScopeCountersEvictLockIsStablePerScope(t *testing.T) {
	c := NewScopeCounters()
	mu1 := c.EvictLock("agent")
	mu2 := c.EvictLock("agent")
	assert.Same(t, mu1, mu2)
}

func TestKeyedMutexWithLockSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.WithLock("agent-1/persona", func() { counter++ })
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
