package vectorindex

import (
	"sort"
	"sync"

	"github.com/memenex/memengine/internal/enginerr"
	"github.com/memenex/memengine/pkg/record"
)

// Flat is a brute-force Index: every Search scores every live entry.
// O(n) per query, but exact and simple to reason about; useful for small
// scopes (a single session's working memory) and as a correctness oracle
// against HNSW in tests.
type Flat struct {
	mu      sync.RWMutex
	metric  Metric
	entries map[string]*flatEntry
}

type flatEntry struct {
	vec     []float32
	rec     *record.Record
	deleted bool
}

// NewFlat builds an empty Flat index using metric for scoring.
func NewFlat(metric Metric) *Flat {
	return &Flat{metric: metric, entries: make(map[string]*flatEntry)}
}

func (f *Flat) Add(id string, vec []float32, rec *record.Record) error {
	if id == "" {
		return enginerr.New("Flat.Add", enginerr.CodeInvalidArgument, nil)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[id] = &flatEntry{vec: vec, rec: rec}
	return nil
}

func (f *Flat) Delete(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || e.deleted {
		return false
	}
	e.deleted = true
	return true
}

func (f *Flat) Search(query []float32, k int, filter record.Predicate) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	hits := make([]Hit, 0, len(f.entries))
	for id, e := range f.entries {
		if e.deleted {
			continue
		}
		if filter != nil && !filter(e.rec) {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: similarity(f.metric, query, e.vec)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, e := range f.entries {
		if !e.deleted {
			n++
		}
	}
	return n
}
