package hierarchy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memenex/memengine/internal/concurrency"
	"github.com/memenex/memengine/pkg/fulltext"
	"github.com/memenex/memengine/pkg/kvbackend/memkv"
	"github.com/memenex/memengine/pkg/record"
	"github.com/memenex/memengine/pkg/vectorindex"
)

func TestDeduperFindAndMerge(t *testing.T) {
	ctx := context.Background()
	store := record.NewStore(memkv.New(), concurrency.NewStripedLocks(16), nil)
	vector := vectorindex.NewFlat(vectorindex.MetricCosine)
	text := fulltext.NewIndex(fulltext.DefaultConfig())

	r := &record.Record{
		ID:             "r1",
		AgentID:        "agent-1",
		Scope:          record.ScopeAgent,
		Kind:           record.KindEpisodic,
		Content:        "likes coffee",
		Embedding:      []float32{1, 0, 0},
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
	}
	require.NoError(t, store.Put(ctx, r))
	require.NoError(t, vector.Add(r.ID, r.Embedding, r))
	require.NoError(t, text.Add(r.ID, r.Content, r))

	d := NewDeduper(vector, text, store, 0.9)

	found := d.Find([]float32{1, 0, 0}, "agent-1")
	assert.Equal(t, "r1", found)

	merged, err := d.Merge(ctx, found, "likes espresso too", []float32{1, 0, 0})
	require.NoError(t, err)
	assert.Contains(t, merged.Content, "likes coffee")
	assert.Contains(t, merged.Content, "likes espresso too")
	assert.Equal(t, int64(1), merged.AccessCount)

	notFound := d.Find([]float32{0, 1, 0}, "agent-1")
	assert.Empty(t, notFound)

	// The full-text index must reflect the merged content, not the
	// pre-merge text, so the merged record stays reachable by keyword
	// search on words only the new content introduced.
	hits, err := text.Search("espresso", 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "r1", hits[0].ID)
}
