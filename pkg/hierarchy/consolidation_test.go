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

type fakeRewriter struct {
	calls int
	reply string
}

func (f *fakeRewriter) Rewrite(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.reply, nil
}

func newTestStore(t *testing.T) *record.Store {
	t.Helper()
	backend := memkv.New()
	locks := concurrency.NewStripedLocks(16)
	return record.NewStore(backend, locks, nil)
}

func TestConsolidatorSummarizesDenseCluster(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	old := now.Add(-48 * time.Hour)

	// One tight cluster of three near-identical embeddings, one outlier.
	cluster := [][]float32{
		{1, 0, 0, 0},
		{0.99, 0.01, 0, 0},
		{0.98, 0.02, 0, 0},
	}
	outlier := []float32{0, 0, 0, 1}

	ctx := context.Background()
	for i, vec := range cluster {
		r := &record.Record{
			ID:        recID(i),
			AgentID:   "agent-1",
			Scope:     record.ScopeAgent,
			Kind:      record.KindEpisodic,
			Content:   "note",
			Embedding: vec,
			CreatedAt: old,
		}
		require.NoError(t, store.Put(ctx, r))
	}
	require.NoError(t, store.Put(ctx, &record.Record{
		ID:        "outlier",
		AgentID:   "agent-1",
		Scope:     record.ScopeAgent,
		Kind:      record.KindEpisodic,
		Content:   "unrelated",
		Embedding: outlier,
		CreatedAt: old,
	}))

	rw := &fakeRewriter{reply: "a paraphrase"}
	cfg := DefaultConsolidationConfig()
	cfg.MinAge = time.Hour
	cfg.MinClusterSize = 3
	cfg.MinPts = 2

	vector := vectorindex.NewFlat(vectorindex.MetricCosine)
	text := fulltext.NewIndex(fulltext.DefaultConfig())

	c := NewConsolidator(store, vector, text, rw, cfg, nil)
	res, err := c.Run(ctx, "agent-1", now)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Scanned)
	assert.Equal(t, 1, res.Summarized)
	assert.Equal(t, 1, rw.calls)

	semantics, err := store.Scan(ctx, func(r *record.Record) bool { return r.Kind == record.KindSemantic }, 0)
	require.NoError(t, err)
	require.Len(t, semantics, 1)
	assert.Equal(t, "a paraphrase", semantics[0].Content)

	// The summarized record must be queryable through both sub-indexes,
	// not just stored (spec's "no live-set skew" invariant).
	assert.Equal(t, 1, vector.Len())
	hits, err := text.Search("paraphrase", 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, semantics[0].ID, hits[0].ID)
}

func TestConsolidatorSkipsTooFewCandidates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Put(ctx, &record.Record{
		ID:        "only-one",
		AgentID:   "agent-1",
		Scope:     record.ScopeAgent,
		Kind:      record.KindEpisodic,
		Embedding: []float32{1, 0},
		CreatedAt: now.Add(-48 * time.Hour),
	}))

	rw := &fakeRewriter{reply: "x"}
	c := NewConsolidator(store, vectorindex.NewFlat(vectorindex.MetricCosine), fulltext.NewIndex(fulltext.DefaultConfig()), rw, DefaultConsolidationConfig(), nil)
	res, err := c.Run(ctx, "agent-1", now)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Clusters)
	assert.Equal(t, 0, rw.calls)
}

func recID(i int) string {
	return "ep-" + string(rune('a'+i))
}
