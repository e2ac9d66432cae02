package engine

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memenex/memengine/internal/config"
	"github.com/memenex/memengine/internal/enginerr"
	"github.com/memenex/memengine/pkg/kvbackend"
	"github.com/memenex/memengine/pkg/kvbackend/memkv"
	"github.com/memenex/memengine/pkg/record"
	"github.com/memenex/memengine/pkg/vectorindex"
)

type fakeEmbedder struct {
	dim int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return hashEmbed(text, f.dim), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbed(t, f.dim)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dim }
func (f *fakeEmbedder) Close() error    { return nil }

// hashEmbed deterministically maps text to a small vector so semantically
// similar test strings (sharing words) land closer together than unrelated
// ones, without pulling in a real embedding model.
func hashEmbed(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for i, r := range text {
		vec[i%dim] += float32(r%13) + 1
	}
	return vec
}

type fakeRewriter struct{ reply string }

func (f *fakeRewriter) Rewrite(ctx context.Context, prompt string) (string, error) {
	return f.reply, nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.EmbeddingDim = 8
	e, err := New(cfg, memkv.New(), WithEmbedder(&fakeEmbedder{dim: 8}), WithRewriter(&fakeRewriter{reply: "summary"}))
	require.NoError(t, err)
	return e
}

func TestInsertAndGet(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	r, err := e.Insert(ctx, "the user prefers dark mode", WithAgentID("agent-1"), WithUserID("user-1"))
	require.NoError(t, err)
	assert.Equal(t, record.ScopeUser, r.Scope)
	assert.NotEmpty(t, r.ID)

	got, err := e.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Content, got.Content)
	assert.Equal(t, int64(1), got.AccessCount)
}

func TestInsertScopeAssignment(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	r, err := e.Insert(ctx, "session scratch note", WithSessionID("s1"), WithUserID("u1"), WithAgentID("a1"))
	require.NoError(t, err)
	assert.Equal(t, record.ScopeSession, r.Scope)

	r2, err := e.Insert(ctx, "a global fact")
	require.NoError(t, err)
	assert.Equal(t, record.ScopeGlobal, r2.Scope)
}

func TestSearchFindsInsertedRecord(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, err := e.Insert(ctx, "cats are great pets", WithAgentID("agent-1"))
	require.NoError(t, err)
	_, err = e.Insert(ctx, "quarterly revenue report", WithAgentID("agent-1"))
	require.NoError(t, err)

	results, err := e.Search(ctx, "cats are great pets", 5, WithSearchAgentID("agent-1"))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "cats are great pets", mustRecordContent(t, e, results[0].ID))
}

func TestDeleteRemovesRecord(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	r, err := e.Insert(ctx, "temporary note", WithAgentID("agent-1"))
	require.NoError(t, err)

	ok, err := e.Delete(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.Get(ctx, r.ID)
	assert.Error(t, err)
}

func TestBlocksCompile(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	require.NoError(t, e.Blocks.CreateBlock(ctx, "agent-1", "persona", record.BlockPersona, 200, "a helpful assistant"))
	out, err := e.Blocks.Compile(ctx, "agent-1", "You are {{persona}}.")
	require.NoError(t, err)
	assert.Equal(t, "You are a helpful assistant.", out)
}

func mustRecordContent(t *testing.T, e *Engine, id string) string {
	t.Helper()
	r, err := e.Get(context.Background(), id)
	require.NoError(t, err)
	return r.Content
}

func TestInsertSynchronouslyEvictsWhenScopeAtCapacity(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.EmbeddingDim = 8
	cfg.Scopes.AgentMax = 2
	e, err := New(cfg, memkv.New(), WithEmbedder(&fakeEmbedder{dim: 8}))
	require.NoError(t, err)

	r1, err := e.Insert(ctx, "first note", WithAgentID("agent-1"), WithImportance(0.1))
	require.NoError(t, err)
	_, err = e.Insert(ctx, "second note", WithAgentID("agent-1"), WithImportance(0.9))
	require.NoError(t, err)

	// Never called Start: this eviction must happen synchronously on the
	// insert that pushes agent-1 over its cap of 2.
	_, err = e.Insert(ctx, "third note", WithAgentID("agent-1"), WithImportance(0.8))
	require.NoError(t, err)

	records, err := e.store.ScanByAgent(ctx, "agent-1", 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = e.Get(ctx, r1.ID)
	assert.True(t, enginerr.Is(err, enginerr.CodeNotFound))
}

// deleteRejectingBackend fails any Batch call that contains a delete, so
// eviction's Store.Delete calls fail while ordinary Put calls still
// succeed, simulating a backend that cannot free capacity.
type deleteRejectingBackend struct {
	kvbackend.Backend
}

func (b *deleteRejectingBackend) Batch(ctx context.Context, ops []kvbackend.Op) error {
	for _, op := range ops {
		if op.Kind == kvbackend.OpDelete {
			return fmt.Errorf("simulated: deletes rejected")
		}
	}
	return b.Backend.Batch(ctx, ops)
}

func TestInsertReturnsCapacityExceededWhenEvictionCannotFreeASlot(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.EmbeddingDim = 8
	cfg.Scopes.AgentMax = 2
	backend := &deleteRejectingBackend{Backend: memkv.New()}
	e, err := New(cfg, backend, WithEmbedder(&fakeEmbedder{dim: 8}))
	require.NoError(t, err)

	_, err = e.Insert(ctx, "first note", WithAgentID("agent-1"))
	require.NoError(t, err)
	_, err = e.Insert(ctx, "second note", WithAgentID("agent-1"))
	require.NoError(t, err)

	// The scope is now at its cap of 2. The synchronous eviction this
	// insert triggers cannot actually free a slot because the backend
	// rejects every delete, so capacity is reported as exceeded instead
	// of silently growing the scope past its configured limit.
	_, err = e.Insert(ctx, "third note", WithAgentID("agent-1"))
	assert.True(t, enginerr.Is(err, enginerr.CodeCapacityExceeded))
}

func TestSnapshotAndReloadVectorIndexPreservesSearchResults(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, err := e.Insert(ctx, "cats are great pets", WithAgentID("agent-1"))
	require.NoError(t, err)
	_, err = e.Insert(ctx, "quarterly revenue report", WithAgentID("agent-1"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, e.SnapshotVectorIndex(&buf))

	e2 := newTestEngine(t)
	require.NoError(t, e2.LoadVectorIndexSnapshot(&buf))

	results, err := e2.Search(ctx, "cats are great pets", 5, WithSearchAgentID("agent-1"))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	// e2 has its own empty record store; the ids resolve in e's store.
	assert.Equal(t, "cats are great pets", mustRecordContent(t, e, results[0].ID))
}

func TestLoadVectorIndexSnapshotFallsBackToFlatOnCorruptionAndRebuilds(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	r, err := e.Insert(ctx, "cats are great pets", WithAgentID("agent-1"))
	require.NoError(t, err)

	err = e.LoadVectorIndexSnapshot(bytes.NewReader([]byte("not a valid snapshot")))
	require.Error(t, err)
	assert.True(t, enginerr.Is(err, enginerr.CodeIndexCorruption))

	// The engine keeps serving immediately on an (empty) Flat fallback
	// rather than refusing to start...
	_, ok := e.vector.(*vectorindex.Flat)
	assert.True(t, ok)

	// ...and the background rebuild eventually restores a real HNSW index
	// repopulated from the Record Store, bringing the pre-existing record
	// back into search results.
	require.Eventually(t, func() bool {
		_, ok := e.vector.(*vectorindex.HNSW)
		return ok
	}, time.Second, 5*time.Millisecond)

	results, err := e.Search(ctx, "cats are great pets", 5, WithSearchAgentID("agent-1"))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, r.ID, results[0].ID)
}
