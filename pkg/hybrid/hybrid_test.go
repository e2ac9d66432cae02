package hybrid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memenex/memengine/pkg/fulltext"
	"github.com/memenex/memengine/pkg/vectorindex"
)

func TestEngineFusesAgreeingRankingsHighest(t *testing.T) {
	vi := vectorindex.NewFlat(vectorindex.MetricCosine)
	assert.NoError(t, vi.Add("a", []float32{1, 0}, nil))
	assert.NoError(t, vi.Add("b", []float32{0, 1}, nil))
	assert.NoError(t, vi.Add("c", []float32{0.7, 0.3}, nil))

	ft := fulltext.NewIndex(fulltext.DefaultConfig())
	assert.NoError(t, ft.Add("a", "the lazy brown dog sleeps", nil))
	assert.NoError(t, ft.Add("b", "completely unrelated weather report", nil))
	assert.NoError(t, ft.Add("c", "quick fox sighting near the fox den", nil))

	eng := New(vi, ft)
	results, err := eng.Search(context.Background(), []float32{1, 0}, "quick fox", 3, nil, Weights{Vector: 0.5, Text: 0.5}, 0)
	assert.NoError(t, err)
	assert.NotEmpty(t, results)
	// "c" ranks well on both vector and text queries, so it should fuse to
	// the top even though "a" may lead on vector alone.
	assert.Equal(t, "c", results[0].ID)
}

func TestEngineThresholdNormalizesAgainstTopScore(t *testing.T) {
	vi := vectorindex.NewFlat(vectorindex.MetricCosine)
	assert.NoError(t, vi.Add("a", []float32{1, 0}, nil))
	assert.NoError(t, vi.Add("b", []float32{-1, 0}, nil))

	ft := fulltext.NewIndex(fulltext.DefaultConfig())
	assert.NoError(t, ft.Add("a", "alpha", nil))
	assert.NoError(t, ft.Add("b", "beta", nil))

	eng := New(vi, ft)

	// A threshold of exactly 1.0 keeps only hits tied with the top
	// normalized score (1.0 by construction), so the strongest match "a"
	// must survive even at the strictest possible threshold.
	results, err := eng.Search(context.Background(), []float32{1, 0}, "alpha", 2, nil, Weights{Vector: 0.5, Text: 0.5}, 1.0)
	assert.NoError(t, err)
	assert.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)

	// The weaker match "b" (opposite vector direction, no text overlap)
	// normalizes to well under 1.0 and is dropped at this threshold.
	for _, r := range results {
		assert.NotEqual(t, "b", r.ID)
	}
}

func TestWeightsNormalizeDefaultsAndClamps(t *testing.T) {
	// -1 clamps to 0; with both weights then zero, the defaults apply.
	w := Weights{Vector: -1, Text: 0}.normalize()
	assert.Equal(t, 0.5, w.Vector)
	assert.Equal(t, 0.5, w.Text)

	w2 := Weights{}.normalize()
	assert.Equal(t, 0.5, w2.Vector)
	assert.Equal(t, 0.5, w2.Text)
}
