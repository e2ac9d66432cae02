package hierarchy

import (
	"context"
	"math"

	"github.com/memenex/memengine/pkg/fulltext"
	"github.com/memenex/memengine/pkg/record"
	"github.com/memenex/memengine/pkg/vectorindex"
)

// Deduper detects near-duplicate inserts by vector similarity and merges
// them into the existing record instead of creating a second one.
type Deduper struct {
	Vector    vectorindex.Index
	Text      *fulltext.Index
	Store     *record.Store
	Threshold float64 // cosine similarity at/above which two records are treated as duplicates
}

// NewDeduper builds a Deduper. threshold<=0 defaults to 0.95.
func NewDeduper(vector vectorindex.Index, text *fulltext.Index, store *record.Store, threshold float64) *Deduper {
	if threshold <= 0 {
		threshold = 0.95
	}
	return &Deduper{Vector: vector, Text: text, Store: store, Threshold: threshold}
}

// Find returns the id of an existing record whose embedding is within
// Threshold similarity of embedding, scoped to agentID, or "" if none.
func (d *Deduper) Find(embedding []float32, agentID string) string {
	if d.Vector == nil || len(embedding) == 0 {
		return ""
	}
	var filter record.Predicate
	if agentID != "" {
		filter = record.MatchAgent(agentID)
	}
	hits, err := d.Vector.Search(embedding, 1, filter)
	if err != nil || len(hits) == 0 {
		return ""
	}
	if hits[0].Score >= d.Threshold {
		return hits[0].ID
	}
	return ""
}

// Merge folds newContent/newEmbedding into the existing record existingID:
// content is appended and the embedding is averaged then renormalized, the
// same merge strategy the teacher's dedup manager used before it is
// adapted to this module's []float32, scope-aware Record type.
func (d *Deduper) Merge(ctx context.Context, existingID, newContent string, newEmbedding []float32) (*record.Record, error) {
	existing, err := d.Store.Get(ctx, existingID)
	if err != nil {
		return nil, err
	}
	existing.Content = existing.Content + " " + newContent
	existing.Embedding = averageEmbeddings(existing.Embedding, newEmbedding)
	existing.AccessCount++
	if err := d.Store.Put(ctx, existing); err != nil {
		return nil, err
	}
	if d.Vector != nil {
		d.Vector.Delete(existingID)
		_ = d.Vector.Add(existingID, existing.Embedding, existing)
	}
	if d.Text != nil {
		d.Text.Delete(existingID)
		_ = d.Text.Add(existingID, existing.Content, existing)
	}
	return existing, nil
}

func averageEmbeddings(a, b []float32) []float32 {
	if len(a) != len(b) {
		return a
	}
	out := make([]float32, len(a))
	var sumSq float64
	for i := range a {
		avg := (a[i] + b[i]) / 2
		out[i] = avg
		sumSq += float64(avg) * float64(avg)
	}
	if sumSq == 0 {
		return out
	}
	inv := float32(1 / math.Sqrt(sumSq))
	for i, x := range out {
		out[i] = x * inv
	}
	return out
}
