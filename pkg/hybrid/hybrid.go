// Package hybrid implements the Hybrid Search Engine component (D): it
// fans out a query to the vector index and the full-text index in
// parallel, then fuses their rankings with Reciprocal Rank Fusion. The
// kappa=60 constant and the rrfScore += weight/(k+rank) accumulation
// mirror the rrfFuse idiom used across the sqvect/hindsight reference
// package.
package hybrid

import (
	"context"
	"sort"
	"sync"

	"github.com/memenex/memengine/pkg/fulltext"
	"github.com/memenex/memengine/pkg/record"
	"github.com/memenex/memengine/pkg/vectorindex"
)

// rrfKappa is the reciprocal-rank-fusion smoothing constant, fixed at the
// conventional value of 60.
const rrfKappa = 60.0

// candidatePoolMultiplier controls how many candidates each sub-index is
// asked for relative to the final k, so fusion has enough overlap to work
// with even when the two rankings barely agree.
const candidatePoolMultiplier = 3
const candidatePoolMin = 50

// Weights controls how much each sub-index's rank contributes to the
// fused score. Negative values are clamped to zero; if both are then zero,
// both default to 0.5. A single zero weight stays zero.
type Weights struct {
	Vector float64
	Text   float64
}

func (w Weights) normalize() Weights {
	if w.Vector < 0 {
		w.Vector = 0
	}
	if w.Text < 0 {
		w.Text = 0
	}
	if w.Vector == 0 && w.Text == 0 {
		return Weights{Vector: 0.5, Text: 0.5}
	}
	return w
}

// Result is one fused hit.
type Result struct {
	ID          string
	Score       float64
	VectorRank  int // 0 if absent from the vector ranking
	TextRank    int // 0 if absent from the text ranking
	VectorScore float64
	TextScore   float64
}

// Engine is the Hybrid Search Engine: a vector index and a full-text
// index searched together and fused by RRF.
type Engine struct {
	Vector vectorindex.Index
	Text   *fulltext.Index
}

// New builds an Engine over the given sub-indexes.
func New(vector vectorindex.Index, text *fulltext.Index) *Engine {
	return &Engine{Vector: vector, Text: text}
}

// Search runs the vector and text queries concurrently, fuses the
// rankings via RRF, drops anything whose score normalized against the top
// hit (score/topScore) falls below threshold (threshold<=0 disables
// filtering, so the top hit's normalized score of 1.0 always survives a
// threshold of exactly 1.0), and returns up to k results ordered by
// descending fused score with ties broken by ascending id.
func (e *Engine) Search(ctx context.Context, queryVec []float32, queryText string, k int, filter record.Predicate, weights Weights, threshold float64) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	weights = weights.normalize()

	poolSize := k * candidatePoolMultiplier
	if poolSize < candidatePoolMin {
		poolSize = candidatePoolMin
	}

	var (
		wg                          sync.WaitGroup
		vectorHits                  []vectorindex.Hit
		textHits                    []fulltext.Hit
		vectorErr, textErr          error
	)

	if e.Vector != nil && len(queryVec) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vectorHits, vectorErr = e.Vector.Search(queryVec, poolSize, filter)
		}()
	}
	if e.Text != nil && queryText != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			textHits, textErr = e.Text.Search(queryText, poolSize, filter)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if vectorErr != nil {
		return nil, vectorErr
	}
	if textErr != nil {
		return nil, textErr
	}

	fused := make(map[string]*Result)
	for rank, h := range vectorHits {
		r := fused[h.ID]
		if r == nil {
			r = &Result{ID: h.ID}
			fused[h.ID] = r
		}
		r.VectorRank = rank + 1
		r.VectorScore = h.Score
		r.Score += weights.Vector / (rrfKappa + float64(rank+1))
	}
	for rank, h := range textHits {
		r := fused[h.ID]
		if r == nil {
			r = &Result{ID: h.ID}
			fused[h.ID] = r
		}
		r.TextRank = rank + 1
		r.TextScore = h.Score
		r.Score += weights.Text / (rrfKappa + float64(rank+1))
	}

	all := make([]Result, 0, len(fused))
	for _, r := range fused {
		all = append(all, *r)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].ID < all[j].ID
	})

	out := all
	if threshold > 0 && len(all) > 0 {
		top := all[0].Score
		out = make([]Result, 0, len(all))
		for _, r := range all {
			if top > 0 && r.Score/top < threshold {
				continue
			}
			out = append(out, r)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
