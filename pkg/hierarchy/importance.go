package hierarchy

import (
	"math"
	"strings"

	"github.com/memenex/memengine/pkg/vectorindex"
)

// Scorer computes an initial importance value for a new record, combining
// length-normalized novelty, keyword salience, and an explicit priority
// tag, weighted-summed and clamped to [0,1]. Grounded on the teacher's
// rule-based evaluateWithRules heuristic in pkg/intelligence/importance.go
// (keyword list, length bonus, metadata priority bonus), reshaped around
// this engine's novelty-via-nearest-embedding-distance signal instead of
// the teacher's LLM-evaluation fallback, which this module drops in favor
// of the rule-based path only (see DESIGN.md).
type Scorer struct {
	NoveltyWeight   float64
	KeywordWeight   float64
	PriorityWeight  float64
	HighSignalTerms []string
}

// DefaultScorer matches the relative emphasis of the teacher's default
// criteria weights (relevance/novelty highest, explicit signals next).
func DefaultScorer() Scorer {
	return Scorer{
		NoveltyWeight:  0.4,
		KeywordWeight:  0.4,
		PriorityWeight: 0.2,
		HighSignalTerms: []string{
			"remember", "important", "critical", "urgent", "note",
			"preference", "password", "secret", "private", "confidential",
		},
	}
}

// Priority is an explicit caller-supplied priority tag.
type Priority string

const (
	PriorityNone   Priority = ""
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func priorityScore(p Priority) float64 {
	switch p {
	case PriorityHigh:
		return 1.0
	case PriorityMedium:
		return 0.5
	case PriorityLow:
		return 0.1
	default:
		return 0.0
	}
}

// Score computes importance for new content. nearestNeighbors is the
// result of searching the same scope's vector index for the nearest
// existing embedding (empty if the scope was previously empty, which
// counts as maximal novelty).
func (s Scorer) Score(content string, embedding []float32, nearestNeighbors []vectorindex.Hit, priority Priority) float64 {
	novelty := s.noveltyScore(nearestNeighbors)
	keyword := s.keywordScore(content)
	score := s.NoveltyWeight*novelty + s.KeywordWeight*keyword + s.PriorityWeight*priorityScore(priority)
	return clamp01(score)
}

func (s Scorer) noveltyScore(nearest []vectorindex.Hit) float64 {
	if len(nearest) == 0 {
		return 1.0
	}
	// nearest[0].Score is a similarity in [-1,1] for cosine (or an
	// unbounded value for dot/euclidean-derived scores); treat it as a
	// similarity and invert, clamping defensively since other metrics
	// are not guaranteed to stay within [0,1].
	return clamp01(1.0 - nearest[0].Score)
}

func (s Scorer) keywordScore(content string) float64 {
	lower := strings.ToLower(content)
	hits := 0
	for _, term := range s.HighSignalTerms {
		if strings.Contains(lower, term) {
			hits++
		}
	}
	lengthBonus := 0.0
	switch {
	case len(content) > 200:
		lengthBonus = 0.2
	case len(content) > 80:
		lengthBonus = 0.1
	}
	punctuationBonus := 0.0
	if strings.Contains(content, "!") || strings.Contains(content, "?") {
		punctuationBonus = 0.05
	}
	keywordBonus := math.Min(float64(hits)*0.15, 0.75)
	return clamp01(keywordBonus + lengthBonus + punctuationBonus)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
