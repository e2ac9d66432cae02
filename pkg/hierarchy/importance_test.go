package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memenex/memengine/pkg/vectorindex"
)

func TestScoreEmptyScopeIsMaximallyNovel(t *testing.T) {
	s := DefaultScorer()
	got := s.Score("a plain entry", []float32{1, 0}, nil, PriorityNone)
	want := s.NoveltyWeight * 1.0
	assert.InDelta(t, want, got, 1e-9)
}

func TestScoreNearDuplicateIsLessImportantThanNovel(t *testing.T) {
	s := DefaultScorer()
	nearDuplicate := []vectorindex.Hit{{ID: "a", Score: 0.99}}
	novel := []vectorindex.Hit{{ID: "b", Score: 0.1}}

	dup := s.Score("some note", []float32{1, 0}, nearDuplicate, PriorityNone)
	fresh := s.Score("some note", []float32{1, 0}, novel, PriorityNone)
	assert.Less(t, dup, fresh)
}

func TestScoreHighSignalKeywordsIncreaseImportance(t *testing.T) {
	s := DefaultScorer()
	plain := s.Score("the weather today", nil, nil, PriorityNone)
	signal := s.Score("remember this is an important password", nil, nil, PriorityNone)
	assert.Less(t, plain, signal)
}

func TestScorePriorityContributesAdditively(t *testing.T) {
	s := DefaultScorer()
	low := s.Score("note", nil, nil, PriorityLow)
	high := s.Score("note", nil, nil, PriorityHigh)
	assert.Less(t, low, high)
}

func TestScoreIsClampedToUnitInterval(t *testing.T) {
	s := DefaultScorer()
	got := s.Score("remember important critical urgent note preference password secret private confidential!", nil, nil, PriorityHigh)
	assert.LessOrEqual(t, got, 1.0)
	assert.GreaterOrEqual(t, got, 0.0)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.5))
	assert.Equal(t, 1.0, clamp01(1.5))
	assert.Equal(t, 0.3, clamp01(0.3))
}
