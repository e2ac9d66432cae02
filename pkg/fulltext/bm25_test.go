package fulltext

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memenex/memengine/pkg/record"
)

func TestBM25RanksExactTermMatchHighest(t *testing.T) {
	idx := NewIndex(DefaultConfig())
	assert.NoError(t, idx.Add("a", "the user prefers dark mode in the editor", nil))
	assert.NoError(t, idx.Add("b", "the weather today is sunny and warm", nil))
	assert.NoError(t, idx.Add("c", "dark mode dark mode dark mode settings", nil))

	hits, err := idx.Search("dark mode", 3, nil)
	assert.NoError(t, err)
	if assert.GreaterOrEqual(t, len(hits), 2) {
		assert.Equal(t, "c", hits[0].ID)
	}
}

func TestBM25DeleteRemovesFromPostings(t *testing.T) {
	idx := NewIndex(DefaultConfig())
	assert.NoError(t, idx.Add("a", "hello world", nil))
	assert.True(t, idx.Delete("a"))
	assert.False(t, idx.Delete("a"))
	assert.Equal(t, 0, idx.Len())

	hits, err := idx.Search("hello", 5, nil)
	assert.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBM25FilterAppliedAtSearch(t *testing.T) {
	idx := NewIndex(DefaultConfig())
	assert.NoError(t, idx.Add("a", "memory about the project plan", &record.Record{ID: "a", AgentID: "agent-1"}))
	assert.NoError(t, idx.Add("b", "memory about the project plan", &record.Record{ID: "b", AgentID: "agent-2"}))

	hits, err := idx.Search("project plan", 5, record.MatchAgent("agent-2"))
	assert.NoError(t, err)
	if assert.Len(t, hits, 1) {
		assert.Equal(t, "b", hits[0].ID)
	}
}

func TestCJKTokenizerProducesBigrams(t *testing.T) {
	tok := NewTokenizer(TokenizerCJK, nil, false)
	tokens := tok.Tokenize("记忆系统")
	assert.Equal(t, []string{"记忆", "忆系", "系统"}, tokens)
}
