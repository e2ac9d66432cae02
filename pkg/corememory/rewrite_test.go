package corememory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateAtSentencePrefersBoundary(t *testing.T) {
	text := "First sentence. Second sentence. Third."
	out := truncateAtSentence(text, 20)
	assert.Equal(t, "First sentence.", out)
}

func TestTruncateAtSentenceNoBoundaryFallsBackToHardCut(t *testing.T) {
	text := "nosentenceboundaryhereatall"
	out := truncateAtSentence(text, 10)
	assert.Len(t, out, 10)
}

func TestCompressKeepsHighSalienceSentencesWithinCapacity(t *testing.T) {
	text := "The weather is nice today. You must never forget the deadline. A filler sentence follows."
	out := compress(text, 40)
	assert.LessOrEqual(t, len(out), 40)
	assert.Contains(t, out, "deadline")
}
