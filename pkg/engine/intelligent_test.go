package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRewriter struct{ reply string }

func (s *scriptedRewriter) Rewrite(ctx context.Context, prompt string) (string, error) {
	return s.reply, nil
}

func TestIngestConversationExtractsAndInserts(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	e.opts.rewriter = &scriptedRewriter{reply: `{"facts": ["User's name is Alice", "Alice wants to book a dentist appointment"]}`}

	facts, err := e.IngestConversation(ctx, "hi, I'm Alice and I need to book a dentist appointment", WithAgentID("agent-1"))
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, FactAdded, facts[0].Action)
	assert.Equal(t, "User's name is Alice", facts[0].Text)
}

func TestIngestConversationNoFacts(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	e.opts.rewriter = &scriptedRewriter{reply: `{"facts": []}`}

	facts, err := e.IngestConversation(ctx, "hello", WithAgentID("agent-1"))
	require.NoError(t, err)
	assert.Empty(t, facts)
}
