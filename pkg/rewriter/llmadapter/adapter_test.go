package llmadapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memenex/memengine/pkg/llm"
)

type fakeProvider struct {
	lastPrompt string
	reply      string
	err        error
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	f.lastPrompt = prompt
	return f.reply, f.err
}

func (f *fakeProvider) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	return f.reply, f.err
}

func (f *fakeProvider) Close() error { return nil }

func TestAdapterRewriteDelegatesToGenerate(t *testing.T) {
	fp := &fakeProvider{reply: "summary text"}
	a := New(fp)

	out, err := a.Rewrite(context.Background(), "summarize: foo bar")
	assert.NoError(t, err)
	assert.Equal(t, "summary text", out)
	assert.Equal(t, "summarize: foo bar", fp.lastPrompt)
}

func TestAdapterRewritePropagatesError(t *testing.T) {
	fp := &fakeProvider{err: assert.AnError}
	a := New(fp)

	_, err := a.Rewrite(context.Background(), "x")
	assert.Error(t, err)
}
