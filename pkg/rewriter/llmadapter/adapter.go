// Package llmadapter wraps any llm.Provider (the teacher's multi-message
// chat-completion interface, covering OpenAI, Anthropic, DeepSeek, Ollama
// and Qwen) as a Rewriter, so every provider in pkg/llm doubles as a
// Core-Memory block rewriter and consolidation summarizer without each
// needing its own one-shot client.
package llmadapter

import (
	"context"

	"github.com/memenex/memengine/pkg/llm"
)

// Adapter turns an llm.Provider into a rewriter.Rewriter by issuing a
// single-message Generate call per Rewrite.
type Adapter struct {
	Provider llm.Provider
	Options  []llm.GenerateOption
}

// New wraps provider as a Rewriter.
func New(provider llm.Provider, opts ...llm.GenerateOption) *Adapter {
	return &Adapter{Provider: provider, Options: opts}
}

// Rewrite implements rewriter.Rewriter.
func (a *Adapter) Rewrite(ctx context.Context, prompt string) (string, error) {
	return a.Provider.Generate(ctx, prompt, a.Options...)
}
