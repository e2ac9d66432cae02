// Package rewriter defines the Rewriter capability (spec section 6):
// a stateless text-generation dependency used by the Core-Memory block
// auto-rewrite path and by consolidation's cluster summarization.
package rewriter

import "context"

// Rewriter turns a prompt into generated text. Implementations may call
// out to an LLM and are expected to be stateless and safe for concurrent
// use.
type Rewriter interface {
	Rewrite(ctx context.Context, prompt string) (string, error)
}
