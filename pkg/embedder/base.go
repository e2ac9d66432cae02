// Package embedder defines the Embedder capability (spec section 6): the
// dependency that turns content text into the fixed-dimension vectors
// stored in Record.Embedding and searched by the vector index.
package embedder

import "context"

// Embedder converts text into vectors. All adapters (OpenAI, Qwen, etc.)
// implement this interface. Vectors are float32-native, matching
// Record.Embedding and the vector index, rather than the float64 shape
// older embedding-provider code sometimes uses.
type Embedder interface {
	// Embed converts a single text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts in one call; providers typically
	// batch more efficiently than the caller looping over Embed.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimension of vectors this Embedder produces.
	Dimensions() int

	// Close releases provider resources.
	Close() error
}
