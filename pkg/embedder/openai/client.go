// Package openai adapts the teacher's OpenAI embedder client to the
// Embedder capability: vectors stay float32 (the API's native return
// type, and Record.Embedding's type) instead of being widened to
// float64, and calls are wrapped in the capability's Transient/Permanent
// retry policy.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/memenex/memengine/internal/enginerr"
	"github.com/memenex/memengine/internal/retry"
)

// Client is an OpenAI Embedder client.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	policy     retry.Policy
}

// Config configures a Client.
// APIKey: OpenAI API key (required)
// Model: reserved for future provider-model selection; currently fixed to AdaEmbeddingV2
// BaseURL: API base URL, defaults to OpenAI's official address
// Dimensions: vector dimensions, defaults to 1536 (AdaEmbeddingV2's native size)
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
	Policy     *retry.Policy
}

// NewClient creates a new OpenAI Embedder client.
func NewClient(cfg *Config) (*Client, error) {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1536
	}
	policy := retry.Default()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}

	return &Client{
		client:     openai.NewClientWithConfig(config),
		model:      openai.AdaEmbeddingV2,
		dimensions: dimensions,
		policy:     policy,
	}, nil
}

// Embed converts a single text to a vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch converts multiple texts to vectors in one request, retrying
// transient failures per the Embedder capability's retry policy.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	attempts, err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: c.model,
		})
		if err != nil {
			return retry.MarkTransient(err)
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("embedder: unexpected number of results from OpenAI API (got %d, expected %d)", len(resp.Data), len(texts))
		}
		out = make([][]float32, len(texts))
		for i, data := range resp.Data {
			out[i] = data.Embedding
		}
		return nil
	})
	if err != nil {
		return nil, enginerr.NewWithAttempts("Embedder.EmbedBatch", enginerr.CodeDependency, attempts, err)
	}
	if len(out) == 0 {
		return nil, enginerr.New("Embedder.EmbedBatch", enginerr.CodeDependency, errors.New("no embeddings returned"))
	}
	return out, nil
}

// Dimensions returns the vector dimensions.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close closes the client connection.
// The OpenAI SDK client does not require explicit closing; this method is
// retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
