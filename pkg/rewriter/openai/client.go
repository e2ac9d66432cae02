// Package openai adapts the teacher's LLM Provider pattern
// (pkg/llm/openai in the teacher) into the Rewriter capability: a single
// stateless Rewrite(ctx, prompt) call instead of the teacher's broader
// multi-message Provider interface, since this engine only ever needs
// one-shot prompt-to-text generation for block rewriting and cluster
// summarization.
package openai

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/memenex/memengine/internal/enginerr"
	"github.com/memenex/memengine/internal/retry"
)

// Client implements rewriter.Rewriter over the OpenAI chat completion API.
type Client struct {
	client *openai.Client
	model  string
	policy retry.Policy
}

// Config configures a Client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// Policy overrides the retry policy; the zero value uses retry.Default().
	Policy *retry.Policy
}

// NewClient builds a Client from cfg.
func NewClient(cfg *Config) (*Client, error) {
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4"
	}
	policy := retry.Default()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	return &Client{client: openai.NewClientWithConfig(conf), model: model, policy: policy}, nil
}

// Rewrite sends prompt as a single user message and returns the model's
// response, retrying Transient failures per the capability's retry
// policy (spec section 6).
func (c *Client) Rewrite(ctx context.Context, prompt string) (string, error) {
	var out string
	attempts, err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    c.model,
			Messages: []openai.ChatCompletionMessage{{Role: "user", Content: prompt}},
		})
		if err != nil {
			return retry.MarkTransient(err)
		}
		if len(resp.Choices) == 0 {
			return errors.New("rewriter: no choices returned from OpenAI API")
		}
		out = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", enginerr.NewWithAttempts("Rewriter.Rewrite", enginerr.CodeDependency, attempts, err)
	}
	return out, nil
}
