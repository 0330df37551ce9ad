// Package llm wraps the Anthropic API as the review pipeline's
// semantic-analysis capability: a single text-completion operation with a
// response-shape contract, used for the compile gate and the semantic pass.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/reviewd/internal/invoke"
)

// Profile selects a model target by task shape. Profile choice changes the
// model and prompt only; retry, spacing, and timeout policy are identical.
type Profile string

const (
	// ProfileCompile is tuned for compile/syntax/type/dependency reasoning.
	ProfileCompile Profile = "compile"
	// ProfileSemantic is tuned for open-ended review analysis.
	ProfileSemantic Profile = "semantic"
)

// Client wraps the Anthropic API behind the shared LLM limiter.
type Client struct {
	api           *anthropic.Client
	compileModel  anthropic.Model
	semanticModel anthropic.Model
	limiter       *invoke.Limiter
	policy        invoke.Policy
}

// NewClient creates an LLM client. Calls are serialized through limiter,
// which is shared process-wide across all concurrent reviews.
func NewClient(apiKey, compileModel, semanticModel string, limiter *invoke.Limiter) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:           &client,
		compileModel:  anthropic.Model(compileModel),
		semanticModel: anthropic.Model(semanticModel),
		limiter:       limiter,
		policy:        invoke.DefaultLLMPolicy(),
	}
}

// WithPolicy overrides the invoke policy (tests shorten backoff here).
func (c *Client) WithPolicy(p invoke.Policy) *Client {
	c.policy = p
	return c
}

func (c *Client) model(p Profile) anthropic.Model {
	if p == ProfileCompile {
		return c.compileModel
	}
	return c.semanticModel
}

// Complete sends one system+user prompt pair and returns the text response.
// The call goes through the shared limiter and is retried on transient
// failures up to the policy ceiling.
func (c *Client) Complete(ctx context.Context, profile Profile, system, user string) (string, error) {
	var text string
	err := invoke.Do(ctx, c.limiter, c.policy, func(ctx context.Context) error {
		msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     c.model(profile),
			MaxTokens: 4096,
			System: []anthropic.TextBlockParam{
				{Text: system},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
			},
		})
		if err != nil {
			return invoke.ClassifyMessage(fmt.Errorf("anthropic API call: %w", err))
		}
		text = ""
		for _, block := range msg.Content {
			if block.Type == "text" {
				text = block.Text
				break
			}
		}
		if text == "" {
			return fmt.Errorf("no text content in API response")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return stripFences(text), nil
}

// stripFences removes a wrapping markdown code fence if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) > 1 {
		text = lines[1]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
