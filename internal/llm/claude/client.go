// Package claude implements llm.Provider on top of the Anthropic SDK, for
// deployments that route analysis to a hosted reasoning backend instead of
// the local inference server.
package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const responseTokens = 2048

// Client wraps the Anthropic messages API.
type Client struct {
	client anthropic.Client
}

// New creates a new Claude client with the given API key.
func New(apiKey string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Generate sends a single-turn message to the named model and returns the
// concatenated text content.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: responseTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	return joinText(msg.Content), nil
}

// joinText concatenates the text blocks of a response, skipping any other
// content types.
func joinText(blocks []anthropic.ContentBlockUnion) string {
	var sb strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}
