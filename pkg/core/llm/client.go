// Package llm wraps the remote completion service that produces assistant
// turns.
package llm

import (
	"context"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/parley-ai/parley/pkg/core"
	"github.com/parley-ai/parley/pkg/core/creds"
	"github.com/parley-ai/parley/pkg/core/types"
)

// Fallback is returned as the assistant turn when the service answers with no
// content. It is a data contract, not an error: the conversation continues.
const Fallback = "I apologize, but I couldn't generate a response. Could you please try rephrasing that?"

// DefaultModel is used when CompleteOptions does not name one.
const DefaultModel = openai.GPT4

// CompleteOptions carries the per-mode sampling configuration.
type CompleteOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Client is a stateless request/response wrapper around the completion
// service. Each call reads the key from the credential gate, so a key
// supplied mid-session takes effect on the next turn.
type Client struct {
	gate       *creds.Gate
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client gated on credentials.
func NewClient(gate *creds.Gate) *Client {
	return &Client{gate: gate}
}

// WithBaseURL overrides the service endpoint. Used by tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimSpace(base)
	return c
}

// WithHTTPClient overrides the HTTP client.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.httpClient = client
	return c
}

// Complete sends the system prompt, the prior turns in order, and the new
// user text, and returns the assistant turn. It fails fast with a
// missing-credentials error before any network I/O when the gate reports
// absence.
func (c *Client) Complete(ctx context.Context, system string, history []types.Turn, userText string, opts CompleteOptions) (types.Turn, error) {
	credentials, err := c.gate.Get()
	if err != nil {
		return types.Turn{}, err
	}

	cfg := openai.DefaultConfig(credentials.CompletionKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	api := openai.NewClientWithConfig(cfg)

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userText,
	})

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	resp, err := api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return types.Turn{}, core.NewCompletionError("completion request failed", err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if content == "" {
		content = Fallback
	}

	return types.NewTurn(types.RoleAssistant, content), nil
}
