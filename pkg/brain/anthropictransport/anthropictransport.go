// Package anthropictransport implements brain.Transport over the
// Anthropic Messages API. No example in the retrieved pack exercises
// anthropic-sdk-go at the source level (only its go.mod manifest
// listing); this client is written from the SDK's documented v1 surface
// rather than an adapted reference implementation — see DESIGN.md.
package anthropictransport

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/corvidrun/corvid/pkg/brain"
)

const defaultModel = anthropic.ModelClaudeSonnet4_5

const defaultMaxTokens = 4096

// Transport is a brain.Transport backed by the Anthropic API.
type Transport struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// Option configures a Transport at construction.
type Option func(*Transport)

// WithModel overrides the default model.
func WithModel(model anthropic.Model) Option {
	return func(t *Transport) { t.model = model }
}

// WithMaxTokens overrides the default response token cap.
func WithMaxTokens(n int64) Option {
	return func(t *Transport) { t.maxTokens = n }
}

// New builds a Transport authenticating with apiKey.
func New(apiKey string, opts ...Option) *Transport {
	t := &Transport{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Chat implements brain.Transport. Every system-role message is lifted
// into the request's top-level system parameter (several are joined
// with blank lines), since the
// Messages API does not accept "system" as a turn role.
func (t *Transport) Chat(ctx context.Context, messages []brain.Message) (string, error) {
	var system string
	var turns []anthropic.MessageParam

	for _, m := range messages {
		switch m.Role {
		case "system":
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case "assistant":
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     t.model,
		MaxTokens: t.maxTokens,
		Messages:  turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := t.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropictransport: %w", err)
	}

	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}
