// Package openaitransport implements brain.Transport over the OpenAI
// Chat Completions API. No example in the retrieved pack exercises
// openai-go at the source level (only its go.mod manifest listing); this
// client is written from the SDK's documented v3 surface rather than an
// adapted reference implementation — see DESIGN.md.
package openaitransport

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/corvidrun/corvid/pkg/brain"
)

const defaultModel = openai.ChatModelGPT4o

// Transport is a brain.Transport backed by the OpenAI Chat Completions
// API.
type Transport struct {
	client openai.Client
	model  openai.ChatModel
}

// Option configures a Transport at construction.
type Option func(*Transport)

// WithModel overrides the default model.
func WithModel(model openai.ChatModel) Option {
	return func(t *Transport) { t.model = model }
}

// New builds a Transport authenticating with apiKey.
func New(apiKey string, opts ...Option) *Transport {
	t := &Transport{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Chat implements brain.Transport.
func (t *Transport) Chat(ctx context.Context, messages []brain.Message) (string, error) {
	var turns []openai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case "system":
			turns = append(turns, openai.SystemMessage(m.Content))
		case "assistant":
			turns = append(turns, openai.AssistantMessage(m.Content))
		default:
			turns = append(turns, openai.UserMessage(m.Content))
		}
	}

	resp, err := t.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    t.model,
		Messages: turns,
	})
	if err != nil {
		return "", fmt.Errorf("openaitransport: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
