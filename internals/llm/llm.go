// Package llm adapts model providers to the chat.Message shape used by the
// agent loop. Every client is stateless: the full conversation is sent on
// each call.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jadenj13/toolchat/internals/chat"
	"github.com/jadenj13/toolchat/internals/tools"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

var ErrEmptyResponse = errors.New("model returned no message")

// Client is what the agent loop calls. Implementations return the assistant
// message exactly as the model produced it, tool calls included.
type Client interface {
	CompleteWithTools(ctx context.Context, messages []chat.Message, defs []tools.Definition) (chat.Message, error)
}

type modelKey struct{}

// ContextWithModel overrides the client's configured model for calls made
// with the returned context. An empty name leaves ctx unchanged.
func ContextWithModel(ctx context.Context, model string) context.Context {
	model = strings.TrimSpace(model)
	if model == "" {
		return ctx
	}
	return context.WithValue(ctx, modelKey{}, model)
}

// ModelFromContext returns the override set by ContextWithModel, if any.
func ModelFromContext(ctx context.Context) string {
	m, _ := ctx.Value(modelKey{}).(string)
	return m
}

func modelFrom(ctx context.Context, fallback string) string {
	if m := ModelFromContext(ctx); m != "" {
		return m
	}
	return fallback
}

type Config struct {
	Provider       string
	OpenAIKey      string
	OpenAIModel    string
	OpenAIBaseURL  string
	AnthropicKey   string
	AnthropicModel string
}

// New builds the client for cfg.Provider. An empty provider means OpenAI.
func New(cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		var opts []OpenAIOption
		if cfg.OpenAIModel != "" {
			opts = append(opts, WithOpenAIModel(cfg.OpenAIModel))
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.OpenAIBaseURL))
		}
		return NewOpenAIClient(cfg.OpenAIKey, opts...), nil
	case ProviderAnthropic:
		var opts []Option
		if cfg.AnthropicModel != "" {
			opts = append(opts, WithModel(cfg.AnthropicModel))
		}
		return NewAnthropicClient(cfg.AnthropicKey, opts...), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
