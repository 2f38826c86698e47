package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jadenj13/toolchat/internals/chat"
	"github.com/jadenj13/toolchat/internals/tools"
)

const (
	DefaultModel     = anthropic.ModelClaude4Sonnet20250514
	DefaultMaxTokens = 8096
)

type AnthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	opts      []option.RequestOption
}

type Option func(*AnthropicClient)

func WithModel(model string) Option {
	return func(c *AnthropicClient) { c.model = anthropic.Model(model) }
}

func WithMaxTokens(n int64) Option {
	return func(c *AnthropicClient) { c.maxTokens = n }
}

func WithAnthropicRequestOptions(opts ...option.RequestOption) Option {
	return func(c *AnthropicClient) { c.opts = append(c.opts, opts...) }
}

func NewAnthropicClient(apiKey string, opts ...Option) *AnthropicClient {
	c := &AnthropicClient{
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
	}
	for _, o := range opts {
		o(c)
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, c.opts...)
	c.client = anthropic.NewClient(reqOpts...)
	return c
}

func (c *AnthropicClient) CompleteWithTools(ctx context.Context, messages []chat.Message, defs []tools.Definition) (chat.Message, error) {
	system, apiMessages, err := toAnthropicMessages(messages)
	if err != nil {
		return chat.Message{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelFrom(ctx, string(c.model))),
		MaxTokens: c.maxTokens,
		Messages:  apiMessages,
		Tools:     toAnthropicTools(defs),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return chat.Message{}, fmt.Errorf("anthropic api: %w", err)
	}
	if len(resp.Content) == 0 {
		return chat.Message{}, ErrEmptyResponse
	}
	return fromAnthropicContent(resp.Content), nil
}

// toAnthropicMessages lifts system messages out of the list and merges
// adjacent messages of the same role, so consecutive tool results travel in
// one user message as the Messages API requires.
func toAnthropicMessages(messages []chat.Message) (string, []anthropic.MessageParam, error) {
	var system []string
	out := make([]anthropic.MessageParam, 0, len(messages))

	push := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		if role == anthropic.MessageParamRoleUser {
			out = append(out, anthropic.NewUserMessage(blocks...))
		} else {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}

	for i, m := range messages {
		switch m.Role {
		case chat.RoleSystem:
			system = append(system, m.Text())
		case chat.RoleUser:
			push(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(m.Text()))
		case chat.RoleTool:
			push(anthropic.MessageParamRoleUser, anthropic.NewToolResultBlock(m.ToolCallID, m.Text(), strings.HasPrefix(m.Text(), "ERROR:")))
		case chat.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if text := m.Text(); strings.TrimSpace(text) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tools.DecodeArguments(tc.Arguments), tc.Name))
			}
			push(anthropic.MessageParamRoleAssistant, blocks...)
		default:
			return "", nil, fmt.Errorf("message[%d]: unknown role %q", i, m.Role)
		}
	}

	if len(out) == 0 {
		return "", nil, fmt.Errorf("messages cannot be empty")
	}
	return strings.Join(system, "\n\n"), out, nil
}

func toAnthropicTools(defs []tools.Definition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: d.Parameters["properties"],
				Required:   requiredFields(d.Parameters["required"]),
			},
		}})
	}
	return out
}

func requiredFields(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, x := range r {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func fromAnthropicContent(blocks []anthropic.ContentBlockUnion) chat.Message {
	var (
		texts []string
		calls []chat.ToolCall
	)
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Text != "" {
				texts = append(texts, b.Text)
			}
		case "tool_use":
			args := string(b.Input)
			if !json.Valid(b.Input) {
				args = "{}"
			}
			calls = append(calls, chat.ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}

	var content *string
	if len(texts) > 0 {
		content = chat.String(strings.Join(texts, "\n"))
	}
	return chat.AssistantMessage(content, calls)
}
