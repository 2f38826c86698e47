package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jadenj13/toolchat/internals/chat"
	"github.com/jadenj13/toolchat/internals/tools"
)

const (
	DefaultOpenAIModel = openai.ChatModelGPT4oMini
	temperature        = 0.2
)

type OpenAIClient struct {
	client openai.Client
	model  string
	opts   []option.RequestOption
}

type OpenAIOption func(*OpenAIClient)

func WithOpenAIModel(model string) OpenAIOption {
	return func(c *OpenAIClient) { c.model = model }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *OpenAIClient) { c.opts = append(c.opts, option.WithBaseURL(url)) }
}

func WithRequestOptions(opts ...option.RequestOption) OpenAIOption {
	return func(c *OpenAIClient) { c.opts = append(c.opts, opts...) }
}

func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	c := &OpenAIClient{model: string(DefaultOpenAIModel)}
	for _, o := range opts {
		o(c)
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, c.opts...)
	c.client = openai.NewClient(reqOpts...)
	return c
}

func (c *OpenAIClient) CompleteWithTools(ctx context.Context, messages []chat.Message, defs []tools.Definition) (chat.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(modelFrom(ctx, c.model)),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(temperature),
	}
	if len(defs) > 0 {
		params.Tools = toOpenAITools(defs)
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return chat.Message{}, fmt.Errorf("openai api: %w", err)
	}
	if len(resp.Choices) == 0 {
		return chat.Message{}, ErrEmptyResponse
	}
	return fromOpenAIMessage(resp.Choices[0].Message), nil
}

func toOpenAIMessages(messages []chat.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case chat.RoleSystem:
			out = append(out, openai.SystemMessage(m.Text()))
		case chat.RoleUser:
			out = append(out, openai.UserMessage(m.Text()))
		case chat.RoleTool:
			out = append(out, openai.ToolMessage(m.Text(), m.ToolCallID))
		case chat.RoleAssistant:
			asst := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != nil {
				asst.Content.OfString = openai.String(*m.Content)
			}
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		}
	}
	return out
}

func toOpenAITools(defs []tools.Definition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  openai.FunctionParameters(d.Parameters),
			},
		})
	}
	return out
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) chat.Message {
	var content *string
	if m.Content != "" {
		content = chat.String(m.Content)
	}
	calls := make([]chat.ToolCall, 0, len(m.ToolCalls))
	for _, tc := range m.ToolCalls {
		calls = append(calls, chat.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return chat.AssistantMessage(content, calls)
}
