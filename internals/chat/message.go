package chat

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-issued request to invoke a registered tool. Arguments
// holds the JSON-encoded object exactly as the model produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Message struct {
	Role       Role       `json:"role"`
	Content    *string    `json:"content"`                // nil is sent as JSON null
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant only
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool only
}

func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: &content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: &content}
}

// AssistantMessage keeps a nil content when the model sent none so the
// provider sees the same shape it produced.
func AssistantMessage(content *string, calls []ToolCall) Message {
	m := Message{Role: RoleAssistant, Content: content}
	if len(calls) > 0 {
		m.ToolCalls = append([]ToolCall(nil), calls...)
	}
	return m
}

func ToolMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: &content, ToolCallID: toolCallID}
}

func String(s string) *string { return &s }
