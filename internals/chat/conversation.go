package chat

import (
	"errors"
	"fmt"
)

var ErrOrphanToolMessage = errors.New("tool message without matching assistant tool call")

// Conversation is the ordered, append-only message sequence sent to the model.
// It is not safe for concurrent writers; a Session serialises turns.
type Conversation struct {
	messages []Message
}

func NewConversation(systemPrompt string) *Conversation {
	c := &Conversation{}
	if systemPrompt != "" {
		c.Append(SystemMessage(systemPrompt))
	}
	return c
}

func (c *Conversation) Append(m Message) {
	c.messages = append(c.messages, m)
}

func (c *Conversation) Snapshot() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int { return len(c.messages) }

func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

func (c *Conversation) Validate() error {
	return ValidateSequence(c.messages)
}

// ValidateSequence checks that every tool message answers a tool call of the
// nearest preceding assistant message that carried tool calls.
func ValidateSequence(msgs []Message) error {
	var open map[string]bool
	for i, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			if m.HasToolCalls() {
				open = make(map[string]bool, len(m.ToolCalls))
				for _, tc := range m.ToolCalls {
					open[tc.ID] = true
				}
			}
		case RoleTool:
			if open == nil || !open[m.ToolCallID] {
				return fmt.Errorf("message[%d] (tool_call_id %q): %w", i, m.ToolCallID, ErrOrphanToolMessage)
			}
		}
	}
	return nil
}
