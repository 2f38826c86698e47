package tools

import (
	"encoding/json"
	"fmt"

	"github.com/jadenj13/toolchat/internals/chat"
)

const DefaultAIPipePath = "/run"

// Call is the decoded form of a chat.ToolCall. The set of implementations is
// closed: one per registered tool plus UnknownCall.
type Call interface {
	ToolName() string
	isCall()
}

type SearchCall struct {
	Query string
}

type AIPipeCall struct {
	Path    string
	Payload map[string]any
}

type JSExecCall struct {
	Code string
}

type UnknownCall struct {
	Name string
}

func (SearchCall) ToolName() string    { return NameSearch }
func (AIPipeCall) ToolName() string    { return NameAIPipe }
func (JSExecCall) ToolName() string    { return NameJSExec }
func (c UnknownCall) ToolName() string { return c.Name }

func (SearchCall) isCall()  {}
func (AIPipeCall) isCall()  {}
func (JSExecCall) isCall()  {}
func (UnknownCall) isCall() {}

func Decode(tc chat.ToolCall) Call {
	return decodeWithArgs(tc.Name, DecodeArguments(tc.Arguments))
}

func decodeWithArgs(name string, args map[string]any) Call {
	switch name {
	case NameSearch:
		return SearchCall{Query: stringArg(args, "query")}
	case NameAIPipe:
		path := stringArg(args, "path")
		if path == "" {
			path = DefaultAIPipePath
		}
		return AIPipeCall{Path: path, Payload: normalizePayload(args["payload"])}
	case NameJSExec:
		return JSExecCall{Code: stringArg(args, "code")}
	default:
		return UnknownCall{Name: name}
	}
}

// DecodeArguments never fails: anything that is not a JSON object becomes {}.
func DecodeArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

func normalizePayload(v any) map[string]any {
	if s, ok := v.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			v = parsed
		}
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64, bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}
