package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jadenj13/toolchat/internals/chat"
	"github.com/jadenj13/toolchat/internals/search"
)

const (
	// ContextLimit caps the tool result stored in the conversation.
	ContextLimit = 12000
	// PreviewLimit caps the tool result shown in the transcript.
	PreviewLimit = 800

	UnknownToolResult = "ERROR: Unknown tool"
)

var errBackendMissing = errors.New("backend not configured")

type Searcher interface {
	Search(ctx context.Context, query string) (search.Response, error)
}

type Relay interface {
	Post(ctx context.Context, path string, payload map[string]any) (json.RawMessage, error)
}

type Sandbox interface {
	Run(ctx context.Context, code string) (string, error)
}

// Outcome is the result of one dispatch. Content goes into the conversation,
// Preview into the transcript. Err is set when a backend failed; Content then
// holds the "ERROR: ..." text the model sees.
type Outcome struct {
	Content string
	Preview string
	Err     error
}

type Dispatcher struct {
	registry *Registry
	search   Searcher
	relay    Relay
	sandbox  Sandbox
	log      *slog.Logger
}

func NewDispatcher(registry *Registry, s Searcher, r Relay, sb Sandbox, log *slog.Logger) *Dispatcher {
	if registry == nil {
		registry = Default()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{registry: registry, search: s, relay: r, sandbox: sb, log: log}
}

func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch never fails outright: every failure is folded into the Outcome so
// the loop can hand it back to the model.
func (d *Dispatcher) Dispatch(ctx context.Context, tc chat.ToolCall) Outcome {
	args := DecodeArguments(tc.Arguments)
	if err := d.registry.Validate(tc.Name, args); err != nil {
		d.log.Warn("tool arguments do not match schema", "tool", tc.Name, "err", err)
	}

	text, err := d.execute(ctx, decodeWithArgs(tc.Name, args))
	if err != nil {
		d.log.Warn("tool failed", "tool", tc.Name, "id", tc.ID, "err", err)
		text = "ERROR: " + err.Error()
	}
	return Outcome{
		Content: Truncate(text, ContextLimit),
		Preview: Truncate(text, PreviewLimit),
		Err:     err,
	}
}

func (d *Dispatcher) execute(ctx context.Context, call Call) (string, error) {
	switch c := call.(type) {
	case SearchCall:
		if d.search == nil {
			return "", fmt.Errorf("search: %w", errBackendMissing)
		}
		resp, err := d.search.Search(ctx, c.Query)
		if err != nil {
			return "", err
		}
		b, err := json.Marshal(resp)
		if err != nil {
			return "", fmt.Errorf("encode search response: %w", err)
		}
		return string(b), nil

	case AIPipeCall:
		if d.relay == nil {
			return "", fmt.Errorf("aipipe: %w", errBackendMissing)
		}
		raw, err := d.relay.Post(ctx, c.Path, c.Payload)
		if err != nil {
			return "", err
		}
		return compactJSON(raw), nil

	case JSExecCall:
		if d.sandbox == nil {
			return "", fmt.Errorf("js_exec: %w", errBackendMissing)
		}
		return d.sandbox.Run(ctx, c.Code)

	case UnknownCall:
		d.log.Warn("unknown tool requested", "tool", c.Name)
		return UnknownToolResult, nil
	}
	return "", fmt.Errorf("unhandled call type %T", call)
}

// Truncate keeps at most n runes of s.
func Truncate(s string, n int) string {
	if n < 0 || len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
