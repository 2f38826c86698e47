package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jadenj13/toolchat/internals/chat"
	"github.com/jadenj13/toolchat/internals/llm"
	"github.com/jadenj13/toolchat/internals/tools"
	"github.com/jadenj13/toolchat/internals/transcript"
)

const (
	DefaultMaxTurns = 10

	SystemPrompt = "You are a concise assistant. Use tools when needed. Prefer factual answers."
)

var ErrMaxTurnsExceeded = errors.New("model kept requesting tools past the turn limit")

// Dispatcher runs one tool call. *tools.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, tc chat.ToolCall) tools.Outcome
	Registry() *tools.Registry
}

// Observer is told about every line and alert as it is recorded, for
// surfaces that stream the turn instead of reading the transcript after it.
type Observer interface {
	OnLine(line transcript.Line)
	OnAlert(msg string)
}

type Reply struct {
	// Text is the last non-blank assistant content of the turn.
	Text  string
	Lines []transcript.Line
	// Rounds counts model calls made during the turn.
	Rounds int
}

type Agent struct {
	llm      llm.Client
	tools    Dispatcher
	maxTurns int
	log      *slog.Logger
}

func New(client llm.Client, dispatcher Dispatcher, maxTurns int, log *slog.Logger) *Agent {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Agent{llm: client, tools: dispatcher, maxTurns: maxTurns, log: log}
}

// RunTurn appends userText to the session and drives the model until it
// answers without tool calls. Messages appended before a failure stay in the
// conversation.
func (a *Agent) RunTurn(ctx context.Context, sess *chat.Session, userText string, obs Observer) (Reply, error) {
	release, err := sess.BeginTurn()
	if err != nil {
		return Reply{}, err
	}
	defer release()

	t := &turn{sess: sess, obs: obs, mark: sess.Transcript.Len()}

	sess.Conversation.Append(chat.UserMessage(userText))
	t.line(string(chat.RoleUser), userText)

	// A model chosen for this turn sticks for the rest of the session.
	if m := llm.ModelFromContext(ctx); m != "" {
		sess.Model = m
	}
	ctx = llm.ContextWithModel(ctx, sess.Model)
	defs := a.tools.Registry().Definitions()

	for i := range a.maxTurns {
		t.reply.Rounds = i + 1

		msg, err := a.llm.CompleteWithTools(ctx, sess.Conversation.Snapshot(), defs)
		if err != nil {
			err = fmt.Errorf("llm (iter %d): %w", i, err)
			a.log.Error("model call failed", "session", sess.ID, "iter", i, "err", err)
			t.alert(err.Error())
			return t.done(), err
		}

		// The assistant message goes in before any tool result that answers it.
		sess.Conversation.Append(chat.AssistantMessage(msg.Content, msg.ToolCalls))
		if text := msg.Text(); strings.TrimSpace(text) != "" {
			t.reply.Text = text
			t.line(string(chat.RoleAssistant), text)
		}

		if !msg.HasToolCalls() {
			a.log.Info("turn complete", "session", sess.ID, "rounds", i+1)
			return t.done(), nil
		}

		for _, tc := range msg.ToolCalls {
			out := a.tools.Dispatch(ctx, tc)
			a.log.Info("tool executed", "session", sess.ID, "tool", tc.Name, "iter", i,
				"preview", preview(out.Preview, 120))

			sess.Conversation.Append(chat.ToolMessage(tc.ID, out.Content))
			if out.Err != nil {
				t.alert(out.Err.Error())
			}
			t.line(string(chat.RoleTool), out.Preview)
		}
	}

	a.log.Warn("turn stopped at round limit", "session", sess.ID, "max_turns", a.maxTurns)
	err = fmt.Errorf("%w (%d)", ErrMaxTurnsExceeded, a.maxTurns)
	t.alert(err.Error())
	return t.done(), err
}

type turn struct {
	sess  *chat.Session
	obs   Observer
	mark  int
	reply Reply
}

func (t *turn) line(role, text string) {
	l := t.sess.Transcript.Add(role, text)
	if t.obs != nil {
		t.obs.OnLine(l)
	}
}

func (t *turn) alert(msg string) {
	t.sess.Transcript.Alert(msg)
	if t.obs != nil {
		t.obs.OnAlert(msg)
	}
}

func (t *turn) done() Reply {
	t.reply.Lines = t.sess.Transcript.Since(t.mark)
	return t.reply
}

func preview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return tools.Truncate(s, n)
}
