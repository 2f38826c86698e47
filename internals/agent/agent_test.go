package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jadenj13/toolchat/internals/chat"
	"github.com/jadenj13/toolchat/internals/llm"
	"github.com/jadenj13/toolchat/internals/tools"
	"github.com/jadenj13/toolchat/internals/transcript"
)

// scriptedLLM returns its replies in order and records what it was sent.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []chat.Message
	errAt   int
	err     error
	seen    [][]chat.Message
	models  []string
}

func (s *scriptedLLM) CompleteWithTools(ctx context.Context, msgs []chat.Message, defs []tools.Definition) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, msgs)
	s.models = append(s.models, llm.ModelFromContext(ctx))
	n := len(s.seen)
	if s.err != nil && n == s.errAt {
		return chat.Message{}, s.err
	}
	if n > len(s.replies) {
		return s.replies[len(s.replies)-1], nil
	}
	return s.replies[n-1], nil
}

type fakeSandbox struct {
	out string
	err error
}

func (f fakeSandbox) Run(context.Context, string) (string, error) { return f.out, f.err }

type recorder struct {
	lines  []transcript.Line
	alerts []string
}

func (r *recorder) OnLine(l transcript.Line) { r.lines = append(r.lines, l) }
func (r *recorder) OnAlert(msg string)       { r.alerts = append(r.alerts, msg) }

// countingDispatcher wraps a real dispatcher and counts Dispatch calls.
type countingDispatcher struct {
	*tools.Dispatcher
	calls int
}

func (c *countingDispatcher) Dispatch(ctx context.Context, tc chat.ToolCall) tools.Outcome {
	c.calls++
	return c.Dispatcher.Dispatch(ctx, tc)
}

func toolCallMessage(calls ...chat.ToolCall) chat.Message {
	return chat.AssistantMessage(nil, calls)
}

func newAgent(t *testing.T, gw *scriptedLLM, sb tools.Sandbox, maxTurns int) *Agent {
	t.Helper()
	d := tools.NewDispatcher(nil, nil, nil, sb, nil)
	return New(gw, d, maxTurns, nil)
}

func TestRunTurn_PlainAnswer(t *testing.T) {
	gw := &scriptedLLM{replies: []chat.Message{chat.AssistantMessage(chat.String("Hello!"), nil)}}
	d := &countingDispatcher{Dispatcher: tools.NewDispatcher(nil, nil, nil, nil, nil)}
	a := New(gw, d, 0, nil)
	sess := chat.NewSessionStore(SystemPrompt).Create()

	rec := &recorder{}
	reply, err := a.RunTurn(context.Background(), sess, "hi", rec)
	require.NoError(t, err)

	assert.Equal(t, "Hello!", reply.Text)
	assert.Equal(t, 1, reply.Rounds)

	msgs := sess.Conversation.Snapshot()
	require.Len(t, msgs, 3)
	assert.Equal(t, chat.RoleSystem, msgs[0].Role)
	assert.Equal(t, chat.RoleUser, msgs[1].Role)
	assert.Equal(t, chat.RoleAssistant, msgs[2].Role)

	require.Len(t, reply.Lines, 2)
	assert.Equal(t, "🧑 You: hi", reply.Lines[0].String())
	assert.Equal(t, "🤖 Agent: Hello!", reply.Lines[1].String())
	assert.Equal(t, reply.Lines, rec.lines)
	assert.Empty(t, rec.alerts)
	assert.Zero(t, d.calls)
}

func TestRunTurn_ToolRoundShape(t *testing.T) {
	gw := &scriptedLLM{replies: []chat.Message{
		toolCallMessage(chat.ToolCall{ID: "call_1", Name: tools.NameJSExec, Arguments: `{"code":"1+2"}`}),
		chat.AssistantMessage(chat.String("It is 3."), nil),
	}}
	a := newAgent(t, gw, fakeSandbox{out: "3"}, 0)
	sess := chat.NewSessionStore(SystemPrompt).Create()

	reply, err := a.RunTurn(context.Background(), sess, "what is 1+2?", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, reply.Rounds)

	msgs := sess.Conversation.Snapshot()
	require.Len(t, msgs, 5)
	roles := []chat.Role{chat.RoleSystem, chat.RoleUser, chat.RoleAssistant, chat.RoleTool, chat.RoleAssistant}
	for i, r := range roles {
		assert.Equal(t, r, msgs[i].Role, "message %d", i)
	}
	assert.Nil(t, msgs[2].Content)
	assert.Equal(t, "call_1", msgs[3].ToolCallID)
	assert.Equal(t, "3", msgs[3].Text())
	require.NoError(t, chat.ValidateSequence(msgs))

	// The second model call saw the tool result.
	require.Len(t, gw.seen, 2)
	assert.Len(t, gw.seen[1], 4)

	var labels []string
	for _, l := range reply.Lines {
		labels = append(labels, l.Label)
	}
	assert.Equal(t, []string{"🧑 You", "🔧 Tool", "🤖 Agent"}, labels)
}

func TestRunTurn_ToolFailureContinues(t *testing.T) {
	gw := &scriptedLLM{replies: []chat.Message{
		toolCallMessage(
			chat.ToolCall{ID: "a", Name: tools.NameJSExec, Arguments: `{"code":"for(;;){}"}`},
			chat.ToolCall{ID: "b", Name: "frobnicate", Arguments: `{}`},
		),
		chat.AssistantMessage(chat.String("That failed."), nil),
	}}
	a := newAgent(t, gw, fakeSandbox{err: errors.New("sandbox timeout")}, 0)
	sess := chat.NewSessionStore(SystemPrompt).Create()

	rec := &recorder{}
	_, err := a.RunTurn(context.Background(), sess, "loop forever", rec)
	require.NoError(t, err)

	msgs := sess.Conversation.Snapshot()
	require.Len(t, msgs, 6)
	assert.Equal(t, "ERROR: sandbox timeout", msgs[3].Text())
	assert.Equal(t, "ERROR: Unknown tool", msgs[4].Text())
	assert.Equal(t, []string{"sandbox timeout"}, rec.alerts)
	assert.Equal(t, "sandbox timeout", sess.Transcript.CurrentAlert())
	require.NoError(t, chat.ValidateSequence(msgs))
}

func TestRunTurn_MaxTurns(t *testing.T) {
	gw := &scriptedLLM{replies: []chat.Message{
		toolCallMessage(chat.ToolCall{ID: "again", Name: tools.NameJSExec, Arguments: `{"code":"1"}`}),
	}}
	a := newAgent(t, gw, fakeSandbox{out: "1"}, 3)
	sess := chat.NewSessionStore(SystemPrompt).Create()

	reply, err := a.RunTurn(context.Background(), sess, "go", nil)
	require.ErrorIs(t, err, ErrMaxTurnsExceeded)
	assert.Equal(t, 3, reply.Rounds)
	assert.Len(t, gw.seen, 3)
	// system + user + 3 x (assistant + tool)
	assert.Equal(t, 8, sess.Conversation.Len())
	assert.NotEmpty(t, sess.Transcript.CurrentAlert())
	require.NoError(t, sess.Conversation.Validate())
}

func TestRunTurn_GatewayFailureKeepsConversation(t *testing.T) {
	gw := &scriptedLLM{
		replies: []chat.Message{
			toolCallMessage(chat.ToolCall{ID: "c1", Name: tools.NameJSExec, Arguments: `{"code":"1"}`}),
		},
		errAt: 2,
		err:   errors.New("502 bad gateway"),
	}
	a := newAgent(t, gw, fakeSandbox{out: "1"}, 0)
	sess := chat.NewSessionStore(SystemPrompt).Create()

	rec := &recorder{}
	_, err := a.RunTurn(context.Background(), sess, "hi", rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502 bad gateway")

	// user, assistant and tool messages from the first round are kept.
	assert.Equal(t, 4, sess.Conversation.Len())
	require.Len(t, rec.alerts, 1)
	assert.True(t, strings.Contains(rec.alerts[0], "502"))
}

func TestRunTurn_RejectsConcurrentTurn(t *testing.T) {
	gw := &scriptedLLM{replies: []chat.Message{chat.AssistantMessage(chat.String("ok"), nil)}}
	a := newAgent(t, gw, nil, 0)
	sess := chat.NewSessionStore(SystemPrompt).Create()

	release, err := sess.BeginTurn()
	require.NoError(t, err)
	defer release()

	_, err = a.RunTurn(context.Background(), sess, "hi", nil)
	require.ErrorIs(t, err, chat.ErrTurnInProgress)
	assert.Equal(t, 1, sess.Conversation.Len())
}

func TestRunTurn_BlankAssistantTextNotRendered(t *testing.T) {
	gw := &scriptedLLM{replies: []chat.Message{chat.AssistantMessage(chat.String("   "), nil)}}
	a := newAgent(t, gw, nil, 0)
	sess := chat.NewSessionStore(SystemPrompt).Create()

	reply, err := a.RunTurn(context.Background(), sess, "hi", nil)
	require.NoError(t, err)
	assert.Len(t, reply.Lines, 1)
	assert.Equal(t, 3, sess.Conversation.Len())
}

func TestRunTurn_ModelSticksToSession(t *testing.T) {
	gw := &scriptedLLM{replies: []chat.Message{chat.AssistantMessage(chat.String("ok"), nil)}}
	a := newAgent(t, gw, nil, 0)
	sess := chat.NewSessionStore(SystemPrompt).Create()

	_, err := a.RunTurn(context.Background(), sess, "one", nil)
	require.NoError(t, err)
	_, err = a.RunTurn(llm.ContextWithModel(context.Background(), "gpt-4o"), sess, "two", nil)
	require.NoError(t, err)
	_, err = a.RunTurn(context.Background(), sess, "three", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"", "gpt-4o", "gpt-4o"}, gw.models)
	assert.Equal(t, "gpt-4o", sess.Model)
}
