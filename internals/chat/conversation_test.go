package chat

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_SeededWithSystemPrompt(t *testing.T) {
	c := NewConversation("be brief")
	require.Equal(t, 1, c.Len())

	first, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, RoleSystem, first.Role)
	assert.Equal(t, "be brief", first.Text())
}

func TestConversation_SnapshotIsCopy(t *testing.T) {
	c := NewConversation("sys")
	c.Append(UserMessage("hi"))

	snap := c.Snapshot()
	snap[1] = UserMessage("mutated")

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "hi", c.Snapshot()[1].Text())
}

func TestValidateSequence(t *testing.T) {
	calls := []ToolCall{{ID: "a", Name: "search"}, {ID: "b", Name: "js_exec"}}

	tests := []struct {
		name    string
		msgs    []Message
		wantErr bool
	}{
		{
			name: "well formed",
			msgs: []Message{
				SystemMessage("sys"),
				UserMessage("q"),
				AssistantMessage(nil, calls),
				ToolMessage("a", "r1"),
				ToolMessage("b", "r2"),
				AssistantMessage(String("done"), nil),
			},
		},
		{
			name:    "tool before any assistant",
			msgs:    []Message{SystemMessage("sys"), ToolMessage("a", "r")},
			wantErr: true,
		},
		{
			name: "unknown id",
			msgs: []Message{
				AssistantMessage(nil, calls),
				ToolMessage("zzz", "r"),
			},
			wantErr: true,
		},
		{
			name: "id from an older batch",
			msgs: []Message{
				AssistantMessage(nil, []ToolCall{{ID: "old"}}),
				ToolMessage("old", "r"),
				AssistantMessage(nil, []ToolCall{{ID: "new"}}),
				ToolMessage("old", "r"),
			},
			wantErr: true,
		},
		{
			name: "plain assistant between batches keeps the open batch",
			msgs: []Message{
				AssistantMessage(nil, []ToolCall{{ID: "x"}}),
				AssistantMessage(String("thinking"), nil),
				ToolMessage("x", "r"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSequence(tt.msgs)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrOrphanToolMessage)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestMessage_JSONShape(t *testing.T) {
	b, err := json.Marshal(AssistantMessage(nil, []ToolCall{{ID: "1", Name: "search", Arguments: `{"query":"go"}`}}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"assistant","content":null,"tool_calls":[{"id":"1","name":"search","arguments":"{\"query\":\"go\"}"}]}`, string(b))

	b, err = json.Marshal(ToolMessage("1", "ok"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"tool","content":"ok","tool_call_id":"1"}`, string(b))
}

func TestSession_BeginTurnIsExclusive(t *testing.T) {
	store := NewSessionStore("sys")
	sess := store.Create()

	end, err := sess.BeginTurn()
	require.NoError(t, err)

	_, err = sess.BeginTurn()
	require.ErrorIs(t, err, ErrTurnInProgress)

	end()
	end2, err := sess.BeginTurn()
	require.NoError(t, err)
	end2()
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore("sys")

	a := store.GetOrCreate("thread-1")
	b := store.GetOrCreate("thread-1")
	assert.Same(t, a, b)
	assert.Equal(t, 1, a.Conversation.Len())

	created := store.Create()
	got, ok := store.Get(created.ID)
	require.True(t, ok)
	assert.Same(t, created, got)
	assert.Equal(t, 2, store.Len())

	require.NoError(t, store.Reset("thread-1"))
	require.ErrorIs(t, store.Reset("thread-1"), ErrSessionNotFound)
	assert.NotSame(t, a, store.GetOrCreate("thread-1"))

	created.Conversation.Append(UserMessage("hello"))
	fresh, err := store.Restart(created.ID)
	require.NoError(t, err)
	assert.NotSame(t, created, fresh)
	assert.Equal(t, created.ID, fresh.ID)
	assert.Equal(t, 1, fresh.Conversation.Len())

	_, err = store.Restart("missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_ConcurrentGetOrCreate(t *testing.T) {
	store := NewSessionStore("sys")

	var wg sync.WaitGroup
	got := make([]*Session, 50)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = store.GetOrCreate("same")
		}()
	}
	wg.Wait()

	for _, s := range got {
		assert.Same(t, got[0], s)
	}
}
