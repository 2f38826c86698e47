package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabels(t *testing.T) {
	tr := New()
	tr.Add("user", "hello")
	tr.Add("assistant", "hi there")
	tr.Add("tool", "{}")

	lines := tr.Lines()
	assert.Equal(t, "🧑 You: hello", lines[0].String())
	assert.Equal(t, "🤖 Agent: hi there", lines[1].String())
	assert.Equal(t, "🔧 Tool: {}", lines[2].String())
}

func TestAlertIsSingleSlot(t *testing.T) {
	tr := New()
	tr.Alert("first")
	tr.Alert("second")
	assert.Equal(t, "second", tr.CurrentAlert())

	tr.Dismiss()
	assert.Empty(t, tr.CurrentAlert())
}

func TestSince(t *testing.T) {
	tr := New()
	tr.Add("user", "a")
	n := tr.Len()
	tr.Add("assistant", "b")
	tr.Add("tool", "c")

	got := tr.Since(n)
	assert.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Text)
	assert.Empty(t, tr.Since(10))
}
