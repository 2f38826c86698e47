// Package transcript holds what a chat surface shows for one session: the
// role-tagged lines and a single dismissible alert slot.
package transcript

import (
	"fmt"
	"sync"
)

type Line struct {
	Role  string `json:"role"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

func (l Line) String() string {
	return fmt.Sprintf("%s: %s", l.Label, l.Text)
}

func Label(role string) string {
	switch role {
	case "user":
		return "🧑 You"
	case "assistant":
		return "🤖 Agent"
	default:
		return "🔧 Tool"
	}
}

type Transcript struct {
	mu    sync.Mutex
	lines []Line
	alert string
}

func New() *Transcript {
	return &Transcript{}
}

func (t *Transcript) Add(role, text string) Line {
	l := Line{Role: role, Label: Label(role), Text: text}
	t.mu.Lock()
	t.lines = append(t.lines, l)
	t.mu.Unlock()
	return l
}

// Alert replaces any alert already showing.
func (t *Transcript) Alert(msg string) {
	t.mu.Lock()
	t.alert = msg
	t.mu.Unlock()
}

func (t *Transcript) Dismiss() {
	t.Alert("")
}

func (t *Transcript) CurrentAlert() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alert
}

func (t *Transcript) Lines() []Line {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Line, len(t.lines))
	copy(out, t.lines)
	return out
}

// Since returns the lines added after the first n.
func (t *Transcript) Since(n int) []Line {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n >= len(t.lines) {
		return []Line{}
	}
	out := make([]Line, len(t.lines)-n)
	copy(out, t.lines[n:])
	return out
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lines)
}
