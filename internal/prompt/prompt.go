// Package prompt renders a chat history into the text prompt fed to the
// model: a fixed preamble, a window of recent messages as "role: text" lines,
// and an open assistant cue.
package prompt

import (
	"strings"

	"chatd/internal/chat"
	"chatd/internal/generation"
)

// DefaultTurns is how many earlier exchanges are kept in the window.
const DefaultTurns = 3

// DefaultPreamble instructs the model before the history.
const DefaultPreamble = "You are a concise, fact-based AI assistant. Be helpful, honest, and stay on topic.\n" +
	"Avoid repeating the user's question. If you don't know the answer, say so. Use simple, clear language."

const historyHeader = "\n\nChat history:\n"

// Role prefixes used in the transcript. The model is stopped as soon as it
// starts writing either one.
const (
	UserRole      = "user:"
	AssistantRole = "assistant:"
)

// Assembler builds prompts. The zero value uses DefaultTurns and
// DefaultPreamble.
type Assembler struct {
	// Turns is k in the 2k+1 message window.
	Turns    int
	Preamble string
}

// New returns an Assembler; non-positive turns and an empty preamble fall
// back to the defaults.
func New(turns int, preamble string) Assembler {
	return Assembler{Turns: turns, Preamble: preamble}
}

func (a Assembler) window() int {
	k := a.Turns
	if k <= 0 {
		k = DefaultTurns
	}
	return 2*k + 1
}

func (a Assembler) preamble() string {
	if strings.TrimSpace(a.Preamble) == "" {
		return DefaultPreamble
	}
	return a.Preamble
}

// Build renders history. Only the last 2k+1 messages are considered. A
// trailing user message gets the assistant cue; a trailing assistant message
// is the open continuation point and is left out.
func (a Assembler) Build(history []chat.Message) string {
	var b strings.Builder
	b.WriteString(a.preamble())
	b.WriteString(historyHeader)
	if len(history) == 0 {
		return b.String()
	}
	start := len(history) - a.window()
	if start < 0 {
		start = 0
	}
	win := history[start:]
	for _, m := range win[:len(win)-1] {
		writeLine(&b, m)
	}
	if last := win[len(win)-1]; last.Sender == chat.SenderUser {
		writeLine(&b, last)
		b.WriteString(AssistantRole)
	}
	return b.String()
}

func writeLine(b *strings.Builder, m chat.Message) {
	switch m.Sender {
	case chat.SenderUser:
		b.WriteString(UserRole)
	case chat.SenderAssistant:
		b.WriteString(AssistantRole)
	default:
		return
	}
	b.WriteByte(' ')
	b.WriteString(m.Text)
	b.WriteByte('\n')
}

// StopSequences returns the stop predicate that ends a reply when the model
// begins a new transcript line, with the matching holdback.
func StopSequences() (generation.StopFunc, generation.HoldFunc) {
	return generation.StopSequences(UserRole, AssistantRole)
}
