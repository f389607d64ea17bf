package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// legacySenderAssistant is how older transcripts tag model output.
const legacySenderAssistant = "system"

func (s *Sender) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch raw {
	case string(SenderUser):
		*s = SenderUser
	case string(SenderAssistant), legacySenderAssistant:
		*s = SenderAssistant
	default:
		return fmt.Errorf("chat: unknown sender %q", raw)
	}
	return nil
}

// StateKind is the discriminant of State.
type StateKind string

const (
	StateNone       StateKind = "none"
	StateTyped      StateKind = "typed"
	StatePredicting StateKind = "predicting"
	StatePredicted  StateKind = "predicted"
	StateError      StateKind = "error"
)

// State is a tagged variant. TotalSeconds is only meaningful for
// StatePredicted.
type State struct {
	Kind         StateKind
	TotalSeconds float64
}

type stateJSON struct {
	Type        StateKind `json:"type"`
	TotalSecond *float64  `json:"totalSecond,omitempty"`
}

func (s State) MarshalJSON() ([]byte, error) {
	kind := s.Kind
	if kind == "" {
		kind = StateNone
	}
	out := stateJSON{Type: kind}
	if kind == StatePredicted {
		secs := s.TotalSeconds
		out.TotalSecond = &secs
	}
	return json.Marshal(out)
}

func (s *State) UnmarshalJSON(b []byte) error {
	var in stateJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	switch in.Type {
	case StateTyped, StatePredicting, StateError:
		*s = State{Kind: in.Type}
	case StatePredicted:
		*s = State{Kind: StatePredicted}
		if in.TotalSecond != nil {
			s.TotalSeconds = *in.TotalSecond
		}
	default:
		*s = State{Kind: StateNone}
	}
	return nil
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	switch s.Kind {
	case StateTyped, StatePredicted, StateError:
		return true
	}
	return false
}

// Message is one entry of a conversation.
type Message struct {
	ID              string    `json:"id"`
	Sender          Sender    `json:"sender"`
	State           State     `json:"state"`
	Text            string    `json:"text"`
	TokensPerSecond float64   `json:"tok_sec"`
	Header          string    `json:"header,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewUserMessage returns a typed user message. Its text never changes.
func NewUserMessage(text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    SenderUser,
		State:     State{Kind: StateTyped},
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// NewAssistantMessage returns an empty assistant placeholder in state none.
func NewAssistantMessage() Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    SenderAssistant,
		State:     State{Kind: StateNone},
		CreatedAt: time.Now().UTC(),
	}
}

// Begin moves a placeholder to predicting.
func (m *Message) Begin() error {
	if m.Sender != SenderAssistant || m.State.Kind != StateNone {
		return m.invalid("begin")
	}
	m.State = State{Kind: StatePredicting}
	return nil
}

// Append adds a fragment. A placeholder is promoted to predicting on its
// first fragment.
func (m *Message) Append(frag string) error {
	if m.Sender == SenderAssistant && m.State.Kind == StateNone {
		if err := m.Begin(); err != nil {
			return err
		}
	}
	if m.State.Kind != StatePredicting {
		return m.invalid("append")
	}
	m.Text += frag
	return nil
}

// Finish marks a successful (or cleanly cancelled) turn.
func (m *Message) Finish(totalSeconds, tokensPerSecond float64) error {
	if m.Sender != SenderAssistant || (m.State.Kind != StatePredicting && m.State.Kind != StateNone) {
		return m.invalid("finish")
	}
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	if tokensPerSecond < 0 {
		tokensPerSecond = 0
	}
	m.State = State{Kind: StatePredicted, TotalSeconds: totalSeconds}
	m.TokensPerSecond = tokensPerSecond
	return nil
}

// Fail marks a failed turn; accumulated text is kept.
func (m *Message) Fail() error {
	if m.Sender != SenderAssistant || (m.State.Kind != StatePredicting && m.State.Kind != StateNone) {
		return m.invalid("fail")
	}
	m.State = State{Kind: StateError}
	return nil
}

func (m *Message) invalid(op string) error {
	return fmt.Errorf("%w: %s %s message in state %s", ErrInvalidTransition, op, m.Sender, m.State.Kind)
}

func cloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	copy(out, in)
	return out
}
