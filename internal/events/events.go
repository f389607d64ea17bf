// Package events carries lifecycle notifications from the model manager and
// the chat orchestrator to whoever is listening (logs, tests).
package events

// Event is a lifecycle event. Subject names the model or chat it concerns;
// extra details go in Fields.
type Event struct {
	Name    string
	Subject string
	Fields  map[string]any
}

// Publisher receives events. Implementations should be lightweight and
// non-blocking; Publish must not panic.
type Publisher interface {
	Publish(Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(Event) {}

// OrNop returns p, or Nop when p is nil.
func OrNop(p Publisher) Publisher {
	if p == nil {
		return Nop{}
	}
	return p
}
