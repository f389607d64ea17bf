package events

import "github.com/rs/zerolog"

// LogPublisher writes every event as a debug line.
type LogPublisher struct {
	Logger zerolog.Logger
}

func (p LogPublisher) Publish(e Event) {
	ev := p.Logger.Debug().Str("event", e.Name)
	if e.Subject != "" {
		ev = ev.Str("subject", e.Subject)
	}
	if len(e.Fields) > 0 {
		ev = ev.Fields(e.Fields)
	}
	ev.Msg("event")
}
