package chat

import (
	"context"
	"strings"

	"chatd/internal/generation"
)

// DefaultChat is the chat opened when none is configured.
const DefaultChat = "Chat"

// TranscriptStore persists conversations by name.
type TranscriptStore interface {
	// Load returns the stored messages; found is false when the chat does
	// not exist.
	Load(name string) (msgs []Message, found bool, err error)
	// Save appends msgs to the chat, creating it when missing.
	Save(name string, msgs []Message) error
	// Clear empties the chat but keeps it listed.
	Clear(name string) error
	List() ([]string, error)
	Delete(name string) error
	// Duplicate copies name to a new chat and returns the new name.
	Duplicate(name string) (string, error)
}

// PromptBuilder renders a history into the model prompt.
type PromptBuilder interface {
	Build(history []Message) string
}

// Generator starts generation sessions; *generation.Runner satisfies it.
type Generator interface {
	Start(ctx context.Context, req generation.Request) (*generation.Session, error)
}

// ValidateName rejects names that are empty, hidden (leading '.') or could
// escape a store directory.
func ValidateName(name string) error {
	n := strings.TrimSpace(name)
	if n == "" || n != name || strings.HasPrefix(n, ".") || strings.ContainsAny(n, `/\`) || strings.ContainsRune(n, 0) {
		return ErrInvalidName(name)
	}
	return nil
}
