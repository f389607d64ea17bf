package transcript

import (
	"errors"
	"fmt"
	"strings"

	"chatd/internal/chat"
)

// Store is a chat.TranscriptStore that holds resources.
type Store interface {
	chat.TranscriptStore
	Close() error
}

// Drivers accepted by Open.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Open returns the store for driver ("json" or "sqlite"; empty means json).
// For json, path is a directory; for sqlite, a database file.
func Open(driver, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverJSON:
		return NewFileStore(path)
	case DriverSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("transcript: unknown driver %q", driver)
	}
}

// chatNotFoundError is returned by Delete and Duplicate for unknown chats.
type chatNotFoundError struct{ name string }

func (e chatNotFoundError) Error() string { return "chat not found: " + e.name }

// ErrChatNotFound constructs a chatNotFoundError.
func ErrChatNotFound(name string) error { return chatNotFoundError{name: name} }

// IsChatNotFound reports whether err indicates a missing chat.
func IsChatNotFound(err error) bool {
	var e chatNotFoundError
	return errors.As(err, &e)
}

// copyName picks "<name>-copy", then "<name>-copy-2", ... until taken reports
// false.
func copyName(name string, taken func(string) (bool, error)) (string, error) {
	candidate := name + "-copy"
	for i := 2; ; i++ {
		ok, err := taken(candidate)
		if err != nil {
			return "", err
		}
		if !ok {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-copy-%d", name, i)
	}
}
