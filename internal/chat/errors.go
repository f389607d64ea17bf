package chat

import "errors"

var (
	// ErrBusy is returned when a turn is already running (or a switch is in
	// progress) and the request would need the model.
	ErrBusy = errors.New("chat: generation in progress")
	// ErrInvalidTransition is returned when a message state change is not
	// allowed.
	ErrInvalidTransition = errors.New("chat: invalid message transition")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("chat: orchestrator closed")
)

// invalidNameError rejects chat names that cannot be used as a key.
type invalidNameError struct{ name string }

func (e invalidNameError) Error() string { return "chat: invalid chat name: " + e.name }

// ErrInvalidName constructs an invalidNameError.
func ErrInvalidName(name string) error { return invalidNameError{name: name} }

// IsInvalidName reports whether err rejects a chat name.
func IsInvalidName(err error) bool {
	var e invalidNameError
	return errors.As(err, &e)
}
