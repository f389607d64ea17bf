package manager

import (
	"errors"

	"chatd/internal/engine"
)

// modelNotFoundError is returned when a requested model id is not present in
// the registry.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound returns a modelNotFoundError.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether err indicates a missing model id or file.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e) || engine.IsModelNotFound(err)
}

// IsDependencyUnavailable reports whether err indicates the native runtime
// is missing (return 503).
func IsDependencyUnavailable(err error) bool {
	return engine.IsDependencyUnavailable(err)
}

// IsNotLoaded reports whether err means no model is ready to serve.
func IsNotLoaded(err error) bool {
	return errors.Is(err, engine.ErrModelNotLoaded)
}
