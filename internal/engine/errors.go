package engine

import "errors"

// Sentinel failures of the decode pipeline. Implementations wrap them with
// detail using fmt.Errorf("%w: ...").
var (
	ErrModelNotLoaded     = errors.New("model not loaded")
	ErrTokenizationFailed = errors.New("tokenization failed")
	ErrDecodeFailed       = errors.New("decode failed")
)

// modelNotFoundError signals a model path that does not exist.
type modelNotFoundError struct{ path string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.path }

// ErrModelNotFound constructs a modelNotFoundError.
func ErrModelNotFound(path string) error { return modelNotFoundError{path: path} }

// IsModelNotFound reports whether err indicates a missing model file.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// modelCorruptedError signals a model file the runtime refused to load.
type modelCorruptedError struct {
	path  string
	cause error
}

func (e modelCorruptedError) Error() string {
	if e.cause == nil {
		return "model corrupted: " + e.path
	}
	return "model corrupted: " + e.path + ": " + e.cause.Error()
}

func (e modelCorruptedError) Unwrap() error { return e.cause }

// ErrModelCorrupted constructs a modelCorruptedError.
func ErrModelCorrupted(path string, cause error) error {
	return modelCorruptedError{path: path, cause: cause}
}

// IsModelCorrupted reports whether err indicates an unloadable model file.
func IsModelCorrupted(err error) bool {
	var e modelCorruptedError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals a missing runtime (e.g. llama.cpp not
// compiled in) so the HTTP layer can answer 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}
