//go:build !llama

package engine

// This file provides a no-CGO stub for the llama loader. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.
// The real handle lives in llama.go (tagged 'llama').

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = false

type llamaLoader struct{ opts Options }

// NewLlamaLoader returns a loader that refuses to load models because the
// llama runtime is not compiled in.
func NewLlamaLoader(opts Options) Loader { return &llamaLoader{opts: opts.withDefaults()} }

func (l *llamaLoader) Load(path string) (Handle, error) {
	// Fail fast: llama runtime not available in this build.
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}
