// Package engine is the narrow contract between chatd and the native model
// runtime: load a model, tokenize a prompt, decode tokens into the context,
// sample the next token, turn a token into its raw bytes and reset the cache.
//
// Build tags and runtimes:
//
//   - In-process llama (standard):
//     Uses the go-llama.cpp bindings. Enabled with `-tags=llama`.
//     Files: llama.go, llama_cgo.go (linker rpath hints).
//     A no-CGO stub exists when the tag is not set: llama_stub.go.
//
//   - Scripted handle for tests: package enginetest.
//
// A Handle is NOT safe for concurrent use. Callers serialize access; the
// generation package does this with a one-slot admission channel.
package engine
