// Package manager owns the lifecycle of the single loaded model. It resolves
// model IDs through the registry, loads them with an engine.Loader, wraps the
// handle in a generation.Runner and hands sessions out to callers (the chat
// orchestrator). It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: Config and package defaults.
//   - types.go: lifecycle State, ModelInfo, Snapshot.
//   - errors.go: error types and helpers (IsModelNotFound, IsDependencyUnavailable).
//   - ensure.go: EnsureModel, loading and replacing the model.
//   - ops.go: asynchronous Switch.
//   - generate.go: Start, the generation entry point.
//   - unload.go: Unload and Close.
//   - status.go: Status/Snapshot/SanityCheck reporting.
//
// Build tags: the native runtime is compiled in with `-tags=llama` (see
// internal/engine). Without it, loads fail with a dependency-unavailable
// error and the HTTP layer answers 503.
package manager
