// Package chat coordinates one conversation at a time over a generation
// runner: it owns the message history, starts a generation turn per user
// input, applies streamed fragments to the pending assistant message,
// finalizes and persists completed turns and publishes snapshots to
// subscribers.
//
//   - message.go: Message, Sender and the State tagged variant.
//   - orchestrator.go: Orchestrator (Send, Cancel, SwitchChat, Clear).
//   - turn.go: Turn, the handle for one in-flight exchange.
//   - snapshot.go: Snapshot and the subscriber hub.
//   - store.go: collaborator interfaces (TranscriptStore, PromptBuilder,
//     Generator).
package chat
