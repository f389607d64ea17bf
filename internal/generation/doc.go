// Package generation runs the incremental decode loop against an
// engine.Handle and streams text fragments to a consumer.
//
//   - runner.go: Runner owns the handle and admits one session at a time.
//   - session.go: Session state machine (initializing, decoding, sampling,
//     stopped/cancelled/failed) and the fragment channel.
//   - request.go: Request, Params, stop predicates and Result.
//   - utf8.go: holding back incomplete multi-byte characters.
//   - metrics.go: Prometheus collectors.
package generation
