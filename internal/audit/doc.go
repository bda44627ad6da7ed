// Package audit delivers security events (logins, lockouts, token rotation,
// two-factor changes) to a caller-supplied sink.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full
//     semantics.
//   - [SafeEmit]: synchronous delivery that recovers sink panics.
//
// # What this package must NOT do
//
//   - Decide which events to emit; the Engine and flow functions do.
//   - Let a failing sink fail the operation being audited.
//   - Import campusAuth or any sibling internal package.
package audit
