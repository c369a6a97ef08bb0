// Package dispatch implements the asynchronous event relay shared by the audit stream
// and the invalidation broadcast bus.
//
// # Components
//
//   - [Sink]: interface for event consumers.
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [SinkFunc]: adapter turning a function into a [Sink].
//
// # Architecture boundaries
//
// This package owns buffering and delivery order. It does NOT decide which events to emit
// or who receives them; the Manager and the broadcast bus make those decisions.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on session logic.
//   - Import goSession or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package dispatch
