// Package ipc provides the message-socket transport between the add-on and
// the gateway.
//
// The transport is WebSocket: each protocol envelope travels as one text
// frame, so message boundaries come for free and no length-prefix framing
// is needed. The package exposes the transport behind the small Channel
// interface so the engine can be tested against an in-memory fake.
//
// Concurrency contract:
//   - Send is safe for concurrent use (serialised by an internal mutex)
//   - Receive must be called from a single goroutine
//   - Close is idempotent and unblocks a pending Receive
package ipc
