// Package engine implements the plugin side of the gateway protocol.
//
// The engine owns the connection lifecycle as a state machine:
//
//	disconnected -> connecting -> running -> draining
//
// Connecting dials the transport and performs the register handshake before
// any other traffic. Running pumps two loops: a writer draining the
// outbound queue and a reader dispatching inbound envelopes. Connection
// loss moves back to connecting with exponential backoff; context
// cancellation or a gateway unload request moves to draining, which fails
// outstanding requests, flushes the queue, unregisters adapters and closes
// the channel.
//
// Correlated requests flow through an internal pending table keyed by a
// monotonically increasing message id. Each entry carries an expiry timer;
// a response, a timeout, a connection loss or a drain settles it exactly
// once.
//
// Two failures are fatal and end Run: an incompatible gateway version and
// an exhausted reconnect budget. Everything else is survived.
package engine
