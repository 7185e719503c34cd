package engine

import "errors"

// Sentinel errors for the protocol engine.
//
// ErrProtocolVersion and ErrReconnectExhausted are fatal: Run returns them
// and the process should exit. The others surface through request callbacks.
var (
	// ErrRequestTimeout indicates a correlated request saw no response
	// within the request timeout.
	ErrRequestTimeout = errors.New("engine: request timed out")

	// ErrConnectionLost indicates the connection dropped while a request
	// was in flight. The engine will reconnect; the request will not be
	// retried.
	ErrConnectionLost = errors.New("engine: connection lost")

	// ErrDraining indicates the engine is shutting down and will not
	// deliver a response.
	ErrDraining = errors.New("engine: draining")

	// ErrProtocolVersion indicates the gateway reported a version this
	// runtime cannot speak. Fatal: reconnecting would not help.
	ErrProtocolVersion = errors.New("engine: incompatible gateway version")

	// ErrReconnectExhausted indicates the configured reconnect attempt
	// limit was reached without a successful handshake. Fatal.
	ErrReconnectExhausted = errors.New("engine: reconnect attempts exhausted")
)
