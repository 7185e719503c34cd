package ipc

import "errors"

// Sentinel errors for transport operations.
var (
	// ErrSendFailed indicates a write on the channel failed. The channel
	// is unusable afterwards and should be closed.
	ErrSendFailed = errors.New("ipc: send failed")

	// ErrReceiveFailed indicates a read on the channel failed, either
	// because the connection broke or because the channel was closed.
	ErrReceiveFailed = errors.New("ipc: receive failed")
)
