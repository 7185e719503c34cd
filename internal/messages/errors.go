package messages

import (
	"errors"
	"fmt"
)

// Sentinel errors for message encoding and decoding.
//
// These errors can be checked with errors.Is() for specific error handling:
//
//	env, err := codec.Decode(raw)
//	if errors.Is(err, messages.ErrUnknownMessageType) {
//	    // skip message, do not escalate
//	}
var (
	// ErrMalformedMessage indicates the raw bytes were not a well-formed
	// envelope: invalid JSON, missing type or data, wrong payload shape,
	// or a required field absent.
	ErrMalformedMessage = errors.New("messages: malformed message")

	// ErrUnknownMessageType indicates a structurally valid envelope whose
	// message type is outside the known set. Distinct from
	// ErrMalformedMessage so callers can drop these without counting them
	// as corruption.
	ErrUnknownMessageType = errors.New("messages: unknown message type")
)

// fieldError wraps ErrMalformedMessage with the missing field name.
func fieldError(name string) error {
	return fmt.Errorf("%w: missing required field %q", ErrMalformedMessage, name)
}

// requireFields returns a field error for the first entry whose value is
// false. Map iteration order is not stable, so callers only rely on which
// fields are named, not on ordering.
func requireFields(present map[string]bool) error {
	for name, ok := range present {
		if !ok {
			return fieldError(name)
		}
	}
	return nil
}
