// Package messages defines the add-on protocol envelope types and the JSON
// codec that moves them on and off the wire.
//
// Every message exchanged with the gateway is an envelope:
//
//	{"messageType": "<kind>", "data": { ... }}
//
// The package provides:
//   - A closed set of message Type constants
//   - Typed payload structs for every kind, with required-field validation
//   - Codec, a stateless Encode/Decode pair
//
// Decode distinguishes two failure modes so the engine can treat them
// differently: ErrMalformedMessage for corrupt or incomplete envelopes,
// and ErrUnknownMessageType for well-formed envelopes of a kind this
// runtime does not know. Unknown fields inside known payloads are ignored
// for forward compatibility.
package messages
