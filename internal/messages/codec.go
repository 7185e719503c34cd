package messages

import (
	"encoding/json"
	"fmt"
)

// wireEnvelope is the raw JSON shape of every message on the socket.
type wireEnvelope struct {
	MessageType Type            `json:"messageType"`
	Data        json.RawMessage `json:"data"`
}

// Codec translates between Envelope values and the JSON wire format.
//
// The zero value is ready to use. Codec is stateless and safe for
// concurrent use.
type Codec struct{}

// Encode serialises an envelope to its wire form.
//
// Parameters:
//   - env: Envelope with a known message type and matching payload
//
// Returns:
//   - []byte: JSON bytes ready for the transport
//   - error: ErrUnknownMessageType if the type is outside the known set,
//     ErrMalformedMessage if the payload is nil or fails validation
func (c Codec) Encode(env Envelope) ([]byte, error) {
	if newPayload(env.MessageType) == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.MessageType)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("%w: nil payload for %q", ErrMalformedMessage, env.MessageType)
	}
	if err := env.Data.validate(); err != nil {
		return nil, fmt.Errorf("%s payload: %w", env.MessageType, err)
	}

	data, err := json.Marshal(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal %q payload: %v", ErrMalformedMessage, env.MessageType, err)
	}
	raw, err := json.Marshal(wireEnvelope{MessageType: env.MessageType, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal envelope: %v", ErrMalformedMessage, err)
	}
	return raw, nil
}

// Decode parses wire bytes into a typed envelope.
//
// Unknown fields inside a known payload are ignored, so newer gateways can
// extend payloads without breaking older plugins.
//
// Parameters:
//   - raw: one complete message as received from the transport
//
// Returns:
//   - Envelope: decoded envelope with Data set to the kind-specific struct
//   - error: ErrMalformedMessage for structural problems or missing
//     required fields, ErrUnknownMessageType for valid envelopes of an
//     unrecognised type
func (c Codec) Decode(raw []byte) (Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if wire.MessageType == "" {
		return Envelope{}, fieldError("messageType")
	}
	if len(wire.Data) == 0 {
		return Envelope{}, fieldError("data")
	}

	payload := newPayload(wire.MessageType)
	if payload == nil {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, wire.MessageType)
	}
	if err := json.Unmarshal(wire.Data, payload); err != nil {
		return Envelope{}, fmt.Errorf("%w: decode %q payload: %v", ErrMalformedMessage, wire.MessageType, err)
	}
	if err := payload.validate(); err != nil {
		return Envelope{}, fmt.Errorf("%s payload: %w", wire.MessageType, err)
	}

	return Envelope{MessageType: wire.MessageType, Data: payload}, nil
}

// newPayload returns a fresh payload struct for the given type, or nil when
// the type is unknown.
func newPayload(t Type) Payload {
	switch t {
	case TypePluginRegisterRequest:
		return &PluginRegisterRequest{}
	case TypePluginRegisterResponse:
		return &PluginRegisterResponse{}
	case TypePluginUnloadRequest:
		return &PluginUnloadRequest{}
	case TypePluginUnloadResponse:
		return &PluginUnloadResponse{}
	case TypePluginErrorNotification:
		return &PluginErrorNotification{}
	case TypeAdapterAddedNotification:
		return &AdapterAddedNotification{}
	case TypeAdapterUnloadRequest:
		return &AdapterUnloadRequest{}
	case TypeAdapterUnloadResponse:
		return &AdapterUnloadResponse{}
	case TypeAdapterRemoveDeviceRequest:
		return &AdapterRemoveDeviceRequest{}
	case TypeAdapterRemoveDeviceResponse:
		return &AdapterRemoveDeviceResponse{}
	case TypeAdapterCancelRemoveDeviceCommand:
		return &AdapterCancelRemoveDeviceCommand{}
	case TypeAdapterStartPairingCommand:
		return &AdapterStartPairingCommand{}
	case TypeAdapterCancelPairingCommand:
		return &AdapterCancelPairingCommand{}
	case TypeAdapterPairingPromptNotification:
		return &AdapterPairingPromptNotification{}
	case TypeAdapterUnpairingPromptNotification:
		return &AdapterUnpairingPromptNotification{}
	case TypeDeviceAddedNotification:
		return &DeviceAddedNotification{}
	case TypeDeviceRemovedNotification:
		return &DeviceRemovedNotification{}
	case TypeDevicePropertyChangedNotification:
		return &DevicePropertyChangedNotification{}
	case TypeDeviceSetPropertyCommand:
		return &DeviceSetPropertyCommand{}
	case TypeDeviceRequestActionRequest:
		return &DeviceRequestActionRequest{}
	case TypeDeviceRequestActionResponse:
		return &DeviceRequestActionResponse{}
	case TypeDeviceActionStatusNotification:
		return &DeviceActionStatusNotification{}
	case TypeDeviceEventNotification:
		return &DeviceEventNotification{}
	case TypeDeviceConnectedStateNotification:
		return &DeviceConnectedStateNotification{}
	case TypeGatewayResponse:
		return &GatewayResponse{}
	default:
		return nil
	}
}
