package messages

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestCodec_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
	}{
		{
			name: "plugin register request",
			env: Envelope{
				MessageType: TypePluginRegisterRequest,
				Data:        &PluginRegisterRequest{PluginID: "virtual-things"},
			},
		},
		{
			name: "adapter added notification",
			env: Envelope{
				MessageType: TypeAdapterAddedNotification,
				Data: &AdapterAddedNotification{
					PluginID:    "virtual-things",
					AdapterID:   "virtual-adapter",
					Name:        "Virtual Adapter",
					PackageName: "virtual-things",
				},
			},
		},
		{
			name: "device added notification",
			env: Envelope{
				MessageType: TypeDeviceAddedNotification,
				Data: &DeviceAddedNotification{
					PluginID:  "virtual-things",
					AdapterID: "virtual-adapter",
					Device: DeviceDescription{
						ID:    "lamp-1",
						Title: "Desk Lamp",
						Types: []string{"Light", "OnOffSwitch"},
						Properties: map[string]PropertyDescription{
							"on": {Type: "boolean", Value: true},
						},
					},
				},
			},
		},
		{
			name: "property changed with correlation id",
			env: Envelope{
				MessageType: TypeDevicePropertyChangedNotification,
				Data: &DevicePropertyChangedNotification{
					Correlation:  Correlation{MessageID: 42},
					PluginID:     "virtual-things",
					AdapterID:    "virtual-adapter",
					DeviceID:     "lamp-1",
					PropertyName: "brightness",
					Property:     PropertyDescription{Type: "integer", Value: float64(80)},
				},
			},
		},
		{
			name: "set property command",
			env: Envelope{
				MessageType: TypeDeviceSetPropertyCommand,
				Data: &DeviceSetPropertyCommand{
					PluginID:      "virtual-things",
					AdapterID:     "virtual-adapter",
					DeviceID:      "lamp-1",
					PropertyName:  "on",
					PropertyValue: true,
				},
			},
		},
		{
			name: "action status notification",
			env: Envelope{
				MessageType: TypeDeviceActionStatusNotification,
				Data: &DeviceActionStatusNotification{
					PluginID:  "virtual-things",
					AdapterID: "virtual-adapter",
					DeviceID:  "lamp-1",
					Action: ActionDescription{
						ID:     "act-1",
						Status: "pending",
					},
				},
			},
		},
		{
			name: "gateway response",
			env: Envelope{
				MessageType: TypeGatewayResponse,
				Data: &GatewayResponse{
					Correlation: Correlation{MessageID: 7},
					PluginID:    "virtual-things",
					Success:     true,
				},
			},
		},
	}

	var codec Codec
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := codec.Encode(tt.env)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			got, err := codec.Decode(raw)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.MessageType != tt.env.MessageType {
				t.Errorf("messageType = %q, want %q", got.MessageType, tt.env.MessageType)
			}

			// Compare via JSON since payload values survive as any.
			want, _ := json.Marshal(tt.env.Data)
			have, _ := json.Marshal(got.Data)
			if string(want) != string(have) {
				t.Errorf("payload = %s, want %s", have, want)
			}
		})
	}
}

func TestCodec_DecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "invalid json", raw: `{"messageType": "pluginRegisterRequest"`},
		{name: "not an object", raw: `[1, 2, 3]`},
		{name: "missing message type", raw: `{"data": {"pluginId": "p"}}`},
		{name: "missing data", raw: `{"messageType": "pluginRegisterRequest"}`},
		{name: "wrong payload shape", raw: `{"messageType": "pluginRegisterRequest", "data": "nope"}`},
		{
			name: "missing required field",
			raw:  `{"messageType": "deviceSetPropertyCommand", "data": {"pluginId": "p", "adapterId": "a", "deviceId": "d"}}`,
		},
	}

	var codec Codec
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode([]byte(tt.raw))
			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("Decode() error = %v, want ErrMalformedMessage", err)
			}
		})
	}
}

func TestCodec_DecodeUnknownType(t *testing.T) {
	var codec Codec
	raw := `{"messageType": "deviceWarpDriveCommand", "data": {"deviceId": "d"}}`

	_, err := codec.Decode([]byte(raw))
	if !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("Decode() error = %v, want ErrUnknownMessageType", err)
	}
	if errors.Is(err, ErrMalformedMessage) {
		t.Error("unknown type must not also report malformed")
	}
}

func TestCodec_DecodeIgnoresUnknownFields(t *testing.T) {
	var codec Codec
	raw := `{
		"messageType": "deviceSetPropertyCommand",
		"data": {
			"pluginId": "p",
			"adapterId": "a",
			"deviceId": "lamp-1",
			"propertyName": "on",
			"propertyValue": true,
			"futureField": {"nested": 1}
		}
	}`

	env, err := codec.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	cmd, ok := env.Data.(*DeviceSetPropertyCommand)
	if !ok {
		t.Fatalf("payload type = %T, want *DeviceSetPropertyCommand", env.Data)
	}
	if cmd.PropertyName != "on" || cmd.PropertyValue != true {
		t.Errorf("payload = %+v, want propertyName=on value=true", cmd)
	}
}

func TestCodec_EncodeRejectsUnknownType(t *testing.T) {
	var codec Codec
	_, err := codec.Encode(Envelope{
		MessageType: Type("madeUpType"),
		Data:        &PluginRegisterRequest{PluginID: "p"},
	})
	if !errors.Is(err, ErrUnknownMessageType) {
		t.Errorf("Encode() error = %v, want ErrUnknownMessageType", err)
	}
}

func TestCodec_EncodeValidatesPayload(t *testing.T) {
	var codec Codec
	_, err := codec.Encode(Envelope{
		MessageType: TypePluginRegisterRequest,
		Data:        &PluginRegisterRequest{},
	})
	if !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("Encode() error = %v, want ErrMalformedMessage", err)
	}
	if !strings.Contains(err.Error(), "pluginId") {
		t.Errorf("error %q should name the missing field", err)
	}
}

func TestCorrelation_SetAndGet(t *testing.T) {
	p := &DevicePropertyChangedNotification{
		PluginID:     "p",
		AdapterID:    "a",
		DeviceID:     "d",
		PropertyName: "on",
	}

	var c Correlated = p
	c.SetMessageID(99)
	if got := c.CorrelationID(); got != 99 {
		t.Errorf("CorrelationID() = %d, want 99", got)
	}
}

func TestType_IsResponse(t *testing.T) {
	if !TypeGatewayResponse.IsResponse() {
		t.Error("gatewayResponse should be a response type")
	}
	if !TypePluginRegisterResponse.IsResponse() {
		t.Error("pluginRegisterResponse should be a response type")
	}
	if TypeDeviceSetPropertyCommand.IsResponse() {
		t.Error("deviceSetPropertyCommand is not a response type")
	}
}
