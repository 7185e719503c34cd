package mqttbridge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-addon/internal/addon"
	"github.com/nerrad567/gray-logic-addon/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-addon/internal/messages"
)

const publishTimeout = 5 * time.Second

// Logger is the minimal logging surface the bridge needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bridge exposes MQTT topic pairs as gateway devices. Each configured
// device maps one state topic (inbound values) and optionally one command
// topic (gateway-initiated writes) onto a single property.
type Bridge struct {
	cfg    config.MQTTBridgeConfig
	logger Logger

	client  paho.Client
	adapter *addon.Adapter
	devices map[string]config.MQTTDeviceConfig
}

// New creates the bridge handler. The broker connection is established
// during Attach and maintained by the client's own reconnect loop.
func New(cfg config.MQTTBridgeConfig, logger Logger) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	devices := make(map[string]config.MQTTDeviceConfig, len(cfg.Devices))
	for _, d := range cfg.Devices {
		devices[d.ID] = d
	}
	return &Bridge{
		cfg:     cfg,
		logger:  logger,
		devices: devices,
	}
}

// Attach registers the adapter and its configured devices, then starts the
// broker connection. The connection retries in the background, so Attach
// succeeds even when the broker is down.
func (b *Bridge) Attach(m *addon.Manager) error {
	b.adapter = addon.NewAdapter(b.cfg.AdapterID, "MQTT Bridge", m.PluginID(), b)
	if err := m.AddAdapter(b.adapter); err != nil {
		return fmt.Errorf("mqttbridge: register adapter: %w", err)
	}

	for _, devCfg := range b.cfg.Devices {
		device := addon.NewDevice(devCfg.ID, devCfg.Title)
		device.AddProperty(devCfg.Property, messages.PropertyDescription{
			Type:     devCfg.Type,
			ReadOnly: devCfg.CommandTopic == "",
		}, zeroValue(devCfg.Type))
		if err := b.adapter.AddDevice(device); err != nil {
			return fmt.Errorf("mqttbridge: add device %s: %w", devCfg.ID, err)
		}
	}

	opts := paho.NewClientOptions().
		AddBroker(b.brokerURL()).
		SetClientID(b.cfg.Broker.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(reconnectInterval(b.cfg.Reconnect)).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(b.onConnectionLost)
	if b.cfg.Auth.Username != "" {
		opts.SetUsername(b.cfg.Auth.Username)
		opts.SetPassword(b.cfg.Auth.Password)
	}

	b.client = paho.NewClient(opts)
	b.client.Connect()
	return nil
}

func (b *Bridge) brokerURL() string {
	scheme := "tcp"
	if b.cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.cfg.Broker.Host, b.cfg.Broker.Port)
}

func reconnectInterval(cfg config.ReconnectConfig) time.Duration {
	if cfg.InitialDelay <= 0 {
		return time.Second
	}
	return time.Duration(cfg.InitialDelay) * time.Second
}

// onConnect subscribes every state topic and marks the devices connected.
func (b *Bridge) onConnect(client paho.Client) {
	b.logger.Info("broker connected", "broker", b.brokerURL())

	for _, devCfg := range b.cfg.Devices {
		devCfg := devCfg
		token := client.Subscribe(devCfg.StateTopic, byte(b.cfg.QoS), func(_ paho.Client, msg paho.Message) {
			b.handleState(devCfg, msg.Payload())
		})
		if token.WaitTimeout(publishTimeout) && token.Error() != nil {
			b.logger.Error("subscribe failed",
				"topic", devCfg.StateTopic, "error", token.Error())
			continue
		}
		if device := b.adapter.Device(devCfg.ID); device != nil {
			_ = device.SetConnected(true)
		}
	}
}

func (b *Bridge) onConnectionLost(_ paho.Client, err error) {
	b.logger.Warn("broker connection lost", "error", err)
	for _, device := range b.adapter.Devices() {
		_ = device.SetConnected(false)
	}
}

// handleState applies an inbound state payload to the bridged property.
func (b *Bridge) handleState(devCfg config.MQTTDeviceConfig, payload []byte) {
	value, err := parseValue(devCfg.Type, payload)
	if err != nil {
		b.logger.Warn("unparseable state payload",
			"device_id", devCfg.ID, "topic", devCfg.StateTopic, "error", err)
		return
	}

	device := b.adapter.Device(devCfg.ID)
	if device == nil {
		return
	}
	if err := device.Property(devCfg.Property).SetValueLocal(value); err != nil {
		b.logger.Warn("state update failed", "device_id", devCfg.ID, "error", err)
	}
}

// SetProperty publishes a gateway-initiated write to the command topic.
func (b *Bridge) SetProperty(device *addon.Device, property *addon.Property, value any) error {
	devCfg, ok := b.devices[device.ID()]
	if !ok {
		return fmt.Errorf("mqttbridge: device %s not configured", device.ID())
	}
	if devCfg.CommandTopic == "" {
		return fmt.Errorf("mqttbridge: %s/%s has no command topic", device.ID(), property.Name())
	}

	payload, err := formatValue(devCfg.Type, value)
	if err != nil {
		return err
	}
	token := b.client.Publish(devCfg.CommandTopic, byte(b.cfg.QoS), false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqttbridge: publish to %s timed out", devCfg.CommandTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttbridge: publish to %s: %w", devCfg.CommandTopic, err)
	}
	return nil
}

// RequestAction always fails; bridged devices expose no actions.
func (b *Bridge) RequestAction(device *addon.Device, action *addon.Action) error {
	return fmt.Errorf("mqttbridge: device %s has no actions", device.ID())
}

// StartPairing is a no-op; the device list is fixed by configuration.
func (b *Bridge) StartPairing(time.Duration) {
	b.adapter.DonePairing()
}

// CancelPairing is a no-op.
func (b *Bridge) CancelPairing() {}

// RemoveDevice unsubscribes the device's state topic.
func (b *Bridge) RemoveDevice(device *addon.Device) error {
	devCfg, ok := b.devices[device.ID()]
	if !ok {
		return nil
	}
	if b.client != nil && b.client.IsConnected() {
		b.client.Unsubscribe(devCfg.StateTopic)
	}
	return nil
}

// CancelRemoveDevice is a no-op; removal is instantaneous.
func (b *Bridge) CancelRemoveDevice(*addon.Device) {}

// Unload disconnects from the broker.
func (b *Bridge) Unload() {
	if b.client != nil {
		b.client.Disconnect(250)
	}
}

// parseValue converts an MQTT payload into the property's value type.
func parseValue(propType string, payload []byte) (any, error) {
	text := strings.TrimSpace(string(payload))
	switch propType {
	case "boolean":
		switch strings.ToLower(text) {
		case "true", "1", "on":
			return true, nil
		case "false", "0", "off":
			return false, nil
		}
		return nil, fmt.Errorf("mqttbridge: %q is not a boolean", text)
	case "integer", "number":
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("mqttbridge: %q is not a number", text)
		}
		return v, nil
	case "string":
		return text, nil
	default:
		return nil, fmt.Errorf("mqttbridge: unsupported property type %q", propType)
	}
}

// formatValue converts a property value into an MQTT payload.
func formatValue(propType string, value any) (string, error) {
	switch propType {
	case "boolean":
		v, ok := value.(bool)
		if !ok {
			return "", fmt.Errorf("mqttbridge: expected boolean, got %T", value)
		}
		if v {
			return "true", nil
		}
		return "false", nil
	case "integer", "number":
		switch v := value.(type) {
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(v), nil
		default:
			return "", fmt.Errorf("mqttbridge: expected number, got %T", value)
		}
	case "string":
		v, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("mqttbridge: expected string, got %T", value)
		}
		return v, nil
	default:
		return "", fmt.Errorf("mqttbridge: unsupported property type %q", propType)
	}
}

// zeroValue is the initial property value before the first state message.
func zeroValue(propType string) any {
	switch propType {
	case "boolean":
		return false
	case "integer", "number":
		return float64(0)
	default:
		return ""
	}
}
