package addon

import (
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-addon/internal/messages"
)

// Emitter sends envelopes toward the gateway. The protocol engine implements
// it; tests substitute a recording fake.
type Emitter interface {
	// Notify queues a fire-and-forget envelope.
	Notify(env messages.Envelope) error

	// Request queues a correlated envelope. done is invoked exactly once:
	// with the gateway's response, or with an error if the request timed
	// out or the connection was lost first.
	Request(env messages.Envelope, done func(resp *messages.GatewayResponse, err error)) error
}

// Logger is the minimal logging surface the entity model needs.
// *logging.Logger satisfies it.
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

// Recorder receives property values and events for telemetry. The telemetry
// package implements it; the default discards everything.
type Recorder interface {
	RecordProperty(adapterID, deviceID, name string, value any)
	RecordEvent(adapterID, deviceID, name string, data any)
}

type noopRecorder struct{}

func (noopRecorder) RecordProperty(string, string, string, any) {}
func (noopRecorder) RecordEvent(string, string, string, any)    {}

// Manager owns the plugin's entity model: every adapter this plugin has
// registered, and through them every device, property, action and event.
//
// All model mutation goes through a single mutex, so gateway-driven changes
// (arriving on the engine's dispatch goroutine) and adapter-driven changes
// (arriving on adapter goroutines) never interleave mid-update.
type Manager struct {
	pluginID string
	emitter  Emitter
	logger   Logger
	recorder Recorder

	mu       sync.Mutex
	adapters map[string]*Adapter

	// sendMu serializes a property mutation with the enqueue of its
	// property-changed envelope, so the outbound queue sees value changes
	// in mutation order. Always taken before mu, never while holding mu.
	sendMu sync.Mutex
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithLogger attaches a logger to the manager.
func WithLogger(l Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithRecorder attaches a telemetry recorder to the manager.
func WithRecorder(r Recorder) ManagerOption {
	return func(m *Manager) { m.recorder = r }
}

// NewManager creates an empty entity model for the given plugin.
//
// Parameters:
//   - pluginID: plugin identifier stamped on every outbound envelope
//   - emitter: outbound path toward the gateway
//   - opts: optional logger and recorder
//
// Returns:
//   - *Manager: ready to accept adapters
func NewManager(pluginID string, emitter Emitter, opts ...ManagerOption) *Manager {
	m := &Manager{
		pluginID: pluginID,
		emitter:  emitter,
		logger:   noopLogger{},
		recorder: noopRecorder{},
		adapters: make(map[string]*Adapter),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PluginID returns the plugin identifier.
func (m *Manager) PluginID() string { return m.pluginID }

// AddAdapter registers an adapter and announces it to the gateway.
//
// Registering the same adapter id twice replaces the old registration and
// logs a warning.
func (m *Manager) AddAdapter(a *Adapter) error {
	m.mu.Lock()
	if _, exists := m.adapters[a.id]; exists {
		m.logger.Warn("adapter re-registered", "adapter_id", a.id)
	}
	a.manager = m
	m.adapters[a.id] = a
	m.mu.Unlock()

	return m.emitter.Notify(messages.Envelope{
		MessageType: messages.TypeAdapterAddedNotification,
		Data: &messages.AdapterAddedNotification{
			PluginID:    m.pluginID,
			AdapterID:   a.id,
			Name:        a.name,
			PackageName: a.packageName,
		},
	})
}

// AddDevice adds a device to the named adapter.
//
// Returns:
//   - error: ErrUnknownAdapter when the adapter is not registered; the
//     model is unchanged in that case
func (m *Manager) AddDevice(adapterID string, d *Device) error {
	adapter := m.Adapter(adapterID)
	if adapter == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAdapter, adapterID)
	}
	return adapter.AddDevice(d)
}

// Adapter returns the adapter with the given id, or nil.
func (m *Manager) Adapter(id string) *Adapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adapters[id]
}

// AdapterIDs returns the ids of all registered adapters. The engine uses
// this while draining to unregister each adapter with the gateway.
func (m *Manager) AdapterIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.adapters))
	for id := range m.adapters {
		ids = append(ids, id)
	}
	return ids
}

// RemoveAdapter unregisters an adapter locally. Removing an unknown id is
// a logged no-op, so the operation is idempotent.
func (m *Manager) RemoveAdapter(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.adapters[id]; !ok {
		m.logger.Warn("remove of unknown adapter ignored", "adapter_id", id)
		return
	}
	delete(m.adapters, id)
}

// UnloadAll asks every adapter handler to release its resources. Called
// once during shutdown, after draining.
func (m *Manager) UnloadAll() {
	m.mu.Lock()
	adapters := make([]*Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		adapters = append(adapters, a)
	}
	m.mu.Unlock()

	for _, a := range adapters {
		a.handler.Unload()
	}
}

// HandleMessage dispatches a gateway-originated envelope into the entity
// model. The engine calls it from the dispatch goroutine for every inbound
// envelope that is not a correlated response.
//
// Returns:
//   - error: ErrUnknownAdapter and friends when addressing fails; the model
//     is left unchanged in that case. Handler failures are reported back to
//     the gateway where the protocol defines a failure reply, and returned.
func (m *Manager) HandleMessage(env messages.Envelope) error {
	switch data := env.Data.(type) {
	case *messages.DeviceSetPropertyCommand:
		return m.handleSetProperty(data)
	case *messages.DeviceRequestActionRequest:
		return m.handleRequestAction(data)
	case *messages.AdapterStartPairingCommand:
		return m.handleStartPairing(data)
	case *messages.AdapterCancelPairingCommand:
		return m.handleCancelPairing(data)
	case *messages.AdapterRemoveDeviceRequest:
		return m.handleRemoveDevice(data)
	case *messages.AdapterCancelRemoveDeviceCommand:
		return m.handleCancelRemoveDevice(data)
	case *messages.AdapterUnloadRequest:
		return m.handleAdapterUnload(data)
	default:
		m.logger.Warn("no model handler for message", "message_type", string(env.MessageType))
		return nil
	}
}

func (m *Manager) handleSetProperty(cmd *messages.DeviceSetPropertyCommand) error {
	adapter, device, err := m.lookupDevice(cmd.AdapterID, cmd.DeviceID)
	if err != nil {
		return err
	}
	prop := device.Property(cmd.PropertyName)
	if prop == nil {
		return fmt.Errorf("%w: %s on %s", ErrUnknownProperty, cmd.PropertyName, cmd.DeviceID)
	}
	if prop.description.ReadOnly {
		return fmt.Errorf("%w: %s on %s", ErrReadOnlyProperty, cmd.PropertyName, cmd.DeviceID)
	}

	if err := adapter.handler.SetProperty(device, prop, cmd.PropertyValue); err != nil {
		m.logger.Error("set property rejected by handler",
			"adapter_id", cmd.AdapterID,
			"device_id", cmd.DeviceID,
			"property", cmd.PropertyName,
			"error", err)
		return err
	}

	prop.applyFromGateway(cmd.PropertyValue)
	return nil
}

func (m *Manager) handleRequestAction(req *messages.DeviceRequestActionRequest) error {
	adapter, device, err := m.lookupDevice(req.AdapterID, req.DeviceID)
	if err != nil {
		m.replyActionRequest(req, false)
		return err
	}

	action, err := device.BeginAction(req.ActionID, req.ActionName, req.Input)
	if err != nil {
		m.replyActionRequest(req, false)
		return err
	}

	if err := m.replyActionRequest(req, true); err != nil {
		return err
	}

	// Handler runs the action; it drives status transitions itself.
	if err := adapter.handler.RequestAction(device, action); err != nil {
		action.Fail(err.Error())
		return err
	}
	return nil
}

func (m *Manager) replyActionRequest(req *messages.DeviceRequestActionRequest, success bool) error {
	return m.emitter.Notify(messages.Envelope{
		MessageType: messages.TypeDeviceRequestActionResponse,
		Data: &messages.DeviceRequestActionResponse{
			PluginID:   m.pluginID,
			AdapterID:  req.AdapterID,
			DeviceID:   req.DeviceID,
			ActionName: req.ActionName,
			ActionID:   req.ActionID,
			Success:    success,
		},
	})
}

func (m *Manager) handleStartPairing(cmd *messages.AdapterStartPairingCommand) error {
	adapter := m.Adapter(cmd.AdapterID)
	if adapter == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAdapter, cmd.AdapterID)
	}
	adapter.startPairing(cmd.Timeout)
	return nil
}

func (m *Manager) handleCancelPairing(cmd *messages.AdapterCancelPairingCommand) error {
	adapter := m.Adapter(cmd.AdapterID)
	if adapter == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAdapter, cmd.AdapterID)
	}
	adapter.cancelPairing()
	return nil
}

func (m *Manager) handleRemoveDevice(req *messages.AdapterRemoveDeviceRequest) error {
	adapter, device, err := m.lookupDevice(req.AdapterID, req.DeviceID)
	if err != nil {
		return err
	}
	if err := adapter.handler.RemoveDevice(device); err != nil {
		m.logger.Error("device removal failed",
			"adapter_id", req.AdapterID,
			"device_id", req.DeviceID,
			"error", err)
		return err
	}
	adapter.dropDevice(req.DeviceID)

	return m.emitter.Notify(messages.Envelope{
		MessageType: messages.TypeAdapterRemoveDeviceResponse,
		Data: &messages.AdapterRemoveDeviceResponse{
			PluginID:  m.pluginID,
			AdapterID: req.AdapterID,
			DeviceID:  req.DeviceID,
		},
	})
}

func (m *Manager) handleCancelRemoveDevice(cmd *messages.AdapterCancelRemoveDeviceCommand) error {
	adapter, device, err := m.lookupDevice(cmd.AdapterID, cmd.DeviceID)
	if err != nil {
		return err
	}
	adapter.handler.CancelRemoveDevice(device)
	return nil
}

func (m *Manager) handleAdapterUnload(req *messages.AdapterUnloadRequest) error {
	adapter := m.Adapter(req.AdapterID)
	if adapter == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAdapter, req.AdapterID)
	}
	adapter.handler.Unload()
	m.RemoveAdapter(req.AdapterID)

	return m.emitter.Notify(messages.Envelope{
		MessageType: messages.TypeAdapterUnloadResponse,
		Data: &messages.AdapterUnloadResponse{
			PluginID:  m.pluginID,
			AdapterID: req.AdapterID,
		},
	})
}

// lookupDevice resolves an adapter/device pair, returning sentinel errors
// that identify which level of addressing failed.
func (m *Manager) lookupDevice(adapterID, deviceID string) (*Adapter, *Device, error) {
	adapter := m.Adapter(adapterID)
	if adapter == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, adapterID)
	}
	device := adapter.Device(deviceID)
	if device == nil {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrUnknownDevice, adapterID, deviceID)
	}
	return adapter, device, nil
}
