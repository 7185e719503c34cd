package addon

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-addon/internal/messages"
)

// Device is one thing an adapter exposes to the gateway: a set of named
// properties, action definitions, and event definitions.
type Device struct {
	id          string
	title       string
	context     string
	types       []string
	description string
	adapter     *Adapter

	properties map[string]*Property
	actionDefs map[string]messages.ActionDescription
	eventDefs  map[string]messages.EventDescription

	// Guarded by the manager mutex.
	actions   map[string]*Action
	connected bool
}

// DeviceOption customises a device during construction.
type DeviceOption func(*Device)

// WithTypes sets the device's semantic @type values.
func WithTypes(types ...string) DeviceOption {
	return func(d *Device) { d.types = types }
}

// WithDescription sets a human-readable description.
func WithDescription(desc string) DeviceOption {
	return func(d *Device) { d.description = desc }
}

// NewDevice creates a device. It becomes visible to the gateway only when
// added to an adapter with Adapter.AddDevice.
func NewDevice(id, title string, opts ...DeviceOption) *Device {
	d := &Device{
		id:         id,
		title:      title,
		context:    "https://webthings.io/schemas",
		properties: make(map[string]*Property),
		actionDefs: make(map[string]messages.ActionDescription),
		eventDefs:  make(map[string]messages.EventDescription),
		actions:    make(map[string]*Action),
		connected:  true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ID returns the device id.
func (d *Device) ID() string { return d.id }

// Title returns the device title.
func (d *Device) Title() string { return d.title }

// AddProperty defines a property on the device. Call before AddDevice so
// the gateway sees the full description.
func (d *Device) AddProperty(name string, desc messages.PropertyDescription, initial any) *Property {
	p := &Property{
		name:        name,
		description: desc,
		device:      d,
		value:       initial,
	}
	d.properties[name] = p
	return p
}

// Property returns the named property, or nil.
func (d *Device) Property(name string) *Property {
	return d.properties[name]
}

// AddAction defines an action on the device.
func (d *Device) AddAction(name string, desc messages.ActionDescription) {
	d.actionDefs[name] = desc
}

// AddEvent defines an event on the device.
func (d *Device) AddEvent(name string, desc messages.EventDescription) {
	d.eventDefs[name] = desc
}

// BeginAction records a new action invocation in the created state.
//
// Returns:
//   - *Action: the new invocation, ready for Start/Finish/Fail
//   - error: ErrUnknownAction if the name is not defined,
//     ErrDuplicateInvocation if the id was already used; the model is
//     unchanged in both cases
func (d *Device) BeginAction(id, name string, input map[string]any) (*Action, error) {
	if _, ok := d.actionDefs[name]; !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownAction, name, d.id)
	}

	m := d.adapter.manager
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := d.actions[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateInvocation, id)
	}
	a := &Action{
		id:            id,
		name:          name,
		input:         input,
		device:        d,
		status:        ActionStatusCreated,
		timeRequested: time.Now().UTC().Format(time.RFC3339),
	}
	d.actions[id] = a
	return a, nil
}

// Action returns a previously begun invocation, or nil. Terminal
// invocations remain retrievable.
func (d *Device) Action(id string) *Action {
	m := d.adapter.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	return d.actions[id]
}

// SetConnected reports device connectivity to the gateway.
func (d *Device) SetConnected(connected bool) error {
	m := d.adapter.manager

	m.mu.Lock()
	d.connected = connected
	m.mu.Unlock()

	return m.emitter.Notify(messages.Envelope{
		MessageType: messages.TypeDeviceConnectedStateNotification,
		Data: &messages.DeviceConnectedStateNotification{
			PluginID:  m.pluginID,
			AdapterID: d.adapter.id,
			DeviceID:  d.id,
			Connected: connected,
		},
	})
}

// Connected reports the last connectivity state set on the device.
func (d *Device) Connected() bool {
	m := d.adapter.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	return d.connected
}

// EmitEvent sends a one-shot event to the gateway.
//
// Returns ErrUnknownAction-style addressing errors only for undefined event
// names; defined events are always forwarded.
func (d *Device) EmitEvent(name string, data any) error {
	def, ok := d.eventDefs[name]
	if !ok {
		return fmt.Errorf("addon: event %q not defined on %s", name, d.id)
	}

	m := d.adapter.manager
	m.recorder.RecordEvent(d.adapter.id, d.id, name, data)

	return m.emitter.Notify(messages.Envelope{
		MessageType: messages.TypeDeviceEventNotification,
		Data: &messages.DeviceEventNotification{
			PluginID:  m.pluginID,
			AdapterID: d.adapter.id,
			DeviceID:  d.id,
			Event: messages.EventDescription{
				Title:     name,
				Type:      def.Type,
				Data:      data,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			},
		},
	})
}

// Description returns the full wire description of the device, including
// current property values.
func (d *Device) Description() messages.DeviceDescription {
	m := d.adapter.manager
	m.mu.Lock()
	defer m.mu.Unlock()

	props := make(map[string]messages.PropertyDescription, len(d.properties))
	for name, p := range d.properties {
		props[name] = p.describeLocked()
	}
	actions := make(map[string]messages.ActionDescription, len(d.actionDefs))
	for name, def := range d.actionDefs {
		actions[name] = def
	}
	events := make(map[string]messages.EventDescription, len(d.eventDefs))
	for name, def := range d.eventDefs {
		events[name] = def
	}

	return messages.DeviceDescription{
		ID:          d.id,
		Title:       d.title,
		Context:     d.context,
		Types:       d.types,
		Description: d.description,
		Properties:  props,
		Actions:     actions,
		Events:      events,
	}
}
