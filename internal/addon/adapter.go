package addon

import (
	"time"

	"github.com/nerrad567/gray-logic-addon/internal/messages"
)

// AdapterHandler is implemented by the protocol-specific side of an adapter
// (virtual devices, an MQTT bridge, and so on). The entity model calls it
// when the gateway asks the adapter to do something; the handler calls back
// into the model (SetValueLocal, EmitEvent, AddDevice) when the physical
// side changes.
type AdapterHandler interface {
	// StartPairing begins device discovery for the given window.
	StartPairing(timeout time.Duration)

	// CancelPairing aborts an in-progress discovery.
	CancelPairing()

	// SetProperty applies a gateway-initiated write to the physical side.
	// Returning an error rejects the write; the model stays unchanged.
	SetProperty(device *Device, property *Property, value any) error

	// RequestAction performs an action invocation. The handler drives the
	// action through Start/Finish/Fail itself; returning an error fails
	// the action immediately.
	RequestAction(device *Device, action *Action) error

	// RemoveDevice releases the physical side of a device being unpaired.
	RemoveDevice(device *Device) error

	// CancelRemoveDevice aborts an in-progress unpair.
	CancelRemoveDevice(device *Device)

	// Unload releases all adapter resources. Called once at shutdown or
	// on an adapter unload request.
	Unload()
}

// Adapter groups the devices provided by one protocol backend.
type Adapter struct {
	id          string
	name        string
	packageName string
	handler     AdapterHandler
	manager     *Manager

	// Guarded by the manager mutex once registered.
	devices map[string]*Device
	pairing bool
}

// NewAdapter creates an adapter. It becomes active once registered with
// Manager.AddAdapter.
func NewAdapter(id, name, packageName string, handler AdapterHandler) *Adapter {
	return &Adapter{
		id:          id,
		name:        name,
		packageName: packageName,
		handler:     handler,
		devices:     make(map[string]*Device),
	}
}

// ID returns the adapter id.
func (a *Adapter) ID() string { return a.id }

// Name returns the human-readable adapter name.
func (a *Adapter) Name() string { return a.name }

// Manager returns the owning manager, or nil before registration.
func (a *Adapter) Manager() *Manager { return a.manager }

// AddDevice adds a device to the adapter and announces it to the gateway.
// Adding a device with an id already present replaces the old one; the
// gateway treats the announcement as an update.
func (a *Adapter) AddDevice(d *Device) error {
	m := a.manager

	m.mu.Lock()
	d.adapter = a
	a.devices[d.id] = d
	m.mu.Unlock()

	return m.emitter.Notify(messages.Envelope{
		MessageType: messages.TypeDeviceAddedNotification,
		Data: &messages.DeviceAddedNotification{
			PluginID:  m.pluginID,
			AdapterID: a.id,
			Device:    d.Description(),
		},
	})
}

// RemoveDevice removes a device at the adapter's initiative and tells the
// gateway. Removing an unknown id is a logged no-op.
func (a *Adapter) RemoveDevice(deviceID string) error {
	m := a.manager

	m.mu.Lock()
	if _, ok := a.devices[deviceID]; !ok {
		m.mu.Unlock()
		m.logger.Warn("remove of unknown device ignored",
			"adapter_id", a.id, "device_id", deviceID)
		return nil
	}
	delete(a.devices, deviceID)
	m.mu.Unlock()

	return m.emitter.Notify(messages.Envelope{
		MessageType: messages.TypeDeviceRemovedNotification,
		Data: &messages.DeviceRemovedNotification{
			PluginID:  m.pluginID,
			AdapterID: a.id,
			DeviceID:  deviceID,
		},
	})
}

// dropDevice removes a device from the local model without notifying the
// gateway. Used for gateway-initiated removals, which are confirmed with a
// remove-device response instead.
func (a *Adapter) dropDevice(deviceID string) {
	m := a.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(a.devices, deviceID)
}

// Device returns the device with the given id, or nil.
func (a *Adapter) Device(id string) *Device {
	m := a.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	return a.devices[id]
}

// Devices returns all devices currently owned by the adapter.
func (a *Adapter) Devices() []*Device {
	m := a.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Device, 0, len(a.devices))
	for _, d := range a.devices {
		out = append(out, d)
	}
	return out
}

// Pairing reports whether discovery is in progress.
func (a *Adapter) Pairing() bool {
	m := a.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	return a.pairing
}

// SendPairingPrompt shows a pairing hint in the gateway UI.
func (a *Adapter) SendPairingPrompt(prompt, url, deviceID string) error {
	return a.manager.emitter.Notify(messages.Envelope{
		MessageType: messages.TypeAdapterPairingPromptNotification,
		Data: &messages.AdapterPairingPromptNotification{
			PluginID:  a.manager.pluginID,
			AdapterID: a.id,
			Prompt:    prompt,
			URL:       url,
			DeviceID:  deviceID,
		},
	})
}

// SendUnpairingPrompt shows an unpairing hint in the gateway UI.
func (a *Adapter) SendUnpairingPrompt(prompt, url, deviceID string) error {
	return a.manager.emitter.Notify(messages.Envelope{
		MessageType: messages.TypeAdapterUnpairingPromptNotification,
		Data: &messages.AdapterUnpairingPromptNotification{
			PluginID:  a.manager.pluginID,
			AdapterID: a.id,
			Prompt:    prompt,
			URL:       url,
			DeviceID:  deviceID,
		},
	})
}

func (a *Adapter) startPairing(timeoutSeconds int) {
	m := a.manager
	m.mu.Lock()
	if a.pairing {
		m.mu.Unlock()
		m.logger.Warn("pairing already in progress", "adapter_id", a.id)
		return
	}
	a.pairing = true
	m.mu.Unlock()

	a.handler.StartPairing(time.Duration(timeoutSeconds) * time.Second)
}

func (a *Adapter) cancelPairing() {
	m := a.manager
	m.mu.Lock()
	if !a.pairing {
		m.mu.Unlock()
		return
	}
	a.pairing = false
	m.mu.Unlock()

	a.handler.CancelPairing()
}

// DonePairing marks discovery finished. Handlers call it when their pairing
// window closes on its own.
func (a *Adapter) DonePairing() {
	m := a.manager
	m.mu.Lock()
	a.pairing = false
	m.mu.Unlock()
}
