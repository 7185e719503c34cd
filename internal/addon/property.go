package addon

import (
	"github.com/nerrad567/gray-logic-addon/internal/messages"
)

// Property is one named value on a device.
//
// Two writers can race for a property: the physical side (adapter observed a
// change) and the gateway side (user issued a write). The property resolves
// the race last-write-wins from the plugin's point of view: a local set marks
// the value dirty until the gateway acknowledges the matching
// property-changed notification, and any gateway write that lands while
// dirty is applied and then immediately overridden by re-asserting the local
// value. Stale acknowledgments (for a superseded sequence) are ignored.
type Property struct {
	name        string
	description messages.PropertyDescription
	device      *Device

	// Guarded by the manager mutex.
	value any
	seq   uint64
	dirty bool
	acked bool
}

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// Value returns the current value.
func (p *Property) Value() any {
	m := p.device.adapter.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	return p.value
}

// Acked reports whether the gateway has acknowledged the current value.
func (p *Property) Acked() bool {
	m := p.device.adapter.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	return p.acked
}

// Dirty reports whether a local write is still awaiting acknowledgment.
func (p *Property) Dirty() bool {
	m := p.device.adapter.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	return p.dirty
}

// Description returns the wire description with the current value filled in.
func (p *Property) Description() messages.PropertyDescription {
	m := p.device.adapter.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	return p.describeLocked()
}

func (p *Property) describeLocked() messages.PropertyDescription {
	desc := p.description
	desc.Value = p.value
	return desc
}

// SetValueLocal records a value observed on the physical side and notifies
// the gateway with a correlated property-changed envelope. The value is
// marked dirty until the gateway acknowledges it; an acknowledgment for a
// value that has since been overwritten is discarded.
func (p *Property) SetValueLocal(v any) error {
	m := p.device.adapter.manager

	// Hold sendMu through the enqueue so a concurrent writer cannot slip
	// its envelope into the outbound queue ahead of an earlier mutation.
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	p.value = v
	p.seq++
	p.dirty = true
	p.acked = false
	sentSeq := p.seq
	env := p.changedEnvelopeLocked()
	m.mu.Unlock()

	m.recorder.RecordProperty(p.device.adapter.id, p.device.id, p.name, v)

	return m.emitter.Request(env, func(resp *messages.GatewayResponse, err error) {
		p.handleAck(sentSeq, resp, err)
	})
}

// applyFromGateway applies a gateway-initiated write after the adapter
// handler accepted it. If a local write is still in flight, the local value
// wins: the gateway value is applied and then overridden by re-asserting the
// local value with a fresh notification.
func (p *Property) applyFromGateway(v any) {
	m := p.device.adapter.manager

	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	if p.dirty {
		// Local side saw something newer than the gateway's write: keep the
		// local value and re-assert it with a fresh notification.
		p.seq++
		sentSeq := p.seq
		env := p.changedEnvelopeLocked()
		m.mu.Unlock()

		m.logger.Debug("gateway write superseded by local value",
			"device_id", p.device.id, "property", p.name)
		_ = m.emitter.Request(env, func(resp *messages.GatewayResponse, err error) {
			p.handleAck(sentSeq, resp, err)
		})
		return
	}

	p.value = v
	p.acked = true
	p.dirty = false
	env := p.changedEnvelopeLocked()
	m.mu.Unlock()

	m.recorder.RecordProperty(p.device.adapter.id, p.device.id, p.name, v)

	// Confirmation back to the gateway; no tracking needed, the gateway
	// already holds this value.
	_ = m.emitter.Notify(env)
}

// handleAck resolves the acknowledgment for a tracked property-changed
// notification. Only the acknowledgment matching the latest sequence counts.
func (p *Property) handleAck(sentSeq uint64, resp *messages.GatewayResponse, err error) {
	m := p.device.adapter.manager
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.seq != sentSeq {
		// A newer write superseded this one; its own ack will settle state.
		return
	}
	if err != nil || (resp != nil && !resp.Success) {
		m.logger.Warn("property change not acknowledged",
			"device_id", p.device.id, "property", p.name, "error", err)
		return
	}
	p.dirty = false
	p.acked = true
}

func (p *Property) changedEnvelopeLocked() messages.Envelope {
	return messages.Envelope{
		MessageType: messages.TypeDevicePropertyChangedNotification,
		Data: &messages.DevicePropertyChangedNotification{
			PluginID:     p.device.adapter.manager.pluginID,
			AdapterID:    p.device.adapter.id,
			DeviceID:     p.device.id,
			PropertyName: p.name,
			Property:     p.describeLocked(),
		},
	}
}
