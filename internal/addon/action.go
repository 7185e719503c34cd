package addon

import (
	"time"

	"github.com/nerrad567/gray-logic-addon/internal/messages"
)

// Action lifecycle states. Transitions are strictly forward: created to
// pending to one of the terminal states. Attempts to move a terminal action
// are logged and ignored.
const (
	ActionStatusCreated   = "created"
	ActionStatusPending   = "pending"
	ActionStatusCompleted = "completed"
	ActionStatusError     = "error"
)

// Action is one invocation of a device action. Each invocation has a unique
// id assigned by the gateway; the device keeps terminal invocations around
// so replayed ids are detected.
type Action struct {
	id     string
	name   string
	input  map[string]any
	device *Device

	// Guarded by the manager mutex.
	status        string
	errMessage    string
	timeRequested string
	timeCompleted string
}

// ID returns the invocation id.
func (a *Action) ID() string { return a.id }

// Name returns the action name.
func (a *Action) Name() string { return a.name }

// Input returns the invocation input, which may be nil.
func (a *Action) Input() map[string]any { return a.input }

// Status returns the current lifecycle state.
func (a *Action) Status() string {
	m := a.device.adapter.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	return a.status
}

// Start moves the action to pending and notifies the gateway.
func (a *Action) Start() {
	a.transition(ActionStatusPending, "")
}

// Finish moves the action to completed and notifies the gateway.
func (a *Action) Finish() {
	a.transition(ActionStatusCompleted, "")
}

// Fail moves the action to the error state and notifies the gateway.
func (a *Action) Fail(message string) {
	a.transition(ActionStatusError, message)
}

// transition applies a forward state change. Terminal states are sticky:
// once completed or failed, further transitions are warned about and
// dropped.
func (a *Action) transition(next, errMessage string) {
	m := a.device.adapter.manager

	m.mu.Lock()
	if a.status == ActionStatusCompleted || a.status == ActionStatusError {
		m.mu.Unlock()
		m.logger.Warn("transition on terminal action ignored",
			"action_id", a.id, "status", a.status, "requested", next)
		return
	}
	a.status = next
	a.errMessage = errMessage
	if next == ActionStatusCompleted || next == ActionStatusError {
		a.timeCompleted = time.Now().UTC().Format(time.RFC3339)
	}
	env := a.statusEnvelopeLocked()
	m.mu.Unlock()

	_ = m.emitter.Notify(env)
}

// Description returns the wire form of this invocation.
func (a *Action) Description() messages.ActionDescription {
	m := a.device.adapter.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	return a.describeLocked()
}

func (a *Action) describeLocked() messages.ActionDescription {
	return messages.ActionDescription{
		ID:            a.id,
		Status:        a.status,
		Input:         a.input,
		TimeRequested: a.timeRequested,
		TimeCompleted: a.timeCompleted,
	}
}

func (a *Action) statusEnvelopeLocked() messages.Envelope {
	desc := a.describeLocked()
	desc.Title = a.name
	if a.errMessage != "" {
		desc.Description = a.errMessage
	}
	return messages.Envelope{
		MessageType: messages.TypeDeviceActionStatusNotification,
		Data: &messages.DeviceActionStatusNotification{
			PluginID:  a.device.adapter.manager.pluginID,
			AdapterID: a.device.adapter.id,
			DeviceID:  a.device.id,
			Action:    desc,
		},
	}
}
