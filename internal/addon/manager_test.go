package addon

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-addon/internal/messages"
)

// fakeEmitter records outbound envelopes and lets tests resolve correlated
// requests by hand.
type fakeEmitter struct {
	mu       sync.Mutex
	notified []messages.Envelope
	requests []trackedRequest
}

type trackedRequest struct {
	env  messages.Envelope
	done func(*messages.GatewayResponse, error)
}

func (f *fakeEmitter) Notify(env messages.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, env)
	return nil
}

func (f *fakeEmitter) Request(env messages.Envelope, done func(*messages.GatewayResponse, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, trackedRequest{env: env, done: done})
	return nil
}

func (f *fakeEmitter) notifiedTypes() []messages.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]messages.Type, len(f.notified))
	for i, env := range f.notified {
		types[i] = env.MessageType
	}
	return types
}

func (f *fakeEmitter) lastRequest() *trackedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return &f.requests[len(f.requests)-1]
}

// fakeHandler is a minimal AdapterHandler for model tests.
type fakeHandler struct {
	setPropertyErr error
	actionErr      error
	removed        []string
	unloaded       bool
	runAction      func(a *Action)
}

func (h *fakeHandler) StartPairing(time.Duration) {}
func (h *fakeHandler) CancelPairing()             {}

func (h *fakeHandler) SetProperty(_ *Device, _ *Property, _ any) error {
	return h.setPropertyErr
}

func (h *fakeHandler) RequestAction(_ *Device, a *Action) error {
	if h.actionErr != nil {
		return h.actionErr
	}
	if h.runAction != nil {
		h.runAction(a)
	}
	return nil
}

func (h *fakeHandler) RemoveDevice(d *Device) error {
	h.removed = append(h.removed, d.ID())
	return nil
}

func (h *fakeHandler) CancelRemoveDevice(*Device) {}
func (h *fakeHandler) Unload()                    { h.unloaded = true }

func newTestModel(t *testing.T, handler AdapterHandler) (*Manager, *Adapter, *Device, *fakeEmitter) {
	t.Helper()
	emitter := &fakeEmitter{}
	m := NewManager("test-plugin", emitter)

	adapter := NewAdapter("test-adapter", "Test Adapter", "test-plugin", handler)
	if err := m.AddAdapter(adapter); err != nil {
		t.Fatalf("AddAdapter() error = %v", err)
	}

	device := NewDevice("lamp-1", "Desk Lamp", WithTypes("Light"))
	device.AddProperty("on", messages.PropertyDescription{Type: "boolean"}, false)
	device.AddProperty("brightness", messages.PropertyDescription{Type: "integer"}, 0)
	device.AddAction("fade", messages.ActionDescription{Title: "Fade"})
	device.AddEvent("overheat", messages.EventDescription{Type: "number"})
	if err := adapter.AddDevice(device); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}

	return m, adapter, device, emitter
}

func TestManager_AddAdapterAndDeviceNotify(t *testing.T) {
	_, _, _, emitter := newTestModel(t, &fakeHandler{})

	types := emitter.notifiedTypes()
	if len(types) != 2 {
		t.Fatalf("notified %d envelopes, want 2", len(types))
	}
	if types[0] != messages.TypeAdapterAddedNotification {
		t.Errorf("first notification = %s, want adapterAddedNotification", types[0])
	}
	if types[1] != messages.TypeDeviceAddedNotification {
		t.Errorf("second notification = %s, want deviceAddedNotification", types[1])
	}
}

func TestProperty_LocalSetTracksUntilAck(t *testing.T) {
	_, _, device, emitter := newTestModel(t, &fakeHandler{})
	prop := device.Property("on")

	if err := prop.SetValueLocal(true); err != nil {
		t.Fatalf("SetValueLocal() error = %v", err)
	}
	if !prop.Dirty() {
		t.Error("property should be dirty before ack")
	}
	if prop.Acked() {
		t.Error("property should not be acked before ack")
	}

	req := emitter.lastRequest()
	if req == nil {
		t.Fatal("no tracked request emitted")
	}
	req.done(&messages.GatewayResponse{Success: true}, nil)

	if prop.Dirty() {
		t.Error("property should be clean after ack")
	}
	if !prop.Acked() {
		t.Error("property should be acked after ack")
	}
	if got := prop.Value(); got != true {
		t.Errorf("Value() = %v, want true", got)
	}
}

func TestProperty_StaleAckIgnored(t *testing.T) {
	_, _, device, emitter := newTestModel(t, &fakeHandler{})
	prop := device.Property("brightness")

	if err := prop.SetValueLocal(50); err != nil {
		t.Fatalf("SetValueLocal() error = %v", err)
	}
	first := emitter.lastRequest()

	if err := prop.SetValueLocal(80); err != nil {
		t.Fatalf("SetValueLocal() error = %v", err)
	}

	// Ack for the superseded write must not mark the newer one durable.
	first.done(&messages.GatewayResponse{Success: true}, nil)
	if !prop.Dirty() {
		t.Error("property should stay dirty after stale ack")
	}

	emitter.lastRequest().done(&messages.GatewayResponse{Success: true}, nil)
	if prop.Dirty() {
		t.Error("property should be clean after current ack")
	}
	if got := prop.Value(); got != 80 {
		t.Errorf("Value() = %v, want 80", got)
	}
}

func TestProperty_ConcurrentLocalWritesEnqueueInOrder(t *testing.T) {
	_, _, device, emitter := newTestModel(t, &fakeHandler{})
	prop := device.Property("brightness")

	// Hammer the property from several goroutines. Whatever interleaving
	// wins, the last envelope in the outbound queue must carry the value
	// the model settled on, or the gateway is left holding a stale value
	// forever.
	const writers = 4
	const writesPerWriter = 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < writesPerWriter; i++ {
				if err := prop.SetValueLocal(w*writesPerWriter + i); err != nil {
					t.Errorf("SetValueLocal() error = %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	emitter.mu.Lock()
	total := len(emitter.requests)
	emitter.mu.Unlock()
	if total != writers*writesPerWriter {
		t.Fatalf("tracked %d requests, want %d", total, writers*writesPerWriter)
	}

	req := emitter.lastRequest()
	changed, ok := req.env.Data.(*messages.DevicePropertyChangedNotification)
	if !ok {
		t.Fatalf("tracked envelope type = %T", req.env.Data)
	}
	if got := prop.Value(); changed.Property.Value != got {
		t.Errorf("last enqueued value = %v, model value = %v", changed.Property.Value, got)
	}
}

func TestProperty_GatewayWriteWhileDirtyReasserted(t *testing.T) {
	m, _, device, emitter := newTestModel(t, &fakeHandler{})
	prop := device.Property("on")

	if err := prop.SetValueLocal(true); err != nil {
		t.Fatalf("SetValueLocal() error = %v", err)
	}

	err := m.HandleMessage(messages.Envelope{
		MessageType: messages.TypeDeviceSetPropertyCommand,
		Data: &messages.DeviceSetPropertyCommand{
			PluginID:      "test-plugin",
			AdapterID:     "test-adapter",
			DeviceID:      "lamp-1",
			PropertyName:  "on",
			PropertyValue: false,
		},
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	// Local value wins; a fresh tracked notification re-asserts it.
	if got := prop.Value(); got != true {
		t.Errorf("Value() = %v, want local true", got)
	}
	req := emitter.lastRequest()
	changed, ok := req.env.Data.(*messages.DevicePropertyChangedNotification)
	if !ok {
		t.Fatalf("tracked envelope type = %T", req.env.Data)
	}
	if changed.Property.Value != true {
		t.Errorf("re-asserted value = %v, want true", changed.Property.Value)
	}
}

func TestProperty_GatewayWriteWhenClean(t *testing.T) {
	m, _, device, emitter := newTestModel(t, &fakeHandler{})
	prop := device.Property("brightness")

	err := m.HandleMessage(messages.Envelope{
		MessageType: messages.TypeDeviceSetPropertyCommand,
		Data: &messages.DeviceSetPropertyCommand{
			PluginID:      "test-plugin",
			AdapterID:     "test-adapter",
			DeviceID:      "lamp-1",
			PropertyName:  "brightness",
			PropertyValue: float64(42),
		},
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if got := prop.Value(); got != float64(42) {
		t.Errorf("Value() = %v, want 42", got)
	}
	if !prop.Acked() {
		t.Error("gateway write should settle as acked")
	}

	// Confirmation goes out untracked.
	types := emitter.notifiedTypes()
	if types[len(types)-1] != messages.TypeDevicePropertyChangedNotification {
		t.Errorf("last notification = %s, want devicePropertyChangedNotification", types[len(types)-1])
	}
}

func TestManager_UnknownAdapterLeavesModelUnchanged(t *testing.T) {
	m, _, device, _ := newTestModel(t, &fakeHandler{})
	before := device.Property("on").Value()

	err := m.HandleMessage(messages.Envelope{
		MessageType: messages.TypeDeviceSetPropertyCommand,
		Data: &messages.DeviceSetPropertyCommand{
			PluginID:      "test-plugin",
			AdapterID:     "no-such-adapter",
			DeviceID:      "lamp-1",
			PropertyName:  "on",
			PropertyValue: true,
		},
	})
	if !errors.Is(err, ErrUnknownAdapter) {
		t.Fatalf("HandleMessage() error = %v, want ErrUnknownAdapter", err)
	}
	if got := device.Property("on").Value(); got != before {
		t.Errorf("property changed by failed dispatch: %v", got)
	}
}

func TestManager_SetPropertyRejectedByHandler(t *testing.T) {
	handlerErr := errors.New("hardware says no")
	m, _, device, _ := newTestModel(t, &fakeHandler{setPropertyErr: handlerErr})

	err := m.HandleMessage(messages.Envelope{
		MessageType: messages.TypeDeviceSetPropertyCommand,
		Data: &messages.DeviceSetPropertyCommand{
			PluginID:      "test-plugin",
			AdapterID:     "test-adapter",
			DeviceID:      "lamp-1",
			PropertyName:  "on",
			PropertyValue: true,
		},
	})
	if !errors.Is(err, handlerErr) {
		t.Fatalf("HandleMessage() error = %v, want handler error", err)
	}
	if got := device.Property("on").Value(); got != false {
		t.Errorf("rejected write must not change the model, got %v", got)
	}
}

func TestAction_LifecycleMonotonic(t *testing.T) {
	handler := &fakeHandler{}
	handler.runAction = func(a *Action) {
		a.Start()
		a.Finish()
	}
	m, _, device, emitter := newTestModel(t, handler)

	err := m.HandleMessage(messages.Envelope{
		MessageType: messages.TypeDeviceRequestActionRequest,
		Data: &messages.DeviceRequestActionRequest{
			PluginID:   "test-plugin",
			AdapterID:  "test-adapter",
			DeviceID:   "lamp-1",
			ActionName: "fade",
			ActionID:   "act-1",
		},
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	action := device.Action("act-1")
	if action == nil {
		t.Fatal("action not recorded")
	}
	if got := action.Status(); got != ActionStatusCompleted {
		t.Errorf("Status() = %q, want completed", got)
	}

	// Terminal state is sticky.
	action.Start()
	if got := action.Status(); got != ActionStatusCompleted {
		t.Errorf("Status() after late Start = %q, want completed", got)
	}

	var statuses []string
	for _, env := range emitter.notified {
		if n, ok := env.Data.(*messages.DeviceActionStatusNotification); ok {
			statuses = append(statuses, n.Action.Status)
		}
	}
	want := []string{ActionStatusPending, ActionStatusCompleted}
	if len(statuses) != len(want) {
		t.Fatalf("status notifications = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("status[%d] = %q, want %q", i, statuses[i], want[i])
		}
	}
}

func TestAction_DuplicateInvocationRejected(t *testing.T) {
	m, _, _, emitter := newTestModel(t, &fakeHandler{})

	req := messages.Envelope{
		MessageType: messages.TypeDeviceRequestActionRequest,
		Data: &messages.DeviceRequestActionRequest{
			PluginID:   "test-plugin",
			AdapterID:  "test-adapter",
			DeviceID:   "lamp-1",
			ActionName: "fade",
			ActionID:   "act-dup",
		},
	}
	if err := m.HandleMessage(req); err != nil {
		t.Fatalf("first HandleMessage() error = %v", err)
	}
	err := m.HandleMessage(req)
	if !errors.Is(err, ErrDuplicateInvocation) {
		t.Fatalf("second HandleMessage() error = %v, want ErrDuplicateInvocation", err)
	}

	// The replay must have been answered with success=false.
	var last *messages.DeviceRequestActionResponse
	for _, env := range emitter.notified {
		if r, ok := env.Data.(*messages.DeviceRequestActionResponse); ok {
			last = r
		}
	}
	if last == nil {
		t.Fatal("no action response emitted")
	}
	if last.Success {
		t.Error("replayed invocation should be rejected")
	}
}

func TestManager_AddDeviceUnknownAdapter(t *testing.T) {
	m, _, _, emitter := newTestModel(t, &fakeHandler{})
	before := len(emitter.notifiedTypes())

	device := NewDevice("orphan-1", "Orphan")
	err := m.AddDevice("no-such-adapter", device)
	if !errors.Is(err, ErrUnknownAdapter) {
		t.Fatalf("AddDevice() error = %v, want ErrUnknownAdapter", err)
	}
	if got := len(emitter.notifiedTypes()); got != before {
		t.Errorf("failed AddDevice emitted %d notifications", got-before)
	}
}

func TestManager_RemoveAdapterIdempotent(t *testing.T) {
	m, adapter, _, _ := newTestModel(t, &fakeHandler{})

	m.RemoveAdapter(adapter.ID())
	if m.Adapter(adapter.ID()) != nil {
		t.Error("adapter still present after removal")
	}

	// Second removal is a no-op.
	m.RemoveAdapter(adapter.ID())
}

func TestManager_AdapterUnloadRequest(t *testing.T) {
	handler := &fakeHandler{}
	m, adapter, _, emitter := newTestModel(t, handler)

	err := m.HandleMessage(messages.Envelope{
		MessageType: messages.TypeAdapterUnloadRequest,
		Data: &messages.AdapterUnloadRequest{
			PluginID:  "test-plugin",
			AdapterID: adapter.ID(),
		},
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !handler.unloaded {
		t.Error("handler.Unload() not called")
	}
	if m.Adapter(adapter.ID()) != nil {
		t.Error("adapter still registered after unload")
	}

	types := emitter.notifiedTypes()
	if types[len(types)-1] != messages.TypeAdapterUnloadResponse {
		t.Errorf("last notification = %s, want adapterUnloadResponse", types[len(types)-1])
	}
}

func TestManager_RemoveDeviceRequest(t *testing.T) {
	handler := &fakeHandler{}
	m, adapter, device, emitter := newTestModel(t, handler)

	err := m.HandleMessage(messages.Envelope{
		MessageType: messages.TypeAdapterRemoveDeviceRequest,
		Data: &messages.AdapterRemoveDeviceRequest{
			PluginID:  "test-plugin",
			AdapterID: adapter.ID(),
			DeviceID:  device.ID(),
		},
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if adapter.Device(device.ID()) != nil {
		t.Error("device still present after removal")
	}
	if len(handler.removed) != 1 || handler.removed[0] != device.ID() {
		t.Errorf("handler removals = %v", handler.removed)
	}

	types := emitter.notifiedTypes()
	if types[len(types)-1] != messages.TypeAdapterRemoveDeviceResponse {
		t.Errorf("last notification = %s, want adapterRemoveDeviceResponse", types[len(types)-1])
	}
}

func TestDevice_EmitEvent(t *testing.T) {
	_, _, device, emitter := newTestModel(t, &fakeHandler{})

	if err := device.EmitEvent("overheat", 71.5); err != nil {
		t.Fatalf("EmitEvent() error = %v", err)
	}
	if err := device.EmitEvent("no-such-event", nil); err == nil {
		t.Error("undefined event should be rejected")
	}

	var event *messages.DeviceEventNotification
	for _, env := range emitter.notified {
		if e, ok := env.Data.(*messages.DeviceEventNotification); ok {
			event = e
		}
	}
	if event == nil {
		t.Fatal("no event notification emitted")
	}
	if event.Event.Title != "overheat" || event.Event.Data != 71.5 {
		t.Errorf("event = %+v", event.Event)
	}
	if event.Event.Timestamp == "" {
		t.Error("event timestamp missing")
	}
}
