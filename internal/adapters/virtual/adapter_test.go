package virtual

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-addon/internal/addon"
	"github.com/nerrad567/gray-logic-addon/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-addon/internal/messages"
)

type fakeEmitter struct {
	mu       sync.Mutex
	notified []messages.Envelope
}

func (f *fakeEmitter) Notify(env messages.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, env)
	return nil
}

func (f *fakeEmitter) Request(env messages.Envelope, done func(*messages.GatewayResponse, error)) error {
	// Acknowledge immediately; the adapter under test does not care.
	done(&messages.GatewayResponse{Success: true}, nil)
	return nil
}

func (f *fakeEmitter) count(t messages.Type) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, env := range f.notified {
		if env.MessageType == t {
			n++
		}
	}
	return n
}

func attachTestAdapter(t *testing.T, cfg config.VirtualConfig) (*Adapter, *addon.Manager, *fakeEmitter) {
	t.Helper()
	emitter := &fakeEmitter{}
	m := addon.NewManager("test-plugin", emitter)

	v := New(cfg, nil)
	if err := v.Attach(m); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	t.Cleanup(v.Unload)
	return v, m, emitter
}

func TestAdapter_AttachRegistersDevices(t *testing.T) {
	_, m, emitter := attachTestAdapter(t, config.VirtualConfig{AdapterID: "virtual-adapter"})

	adapter := m.Adapter("virtual-adapter")
	if adapter == nil {
		t.Fatal("adapter not registered")
	}
	if adapter.Device("lamp-1") == nil {
		t.Error("lamp-1 not added")
	}
	if adapter.Device("motion-1") == nil {
		t.Error("motion-1 not added")
	}
	if got := emitter.count(messages.TypeDeviceAddedNotification); got != 2 {
		t.Errorf("device added notifications = %d, want 2", got)
	}
}

func TestAdapter_SetPropertyValidation(t *testing.T) {
	_, m, _ := attachTestAdapter(t, config.VirtualConfig{AdapterID: "virtual-adapter"})
	lamp := m.Adapter("virtual-adapter").Device("lamp-1")

	v := New(config.VirtualConfig{}, nil)
	tests := []struct {
		name     string
		property string
		value    any
		wantErr  bool
	}{
		{name: "on accepts bool", property: "on", value: true},
		{name: "on rejects string", property: "on", value: "yes", wantErr: true},
		{name: "brightness accepts number", property: "brightness", value: float64(50)},
		{name: "brightness rejects out of range", property: "brightness", value: float64(150), wantErr: true},
		{name: "brightness rejects bool", property: "brightness", value: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.SetProperty(lamp, lamp.Property(tt.property), tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("SetProperty() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAdapter_FadeAction(t *testing.T) {
	_, m, emitter := attachTestAdapter(t, config.VirtualConfig{AdapterID: "virtual-adapter"})
	lamp := m.Adapter("virtual-adapter").Device("lamp-1")

	err := m.HandleMessage(messages.Envelope{
		MessageType: messages.TypeDeviceRequestActionRequest,
		Data: &messages.DeviceRequestActionRequest{
			PluginID:   "test-plugin",
			AdapterID:  "virtual-adapter",
			DeviceID:   "lamp-1",
			ActionName: "fade",
			ActionID:   "fade-1",
			Input:      map[string]any{"level": float64(80), "duration": float64(40)},
		},
	})
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	action := lamp.Action("fade-1")
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if action.Status() == addon.ActionStatusCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := action.Status(); got != addon.ActionStatusCompleted {
		t.Fatalf("action status = %q, want completed", got)
	}

	if got, _ := lamp.Property("brightness").Value().(float64); got != 80 {
		t.Errorf("brightness after fade = %v, want 80", got)
	}
	if emitter.count(messages.TypeDeviceActionStatusNotification) < 2 {
		t.Error("expected pending and completed status notifications")
	}
}

func TestAdapter_PairingAddsLamp(t *testing.T) {
	v, m, _ := attachTestAdapter(t, config.VirtualConfig{AdapterID: "virtual-adapter"})
	adapter := m.Adapter("virtual-adapter")
	before := len(adapter.Devices())

	v.StartPairing(time.Minute)

	if got := len(adapter.Devices()); got != before+1 {
		t.Errorf("devices after pairing = %d, want %d", got, before+1)
	}
	if adapter.Pairing() {
		t.Error("pairing flag should clear once discovery finishes")
	}
}

func TestAdapter_MotionLoop(t *testing.T) {
	_, _, emitter := attachTestAdapter(t, config.VirtualConfig{
		AdapterID:      "virtual-adapter",
		MotionInterval: 1,
	})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if emitter.count(messages.TypeDeviceEventNotification) > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("motion sensor never fired")
}

func TestAdapter_UnloadIdempotent(t *testing.T) {
	v, _, _ := attachTestAdapter(t, config.VirtualConfig{AdapterID: "virtual-adapter"})
	v.Unload()
	v.Unload()
}
