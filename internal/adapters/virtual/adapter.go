package virtual

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-addon/internal/addon"
	"github.com/nerrad567/gray-logic-addon/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-addon/internal/messages"
)

// Logger is the minimal logging surface the adapter needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Adapter provides simulated devices: a dimmable lamp with a fade action
// and a motion sensor that fires periodic events. It exists to exercise
// the whole protocol path without hardware, and doubles as the pairing
// demo (each pairing window yields a fresh lamp).
type Adapter struct {
	cfg    config.VirtualConfig
	logger Logger

	adapter *addon.Adapter

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates the virtual adapter handler.
func New(cfg config.VirtualConfig, logger Logger) *Adapter {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Adapter{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Attach registers the adapter and its initial devices with the manager
// and starts the motion simulator.
func (v *Adapter) Attach(m *addon.Manager) error {
	v.adapter = addon.NewAdapter(v.cfg.AdapterID, "Virtual Devices", m.PluginID(), v)
	if err := m.AddAdapter(v.adapter); err != nil {
		return fmt.Errorf("virtual: register adapter: %w", err)
	}

	if err := v.adapter.AddDevice(v.newLamp("lamp-1", "Desk Lamp")); err != nil {
		return fmt.Errorf("virtual: add lamp: %w", err)
	}

	sensor := v.newMotionSensor("motion-1", "Hallway Motion")
	if err := v.adapter.AddDevice(sensor); err != nil {
		return fmt.Errorf("virtual: add motion sensor: %w", err)
	}

	if v.cfg.MotionInterval > 0 {
		v.wg.Add(1)
		go v.motionLoop(sensor, time.Duration(v.cfg.MotionInterval)*time.Second)
	}
	return nil
}

func (v *Adapter) newLamp(id, title string) *addon.Device {
	lamp := addon.NewDevice(id, title,
		addon.WithTypes("Light", "OnOffSwitch"),
		addon.WithDescription("Simulated dimmable lamp"))
	lamp.AddProperty("on", messages.PropertyDescription{
		Title: "On/Off",
		Type:  "boolean",
	}, false)
	min, max := 0.0, 100.0
	lamp.AddProperty("brightness", messages.PropertyDescription{
		Title:   "Brightness",
		Type:    "integer",
		Unit:    "percent",
		Minimum: &min,
		Maximum: &max,
	}, float64(0))
	lamp.AddAction("fade", messages.ActionDescription{
		Title:       "Fade",
		Description: "Fade brightness to a level over a duration",
		Input: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"level":    map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
				"duration": map[string]any{"type": "integer", "unit": "milliseconds"},
			},
		},
	})
	return lamp
}

func (v *Adapter) newMotionSensor(id, title string) *addon.Device {
	sensor := addon.NewDevice(id, title,
		addon.WithTypes("MotionSensor"),
		addon.WithDescription("Simulated motion sensor"))
	sensor.AddProperty("motion", messages.PropertyDescription{
		Title:    "Motion",
		Type:     "boolean",
		ReadOnly: true,
	}, false)
	sensor.AddEvent("motion", messages.EventDescription{
		Description: "Motion detected",
	})
	return sensor
}

// motionLoop fires the motion sensor on a fixed cadence until unload.
func (v *Adapter) motionLoop(sensor *addon.Device, interval time.Duration) {
	defer v.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-v.stopCh:
			return
		case <-ticker.C:
			prop := sensor.Property("motion")
			if err := prop.SetValueLocal(true); err != nil {
				v.logger.Warn("motion update failed", "error", err)
				continue
			}
			if err := sensor.EmitEvent("motion", nil); err != nil {
				v.logger.Warn("motion event failed", "error", err)
			}
			// Motion clears shortly after triggering.
			time.AfterFunc(2*time.Second, func() {
				_ = prop.SetValueLocal(false)
			})
		}
	}
}

// StartPairing adds a fresh lamp, standing in for a discovered device.
func (v *Adapter) StartPairing(time.Duration) {
	id := "lamp-" + uuid.NewString()[:8]
	lamp := v.newLamp(id, "Paired Lamp")
	if err := v.adapter.AddDevice(lamp); err != nil {
		v.logger.Warn("pairing add device failed", "error", err)
	}
	v.adapter.DonePairing()
}

// CancelPairing is a no-op; discovery completes instantly.
func (v *Adapter) CancelPairing() {}

// SetProperty validates and applies a gateway-initiated write.
func (v *Adapter) SetProperty(device *addon.Device, property *addon.Property, value any) error {
	switch property.Name() {
	case "on":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("virtual: on expects a boolean, got %T", value)
		}
	case "brightness":
		level, ok := value.(float64)
		if !ok {
			return fmt.Errorf("virtual: brightness expects a number, got %T", value)
		}
		if level < 0 || level > 100 {
			return fmt.Errorf("virtual: brightness %v out of range", level)
		}
	default:
		return fmt.Errorf("virtual: property %q is not writable", property.Name())
	}
	v.logger.Debug("property applied",
		"device_id", device.ID(), "property", property.Name(), "value", value)
	return nil
}

// RequestAction runs the fade action asynchronously, stepping brightness
// toward the target level.
func (v *Adapter) RequestAction(device *addon.Device, action *addon.Action) error {
	if action.Name() != "fade" {
		return fmt.Errorf("virtual: unknown action %q", action.Name())
	}

	target := 100.0
	duration := 1000.0
	if input := action.Input(); input != nil {
		if lvl, ok := input["level"].(float64); ok {
			target = lvl
		}
		if dur, ok := input["duration"].(float64); ok {
			duration = dur
		}
	}
	if target < 0 || target > 100 {
		return fmt.Errorf("virtual: fade level %v out of range", target)
	}

	v.wg.Add(1)
	go v.runFade(device, action, target, time.Duration(duration)*time.Millisecond)
	return nil
}

const fadeSteps = 4

func (v *Adapter) runFade(device *addon.Device, action *addon.Action, target float64, duration time.Duration) {
	defer v.wg.Done()
	action.Start()

	prop := device.Property("brightness")
	current, _ := prop.Value().(float64)
	step := (target - current) / fadeSteps
	interval := duration / fadeSteps

	for i := 1; i <= fadeSteps; i++ {
		select {
		case <-v.stopCh:
			action.Fail("adapter unloading")
			return
		case <-time.After(interval):
		}
		level := current + step*float64(i)
		if err := prop.SetValueLocal(level); err != nil {
			action.Fail(err.Error())
			return
		}
	}
	action.Finish()
}

// RemoveDevice releases the simulated device; nothing physical to tear down.
func (v *Adapter) RemoveDevice(device *addon.Device) error {
	v.logger.Info("device removed", "device_id", device.ID())
	return nil
}

// CancelRemoveDevice is a no-op; removal is instantaneous.
func (v *Adapter) CancelRemoveDevice(*addon.Device) {}

// Unload stops the simulators. Safe to call more than once.
func (v *Adapter) Unload() {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return
	}
	v.stopped = true
	close(v.stopCh)
	v.mu.Unlock()

	v.wg.Wait()
}
