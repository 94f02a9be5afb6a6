package swidget

import (
	"context"
	"fmt"
)

// Typed device variants are thin wrappers borrowing the generic session.
// They add the handful of type-specific operations on top of SendCommand,
// gated by the capability table rather than by subclassing: wrapping a
// session whose device type lacks the required capability fails with
// ErrUnsupported.

// requireCapability verifies the session's device type supports c.
// The session must be synchronized first so the type is known.
func requireCapability(d *Device, c Capability) error {
	_, _, _, _, dt, _, ok := d.mirror.identity()
	if !ok {
		return ErrNotInitialized
	}
	if !dt.HasCapability(c) {
		return fmt.Errorf("%w: %s lacks %s", ErrUnsupported, dt, c)
	}
	return nil
}

// Dimmer adds brightness operations to a session with a dimmer device.
type Dimmer struct {
	*Device
}

// AsDimmer wraps a synchronized session as a Dimmer.
func AsDimmer(d *Device) (Dimmer, error) {
	if err := requireCapability(d, CapabilityDim); err != nil {
		return Dimmer{}, err
	}
	return Dimmer{Device: d}, nil
}

// Brightness returns the current brightness in the range 0-100. Falls back
// to the configured default level when no current level has been reported.
func (d Dimmer) Brightness() (int, error) {
	value, err := d.mirror.functionValue(AssemblyHost, hostComponentID, "level")
	if err != nil {
		return 0, err
	}
	if now, ok := toFloat(value["now"]); ok {
		return int(now), nil
	}
	if def, ok := toFloat(value["default"]); ok {
		return int(def), nil
	}
	return 0, fmt.Errorf("%w: no brightness reported", ErrNoData)
}

// SetBrightness sets the current brightness (0-100).
func (d Dimmer) SetBrightness(ctx context.Context, brightness int) error {
	return d.SendCommand(ctx, AssemblyHost, hostComponentID, "level", map[string]any{"now": brightness})
}

// SetDefaultBrightness sets the brightness the device returns to when
// switched on.
func (d Dimmer) SetDefaultBrightness(ctx context.Context, brightness int) error {
	return d.SendCommand(ctx, AssemblyHost, hostComponentID, "level", map[string]any{"default": brightness})
}

// Switch wraps a session with any switch variant.
type Switch struct {
	*Device
}

// AsSwitch wraps a synchronized session as a Switch.
func AsSwitch(d *Device) (Switch, error) {
	if err := requireCapability(d, CapabilityToggle); err != nil {
		return Switch{}, err
	}
	if !d.IsSwitch() {
		return Switch{}, fmt.Errorf("%w: %s is not a switch", ErrUnsupported, d.DeviceType())
	}
	return Switch{Device: d}, nil
}

// Outlet wraps a session with an outlet device.
type Outlet struct {
	*Device
}

// AsOutlet wraps a synchronized session as an Outlet.
func AsOutlet(d *Device) (Outlet, error) {
	if err := requireCapability(d, CapabilityToggle); err != nil {
		return Outlet{}, err
	}
	if !d.IsOutlet() {
		return Outlet{}, fmt.Errorf("%w: %s is not an outlet", ErrUnsupported, d.DeviceType())
	}
	return Outlet{Device: d}, nil
}

// TimerSwitch wraps a session with a timer (20/40/60) switch.
type TimerSwitch struct {
	Switch
}

// AsTimerSwitch wraps a synchronized session as a TimerSwitch.
func AsTimerSwitch(d *Device) (TimerSwitch, error) {
	if err := requireCapability(d, CapabilityCountdown); err != nil {
		return TimerSwitch{}, err
	}
	return TimerSwitch{Switch: Switch{Device: d}}, nil
}

// SetCountdownTimer arms the countdown timer for the given duration in
// minutes.
func (t TimerSwitch) SetCountdownTimer(ctx context.Context, minutes int) error {
	return t.SendCommand(ctx, AssemblyHost, hostComponentID, "timer", map[string]any{"duration": minutes})
}
