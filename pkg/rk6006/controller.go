// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// FlagStore persists the user's connection-enabled switch across runs.
// The CLI backs it with the config file; tests use an in-memory one.
type FlagStore interface {
	ConnectionEnabled() (bool, error)
	SetConnectionEnabled(enabled bool) error
}

// Preset is one memory slot: the four setpoints the front panel stores
// under M0..M9. Slot 0 is the working preset the live OVP/OCP registers
// alias.
type Preset struct {
	Voltage float64
	Current float64
	OVP     float64
	OCP     float64
}

func (p Preset) String() string {
	return fmt.Sprintf("%.2fV %.3fA (OVP %.2fV, OCP %.3fA)", p.Voltage, p.Current, p.OVP, p.OCP)
}

// Controller is the typed command surface over a session: validated
// setters for everything writable, preset slots, and the connection
// switch. One controller serves any number of goroutines; the session
// underneath sequences their requests.
type Controller struct {
	session *Session
	store   FlagStore
	log     *slog.Logger
	enabled atomic.Bool
}

// NewController wraps a session. A nil store keeps the connection
// switch in memory only.
func NewController(session *Session, store FlagStore, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{session: session, store: store, log: logger}
	c.enabled.Store(true)
	if store != nil {
		v, err := store.ConnectionEnabled()
		if err != nil {
			logger.Warn("could not load connection flag, defaulting to enabled", "error", err)
		} else {
			c.enabled.Store(v)
		}
	}
	return c
}

// Connect brings the link up and reads the device identity. It refuses
// to touch the radio while the connection switch is off. The identity
// read doubles as a liveness probe: a bridge that accepts connections
// but never answers fails here instead of at the first poll.
func (c *Controller) Connect(ctx context.Context) error {
	if !c.enabled.Load() {
		return sessionErr("connect", "", ErrConnectionDisabled)
	}
	if err := c.session.Connect(ctx); err != nil {
		return err
	}
	snap, err := c.session.ReadRegisters(ctx, IdentityRegisters()...)
	if err != nil {
		return err
	}
	if snap.Model != ModelNumber {
		c.log.Warn("unexpected model number", "model", snap.Model, "expected", ModelNumber)
	}
	c.log.Info("device identified",
		"model", snap.Model, "serial", fmt.Sprintf("%08d", snap.Serial), "firmware", snap.Firmware)
	return nil
}

// Disconnect tears the link down.
func (c *Controller) Disconnect() error {
	return c.session.Disconnect()
}

// ConnectionEnabled reports the connection switch.
func (c *Controller) ConnectionEnabled() bool {
	return c.enabled.Load()
}

// SetConnectionEnabled flips the connection switch, persists it, and
// drops the link immediately when turning it off.
func (c *Controller) SetConnectionEnabled(enabled bool) error {
	if c.store != nil {
		if err := c.store.SetConnectionEnabled(enabled); err != nil {
			return fmt.Errorf("persisting connection flag: %w", err)
		}
	}
	c.enabled.Store(enabled)
	if !enabled {
		return c.session.Disconnect()
	}
	return nil
}

// Snapshot returns the latest device state.
func (c *Controller) Snapshot() DeviceState {
	return c.session.Snapshot()
}

// Status returns the session lifecycle state.
func (c *Controller) Status() Status {
	return c.session.Status()
}

// Subscribe registers a snapshot callback; see Session.Subscribe.
func (c *Controller) Subscribe(fn func(DeviceState)) (unsubscribe func()) {
	return c.session.Subscribe(fn)
}

// Stats returns the link counters.
func (c *Controller) Stats() LinkStats {
	return c.session.Stats()
}

// Refresh reads every live register and returns the new snapshot.
func (c *Controller) Refresh(ctx context.Context) (DeviceState, error) {
	return c.session.ReadRegisters(ctx, PollRegisters()...)
}

// SetVoltage sets the output voltage setpoint, 0..60 V in 10 mV steps.
func (c *Controller) SetVoltage(ctx context.Context, volts float64) error {
	return c.session.WriteRegister(ctx, RegSetVoltage, volts)
}

// SetCurrent sets the output current limit, 0..6 A in 1 mA steps.
func (c *Controller) SetCurrent(ctx context.Context, amps float64) error {
	return c.session.WriteRegister(ctx, RegSetCurrent, amps)
}

// SetOVP sets the over-voltage protection limit, 0..65 V.
func (c *Controller) SetOVP(ctx context.Context, volts float64) error {
	return c.session.WriteRegister(ctx, RegOVP, volts)
}

// SetOCP sets the over-current protection limit, 0..6.2 A.
func (c *Controller) SetOCP(ctx context.Context, amps float64) error {
	return c.session.WriteRegister(ctx, RegOCP, amps)
}

// SetOutputEnabled switches the output stage on or off.
func (c *Controller) SetOutputEnabled(ctx context.Context, on bool) error {
	return c.session.WriteRegister(ctx, RegOutputEnable, boolValue(on))
}

// SetBuzzerEnabled switches the front-panel buzzer.
func (c *Controller) SetBuzzerEnabled(ctx context.Context, on bool) error {
	return c.session.WriteRegister(ctx, RegBuzzer, boolValue(on))
}

// SetPowerOnBoot makes the output come up enabled after power-cycling.
func (c *Controller) SetPowerOnBoot(ctx context.Context, on bool) error {
	return c.session.WriteRegister(ctx, RegPowerOnBoot, boolValue(on))
}

// SetTakeOut switches the battery take-out mode.
func (c *Controller) SetTakeOut(ctx context.Context, on bool) error {
	return c.session.WriteRegister(ctx, RegTakeOut, boolValue(on))
}

// SetBacklight sets the display brightness, 0..5.
func (c *Controller) SetBacklight(ctx context.Context, level int) error {
	return c.session.WriteRegister(ctx, RegBacklight, float64(level))
}

func boolValue(on bool) float64 {
	if on {
		return 1
	}
	return 0
}

// ReadPreset fetches memory slot M0..M9.
func (c *Controller) ReadPreset(ctx context.Context, slot int) (Preset, error) {
	base, err := PresetAddress(slot)
	if err != nil {
		return Preset{}, invalidValue("read-preset", "", err)
	}
	words, err := c.session.ReadRaw(ctx, base, PresetStride)
	if err != nil {
		return Preset{}, err
	}
	return Preset{
		Voltage: float64(words[0]) * 0.01,
		Current: float64(words[1]) * 0.001,
		OVP:     float64(words[2]) * 0.01,
		OCP:     float64(words[3]) * 0.001,
	}, nil
}

// SavePreset stores a preset into memory slot M0..M9. The protocol has
// no multi-register write, so the four words go out as four requests;
// a failure partway leaves the slot half-written, as it would from the
// front panel.
func (c *Controller) SavePreset(ctx context.Context, slot int, p Preset) error {
	base, err := PresetAddress(slot)
	if err != nil {
		return invalidValue("save-preset", "", err)
	}
	if err := ValidateValue(registersByName[RegSetVoltage], p.Voltage); err != nil {
		return invalidValue("save-preset", RegSetVoltage, err)
	}
	if err := ValidateValue(registersByName[RegSetCurrent], p.Current); err != nil {
		return invalidValue("save-preset", RegSetCurrent, err)
	}
	if err := ValidateValue(registersByName[RegOVP], p.OVP); err != nil {
		return invalidValue("save-preset", RegOVP, err)
	}
	if err := ValidateValue(registersByName[RegOCP], p.OCP); err != nil {
		return invalidValue("save-preset", RegOCP, err)
	}

	words := []uint16{
		ToRaw(registersByName[RegSetVoltage], p.Voltage),
		ToRaw(registersByName[RegSetCurrent], p.Current),
		ToRaw(registersByName[RegOVP], p.OVP),
		ToRaw(registersByName[RegOCP], p.OCP),
	}
	for i, w := range words {
		if _, err := c.session.WriteRaw(ctx, base+uint16(i), w); err != nil {
			return err
		}
	}
	return nil
}

// RecallPreset loads a memory slot into the working setpoints, the
// same sequence the front panel's M-button performs.
func (c *Controller) RecallPreset(ctx context.Context, slot int) (Preset, error) {
	p, err := c.ReadPreset(ctx, slot)
	if err != nil {
		return Preset{}, err
	}
	if err := c.SetVoltage(ctx, p.Voltage); err != nil {
		return Preset{}, err
	}
	if err := c.SetCurrent(ctx, p.Current); err != nil {
		return Preset{}, err
	}
	if err := c.SetOVP(ctx, p.OVP); err != nil {
		return Preset{}, err
	}
	if err := c.SetOCP(ctx, p.OCP); err != nil {
		return Preset{}, err
	}
	return p, nil
}
