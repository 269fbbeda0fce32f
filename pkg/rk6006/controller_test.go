// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// memFlagStore keeps the connection flag in memory for tests.
type memFlagStore struct {
	mu      sync.Mutex
	enabled bool
	saves   int
	err     error
}

func (m *memFlagStore) ConnectionEnabled() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled, m.err
}

func (m *memFlagStore) SetConnectionEnabled(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.enabled = enabled
	m.saves++
	return nil
}

func newTestController(t *testing.T, store FlagStore) (*Controller, *Sim, *Session) {
	t.Helper()
	sim := NewSim()
	s := NewSession(sim, testConfig(QueueWait))
	t.Cleanup(func() { s.Close() })
	return NewController(s, store, s.log), sim, s
}

func TestControllerConnectReadsIdentity(t *testing.T) {
	c, sim, _ := newTestController(t, nil)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	snap := c.Snapshot()
	require.Equal(t, uint16(ModelNumber), snap.Model)
	require.Equal(t, uint32(100005), snap.Serial)
	require.InDelta(t, 1.35, snap.Firmware, 1e-9)

	// Identity is one contiguous block, so one request covers it.
	require.Equal(t, uint64(1), sim.Requests())
}

func TestControllerConnectionDisabled(t *testing.T) {
	store := &memFlagStore{enabled: false}
	c, sim, _ := newTestController(t, store)

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnectionDisabled)
	require.False(t, c.ConnectionEnabled())
	require.Zero(t, sim.Requests())
	require.False(t, sim.Connected())
}

func TestControllerConnectionSwitch(t *testing.T) {
	store := &memFlagStore{enabled: true}
	c, sim, s := newTestController(t, store)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	require.Equal(t, StatusConnected, s.Status())

	// Turning the switch off persists the flag and drops the link.
	require.NoError(t, c.SetConnectionEnabled(false))
	require.Equal(t, 1, store.saves)
	require.False(t, store.enabled)
	require.Equal(t, StatusDisconnected, s.Status())
	require.False(t, sim.Connected())

	err := c.Connect(ctx)
	require.ErrorIs(t, err, ErrConnectionDisabled)

	require.NoError(t, c.SetConnectionEnabled(true))
	require.NoError(t, c.Connect(ctx))
	require.Equal(t, StatusConnected, s.Status())
}

func TestControllerConnectionSwitchPersistFailure(t *testing.T) {
	store := &memFlagStore{enabled: true}
	c, _, s := newTestController(t, store)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	// A flag that cannot be persisted must not silently flip.
	store.mu.Lock()
	store.err = errors.New("disk full")
	store.mu.Unlock()

	require.Error(t, c.SetConnectionEnabled(false))
	require.True(t, c.ConnectionEnabled())
	require.Equal(t, StatusConnected, s.Status())
}

func TestControllerSetters(t *testing.T) {
	c, sim, _ := newTestController(t, nil)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	require.NoError(t, c.SetVoltage(ctx, 12.34))
	require.Equal(t, uint16(1234), sim.Peek(AddrSetVoltage))

	require.NoError(t, c.SetCurrent(ctx, 1.5))
	require.Equal(t, uint16(1500), sim.Peek(AddrSetCurrent))

	require.NoError(t, c.SetOVP(ctx, 13))
	require.Equal(t, uint16(1300), sim.Peek(AddrOVP))

	require.NoError(t, c.SetOCP(ctx, 2.5))
	require.Equal(t, uint16(2500), sim.Peek(AddrOCP))

	require.NoError(t, c.SetOutputEnabled(ctx, true))
	require.Equal(t, uint16(1), sim.Peek(AddrOutputEnable))

	require.NoError(t, c.SetBuzzerEnabled(ctx, false))
	require.Equal(t, uint16(0), sim.Peek(AddrBuzzer))

	require.NoError(t, c.SetPowerOnBoot(ctx, true))
	require.Equal(t, uint16(1), sim.Peek(AddrPowerOnBoot))

	require.NoError(t, c.SetTakeOut(ctx, true))
	require.Equal(t, uint16(1), sim.Peek(AddrTakeOut))

	require.NoError(t, c.SetBacklight(ctx, 2))
	require.Equal(t, uint16(2), sim.Peek(AddrBacklight))

	snap := c.Snapshot()
	require.InDelta(t, 12.34, snap.SetVoltage, 1e-9)
	require.InDelta(t, 1.5, snap.SetCurrent, 1e-9)
	require.True(t, snap.OutputEnabled)
	require.False(t, snap.Buzzer)
	require.True(t, snap.PowerOnBoot)
	require.True(t, snap.TakeOut)
	require.Equal(t, 2, snap.Backlight)
}

func TestControllerSetterValidation(t *testing.T) {
	c, sim, _ := newTestController(t, nil)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	baseline := sim.Requests()

	require.ErrorIs(t, c.SetVoltage(ctx, -0.01), ErrInvalidValue)
	require.ErrorIs(t, c.SetVoltage(ctx, 60.01), ErrInvalidValue)
	require.ErrorIs(t, c.SetCurrent(ctx, 6.01), ErrInvalidValue)
	require.ErrorIs(t, c.SetOVP(ctx, 65.5), ErrInvalidValue)
	require.ErrorIs(t, c.SetOCP(ctx, 6.21), ErrInvalidValue)
	require.ErrorIs(t, c.SetBacklight(ctx, 6), ErrInvalidValue)
	require.ErrorIs(t, c.SetBacklight(ctx, -1), ErrInvalidValue)

	require.Equal(t, baseline, sim.Requests())
}

func TestControllerLiveOutput(t *testing.T) {
	c, _, _ := newTestController(t, nil)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	// 12 V into the sim's 10 ohm load wants 1.2 A; a 1.0 A limit puts
	// the supply into constant current.
	require.NoError(t, c.SetVoltage(ctx, 12))
	require.NoError(t, c.SetCurrent(ctx, 1))
	require.NoError(t, c.SetOutputEnabled(ctx, true))

	snap, err := c.Refresh(ctx)
	require.NoError(t, err)
	require.True(t, snap.OutputEnabled)
	require.Equal(t, RegulationCC, snap.Regulation)
	require.InDelta(t, 1.0, snap.OutputCurrent, 1e-9)
	require.InDelta(t, 10.0, snap.OutputVoltage, 1e-9)
	require.InDelta(t, 10.0, snap.Power, 0.02)

	// Raising the limit above the load current moves it back to CV.
	require.NoError(t, c.SetCurrent(ctx, 2))
	snap, err = c.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, RegulationCV, snap.Regulation)
	require.InDelta(t, 12.0, snap.OutputVoltage, 1e-9)
}

func TestControllerPresets(t *testing.T) {
	c, sim, _ := newTestController(t, nil)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	p := Preset{Voltage: 12, Current: 1.5, OVP: 13, OCP: 2}
	require.NoError(t, c.SavePreset(ctx, 3, p))

	base, err := PresetAddress(3)
	require.NoError(t, err)
	require.Equal(t, uint16(1200), sim.Peek(base))
	require.Equal(t, uint16(1500), sim.Peek(base+1))
	require.Equal(t, uint16(1300), sim.Peek(base+2))
	require.Equal(t, uint16(2000), sim.Peek(base+3))

	got, err := c.ReadPreset(ctx, 3)
	require.NoError(t, err)
	require.InDelta(t, p.Voltage, got.Voltage, 1e-9)
	require.InDelta(t, p.Current, got.Current, 1e-9)
	require.InDelta(t, p.OVP, got.OVP, 1e-9)
	require.InDelta(t, p.OCP, got.OCP, 1e-9)

	recalled, err := c.RecallPreset(ctx, 3)
	require.NoError(t, err)
	require.InDelta(t, p.Voltage, recalled.Voltage, 1e-9)
	require.InDelta(t, p.Current, recalled.Current, 1e-9)

	snap := c.Snapshot()
	require.InDelta(t, 12.0, snap.SetVoltage, 1e-9)
	require.InDelta(t, 1.5, snap.SetCurrent, 1e-9)
	require.InDelta(t, 13.0, snap.OVP, 1e-9)
	require.InDelta(t, 2.0, snap.OCP, 1e-9)
	require.Equal(t, uint16(1200), sim.Peek(AddrSetVoltage))
}

func TestControllerPresetBounds(t *testing.T) {
	c, _, _ := newTestController(t, nil)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	_, err := c.ReadPreset(ctx, -1)
	require.ErrorIs(t, err, ErrInvalidValue)
	_, err = c.ReadPreset(ctx, PresetSlots)
	require.ErrorIs(t, err, ErrInvalidValue)

	err = c.SavePreset(ctx, 0, Preset{Voltage: 61})
	require.ErrorIs(t, err, ErrInvalidValue)
	err = c.SavePreset(ctx, 0, Preset{Voltage: 5, Current: 1, OVP: 66, OCP: 1})
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestControllerRefreshSeesDeviceChanges(t *testing.T) {
	c, sim, _ := newTestController(t, nil)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	// Protection trips and the probe shows up behind our back.
	sim.Poke(AddrProtection, 2)
	sim.Poke(AddrTempExternal, 31)
	sim.Poke(AddrBatteryMode, 1)
	sim.Poke(AddrBatteryVolts, 1260)

	snap, err := c.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, ProtectionOCP, snap.Protection)
	require.True(t, snap.ProbeAttached)
	require.Equal(t, 31.0, snap.TempExternal)
	require.True(t, snap.BatteryMode)
	require.InDelta(t, 12.6, snap.BatteryVoltage, 1e-9)
}
