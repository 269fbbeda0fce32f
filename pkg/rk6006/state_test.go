// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateFoldsRegisters(t *testing.T) {
	d := DeviceState{}.withRegisters(map[uint16]uint16{
		AddrModel:         60066,
		AddrSerialHigh:    0x0001,
		AddrSerialLow:     0x86A5,
		AddrFirmware:      135,
		AddrTempExternal:  24,
		AddrTempInternal:  31,
		AddrSetVoltage:    1234,
		AddrSetCurrent:    1500,
		AddrOutputVoltage: 1230,
		AddrOutputCurrent: 987,
		AddrPowerHigh:     0,
		AddrPowerLow:      1214,
		AddrInputVoltage:  2405,
		AddrProtection:    0,
		AddrRegulation:    1,
		AddrOutputEnable:  1,
		AddrAmpHoursHigh:  0,
		AddrAmpHoursLow:   2500,
		AddrWattHoursHigh: 1,
		AddrWattHoursLow:  100,
		AddrBatteryMode:   0,
		AddrBatteryVolts:  0,
		AddrTakeOut:       0,
		AddrPowerOnBoot:   1,
		AddrBuzzer:        1,
		AddrBacklight:     5,
		AddrOVP:           6200,
		AddrOCP:           6100,
	})

	require.Equal(t, uint16(60066), d.Model)
	require.Equal(t, uint32(100005), d.Serial)
	require.InDelta(t, 1.35, d.Firmware, 1e-9)
	require.True(t, d.ProbeAttached)
	require.Equal(t, 24.0, d.TempExternal)
	require.Equal(t, 31.0, d.TempInternal)
	require.InDelta(t, 12.34, d.SetVoltage, 1e-9)
	require.InDelta(t, 1.5, d.SetCurrent, 1e-9)
	require.InDelta(t, 12.30, d.OutputVoltage, 1e-9)
	require.InDelta(t, 0.987, d.OutputCurrent, 1e-9)
	require.InDelta(t, 12.14, d.Power, 1e-9)
	require.InDelta(t, 24.05, d.InputVoltage, 1e-9)
	require.Equal(t, ProtectionNone, d.Protection)
	require.Equal(t, RegulationCC, d.Regulation)
	require.True(t, d.OutputEnabled)
	require.InDelta(t, 2.5, d.AmpHours, 1e-9)
	require.InDelta(t, 65.636, d.WattHours, 1e-9)
	require.False(t, d.BatteryMode)
	require.False(t, d.TakeOut)
	require.True(t, d.PowerOnBoot)
	require.True(t, d.Buzzer)
	require.Equal(t, 5, d.Backlight)
	require.InDelta(t, 62.0, d.OVP, 1e-9)
	require.InDelta(t, 6.1, d.OCP, 1e-9)
}

func TestStateProbeAbsent(t *testing.T) {
	d := DeviceState{TempExternal: 99, ProbeAttached: true}.withRegisters(map[uint16]uint16{
		AddrTempExternal: ExternalProbeAbsent,
	})
	require.False(t, d.ProbeAttached)
	require.Zero(t, d.TempExternal)
}

func TestStateProtectionMapping(t *testing.T) {
	for raw, want := range map[uint16]Protection{
		0: ProtectionNone,
		1: ProtectionOVP,
		2: ProtectionOCP,
		9: ProtectionNone, // unknown codes read as clear
	} {
		d := DeviceState{}.withRegisters(map[uint16]uint16{AddrProtection: raw})
		require.Equal(t, want, d.Protection, "raw %d", raw)
	}
}

func TestStatePartialMerge(t *testing.T) {
	d := DeviceState{SetVoltage: 5, SetCurrent: 1, Backlight: 4}

	// Only the voltage register arrives; everything else must survive.
	d = d.withRegisters(map[uint16]uint16{AddrSetVoltage: 900})
	require.InDelta(t, 9.0, d.SetVoltage, 1e-9)
	require.InDelta(t, 1.0, d.SetCurrent, 1e-9)
	require.Equal(t, 4, d.Backlight)
}

func TestStatePairsRequireBothWords(t *testing.T) {
	d := DeviceState{Power: 7}

	// A lone high word must not produce a half-baked pair value.
	d = d.withRegisters(map[uint16]uint16{AddrPowerHigh: 1})
	require.InDelta(t, 7.0, d.Power, 1e-9)

	d = d.withRegisters(map[uint16]uint16{AddrPowerHigh: 1, AddrPowerLow: 0})
	require.InDelta(t, 655.36, d.Power, 1e-9)
}

func TestStatusStrings(t *testing.T) {
	require.Equal(t, "disconnected", StatusDisconnected.String())
	require.Equal(t, "connecting", StatusConnecting.String())
	require.Equal(t, "connected", StatusConnected.String())
	require.Equal(t, "error", StatusError.String())
	require.Equal(t, "CC", RegulationCC.String())
	require.Equal(t, "CV", RegulationCV.String())
	require.Equal(t, "OVP", ProtectionOVP.String())
}
