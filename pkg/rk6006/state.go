// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import "time"

// Status is the session's connection lifecycle state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Protection reports which limit tripped and latched the output off.
type Protection int

const (
	ProtectionNone Protection = iota
	ProtectionOVP
	ProtectionOCP
)

func (p Protection) String() string {
	switch p {
	case ProtectionNone:
		return "none"
	case ProtectionOVP:
		return "OVP"
	case ProtectionOCP:
		return "OCP"
	default:
		return "unknown"
	}
}

// Regulation reports which limit the output is currently riding.
type Regulation int

const (
	RegulationCV Regulation = iota // constant voltage
	RegulationCC                   // constant current
)

func (r Regulation) String() string {
	if r == RegulationCC {
		return "CC"
	}
	return "CV"
}

// DeviceState is one immutable snapshot of everything the session knows
// about the supply. Physical units throughout: volts, amps, watts,
// degrees Celsius, amp-hours, watt-hours.
type DeviceState struct {
	Status    Status
	Cause     string // failure detail when Status is StatusError or StatusDisconnected
	UpdatedAt time.Time

	// Identity, read once per connection.
	Model    uint16
	Serial   uint32
	Firmware float64

	// Setpoints and limits.
	SetVoltage float64
	SetCurrent float64
	OVP        float64
	OCP        float64

	// Live output.
	OutputVoltage float64
	OutputCurrent float64
	Power         float64
	InputVoltage  float64
	OutputEnabled bool
	Regulation    Regulation
	Protection    Protection

	// Temperatures. ProbeAttached is false when the external probe
	// register reads the absent sentinel; TempExternal is zero then.
	TempInternal  float64
	TempExternal  float64
	ProbeAttached bool

	// Accumulated energy since the device's counters were reset.
	AmpHours  float64
	WattHours float64

	// Battery charging mode.
	BatteryMode    bool
	BatteryVoltage float64

	// Front-panel settings.
	TakeOut     bool
	PowerOnBoot bool
	Buzzer      bool
	Backlight   int
}

// withRegisters folds raw register words into a copy of the snapshot.
// Fields whose registers are absent from the map keep their previous
// values, so partial reads merge instead of zeroing.
func (d DeviceState) withRegisters(regs map[uint16]uint16) DeviceState {
	get := func(addr uint16) (uint16, bool) {
		v, ok := regs[addr]
		return v, ok
	}
	pair := func(hi, lo uint16) (uint32, bool) {
		h, okH := regs[hi]
		l, okL := regs[lo]
		if !okH || !okL {
			return 0, false
		}
		return uint32(h)<<16 | uint32(l), true
	}

	if v, ok := get(AddrModel); ok {
		d.Model = v
	}
	if v, ok := pair(AddrSerialHigh, AddrSerialLow); ok {
		d.Serial = v
	}
	if v, ok := get(AddrFirmware); ok {
		d.Firmware = float64(v) / 100
	}
	if v, ok := get(AddrTempExternal); ok {
		if v == ExternalProbeAbsent {
			d.ProbeAttached = false
			d.TempExternal = 0
		} else {
			d.ProbeAttached = true
			d.TempExternal = float64(v)
		}
	}
	if v, ok := get(AddrTempInternal); ok {
		d.TempInternal = float64(v)
	}
	if v, ok := get(AddrSetVoltage); ok {
		d.SetVoltage = float64(v) * 0.01
	}
	if v, ok := get(AddrSetCurrent); ok {
		d.SetCurrent = float64(v) * 0.001
	}
	if v, ok := get(AddrOutputVoltage); ok {
		d.OutputVoltage = float64(v) * 0.01
	}
	if v, ok := get(AddrOutputCurrent); ok {
		d.OutputCurrent = float64(v) * 0.001
	}
	if v, ok := pair(AddrPowerHigh, AddrPowerLow); ok {
		d.Power = float64(v) * 0.01
	}
	if v, ok := get(AddrInputVoltage); ok {
		d.InputVoltage = float64(v) * 0.01
	}
	if v, ok := get(AddrProtection); ok {
		switch v {
		case 1:
			d.Protection = ProtectionOVP
		case 2:
			d.Protection = ProtectionOCP
		default:
			d.Protection = ProtectionNone
		}
	}
	if v, ok := get(AddrRegulation); ok {
		if v == 1 {
			d.Regulation = RegulationCC
		} else {
			d.Regulation = RegulationCV
		}
	}
	if v, ok := get(AddrOutputEnable); ok {
		d.OutputEnabled = v != 0
	}
	if v, ok := pair(AddrAmpHoursHigh, AddrAmpHoursLow); ok {
		d.AmpHours = float64(v) / 1000
	}
	if v, ok := pair(AddrWattHoursHigh, AddrWattHoursLow); ok {
		d.WattHours = float64(v) / 1000
	}
	if v, ok := get(AddrBatteryMode); ok {
		d.BatteryMode = v != 0
	}
	if v, ok := get(AddrBatteryVolts); ok {
		d.BatteryVoltage = float64(v) * 0.01
	}
	if v, ok := get(AddrTakeOut); ok {
		d.TakeOut = v != 0
	}
	if v, ok := get(AddrPowerOnBoot); ok {
		d.PowerOnBoot = v != 0
	}
	if v, ok := get(AddrBuzzer); ok {
		d.Buzzer = v != 0
	}
	if v, ok := get(AddrBacklight); ok {
		d.Backlight = int(v)
	}
	if v, ok := get(AddrOVP); ok {
		d.OVP = float64(v) * 0.01
	}
	if v, ok := get(AddrOCP); ok {
		d.OCP = float64(v) * 0.001
	}
	return d
}
