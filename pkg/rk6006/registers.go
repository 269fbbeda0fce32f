// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"fmt"
	"sort"

	"github.com/voltlab/rkctl/pkg/modbusrtu"
)

// Holding register addresses. The map is shared across the Riden RD/RK
// series; only the value domains below are specific to the RK6006.
const (
	AddrModel         uint16 = 0x0000
	AddrSerialHigh    uint16 = 0x0001
	AddrSerialLow     uint16 = 0x0002
	AddrFirmware      uint16 = 0x0003
	AddrTempExternal  uint16 = 0x0004
	AddrTempInternal  uint16 = 0x0005
	AddrSetVoltage    uint16 = 0x0008
	AddrSetCurrent    uint16 = 0x0009
	AddrOutputVoltage uint16 = 0x000A
	AddrOutputCurrent uint16 = 0x000B
	AddrPowerHigh     uint16 = 0x000C
	AddrPowerLow      uint16 = 0x000D
	AddrInputVoltage  uint16 = 0x000E
	AddrProtection    uint16 = 0x0010
	AddrRegulation    uint16 = 0x0011
	AddrOutputEnable  uint16 = 0x0012
	AddrAmpHoursHigh  uint16 = 0x0026
	AddrAmpHoursLow   uint16 = 0x0027
	AddrWattHoursHigh uint16 = 0x0028
	AddrWattHoursLow  uint16 = 0x0029
	AddrBatteryMode   uint16 = 0x0032
	AddrBatteryVolts  uint16 = 0x0033
	AddrTakeOut       uint16 = 0x0043
	AddrPowerOnBoot   uint16 = 0x0044
	AddrBuzzer        uint16 = 0x0045
	AddrBacklight     uint16 = 0x0048
	AddrOVP           uint16 = 0x0052
	AddrOCP           uint16 = 0x0053
)

// Preset memory slots M0..M9 live above the live registers. Each slot
// holds four words: voltage, current, OVP, OCP.
const (
	PresetBase   uint16 = 0x0050
	PresetStride uint16 = 4
	PresetSlots         = 10
)

// ExternalProbeAbsent is what the external temperature register reads
// when no probe is plugged in.
const ExternalProbeAbsent uint16 = 0xFFFF

// RegisterName names one logical register for lookups, errors, and logs.
type RegisterName string

const (
	RegModel         RegisterName = "model"
	RegSerialHigh    RegisterName = "serial_high"
	RegSerialLow     RegisterName = "serial_low"
	RegFirmware      RegisterName = "firmware"
	RegTempExternal  RegisterName = "temp_external"
	RegTempInternal  RegisterName = "temp_internal"
	RegSetVoltage    RegisterName = "set_voltage"
	RegSetCurrent    RegisterName = "set_current"
	RegOutputVoltage RegisterName = "output_voltage"
	RegOutputCurrent RegisterName = "output_current"
	RegPowerHigh     RegisterName = "power_high"
	RegPowerLow      RegisterName = "power_low"
	RegInputVoltage  RegisterName = "input_voltage"
	RegProtection    RegisterName = "protection"
	RegRegulation    RegisterName = "regulation"
	RegOutputEnable  RegisterName = "output_enable"
	RegAmpHoursHigh  RegisterName = "amp_hours_high"
	RegAmpHoursLow   RegisterName = "amp_hours_low"
	RegWattHoursHigh RegisterName = "watt_hours_high"
	RegWattHoursLow  RegisterName = "watt_hours_low"
	RegBatteryMode   RegisterName = "battery_mode"
	RegBatteryVolts  RegisterName = "battery_voltage"
	RegTakeOut       RegisterName = "take_out"
	RegPowerOnBoot   RegisterName = "power_on_boot"
	RegBuzzer        RegisterName = "buzzer"
	RegBacklight     RegisterName = "backlight"
	RegOVP           RegisterName = "ovp"
	RegOCP           RegisterName = "ocp"
)

// Kind describes how a register's raw word maps to a physical value.
type Kind int

const (
	KindU16    Kind = iota // raw word used as-is
	KindScaled             // raw word divided by a fixed scale
	KindBool               // 0 or 1
	KindEnum               // small discrete code (protection, regulation)
)

// Access marks whether the host may write a register.
type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

// Register is one row of the device register map.
type Register struct {
	Name    RegisterName
	Address uint16
	Kind    Kind
	Scale   float64 // physical units per raw count, 1 for unscaled kinds
	Access  Access
	Min     float64 // writable domain, physical units
	Max     float64
}

// registerTable lists every named register, ordered by address.
// Addresses are unique; preset slots are computed, not listed.
var registerTable = []Register{
	{Name: RegModel, Address: AddrModel, Kind: KindU16, Scale: 1, Access: ReadOnly},
	{Name: RegSerialHigh, Address: AddrSerialHigh, Kind: KindU16, Scale: 1, Access: ReadOnly},
	{Name: RegSerialLow, Address: AddrSerialLow, Kind: KindU16, Scale: 1, Access: ReadOnly},
	{Name: RegFirmware, Address: AddrFirmware, Kind: KindScaled, Scale: 0.01, Access: ReadOnly},
	{Name: RegTempExternal, Address: AddrTempExternal, Kind: KindU16, Scale: 1, Access: ReadOnly},
	{Name: RegTempInternal, Address: AddrTempInternal, Kind: KindU16, Scale: 1, Access: ReadOnly},
	{Name: RegSetVoltage, Address: AddrSetVoltage, Kind: KindScaled, Scale: 0.01, Access: ReadWrite, Min: 0, Max: 60},
	{Name: RegSetCurrent, Address: AddrSetCurrent, Kind: KindScaled, Scale: 0.001, Access: ReadWrite, Min: 0, Max: 6},
	{Name: RegOutputVoltage, Address: AddrOutputVoltage, Kind: KindScaled, Scale: 0.01, Access: ReadOnly},
	{Name: RegOutputCurrent, Address: AddrOutputCurrent, Kind: KindScaled, Scale: 0.001, Access: ReadOnly},
	{Name: RegPowerHigh, Address: AddrPowerHigh, Kind: KindU16, Scale: 1, Access: ReadOnly},
	{Name: RegPowerLow, Address: AddrPowerLow, Kind: KindU16, Scale: 1, Access: ReadOnly},
	{Name: RegInputVoltage, Address: AddrInputVoltage, Kind: KindScaled, Scale: 0.01, Access: ReadOnly},
	{Name: RegProtection, Address: AddrProtection, Kind: KindEnum, Scale: 1, Access: ReadOnly},
	{Name: RegRegulation, Address: AddrRegulation, Kind: KindEnum, Scale: 1, Access: ReadOnly},
	{Name: RegOutputEnable, Address: AddrOutputEnable, Kind: KindBool, Scale: 1, Access: ReadWrite, Min: 0, Max: 1},
	{Name: RegAmpHoursHigh, Address: AddrAmpHoursHigh, Kind: KindU16, Scale: 1, Access: ReadOnly},
	{Name: RegAmpHoursLow, Address: AddrAmpHoursLow, Kind: KindU16, Scale: 1, Access: ReadOnly},
	{Name: RegWattHoursHigh, Address: AddrWattHoursHigh, Kind: KindU16, Scale: 1, Access: ReadOnly},
	{Name: RegWattHoursLow, Address: AddrWattHoursLow, Kind: KindU16, Scale: 1, Access: ReadOnly},
	{Name: RegBatteryMode, Address: AddrBatteryMode, Kind: KindBool, Scale: 1, Access: ReadOnly},
	{Name: RegBatteryVolts, Address: AddrBatteryVolts, Kind: KindScaled, Scale: 0.01, Access: ReadOnly},
	{Name: RegTakeOut, Address: AddrTakeOut, Kind: KindBool, Scale: 1, Access: ReadWrite, Min: 0, Max: 1},
	{Name: RegPowerOnBoot, Address: AddrPowerOnBoot, Kind: KindBool, Scale: 1, Access: ReadWrite, Min: 0, Max: 1},
	{Name: RegBuzzer, Address: AddrBuzzer, Kind: KindBool, Scale: 1, Access: ReadWrite, Min: 0, Max: 1},
	{Name: RegBacklight, Address: AddrBacklight, Kind: KindU16, Scale: 1, Access: ReadWrite, Min: 0, Max: 5},
	{Name: RegOVP, Address: AddrOVP, Kind: KindScaled, Scale: 0.01, Access: ReadWrite, Min: 0, Max: 65},
	{Name: RegOCP, Address: AddrOCP, Kind: KindScaled, Scale: 0.001, Access: ReadWrite, Min: 0, Max: 6.2},
}

var (
	registersByName    map[RegisterName]Register
	registersByAddress map[uint16]Register
)

func init() {
	registersByName = make(map[RegisterName]Register, len(registerTable))
	registersByAddress = make(map[uint16]Register, len(registerTable))
	for _, r := range registerTable {
		registersByName[r.Name] = r
		registersByAddress[r.Address] = r
	}
}

// LookupRegister resolves a register by name.
func LookupRegister(name RegisterName) (Register, bool) {
	r, ok := registersByName[name]
	return r, ok
}

// RegisterAt resolves a register by address.
func RegisterAt(addr uint16) (Register, bool) {
	r, ok := registersByAddress[addr]
	return r, ok
}

// AllRegisters returns a copy of the register table.
func AllRegisters() []Register {
	out := make([]Register, len(registerTable))
	copy(out, registerTable)
	return out
}

// IdentityRegisters are read once after connecting: they never change
// while the supply is powered.
func IdentityRegisters() []RegisterName {
	return []RegisterName{RegModel, RegSerialHigh, RegSerialLow, RegFirmware}
}

// PollRegisters are the live registers a periodic refresh covers.
func PollRegisters() []RegisterName {
	return []RegisterName{
		RegTempExternal, RegTempInternal,
		RegSetVoltage, RegSetCurrent,
		RegOutputVoltage, RegOutputCurrent,
		RegPowerHigh, RegPowerLow, RegInputVoltage,
		RegProtection, RegRegulation, RegOutputEnable,
		RegAmpHoursHigh, RegAmpHoursLow, RegWattHoursHigh, RegWattHoursLow,
		RegBatteryMode, RegBatteryVolts,
		RegTakeOut, RegPowerOnBoot, RegBuzzer, RegBacklight,
		RegOVP, RegOCP,
	}
}

// ReadBlock is one contiguous span of registers fetched with a single
// read request.
type ReadBlock struct {
	Start uint16
	Count uint16
}

// PlanReads groups the requested registers into contiguous read blocks.
// The register map is sparse, and reading across a gap returns garbage
// on some firmware revisions, so blocks never span unnamed addresses.
// Blocks are also capped at the protocol's per-request register limit.
func PlanReads(names ...RegisterName) ([]ReadBlock, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no registers requested")
	}
	addrs := make([]uint16, 0, len(names))
	seen := make(map[uint16]bool, len(names))
	for _, n := range names {
		r, ok := registersByName[n]
		if !ok {
			return nil, fmt.Errorf("unknown register %q", n)
		}
		if !seen[r.Address] {
			seen[r.Address] = true
			addrs = append(addrs, r.Address)
		}
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	var blocks []ReadBlock
	cur := ReadBlock{Start: addrs[0], Count: 1}
	for _, a := range addrs[1:] {
		contiguous := a == cur.Start+cur.Count
		if contiguous && cur.Count < modbusrtu.MaxReadCount {
			cur.Count++
			continue
		}
		blocks = append(blocks, cur)
		cur = ReadBlock{Start: a, Count: 1}
	}
	blocks = append(blocks, cur)
	return blocks, nil
}

// PresetAddress returns the base address of memory slot M0..M9.
func PresetAddress(slot int) (uint16, error) {
	if slot < 0 || slot >= PresetSlots {
		return 0, fmt.Errorf("preset slot %d out of range 0..%d", slot, PresetSlots-1)
	}
	return PresetBase + PresetStride*uint16(slot), nil
}
