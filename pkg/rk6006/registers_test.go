// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voltlab/rkctl/pkg/modbusrtu"
)

func TestRegisterTableIntegrity(t *testing.T) {
	byAddr := map[uint16]RegisterName{}
	byName := map[RegisterName]bool{}
	for _, r := range AllRegisters() {
		require.False(t, byName[r.Name], "duplicate name %s", r.Name)
		byName[r.Name] = true
		prev, dup := byAddr[r.Address]
		require.False(t, dup, "address 0x%04X used by %s and %s", r.Address, prev, r.Name)
		byAddr[r.Address] = r.Name

		if r.Access == ReadWrite {
			require.Less(t, r.Min, r.Max, "register %s has an empty domain", r.Name)
		}
		require.Positive(t, r.Scale, "register %s has no scale", r.Name)
	}
}

func TestRegisterLookups(t *testing.T) {
	r, ok := LookupRegister(RegSetVoltage)
	require.True(t, ok)
	require.Equal(t, AddrSetVoltage, r.Address)
	require.Equal(t, ReadWrite, r.Access)

	_, ok = LookupRegister("nope")
	require.False(t, ok)

	r, ok = RegisterAt(AddrOCP)
	require.True(t, ok)
	require.Equal(t, RegOCP, r.Name)

	_, ok = RegisterAt(0x1234)
	require.False(t, ok)
}

func TestPlanReadsGeometry(t *testing.T) {
	blocks, err := PlanReads(PollRegisters()...)
	require.NoError(t, err)

	want := []ReadBlock{
		{Start: 0x0004, Count: 2},
		{Start: 0x0008, Count: 7},
		{Start: 0x0010, Count: 3},
		{Start: 0x0026, Count: 4},
		{Start: 0x0032, Count: 2},
		{Start: 0x0043, Count: 3},
		{Start: 0x0048, Count: 1},
		{Start: 0x0052, Count: 2},
	}
	require.Equal(t, want, blocks)
}

func TestPlanReadsDeduplicatesAndSorts(t *testing.T) {
	blocks, err := PlanReads(RegSetCurrent, RegSetVoltage, RegSetCurrent)
	require.NoError(t, err)
	require.Equal(t, []ReadBlock{{Start: AddrSetVoltage, Count: 2}}, blocks)
}

func TestPlanReadsSplitsAtGaps(t *testing.T) {
	blocks, err := PlanReads(RegModel, RegSetVoltage)
	require.NoError(t, err)
	require.Equal(t, []ReadBlock{
		{Start: AddrModel, Count: 1},
		{Start: AddrSetVoltage, Count: 1},
	}, blocks)
}

func TestPlanReadsRespectsRequestLimit(t *testing.T) {
	for _, b := range mustPlan(t, PollRegisters()...) {
		require.LessOrEqual(t, int(b.Count), modbusrtu.MaxReadCount)
	}
}

func mustPlan(t *testing.T, names ...RegisterName) []ReadBlock {
	t.Helper()
	blocks, err := PlanReads(names...)
	require.NoError(t, err)
	return blocks
}

func TestPlanReadsRejectsUnknown(t *testing.T) {
	_, err := PlanReads(RegSetVoltage, "made_up")
	require.Error(t, err)

	_, err = PlanReads()
	require.Error(t, err)
}

func TestPresetAddress(t *testing.T) {
	addr, err := PresetAddress(0)
	require.NoError(t, err)
	require.Equal(t, PresetBase, addr)

	addr, err = PresetAddress(9)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0074), addr)

	_, err = PresetAddress(-1)
	require.Error(t, err)
	_, err = PresetAddress(10)
	require.Error(t, err)
}

func TestIdentityRegistersAreOneBlock(t *testing.T) {
	blocks := mustPlan(t, IdentityRegisters()...)
	require.Equal(t, []ReadBlock{{Start: AddrModel, Count: 4}}, blocks)
}
