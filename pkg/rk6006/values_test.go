// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func reg(t *testing.T, name RegisterName) Register {
	t.Helper()
	r, ok := LookupRegister(name)
	require.True(t, ok)
	return r
}

func TestToPhysicalScaling(t *testing.T) {
	cases := []struct {
		name RegisterName
		raw  uint16
		want float64
	}{
		{RegSetVoltage, 500, 5.00},
		{RegSetVoltage, 1234, 12.34},
		{RegSetCurrent, 1500, 1.5},
		{RegOVP, 6200, 62.00},
		{RegOCP, 6100, 6.1},
		{RegInputVoltage, 2405, 24.05},
		{RegFirmware, 135, 1.35},
		{RegBacklight, 4, 4},
		{RegTempInternal, 26, 26},
	}
	for _, c := range cases {
		got := ToPhysical(reg(t, c.name), c.raw)
		require.InDelta(t, c.want, got, 1e-9, "%s raw %d", c.name, c.raw)
	}
}

func TestToRawScaling(t *testing.T) {
	cases := []struct {
		name  RegisterName
		value float64
		want  uint16
	}{
		{RegSetVoltage, 12.34, 1234},
		{RegSetVoltage, 5, 500},
		{RegSetVoltage, 0, 0},
		{RegSetVoltage, 60, 6000},
		{RegSetCurrent, 1.5, 1500},
		{RegSetCurrent, 6, 6000},
		{RegOVP, 65, 6500},
		{RegOCP, 6.2, 6200},
		{RegBacklight, 3, 3},
		{RegOutputEnable, 1, 1},
	}
	for _, c := range cases {
		got := ToRaw(reg(t, c.name), c.value)
		require.Equal(t, c.want, got, "%s value %v", c.name, c.value)
	}
}

func TestToRawClamps(t *testing.T) {
	v := reg(t, RegSetVoltage)
	require.Equal(t, uint16(6000), ToRaw(v, 99))
	require.Equal(t, uint16(0), ToRaw(v, -5))

	i := reg(t, RegSetCurrent)
	require.Equal(t, uint16(6000), ToRaw(i, 7))
}

func TestToRawQuantizes(t *testing.T) {
	v := reg(t, RegSetVoltage)
	// Resolution is 10 mV; values between steps round to the nearest.
	require.Equal(t, uint16(1234), ToRaw(v, 12.336))
	require.Equal(t, uint16(1234), ToRaw(v, 12.344))
	require.Equal(t, uint16(1233), ToRaw(v, 12.334))
}

func TestConversionRoundTripIsStable(t *testing.T) {
	// Converting to raw, to physical, and back must land on the same
	// raw word: quantization happens once, not per hop.
	for _, name := range []RegisterName{RegSetVoltage, RegSetCurrent, RegOVP, RegOCP} {
		r := reg(t, name)
		for _, value := range []float64{0, 0.005, 1.234, 5.5555, r.Max / 3, r.Max} {
			first := ToRaw(r, value)
			again := ToRaw(r, ToPhysical(r, first))
			require.Equal(t, first, again, "%s value %v", name, value)
		}
	}
}

func TestValidateValueDomains(t *testing.T) {
	require.NoError(t, ValidateValue(reg(t, RegSetVoltage), 0))
	require.NoError(t, ValidateValue(reg(t, RegSetVoltage), 60))
	require.Error(t, ValidateValue(reg(t, RegSetVoltage), 60.01))
	require.Error(t, ValidateValue(reg(t, RegSetVoltage), -0.01))

	require.NoError(t, ValidateValue(reg(t, RegOCP), 6.2))
	require.Error(t, ValidateValue(reg(t, RegOCP), 6.21))

	require.NoError(t, ValidateValue(reg(t, RegBacklight), 5))
	require.Error(t, ValidateValue(reg(t, RegBacklight), 5.5))

	require.Error(t, ValidateValue(reg(t, RegOutputVoltage), 5), "read-only register")
}
