// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func anomalyTypes(errs []ValidationError) []AnomalyType {
	types := make([]AnomalyType, len(errs))
	for i, e := range errs {
		types[i] = e.Type
	}
	return types
}

func TestValidateStateHealthy(t *testing.T) {
	now := time.Now()
	d := DeviceState{
		Status:        StatusConnected,
		UpdatedAt:     now,
		Model:         ModelNumber,
		SetVoltage:    12,
		OutputVoltage: 12,
		OutputCurrent: 1,
		InputVoltage:  24,
		TempInternal:  35,
		OutputEnabled: true,
		Regulation:    RegulationCV,
	}
	require.Empty(t, ValidateState(d, 10*time.Second, now))
}

func TestValidateStateSkipsDisconnected(t *testing.T) {
	d := DeviceState{Status: StatusDisconnected, OutputVoltage: 999}
	require.Empty(t, ValidateState(d, time.Second, time.Now()))
}

func TestValidateStateFlagsProblems(t *testing.T) {
	now := time.Now()
	d := DeviceState{
		Status:        StatusConnected,
		UpdatedAt:     now.Add(-time.Minute),
		Model:         60062, // an RD6006 answering an RK6006 map
		SetVoltage:    24,
		OutputVoltage: 70,
		OutputCurrent: 6.5,
		InputVoltage:  24.5,
		TempInternal:  92,
		Protection:    ProtectionOVP,
		OutputEnabled: true,
		Regulation:    RegulationCV,
	}

	types := anomalyTypes(ValidateState(d, 10*time.Second, now))
	require.Contains(t, types, AnomalyStaleData)
	require.Contains(t, types, AnomalyModelMismatch)
	require.Contains(t, types, AnomalyOverVoltage)
	require.Contains(t, types, AnomalyOverCurrent)
	require.Contains(t, types, AnomalyOverTemp)
	require.Contains(t, types, AnomalyProtectionTripped)
	require.Contains(t, types, AnomalyInputSag)
}

func TestValidateStateSetpointDrift(t *testing.T) {
	now := time.Now()
	d := DeviceState{
		Status:        StatusConnected,
		UpdatedAt:     now,
		Model:         ModelNumber,
		SetVoltage:    12,
		OutputVoltage: 10.9,
		InputVoltage:  24,
		OutputEnabled: true,
		Regulation:    RegulationCV,
	}
	types := anomalyTypes(ValidateState(d, 10*time.Second, now))
	require.Contains(t, types, AnomalySetpointDrift)

	// The same gap in CC mode is the current limit doing its job.
	d.Regulation = RegulationCC
	types = anomalyTypes(ValidateState(d, 10*time.Second, now))
	require.NotContains(t, types, AnomalySetpointDrift)
}

func TestValidationErrorMessages(t *testing.T) {
	now := time.Now()
	d := DeviceState{
		Status:       StatusConnected,
		UpdatedAt:    now,
		Model:        ModelNumber,
		TempInternal: 92,
	}
	errs := ValidateState(d, 0, now)
	require.Len(t, errs, 1)
	require.Equal(t, AnomalyOverTemp, errs[0].Type)
	require.Contains(t, errs[0].Error(), "92")
	require.Equal(t, "over temperature", errs[0].Type.String())
}
