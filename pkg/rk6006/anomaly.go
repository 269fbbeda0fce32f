// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"fmt"
	"time"
)

// AnomalyType represents different kinds of suspicious telemetry
type AnomalyType int

const (
	AnomalyStaleData AnomalyType = iota
	AnomalyModelMismatch
	AnomalyOverVoltage
	AnomalyOverCurrent
	AnomalyOverTemp
	AnomalyProtectionTripped
	AnomalyInputSag
	AnomalySetpointDrift
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyStaleData:
		return "stale data"
	case AnomalyModelMismatch:
		return "model mismatch"
	case AnomalyOverVoltage:
		return "over voltage"
	case AnomalyOverCurrent:
		return "over current"
	case AnomalyOverTemp:
		return "over temperature"
	case AnomalyProtectionTripped:
		return "protection tripped"
	case AnomalyInputSag:
		return "input sag"
	case AnomalySetpointDrift:
		return "setpoint drift"
	default:
		return "unknown"
	}
}

// ValidationError represents one telemetry validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Plausibility ceilings. The hardware tops out at 60 V / 6 A; readings
// beyond these margins mean a corrupted register image, not a hot rail.
const (
	maxPlausibleVolts = 62.0
	maxPlausibleAmps  = 6.3
	maxInternalTemp   = 80.0
	// A buck converter needs input headroom above the setpoint.
	minInputHeadroom = 1.0
	// CV output should sit on the setpoint; beyond this it does not.
	maxCVDrift = 0.5
)

// ValidateState checks a snapshot for readings that call for operator
// attention. Returns a slice of validation errors, empty if the
// snapshot is plausible. Lifecycle states other than Connected are not
// judged: a disconnected supply has nothing to validate.
func ValidateState(d DeviceState, maxAge time.Duration, now time.Time) []ValidationError {
	errors := []ValidationError{}

	if d.Status != StatusConnected {
		return errors
	}

	if maxAge > 0 && !d.UpdatedAt.IsZero() && now.Sub(d.UpdatedAt) > maxAge {
		errors = append(errors, ValidationError{
			Type:    AnomalyStaleData,
			Message: fmt.Sprintf("snapshot is %s old (max %s)", now.Sub(d.UpdatedAt).Round(time.Second), maxAge),
			Details: map[string]interface{}{"updated_at": d.UpdatedAt, "max_age": maxAge},
		})
	}

	if d.Model != 0 && d.Model != ModelNumber {
		errors = append(errors, ValidationError{
			Type:    AnomalyModelMismatch,
			Message: fmt.Sprintf("device reports model %d, expected %d", d.Model, ModelNumber),
			Details: map[string]interface{}{"model": d.Model, "expected": ModelNumber},
		})
	}

	if d.OutputVoltage > maxPlausibleVolts {
		errors = append(errors, ValidationError{
			Type:    AnomalyOverVoltage,
			Message: fmt.Sprintf("output voltage %.2fV beyond hardware ceiling %.0fV", d.OutputVoltage, maxPlausibleVolts),
			Details: map[string]interface{}{"output_voltage": d.OutputVoltage, "max": maxPlausibleVolts},
		})
	}

	if d.OutputCurrent > maxPlausibleAmps {
		errors = append(errors, ValidationError{
			Type:    AnomalyOverCurrent,
			Message: fmt.Sprintf("output current %.3fA beyond hardware ceiling %.1fA", d.OutputCurrent, maxPlausibleAmps),
			Details: map[string]interface{}{"output_current": d.OutputCurrent, "max": maxPlausibleAmps},
		})
	}

	if d.TempInternal > maxInternalTemp {
		errors = append(errors, ValidationError{
			Type:    AnomalyOverTemp,
			Message: fmt.Sprintf("internal temperature %.0f°C above %.0f°C", d.TempInternal, maxInternalTemp),
			Details: map[string]interface{}{"temp_internal": d.TempInternal, "max": maxInternalTemp},
		})
	}

	if d.Protection != ProtectionNone {
		errors = append(errors, ValidationError{
			Type:    AnomalyProtectionTripped,
			Message: fmt.Sprintf("%s tripped, output latched off", d.Protection),
			Details: map[string]interface{}{"protection": d.Protection.String()},
		})
	}

	if d.OutputEnabled && d.InputVoltage > 0 && d.InputVoltage < d.SetVoltage+minInputHeadroom {
		errors = append(errors, ValidationError{
			Type:    AnomalyInputSag,
			Message: fmt.Sprintf("input %.2fV leaves no headroom over %.2fV setpoint", d.InputVoltage, d.SetVoltage),
			Details: map[string]interface{}{"input_voltage": d.InputVoltage, "set_voltage": d.SetVoltage},
		})
	}

	if d.OutputEnabled && d.Regulation == RegulationCV {
		drift := d.SetVoltage - d.OutputVoltage
		if drift < 0 {
			drift = -drift
		}
		if drift > maxCVDrift {
			errors = append(errors, ValidationError{
				Type:    AnomalySetpointDrift,
				Message: fmt.Sprintf("CV output %.2fV is %.2fV off the %.2fV setpoint", d.OutputVoltage, drift, d.SetVoltage),
				Details: map[string]interface{}{"output_voltage": d.OutputVoltage, "set_voltage": d.SetVoltage},
			})
		}
	}

	return errors
}
