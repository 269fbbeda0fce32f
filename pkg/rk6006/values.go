// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"fmt"
	"math"
)

// ToPhysical converts a raw register word to physical units.
func ToPhysical(reg Register, raw uint16) float64 {
	if reg.Kind == KindScaled {
		return float64(raw) * reg.Scale
	}
	return float64(raw)
}

// ToRaw converts a physical value to the register's wire word. The
// value is clamped to the writable domain and rounded to the register's
// resolution, so ToRaw(ToPhysical(ToRaw(v))) == ToRaw(v).
func ToRaw(reg Register, value float64) uint16 {
	if reg.Access == ReadWrite {
		value = math.Min(math.Max(value, reg.Min), reg.Max)
	}
	scale := reg.Scale
	if scale == 0 {
		scale = 1
	}
	raw := math.Round(value / scale)
	if raw < 0 {
		return 0
	}
	if raw > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(raw)
}

// ValidateValue reports whether a physical value is inside the
// register's writable domain. Read-only registers reject every value.
func ValidateValue(reg Register, value float64) error {
	if reg.Access != ReadWrite {
		return fmt.Errorf("register %s is read-only", reg.Name)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("register %s: value must be finite", reg.Name)
	}
	if value < reg.Min || value > reg.Max {
		return fmt.Errorf("register %s: %v outside %v..%v", reg.Name, value, reg.Min, reg.Max)
	}
	return nil
}
