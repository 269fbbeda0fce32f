// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package modbusrtu

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")
	name := FormatFunction(f.function)

	var result string
	switch {
	case f.IsResponse():
		result = fmt.Sprintf("[%s] %s RESPONSE slave=0x%02X words=%d\n",
			timestamp, name, f.slave, len(f.data)/2)
		result += formatRegisters(f.Registers())
	case f.function == FuncWriteSingle:
		result = fmt.Sprintf("[%s] %s slave=0x%02X reg=0x%04X value=%d (0x%04X)\n",
			timestamp, name, f.slave, f.address, f.value, f.value)
	default:
		result = fmt.Sprintf("[%s] %s REQUEST slave=0x%02X start=0x%04X count=%d\n",
			timestamp, name, f.slave, f.address, f.value)
	}
	return result
}

// FormatFunction returns the human-readable name for a function code
func FormatFunction(function uint8) string {
	switch function {
	case FuncReadHolding:
		return "READ_HOLDING"
	case FuncWriteSingle:
		return "WRITE_SINGLE"
	default:
		return "UNKNOWN"
	}
}

// FormatHex renders raw frame bytes as a spaced hex string.
func FormatHex(buf []byte) string {
	var sb strings.Builder
	for i, b := range buf {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// formatRegisters renders response register words, eight to a line.
func formatRegisters(regs []uint16) string {
	var sb strings.Builder
	for i, r := range regs {
		if i%8 == 0 {
			if i > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString("  ")
		} else {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%5d", r)
	}
	if len(regs) > 0 {
		sb.WriteByte('\n')
	}
	return sb.String()
}
