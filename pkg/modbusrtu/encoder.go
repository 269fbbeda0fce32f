// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package modbusrtu

import "fmt"

// BuildReadRequest encodes a request to read count holding registers
// starting at addr.
func BuildReadRequest(slave uint8, addr uint16, count uint16) ([]byte, error) {
	if count == 0 || count > MaxReadCount {
		return nil, fmt.Errorf("modbusrtu: read count %d out of range 1..%d", count, MaxReadCount)
	}
	if int(addr)+int(count) > 0x10000 {
		return nil, fmt.Errorf("modbusrtu: read 0x%04X+%d overflows address space", addr, count)
	}
	return buildRequest(slave, FuncReadHolding, addr, count), nil
}

// BuildWriteRequest encodes a single-register write. The device acknowledges
// by echoing the request byte for byte.
func BuildWriteRequest(slave uint8, addr uint16, value uint16) []byte {
	return buildRequest(slave, FuncWriteSingle, addr, value)
}

// BuildReadResponse encodes the device-side answer to a read request. Used by
// the simulator and by tests; a real supply produces these on its own.
func BuildReadResponse(slave uint8, values []uint16) []byte {
	buf := make([]byte, 0, respHeaderSize+2*len(values)+crcSize)
	buf = append(buf, slave, FuncReadHolding, byte(2*len(values)))
	for _, v := range values {
		buf = append(buf, byte(v>>8), byte(v))
	}
	return appendCRC(buf)
}

func buildRequest(slave uint8, function uint8, addr uint16, value uint16) []byte {
	buf := make([]byte, 0, RequestSize)
	buf = append(buf, slave, function, byte(addr>>8), byte(addr), byte(value>>8), byte(value))
	return appendCRC(buf)
}
