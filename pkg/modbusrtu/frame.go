// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package modbusrtu

import "time"

// Frame represents one decoded Modbus RTU message.
//
// Three shapes share the type: requests (read or write), write echoes, and
// read responses. Requests and echoes carry Address and Value; read responses
// carry Data instead, since the wire format omits the address on the way back.
type Frame struct {
	slave     uint8
	function  uint8
	address   uint16
	value     uint16
	data      []byte
	crc       uint16
	timestamp time.Time
}

// Slave returns the slave address the frame belongs to.
func (f *Frame) Slave() uint8 {
	return f.slave
}

// Function returns the Modbus function code.
func (f *Frame) Function() uint8 {
	return f.function
}

// Address returns the start register address. Only meaningful for requests
// and write echoes; read responses do not carry one.
func (f *Frame) Address() uint16 {
	return f.address
}

// Value returns the second request word: the register count for reads, the
// raw register value for writes and their echoes.
func (f *Frame) Value() uint16 {
	return f.value
}

// Data returns the raw big-endian register payload of a read response.
func (f *Frame) Data() []byte {
	return f.data
}

// Registers unpacks a read response payload into register words.
func (f *Frame) Registers() []uint16 {
	regs := make([]uint16, len(f.data)/2)
	for i := range regs {
		regs[i] = uint16(f.data[2*i])<<8 | uint16(f.data[2*i+1])
	}
	return regs
}

// CRC returns the checksum carried by the frame.
func (f *Frame) CRC() uint16 {
	return f.crc
}

// Timestamp returns when the frame was decoded.
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// IsResponse reports whether the frame is a device-to-host read response.
// A write echo is byte-identical to its request, so only read responses
// carry the distinction.
func (f *Frame) IsResponse() bool {
	return f.function == FuncReadHolding && f.data != nil
}
