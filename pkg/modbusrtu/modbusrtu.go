// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

// Package modbusrtu implements the Modbus RTU register framing spoken by
// Ruideng RK-series power supplies over their BLE UART bridge.
//
// The dialect is small: one slave per link, function 0x03 (read holding
// registers) and function 0x06 (write single register), big-endian register
// words, and a CRC-16/Modbus trailer transmitted low byte first. Responses
// arrive as notification chunks of arbitrary size, so the package provides a
// streaming Decoder alongside one-shot parsing.
package modbusrtu

// Function codes understood by the supply.
const (
	FuncReadHolding = 0x03
	FuncWriteSingle = 0x06
)

// Frame geometry. Every request is exactly 8 bytes and a write response is a
// byte-for-byte echo of its request. Read responses carry a declared payload:
// slave + function + byte count + data + CRC.
const (
	RequestSize    = 8
	respHeaderSize = 3
	crcSize        = 2

	// MaxReadCount bounds a single read request. The largest block the
	// register map needs is 7 words; staying small keeps responses within a
	// couple of BLE notification chunks.
	MaxReadCount = 16

	MaxFrameSize = respHeaderSize + 2*MaxReadCount + crcSize
)

// DefaultSlaveID is the fixed Modbus slave address of an RK6006.
const DefaultSlaveID = 0x01

// CRC-16/Modbus configuration (reflected polynomial, seeded all-ones).
const (
	crcPolynomial = 0xA001
	crcInitial    = 0xFFFF
)
