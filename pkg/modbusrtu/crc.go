// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package modbusrtu

// CalculateCRC computes the CRC-16/Modbus checksum for the given data
func CalculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ crcPolynomial
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// appendCRC appends the checksum of buf to buf, low byte first as it travels
// on the wire.
func appendCRC(buf []byte) []byte {
	crc := CalculateCRC(buf)
	return append(buf, byte(crc), byte(crc>>8))
}

// trailerCRC reads the little-endian checksum trailer of a complete frame.
func trailerCRC(frame []byte) uint16 {
	n := len(frame)
	return uint16(frame[n-2]) | uint16(frame[n-1])<<8
}
