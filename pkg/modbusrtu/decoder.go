// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package modbusrtu

import (
	"fmt"
	"time"
)

// Decoder states (internal). RTU has no start byte: a frame begins wherever
// the slave address shows up in the stream, so stateIdle hunts for it.
const (
	stateIdle = iota
	stateFunction
	stateCount
	stateBody
)

// Decoder reassembles device-to-host frames from a notification stream. The
// BLE bridge splits frames across chunks of arbitrary size, so bytes are fed
// one at a time and a frame is emitted once its self-described length arrives
// and the checksum holds.
type Decoder struct {
	slave    uint8
	state    int
	buf      []byte
	expected int
	skipped  int
}

// NewDecoder creates a decoder for frames from the given slave address.
func NewDecoder(slave uint8) *Decoder {
	return &Decoder{
		slave: slave,
		buf:   make([]byte, 0, MaxFrameSize),
	}
}

// Reset drops any partially collected frame.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buf = d.buf[:0]
	d.expected = 0
}

// Skipped returns the total number of bytes discarded while hunting for a
// frame start. Noise on a shared BLE channel is expected and not an error.
func (d *Decoder) Skipped() int {
	return d.skipped
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil while the frame is still incomplete.
// Returns an error if the bytes cannot form a valid frame; the decoder
// resets itself and resynchronizes on the next slave address byte.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	switch d.state {
	case stateIdle:
		if b != d.slave {
			d.skipped++
			return nil, nil
		}
		d.buf = append(d.buf[:0], b)
		d.state = stateFunction
		return nil, nil

	case stateFunction:
		d.buf = append(d.buf, b)
		switch b {
		case FuncReadHolding:
			d.state = stateCount
		case FuncWriteSingle:
			d.expected = RequestSize
			d.state = stateBody
		default:
			d.Reset()
			return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownFunction, b)
		}
		return nil, nil

	case stateCount:
		d.buf = append(d.buf, b)
		if b == 0 || b%2 != 0 || int(b) > 2*MaxReadCount {
			d.Reset()
			return nil, fmt.Errorf("%w: byte count %d", ErrInvalidLength, b)
		}
		d.expected = respHeaderSize + int(b) + crcSize
		d.state = stateBody
		return nil, nil

	case stateBody:
		d.buf = append(d.buf, b)
		if len(d.buf) < d.expected {
			return nil, nil
		}
		frame, err := d.finish()
		d.Reset()
		return frame, err

	default:
		d.Reset()
		return nil, fmt.Errorf("modbusrtu: invalid decoder state %d", d.state)
	}
}

// finish validates the checksum of the collected frame and builds it.
func (d *Decoder) finish() (*Frame, error) {
	body := d.buf[:len(d.buf)-crcSize]
	calculated := CalculateCRC(body)
	carried := trailerCRC(d.buf)
	if calculated != carried {
		return nil, fmt.Errorf("%w: calculated 0x%04X, frame carries 0x%04X", ErrChecksum, calculated, carried)
	}

	f := &Frame{
		slave:     d.buf[0],
		function:  d.buf[1],
		crc:       carried,
		timestamp: time.Now(),
	}
	if f.function == FuncReadHolding {
		data := make([]byte, int(d.buf[2]))
		copy(data, d.buf[respHeaderSize:len(d.buf)-crcSize])
		f.data = data
	} else {
		f.address = uint16(d.buf[2])<<8 | uint16(d.buf[3])
		f.value = uint16(d.buf[4])<<8 | uint16(d.buf[5])
	}
	return f, nil
}

// Decode parses one complete device-to-host frame: a read response or a
// write echo. Trailing bytes beyond the declared length are rejected.
func Decode(slave uint8, buf []byte) (*Frame, error) {
	if len(buf) < respHeaderSize+crcSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(buf))
	}
	if buf[0] != slave {
		return nil, fmt.Errorf("modbusrtu: frame for slave 0x%02X, want 0x%02X", buf[0], slave)
	}

	switch buf[1] {
	case FuncWriteSingle:
		return parseFixed(buf)

	case FuncReadHolding:
		bc := int(buf[2])
		if bc == 0 || bc%2 != 0 || bc > 2*MaxReadCount {
			return nil, fmt.Errorf("%w: byte count %d", ErrInvalidLength, bc)
		}
		expected := respHeaderSize + bc + crcSize
		if len(buf) < expected {
			return nil, fmt.Errorf("%w: have %d bytes, frame declares %d", ErrTruncated, len(buf), expected)
		}
		if len(buf) > expected {
			return nil, fmt.Errorf("modbusrtu: %d trailing bytes after frame", len(buf)-expected)
		}
		if err := verifyCRC(buf); err != nil {
			return nil, err
		}
		data := make([]byte, bc)
		copy(data, buf[respHeaderSize:expected-crcSize])
		return &Frame{
			slave:     buf[0],
			function:  buf[1],
			data:      data,
			crc:       trailerCRC(buf),
			timestamp: time.Now(),
		}, nil

	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownFunction, buf[1])
	}
}

// DecodeRequest parses one complete host-to-device request frame.
func DecodeRequest(slave uint8, buf []byte) (*Frame, error) {
	if len(buf) < RequestSize {
		return nil, fmt.Errorf("%w: %d bytes, request is %d", ErrTruncated, len(buf), RequestSize)
	}
	if buf[0] != slave {
		return nil, fmt.Errorf("modbusrtu: frame for slave 0x%02X, want 0x%02X", buf[0], slave)
	}
	if buf[1] != FuncReadHolding && buf[1] != FuncWriteSingle {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownFunction, buf[1])
	}
	return parseFixed(buf)
}

// parseFixed handles the shared 8-byte layout of requests and write echoes.
func parseFixed(buf []byte) (*Frame, error) {
	if len(buf) < RequestSize {
		return nil, fmt.Errorf("%w: have %d bytes, frame declares %d", ErrTruncated, len(buf), RequestSize)
	}
	if len(buf) > RequestSize {
		return nil, fmt.Errorf("modbusrtu: %d trailing bytes after frame", len(buf)-RequestSize)
	}
	if err := verifyCRC(buf); err != nil {
		return nil, err
	}
	return &Frame{
		slave:     buf[0],
		function:  buf[1],
		address:   uint16(buf[2])<<8 | uint16(buf[3]),
		value:     uint16(buf[4])<<8 | uint16(buf[5]),
		crc:       trailerCRC(buf),
		timestamp: time.Now(),
	}, nil
}

func verifyCRC(frame []byte) error {
	calculated := CalculateCRC(frame[:len(frame)-crcSize])
	carried := trailerCRC(frame)
	if calculated != carried {
		return fmt.Errorf("%w: calculated 0x%04X, frame carries 0x%04X", ErrChecksum, calculated, carried)
	}
	return nil
}
