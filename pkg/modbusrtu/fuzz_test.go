// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package modbusrtu

import (
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func TestFuzzRequestRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		if rng.Intn(2) == 0 {
			addr := uint16(rng.Intn(0x10000 - MaxReadCount))
			count := uint16(1 + rng.Intn(MaxReadCount))

			wire, err := BuildReadRequest(0x01, addr, count)
			if err != nil {
				t.Fatalf("round %d: BuildReadRequest(0x%04X, %d) failed: %v", i, addr, count, err)
			}
			frame, err := DecodeRequest(0x01, wire)
			if err != nil {
				t.Fatalf("round %d: DecodeRequest failed: %v", i, err)
			}
			if frame.Address() != addr || frame.Value() != count {
				t.Fatalf("round %d: got addr=0x%04X count=%d, want addr=0x%04X count=%d",
					i, frame.Address(), frame.Value(), addr, count)
			}
		} else {
			addr := uint16(rng.Intn(0x10000))
			value := uint16(rng.Intn(0x10000))

			wire := BuildWriteRequest(0x01, addr, value)
			frame, err := DecodeRequest(0x01, wire)
			if err != nil {
				t.Fatalf("round %d: DecodeRequest failed: %v", i, err)
			}
			if frame.Address() != addr || frame.Value() != value {
				t.Fatalf("round %d: got addr=0x%04X value=%d, want addr=0x%04X value=%d",
					i, frame.Address(), frame.Value(), addr, value)
			}
		}
	}
}

func TestFuzzResponseRoundTripChunked(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		values := make([]uint16, 1+rng.Intn(MaxReadCount))
		for j := range values {
			values[j] = uint16(rng.Intn(0x10000))
		}
		wire := BuildReadResponse(0x01, values)

		// Deliver in random chunk sizes like a BLE notification stream.
		d := NewDecoder(0x01)
		var decoded *Frame
		for pos := 0; pos < len(wire); {
			n := 1 + rng.Intn(len(wire)-pos)
			for _, b := range wire[pos : pos+n] {
				frame, err := d.DecodeByte(b)
				if err != nil {
					t.Fatalf("round %d: decode error: %v", i, err)
				}
				if frame != nil {
					decoded = frame
				}
			}
			pos += n
		}

		if decoded == nil {
			t.Fatalf("round %d: no frame decoded", i)
		}
		regs := decoded.Registers()
		if len(regs) != len(values) {
			t.Fatalf("round %d: got %d registers, want %d", i, len(regs), len(values))
		}
		for j := range values {
			if regs[j] != values[j] {
				t.Fatalf("round %d: register[%d] = %d, want %d", i, j, regs[j], values[j])
			}
		}
	}
}

func TestFuzzCorruptionNeverParses(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		values := make([]uint16, 1+rng.Intn(MaxReadCount))
		for j := range values {
			values[j] = uint16(rng.Intn(0x10000))
		}
		wire := BuildReadResponse(0x01, values)

		pos := rng.Intn(len(wire))
		mask := byte(1 + rng.Intn(255))
		wire[pos] ^= mask

		if frame, err := Decode(0x01, wire); err == nil {
			t.Fatalf("round %d: corruption at byte %d (mask 0x%02X) parsed silently as %+v",
				i, pos, mask, frame)
		}
	}
}

func TestFuzzDecoderSurvivesGarbage(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	d := NewDecoder(0x01)
	for i := 0; i < rounds; i++ {
		garbage := make([]byte, rng.Intn(64))
		rng.Read(garbage)
		for _, b := range garbage {
			d.DecodeByte(b) // errors are fine, panics are not
		}

		// After an explicit reset a clean frame must decode.
		d.Reset()
		wire := BuildReadResponse(0x01, []uint16{uint16(rng.Intn(0x10000))})
		var got *Frame
		for _, b := range wire {
			frame, err := d.DecodeByte(b)
			if err != nil {
				t.Fatalf("round %d: clean frame failed after garbage: %v", i, err)
			}
			if frame != nil {
				got = frame
			}
		}
		if got == nil {
			t.Fatalf("round %d: clean frame not decoded after garbage", i)
		}
	}
}

func TestFuzzChecksumMismatchIsDetected(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		// Corrupt only payload or CRC bytes so the structural header stays
		// intact; the checksum must be what catches it.
		values := make([]uint16, 1+rng.Intn(MaxReadCount))
		for j := range values {
			values[j] = uint16(rng.Intn(0x10000))
		}
		wire := BuildReadResponse(0x01, values)

		pos := respHeaderSize + rng.Intn(len(wire)-respHeaderSize)
		wire[pos] ^= byte(1 + rng.Intn(255))

		if _, err := Decode(0x01, wire); !errors.Is(err, ErrChecksum) {
			t.Fatalf("round %d: corruption at byte %d gave %v, want ErrChecksum", i, pos, err)
		}
	}
}
