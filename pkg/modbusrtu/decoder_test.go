package modbusrtu

import (
	"errors"
	"testing"
)

// feed pushes bytes through the decoder, collecting frames and errors.
func feed(t *testing.T, d *Decoder, data []byte) ([]*Frame, []error) {
	t.Helper()
	var frames []*Frame
	var errs []error
	for _, b := range data {
		frame, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames, errs
}

func TestDecoderReadResponse(t *testing.T) {
	wire := BuildReadResponse(0x01, []uint16{500, 1000, 0, 5000})
	d := NewDecoder(0x01)

	frames, errs := feed(t, d, wire)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("decoded %d frames, want 1", len(frames))
	}

	regs := frames[0].Registers()
	want := []uint16{500, 1000, 0, 5000}
	for i, v := range want {
		if regs[i] != v {
			t.Errorf("register[%d] = %d, want %d", i, regs[i], v)
		}
	}
}

func TestDecoderWriteEcho(t *testing.T) {
	wire := BuildWriteRequest(0x01, 0x0012, 1)
	d := NewDecoder(0x01)

	frames, errs := feed(t, d, wire)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("decoded %d frames, want 1", len(frames))
	}
	if frames[0].Address() != 0x0012 || frames[0].Value() != 1 {
		t.Errorf("echo = reg 0x%04X value %d, want reg 0x0012 value 1",
			frames[0].Address(), frames[0].Value())
	}
}

func TestDecoderChunked(t *testing.T) {
	// BLE notifications split frames arbitrarily; every split point must work.
	wire := BuildReadResponse(0x01, []uint16{500, 1000})

	for split := 1; split < len(wire); split++ {
		d := NewDecoder(0x01)
		frames1, errs1 := feed(t, d, wire[:split])
		frames2, errs2 := feed(t, d, wire[split:])

		if len(errs1)+len(errs2) != 0 {
			t.Fatalf("split %d: unexpected errors: %v %v", split, errs1, errs2)
		}
		if len(frames1) != 0 {
			t.Fatalf("split %d: frame completed early", split)
		}
		if len(frames2) != 1 {
			t.Fatalf("split %d: decoded %d frames, want 1", split, len(frames2))
		}
	}
}

func TestDecoderBackToBack(t *testing.T) {
	stream := append(BuildReadResponse(0x01, []uint16{500}), BuildWriteRequest(0x01, 0x0008, 1234)...)
	d := NewDecoder(0x01)

	frames, errs := feed(t, d, stream)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 2 {
		t.Fatalf("decoded %d frames, want 2", len(frames))
	}
	if !frames[0].IsResponse() {
		t.Error("first frame should be a read response")
	}
	if frames[1].Function() != FuncWriteSingle {
		t.Error("second frame should be a write echo")
	}
}

func TestDecoderNoisePrefix(t *testing.T) {
	noise := []byte{0xFF, 0x55, 0xAA, 0x00}
	stream := append(noise, BuildReadResponse(0x01, []uint16{500})...)
	d := NewDecoder(0x01)

	frames, errs := feed(t, d, stream)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 {
		t.Fatalf("decoded %d frames, want 1", len(frames))
	}
	if d.Skipped() != len(noise) {
		t.Errorf("Skipped() = %d, want %d", d.Skipped(), len(noise))
	}
}

func TestDecoderUnknownFunction(t *testing.T) {
	stream := append([]byte{0x01, 0x99}, BuildReadResponse(0x01, []uint16{500})...)
	d := NewDecoder(0x01)

	frames, errs := feed(t, d, stream)
	if len(errs) != 1 || !errors.Is(errs[0], ErrUnknownFunction) {
		t.Fatalf("errors = %v, want one ErrUnknownFunction", errs)
	}
	// The decoder must resynchronize and still decode the real frame.
	if len(frames) != 1 {
		t.Fatalf("decoded %d frames after resync, want 1", len(frames))
	}
}

func TestDecoderInvalidByteCount(t *testing.T) {
	d := NewDecoder(0x01)
	_, errs := feed(t, d, []byte{0x01, FuncReadHolding, 0x05})
	if len(errs) != 1 || !errors.Is(errs[0], ErrInvalidLength) {
		t.Fatalf("errors = %v, want one ErrInvalidLength", errs)
	}
}

func TestDecoderChecksumMismatch(t *testing.T) {
	wire := BuildReadResponse(0x01, []uint16{500})
	wire[len(wire)-1] ^= 0xFF

	d := NewDecoder(0x01)
	_, errs := feed(t, d, wire)
	if len(errs) != 1 || !errors.Is(errs[0], ErrChecksum) {
		t.Fatalf("errors = %v, want one ErrChecksum", errs)
	}

	// A clean frame afterwards decodes normally.
	frames, errs := feed(t, d, BuildReadResponse(0x01, []uint16{500}))
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("recovery failed: frames=%d errs=%v", len(frames), errs)
	}
}

func TestDecoderReset(t *testing.T) {
	wire := BuildReadResponse(0x01, []uint16{500, 1000})
	d := NewDecoder(0x01)

	feed(t, d, wire[:4])
	d.Reset()

	// The partial frame is gone; a fresh frame decodes from scratch.
	frames, errs := feed(t, d, wire)
	if len(errs) != 0 || len(frames) != 1 {
		t.Fatalf("after reset: frames=%d errs=%v", len(frames), errs)
	}
}
