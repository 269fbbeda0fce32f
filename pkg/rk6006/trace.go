// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Direction marks which way a traced chunk travelled.
type Direction uint8

const (
	DirSend Direction = 1 // host to device
	DirRecv Direction = 2 // device to host
)

func (d Direction) String() string {
	switch d {
	case DirSend:
		return "send"
	case DirRecv:
		return "recv"
	default:
		return "unknown"
	}
}

// TraceRecord is one captured wire event. Records are written as a
// CBOR stream, one map per event, with integer keys to keep captures
// compact on long recordings.
type TraceRecord struct {
	At   time.Time `cbor:"1,keyasint"`
	Dir  Direction `cbor:"2,keyasint"`
	Data []byte    `cbor:"3,keyasint"`
}

// TraceWriter appends wire events to a CBOR stream. Safe for use from
// multiple goroutines; the session records sends and receives from
// different ones.
type TraceWriter struct {
	mu  sync.Mutex
	enc *cbor.Encoder
}

// NewTraceWriter wraps w. The caller keeps ownership of w and closes
// it after the session is done.
func NewTraceWriter(w io.Writer) *TraceWriter {
	return &TraceWriter{enc: cbor.NewEncoder(w)}
}

// Record stamps and appends one event.
func (t *TraceWriter) Record(dir Direction, data []byte) error {
	rec := TraceRecord{At: time.Now(), Dir: dir, Data: append([]byte(nil), data...)}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enc.Encode(rec)
}

// ReadTrace decodes an entire capture stream.
func ReadTrace(r io.Reader) ([]TraceRecord, error) {
	dec := cbor.NewDecoder(r)
	var records []TraceRecord
	for {
		var rec TraceRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, err
		}
		records = append(records, rec)
	}
}
