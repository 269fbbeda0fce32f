// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"errors"
	"fmt"
)

// Transport failures. Implementations of Transport return these (or
// wrap them) so callers can probe with errors.Is regardless of the
// underlying link flavor.
var (
	ErrDeviceNotFound = errors.New("rk6006: device not found")
	ErrConnectionLost = errors.New("rk6006: connection lost")
	ErrWriteRejected  = errors.New("rk6006: write rejected")
)

// Session failures.
var (
	ErrTimeout            = errors.New("rk6006: request timed out")
	ErrBusy               = errors.New("rk6006: session busy")
	ErrInvalidValue       = errors.New("rk6006: invalid value")
	ErrNotConnected       = errors.New("rk6006: not connected")
	ErrClosed             = errors.New("rk6006: session closed")
	ErrConnectionDisabled = errors.New("rk6006: connection disabled")
)

// SessionError carries the operation and register a failure belongs to.
// The underlying cause is always one of the sentinel errors above, a
// transport error, or a codec error, and unwraps for errors.Is.
type SessionError struct {
	Op       string
	Register RegisterName
	Err      error
}

func (e *SessionError) Error() string {
	if e.Register != "" {
		return fmt.Sprintf("rk6006: %s %s: %v", e.Op, e.Register, e.Err)
	}
	return fmt.Sprintf("rk6006: %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func sessionErr(op string, reg RegisterName, err error) *SessionError {
	return &SessionError{Op: op, Register: reg, Err: err}
}

func invalidValue(op string, reg RegisterName, detail error) *SessionError {
	return sessionErr(op, reg, fmt.Errorf("%w: %v", ErrInvalidValue, detail))
}
