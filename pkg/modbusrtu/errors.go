// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package modbusrtu

import "errors"

// Decode failure classes. These are never retried inside the codec; the
// session layer decides what a failed frame means for the link.
var (
	// ErrTruncated reports fewer bytes than the frame's declared length.
	ErrTruncated = errors.New("modbusrtu: truncated frame")

	// ErrChecksum reports a CRC trailer that does not match the frame body.
	ErrChecksum = errors.New("modbusrtu: checksum mismatch")

	// ErrUnknownFunction reports a function code the dialect does not use.
	ErrUnknownFunction = errors.New("modbusrtu: unknown function code")

	// ErrInvalidLength reports a declared payload length no valid read
	// response can have (zero, odd, or beyond MaxReadCount words).
	ErrInvalidLength = errors.New("modbusrtu: invalid declared length")
)
