// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

// Package rk6006 drives a Riden RK6006 programmable power supply over
// its BLE UART bridge.
//
// The device speaks a Modbus-style register protocol (see package
// modbusrtu): the host writes request frames to a GATT characteristic
// and receives response bytes back as notifications. This package
// layers the pieces a host application needs on top of that wire
// format:
//
//   - Transport: a byte-pipe abstraction over BLE, serial, or a
//     simulated supply, so the protocol core stays link-agnostic.
//   - Session: single-flight request/response sequencing with
//     timeouts, retries, and a typed snapshot of the device state.
//   - Poller: periodic refresh of the live registers.
//   - Controller: validated, typed commands (voltage, current,
//     protection limits, output switching, presets).
//
// The protocol carries no request identifiers, so at most one request
// may be in flight per connection; Session enforces that invariant for
// all callers.
package rk6006

// GATT identifiers for the vendor UART bridge. A single characteristic
// carries both directions: host frames are written to it, device
// frames come back as notifications on it.
const (
	ServiceUUID        = "0000ffe0-0000-1000-8000-00805f9b34fb"
	CharacteristicUUID = "0000ffe1-0000-1000-8000-00805f9b34fb"
)

// DeviceNamePrefix is how the supply advertises itself during scans.
const DeviceNamePrefix = "RK6006"

// ModelNumber is the value the model register reports on a genuine
// RK6006. Other Riden models share the register map but answer with
// their own model codes.
const ModelNumber = 60066
