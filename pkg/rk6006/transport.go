// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import "context"

// Transport moves raw frame bytes between the host and one device.
// Implementations exist for the BLE UART bridge, a direct serial link,
// and a simulated supply; the session never knows which it has.
//
// A Transport owns exactly one link. Send and Notifications are only
// meaningful between a successful Connect and the next Disconnect.
// When the link drops, for any reason, the implementation closes the
// notifications channel; that is the session's only liveness signal.
// Disconnect is idempotent and safe to call on a dead link.
type Transport interface {
	// Connect establishes the link. It does not retry: scanning,
	// backoff, and reconnect policy belong to the caller.
	Connect(ctx context.Context) error

	// Disconnect tears the link down and closes the notifications
	// channel.
	Disconnect() error

	// Send writes one request frame to the device.
	Send(data []byte) error

	// Notifications returns the stream of raw bytes arriving from the
	// device. Chunk boundaries are arbitrary: BLE notifications split
	// frames wherever the MTU falls.
	Notifications() <-chan []byte

	// Connected reports whether the link is currently up.
	Connected() bool

	// String describes the endpoint for logs ("ble:AA:BB:...", "sim").
	String() string
}
