// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Voltlab

package cmd

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/voltlab/rkctl/pkg/rk6006"
)

var (
	bleEnableOnce sync.Once
	bleEnableErr  error
)

// enableBLE powers up the default adapter. Enable may only be called
// once per process, so every BLE user goes through here.
func enableBLE() (*bluetooth.Adapter, error) {
	adapter := bluetooth.DefaultAdapter
	bleEnableOnce.Do(func() {
		bleEnableErr = adapter.Enable()
	})
	if bleEnableErr != nil {
		return nil, fmt.Errorf("enable bluetooth adapter: %w", bleEnableErr)
	}
	return adapter, nil
}

// bleTransport drives the supply through its BLE UART bridge: writes go
// to the FFE1 characteristic, responses come back as notifications on
// the same characteristic, chunked to the module's MTU.
type bleTransport struct {
	address string

	mu          sync.Mutex
	device      bluetooth.Device
	writeChar   bluetooth.DeviceCharacteristic
	notes       chan []byte
	notesClosed bool
	connected   bool
}

func newBLETransport(address string) *bleTransport {
	return &bleTransport{address: address}
}

func (t *bleTransport) Connect(ctx context.Context) error {
	adapter, err := enableBLE()
	if err != nil {
		return err
	}

	serviceUUID, err := bluetooth.ParseUUID(rk6006.ServiceUUID)
	if err != nil {
		return fmt.Errorf("parse service UUID: %w", err)
	}
	charUUID, err := bluetooth.ParseUUID(rk6006.CharacteristicUUID)
	if err != nil {
		return fmt.Errorf("parse characteristic UUID: %w", err)
	}

	result, err := t.findDevice(ctx, adapter)
	if err != nil {
		return err
	}
	logger.Debug("found device", "address", t.address, "rssi", result.RSSI, "name", result.LocalName())

	device, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("BLE connect to %s: %w", t.address, err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil || len(services) == 0 {
		device.Disconnect()
		return fmt.Errorf("UART service not found on %s: %w", t.address, err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil || len(chars) == 0 {
		device.Disconnect()
		return fmt.Errorf("UART characteristic not found on %s: %w", t.address, err)
	}

	notes := make(chan []byte, 32)
	t.mu.Lock()
	t.device = device
	t.writeChar = chars[0]
	t.notes = notes
	t.notesClosed = false
	t.connected = true
	t.mu.Unlock()

	err = chars[0].EnableNotifications(func(buf []byte) {
		// The stack reuses buf; hand the channel its own copy.
		data := make([]byte, len(buf))
		copy(data, buf)
		select {
		case notes <- data:
		default:
			logger.Debug("dropping notification, consumer behind", "bytes", len(data))
		}
	})
	if err != nil {
		t.closeNotes()
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
		device.Disconnect()
		return fmt.Errorf("enable notifications: %w", err)
	}

	// The closed notification channel is how the session learns the
	// peripheral walked away.
	adapter.SetConnectHandler(func(dev bluetooth.Device, connected bool) {
		if connected {
			return
		}
		t.mu.Lock()
		wasConnected := t.connected
		t.connected = false
		t.mu.Unlock()
		if wasConnected {
			logger.Debug("peripheral disconnected", "address", t.address)
			t.closeNotes()
		}
	})

	return nil
}

// findDevice scans until the configured address shows up or ctx
// expires.
func (t *bleTransport) findDevice(ctx context.Context, adapter *bluetooth.Adapter) (bluetooth.ScanResult, error) {
	resultCh := make(chan bluetooth.ScanResult, 1)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			adapter.StopScan()
		case <-done:
		}
	}()

	err := adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
		if r.Address.String() != t.address {
			return
		}
		select {
		case resultCh <- r:
		default:
		}
		a.StopScan()
	})
	if err != nil {
		return bluetooth.ScanResult{}, fmt.Errorf("BLE scan: %w", err)
	}

	select {
	case r := <-resultCh:
		return r, nil
	default:
		return bluetooth.ScanResult{}, fmt.Errorf("%w: %s not seen in scan", rk6006.ErrDeviceNotFound, t.address)
	}
}

func (t *bleTransport) Disconnect() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false
	device := t.device
	t.mu.Unlock()

	err := device.Disconnect()
	t.closeNotes()
	return err
}

func (t *bleTransport) Send(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return rk6006.ErrConnectionLost
	}
	// Requests are 8 bytes, comfortably under the BLE MTU; no
	// chunking needed on the way out.
	n, err := t.writeChar.WriteWithoutResponse(p)
	if err != nil {
		return err
	}
	if n < len(p) {
		return fmt.Errorf("short BLE write: %d of %d bytes", n, len(p))
	}
	return nil
}

func (t *bleTransport) Notifications() <-chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notes
}

func (t *bleTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *bleTransport) String() string {
	return "ble:" + t.address
}

func (t *bleTransport) closeNotes() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.notes != nil && !t.notesClosed {
		t.notesClosed = true
		close(t.notes)
	}
}
