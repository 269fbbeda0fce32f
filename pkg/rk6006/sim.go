// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/voltlab/rkctl/pkg/modbusrtu"
)

// Sim is a simulated RK6006 behind the Transport interface: a register
// bank that answers read and write requests the way the real firmware
// does, including the byte-for-byte write echo. It backs the CLI's
// offline mode and most of the package tests.
//
// The electrical model is a fixed resistive load across the output:
// enabling the output drives it at the voltage setpoint until the
// current limit takes over, which flips the regulation register to CC.
type Sim struct {
	mu        sync.Mutex
	regs      map[uint16]uint16
	connected bool
	notes     chan []byte
	loadOhms  float64
	requests  uint64

	// fault injection
	failConnect  error
	dropNext     int
	rejectWrites bool
	chunkSize    int
	latency      time.Duration
}

// NewSim builds a supply with believable power-on defaults: 5.00 V /
// 1.000 A setpoints, output off, no external probe plugged in.
func NewSim() *Sim {
	return &Sim{
		loadOhms: 10,
		regs: map[uint16]uint16{
			AddrModel:        ModelNumber,
			AddrSerialHigh:   0x0001,
			AddrSerialLow:    0x86A5, // serial 00100005
			AddrFirmware:     135,
			AddrTempExternal: ExternalProbeAbsent,
			AddrTempInternal: 26,
			AddrSetVoltage:   500,
			AddrSetCurrent:   1000,
			AddrInputVoltage: 2405,
			AddrBuzzer:       1,
			AddrBacklight:    4,
			AddrOVP:          6200,
			AddrOCP:          6100,
			PresetBase:       500, // M0 aliases the working preset
			PresetBase + 1:   1000,
		},
	}
}

// FailConnect makes the next Connect calls return err. Pass nil to
// restore normal behavior.
func (s *Sim) FailConnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failConnect = err
}

// DropResponses swallows the next n responses, leaving their requests
// unanswered.
func (s *Sim) DropResponses(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropNext = n
}

// RejectWrites makes Send fail with ErrWriteRejected.
func (s *Sim) RejectWrites(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectWrites = reject
}

// SetChunkSize delivers responses split into n-byte notifications,
// mimicking a small BLE MTU. Zero delivers whole frames.
func (s *Sim) SetChunkSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunkSize = n
}

// SetLatency delays each response by d.
func (s *Sim) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// SetLoad changes the simulated load resistance.
func (s *Sim) SetLoad(ohms float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ohms > 0 {
		s.loadOhms = ohms
	}
	s.updateOutputLocked()
}

// Requests returns how many well-formed requests arrived.
func (s *Sim) Requests() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Poke sets a register directly, bypassing the protocol. Tests use it
// to stage read-only registers like temperature and protection.
func (s *Sim) Poke(addr, value uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[addr] = value
}

// Peek reads a register directly.
func (s *Sim) Peek(addr uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[addr]
}

func (s *Sim) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failConnect != nil {
		return s.failConnect
	}
	if s.connected {
		return nil
	}
	s.connected = true
	s.notes = make(chan []byte, 32)
	return nil
}

func (s *Sim) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false
	close(s.notes)
	return nil
}

func (s *Sim) Notifications() <-chan []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes
}

func (s *Sim) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Sim) String() string {
	return "sim"
}

// Send handles one request frame. Malformed requests are ignored
// without an answer, exactly like the real bridge: the host's timeout
// is the only feedback.
func (s *Sim) Send(data []byte) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return ErrConnectionLost
	}
	if s.rejectWrites {
		s.mu.Unlock()
		return ErrWriteRejected
	}

	req, err := modbusrtu.DecodeRequest(modbusrtu.DefaultSlaveID, data)
	if err != nil {
		s.mu.Unlock()
		return nil
	}
	s.requests++

	var resp []byte
	switch req.Function() {
	case modbusrtu.FuncReadHolding:
		count := req.Value()
		values := make([]uint16, count)
		for i := range values {
			values[i] = s.regs[req.Address()+uint16(i)]
		}
		resp = modbusrtu.BuildReadResponse(modbusrtu.DefaultSlaveID, values)

	case modbusrtu.FuncWriteSingle:
		s.applyWriteLocked(req.Address(), req.Value())
		resp = append([]byte(nil), data...) // echo, byte for byte
	}

	if s.dropNext > 0 {
		s.dropNext--
		s.mu.Unlock()
		return nil
	}

	latency := s.latency
	s.mu.Unlock()

	if latency > 0 {
		time.AfterFunc(latency, func() { s.deliver(resp) })
		return nil
	}
	s.deliver(resp)
	return nil
}

// deliver pushes a response into the notification stream, split per the
// configured chunk size. A full buffer drops the response; the host's
// retry covers it.
func (s *Sim) deliver(resp []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return
	}
	size := s.chunkSize
	if size <= 0 {
		size = len(resp)
	}
	for off := 0; off < len(resp); off += size {
		end := off + size
		if end > len(resp) {
			end = len(resp)
		}
		chunk := append([]byte(nil), resp[off:end]...)
		select {
		case s.notes <- chunk:
		default:
			return
		}
	}
}

// applyWriteLocked stores a written word and reruns the electrical
// model for the registers it influences.
func (s *Sim) applyWriteLocked(addr, value uint16) {
	s.regs[addr] = value
	switch addr {
	case AddrSetVoltage, AddrSetCurrent, AddrOutputEnable:
		s.updateOutputLocked()
	}
}

// updateOutputLocked recomputes the live output registers from the
// setpoints and the load.
func (s *Sim) updateOutputLocked() {
	if s.regs[AddrOutputEnable] == 0 {
		s.regs[AddrOutputVoltage] = 0
		s.regs[AddrOutputCurrent] = 0
		s.regs[AddrPowerHigh] = 0
		s.regs[AddrPowerLow] = 0
		s.regs[AddrRegulation] = 0
		return
	}

	setV := float64(s.regs[AddrSetVoltage]) * 0.01
	setI := float64(s.regs[AddrSetCurrent]) * 0.001

	outV := setV
	outI := outV / s.loadOhms
	regulation := uint16(0)
	if outI > setI {
		// current limit wins: the supply folds back the voltage
		outI = setI
		outV = outI * s.loadOhms
		regulation = 1
	}

	s.regs[AddrOutputVoltage] = uint16(math.Round(outV * 100))
	s.regs[AddrOutputCurrent] = uint16(math.Round(outI * 1000))
	power := uint32(math.Round(outV * outI * 100))
	s.regs[AddrPowerHigh] = uint16(power >> 16)
	s.regs[AddrPowerLow] = uint16(power & 0xFFFF)
	s.regs[AddrRegulation] = regulation
}
