// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/voltlab/rkctl/pkg/modbusrtu"
)

// Session defaults, chosen for the BLE bridge: notifications regularly
// take over a second to arrive after a write, and the bridge drops
// bytes when requests follow each other too closely.
const (
	DefaultTimeout = 2 * time.Second
	DefaultRetries = 2
	DefaultSettle  = 50 * time.Millisecond
)

// QueuePolicy selects what happens to a caller when another request
// already holds the session.
type QueuePolicy int

const (
	// QueueWait parks callers in arrival order behind the in-flight
	// request. Lifecycle calls (Connect, Disconnect) always wait.
	QueueWait QueuePolicy = iota

	// QueueReject fails callers immediately with ErrBusy.
	QueueReject
)

// Config parameterizes a Session. The zero value gets usable defaults.
type Config struct {
	// Slave is the Modbus slave address, 1 for every known unit.
	Slave uint8

	// Timeout bounds each attempt, not the whole operation.
	Timeout time.Duration

	// Retries is how many times a timed-out request is re-sent before
	// the link is declared dead. Zero or negative uses the default.
	Retries int

	// QueuePolicy picks between queueing and rejecting concurrent
	// callers.
	QueuePolicy QueuePolicy

	// Settle is the minimum spacing between consecutive requests.
	Settle time.Duration

	Logger *slog.Logger

	// Trace, when set, captures every wire chunk in both directions.
	Trace *TraceWriter
}

func (c Config) withDefaults() Config {
	if c.Slave == 0 {
		c.Slave = modbusrtu.DefaultSlaveID
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries <= 0 {
		c.Retries = DefaultRetries
	}
	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Session owns one device link and sequences every request over it.
//
// The protocol has no request identifiers, so responses are matched to
// requests purely by shape (function and address or register count),
// and only one request may be outstanding at a time. The session
// enforces single-flight with an admission token: operations take the
// token, run their request/response exchange, and release it. What
// happens to callers who find the token taken is the QueuePolicy.
//
// Requests that time out are re-sent up to Retries times. When every
// attempt times out the link is presumed dead: the session disconnects
// the transport and transitions to Disconnected, and the caller gets
// ErrTimeout. Reconnecting is the caller's decision.
type Session struct {
	cfg     Config
	tr      Transport
	log     *slog.Logger
	limiter *rate.Limiter
	trace   *TraceWriter

	// turn is the admission token. Holding an element means an
	// operation is in progress; channel FIFO order gives QueueWait its
	// arrival-order fairness.
	turn chan struct{}

	// decoder is fed by the pump goroutine and reset between attempts.
	decMu   sync.Mutex
	decoder *modbusrtu.Decoder

	mu       sync.Mutex
	status   Status
	snapshot DeviceState
	raw      map[uint16]uint16
	pending  *pendingRequest
	down     chan struct{} // closed when the current link dies
	pumpDone chan struct{}
	closed   bool
	stats    LinkStats
	subs     map[int]func(DeviceState)
	nextSub  int
}

// pendingShape is what a response must look like to be accepted as the
// answer to the outstanding request.
type pendingShape struct {
	function uint8
	address  uint16 // writes: echoed register address
	count    uint16 // reads: number of registers expected
}

type pendingRequest struct {
	shape pendingShape
	resp  chan pendingResult // buffered, exactly one delivery
}

type pendingResult struct {
	frame *modbusrtu.Frame
	err   error
}

// NewSession wraps a transport. The session starts Disconnected; call
// Connect to bring the link up.
func NewSession(tr Transport, cfg Config) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		cfg:      cfg,
		tr:       tr,
		log:      cfg.Logger,
		limiter:  rate.NewLimiter(rate.Every(cfg.Settle), 1),
		trace:    cfg.Trace,
		decoder:  modbusrtu.NewDecoder(cfg.Slave),
		turn:     make(chan struct{}, 1),
		raw:      make(map[uint16]uint16),
		subs:     make(map[int]func(DeviceState)),
		stats:    newLinkStats(),
		snapshot: DeviceState{Status: StatusDisconnected},
	}
}

// Connect brings the link up and starts the notification pump. It does
// not retry and it does not scan; a failed connect leaves the session
// in StatusError and returns the transport's error.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.acquire(ctx, true); err != nil {
		return sessionErr("connect", "", err)
	}
	defer s.release()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return sessionErr("connect", "", ErrClosed)
	}
	if s.status == StatusConnected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.transition(StatusConnecting, "")
	if err := s.tr.Connect(ctx); err != nil {
		s.transition(StatusError, err.Error())
		return sessionErr("connect", "", err)
	}

	s.decMu.Lock()
	s.decoder.Reset()
	s.decMu.Unlock()

	done := make(chan struct{})
	s.mu.Lock()
	s.pending = nil
	s.down = make(chan struct{})
	s.pumpDone = done
	s.stats.Connects++
	s.mu.Unlock()

	go s.pump(s.tr.Notifications(), done)
	s.transition(StatusConnected, "")
	s.log.Info("connected", "transport", s.tr.String())
	return nil
}

// Disconnect tears the link down. Any in-flight or queued operation is
// aborted with ErrConnectionLost rather than waited for.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	pumpDone := s.pumpDone
	s.pumpDone = nil
	s.mu.Unlock()

	s.teardown(nil)
	if pumpDone != nil {
		<-pumpDone
	}
	return nil
}

// Close disconnects and marks the session unusable.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Disconnect()
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Snapshot returns the latest device state. The returned value is a
// copy; readers never block writers.
func (s *Session) Snapshot() DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Busy reports whether an operation currently holds the session. The
// poller uses this to skip a refresh instead of queueing behind a
// user command.
func (s *Session) Busy() bool {
	return len(s.turn) > 0
}

// Stats returns a copy of the link counters.
func (s *Session) Stats() LinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// RawRegisters returns a copy of every raw register word the session
// has seen. Debug surface; the typed snapshot is the real API.
func (s *Session) RawRegisters() map[uint16]uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint16]uint16, len(s.raw))
	for a, v := range s.raw {
		out[a] = v
	}
	return out
}

// Subscribe registers a callback invoked with every new snapshot:
// commits after reads and writes, and status transitions. The callback
// runs on the session's goroutines and must not block. The returned
// function removes the subscription.
func (s *Session) Subscribe(fn func(DeviceState)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// ReadRegisters fetches the named registers, grouped into contiguous
// block reads, and commits them into the snapshot only after every
// block has answered. The committed snapshot is returned. On failure
// the snapshot is left untouched and the previous one is returned
// alongside the error.
func (s *Session) ReadRegisters(ctx context.Context, names ...RegisterName) (DeviceState, error) {
	blocks, err := PlanReads(names...)
	if err != nil {
		return s.Snapshot(), invalidValue("read", "", err)
	}
	if err := s.acquire(ctx, s.queueWaits()); err != nil {
		return s.Snapshot(), sessionErr("read", "", err)
	}
	defer s.release()

	staged := make(map[uint16]uint16, 2*len(blocks))
	for _, b := range blocks {
		req, err := modbusrtu.BuildReadRequest(s.cfg.Slave, b.Start, b.Count)
		if err != nil {
			return s.Snapshot(), invalidValue("read", "", err)
		}
		shape := pendingShape{function: modbusrtu.FuncReadHolding, address: b.Start, count: b.Count}
		frame, err := s.doRequest(ctx, "read", req, shape)
		if err != nil {
			return s.Snapshot(), sessionErr("read", "", err)
		}
		for i, v := range frame.Registers() {
			staged[b.Start+uint16(i)] = v
		}
	}
	return s.commit(staged), nil
}

// WriteRegister validates and writes one register, then folds the
// device's echoed value into the snapshot immediately. The echo wins
// over the requested value: firmware quantizes some settings.
func (s *Session) WriteRegister(ctx context.Context, name RegisterName, value float64) error {
	reg, ok := LookupRegister(name)
	if !ok {
		return invalidValue("write", name, fmt.Errorf("unknown register %q", name))
	}
	if err := ValidateValue(reg, value); err != nil {
		return invalidValue("write", name, err)
	}
	raw := ToRaw(reg, value)

	if err := s.acquire(ctx, s.queueWaits()); err != nil {
		return sessionErr("write", name, err)
	}
	defer s.release()

	req := modbusrtu.BuildWriteRequest(s.cfg.Slave, reg.Address, raw)
	shape := pendingShape{function: modbusrtu.FuncWriteSingle, address: reg.Address}
	echo, err := s.doRequest(ctx, "write", req, shape)
	if err != nil {
		return sessionErr("write", name, err)
	}

	applied := echo.Value()
	if applied != raw {
		s.log.Warn("device adjusted written value",
			"register", name, "sent", raw, "applied", applied)
	}
	s.commit(map[uint16]uint16{reg.Address: applied})
	return nil
}

// ReadRaw fetches count raw words starting at addr without the named
// register table. Preset slots and protocol debugging use this; the
// typed snapshot is not touched.
func (s *Session) ReadRaw(ctx context.Context, addr, count uint16) ([]uint16, error) {
	req, err := modbusrtu.BuildReadRequest(s.cfg.Slave, addr, count)
	if err != nil {
		return nil, invalidValue("read-raw", "", err)
	}
	if err := s.acquire(ctx, s.queueWaits()); err != nil {
		return nil, sessionErr("read-raw", "", err)
	}
	defer s.release()

	shape := pendingShape{function: modbusrtu.FuncReadHolding, address: addr, count: count}
	frame, err := s.doRequest(ctx, "read-raw", req, shape)
	if err != nil {
		return nil, sessionErr("read-raw", "", err)
	}
	return frame.Registers(), nil
}

// WriteRaw writes one raw word. If the address belongs to a named
// register (preset slot M0 overlaps the live OVP/OCP words) the echo
// still lands in the snapshot. Returns the value the device applied.
func (s *Session) WriteRaw(ctx context.Context, addr, value uint16) (uint16, error) {
	if err := s.acquire(ctx, s.queueWaits()); err != nil {
		return 0, sessionErr("write-raw", "", err)
	}
	defer s.release()

	req := modbusrtu.BuildWriteRequest(s.cfg.Slave, addr, value)
	shape := pendingShape{function: modbusrtu.FuncWriteSingle, address: addr}
	echo, err := s.doRequest(ctx, "write-raw", req, shape)
	if err != nil {
		return 0, sessionErr("write-raw", "", err)
	}
	if _, known := RegisterAt(addr); known {
		s.commit(map[uint16]uint16{addr: echo.Value()})
	}
	return echo.Value(), nil
}

// acquire takes the admission token. With wait it parks in FIFO order
// until the token frees or the context ends; without it, a taken token
// is an immediate ErrBusy.
func (s *Session) acquire(ctx context.Context, wait bool) error {
	if !wait {
		select {
		case s.turn <- struct{}{}:
			return nil
		default:
			return ErrBusy
		}
	}
	select {
	case s.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() {
	<-s.turn
}

func (s *Session) queueWaits() bool {
	return s.cfg.QueuePolicy == QueueWait
}

// doRequest runs one request to completion: send, await a
// shape-matched response, re-send on per-attempt timeout. The caller
// must hold the admission token. When every attempt fails the link is
// presumed dead and torn down before the error returns.
func (s *Session) doRequest(ctx context.Context, op string, frame []byte, shape pendingShape) (*modbusrtu.Frame, error) {
	attempts := 1 + s.cfg.Retries
	var lastErr error = ErrTimeout

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			s.mu.Lock()
			s.stats.Retries++
			s.mu.Unlock()
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp := make(chan pendingResult, 1)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		if s.status != StatusConnected || s.down == nil {
			s.mu.Unlock()
			return nil, ErrNotConnected
		}
		down := s.down
		s.pending = &pendingRequest{shape: shape, resp: resp}
		s.stats.Sends++
		s.mu.Unlock()

		// A response from a previous attempt may have half-arrived;
		// resync before this one.
		s.decMu.Lock()
		s.decoder.Reset()
		s.decMu.Unlock()

		if s.trace != nil {
			if err := s.trace.Record(DirSend, frame); err != nil {
				s.log.Warn("trace write failed", "error", err)
			}
		}
		if err := s.tr.Send(frame); err != nil {
			s.clearPending()
			s.teardown(err)
			return nil, err
		}
		s.log.Debug("request sent", "op", op, "attempt", attempt, "bytes", len(frame))

		timer := time.NewTimer(s.cfg.Timeout)
		select {
		case res := <-resp:
			timer.Stop()
			if res.err != nil {
				// The reply arrived but would not decode. Same
				// recovery as a lost response: try again.
				lastErr = res.err
				s.log.Warn("response rejected", "op", op, "attempt", attempt, "error", res.err)
				continue
			}
			return res.frame, nil

		case <-timer.C:
			s.clearPending()
			s.mu.Lock()
			s.stats.Timeouts++
			s.mu.Unlock()
			lastErr = ErrTimeout
			s.log.Warn("request timed out", "op", op, "attempt", attempt, "timeout", s.cfg.Timeout)

		case <-down:
			timer.Stop()
			s.clearPending()
			return nil, ErrConnectionLost

		case <-ctx.Done():
			timer.Stop()
			s.clearPending()
			// The request may still be executing on the device; the
			// link state is indeterminate, so give it up.
			s.teardown(ctx.Err())
			return nil, ctx.Err()
		}
	}

	s.teardown(lastErr)
	return nil, lastErr
}

func (s *Session) clearPending() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

// pump drains the transport's notification stream for the lifetime of
// one link, reassembling frames and delivering shape matches to the
// outstanding request. Exactly one pump runs per connection; it exits
// when the transport closes the stream.
func (s *Session) pump(notes <-chan []byte, done chan struct{}) {
	defer close(done)
	for chunk := range notes {
		if s.trace != nil {
			if err := s.trace.Record(DirRecv, chunk); err != nil {
				s.log.Warn("trace write failed", "error", err)
			}
		}

		s.decMu.Lock()
		skippedBefore := s.decoder.Skipped()
		var frames []*modbusrtu.Frame
		var errs []error
		for _, b := range chunk {
			f, err := s.decoder.DecodeByte(b)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if f != nil {
				frames = append(frames, f)
			}
		}
		noise := s.decoder.Skipped() - skippedBefore
		s.decMu.Unlock()

		if noise > 0 {
			s.mu.Lock()
			s.stats.NoiseBytes += uint64(noise)
			s.mu.Unlock()
		}
		for _, err := range errs {
			s.handleDecodeError(err)
		}
		for _, f := range frames {
			s.handleFrame(f)
		}
	}
	s.linkClosed()
}

// handleDecodeError fails the outstanding request, if any. With no
// request pending, undecodable bytes are line noise and only counted.
func (s *Session) handleDecodeError(err error) {
	s.mu.Lock()
	s.stats.CodecErrors++
	p := s.pending
	s.pending = nil
	s.mu.Unlock()

	if p != nil {
		p.resp <- pendingResult{err: err}
		return
	}
	s.log.Debug("discarding undecodable bytes", "error", err)
}

// handleFrame delivers a decoded frame to the outstanding request when
// the shape matches, and drops it otherwise. Unmatched frames are
// normal after a timeout: the device's late answer arrives once the
// waiter has already given up.
func (s *Session) handleFrame(f *modbusrtu.Frame) {
	s.mu.Lock()
	p := s.pending
	matched := p != nil && shapeMatches(p.shape, f)
	if matched {
		s.pending = nil
		s.stats.Responses++
	} else {
		s.stats.Unmatched++
	}
	s.mu.Unlock()

	if matched {
		p.resp <- pendingResult{frame: f}
		return
	}
	s.log.Debug("dropping unmatched frame",
		"function", modbusrtu.FormatFunction(f.Function()), "address", f.Address())
}

// shapeMatches accepts a frame as the answer to a request. Reads must
// carry the expected register count; write echoes must name the
// written address. Echoed values are not compared, the device may
// clamp them.
func shapeMatches(shape pendingShape, f *modbusrtu.Frame) bool {
	if f.Function() != shape.function {
		return false
	}
	switch shape.function {
	case modbusrtu.FuncWriteSingle:
		return f.Address() == shape.address
	case modbusrtu.FuncReadHolding:
		return len(f.Data()) == 2*int(shape.count)
	default:
		return false
	}
}

// linkClosed runs when the notification stream ends. If the session
// did not initiate the teardown, the device dropped us.
func (s *Session) linkClosed() {
	s.mu.Lock()
	initiated := s.down == nil
	s.mu.Unlock()
	if initiated {
		return
	}
	s.teardown(ErrConnectionLost)
}

// teardown closes the link once: wakes waiters, disconnects the
// transport, and transitions to Disconnected with the cause recorded.
// Safe to call multiple times and from any goroutine.
func (s *Session) teardown(cause error) {
	s.mu.Lock()
	down := s.down
	s.down = nil
	s.pending = nil
	already := down == nil && s.status == StatusDisconnected
	if !already {
		s.stats.Disconnects++
	}
	s.mu.Unlock()
	if already {
		return
	}

	if down != nil {
		close(down)
	}
	if err := s.tr.Disconnect(); err != nil {
		s.log.Debug("transport disconnect", "error", err)
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
		s.log.Warn("link down", "cause", msg)
	}
	s.transition(StatusDisconnected, msg)
}

// commit merges staged raw words into the register image, rebuilds the
// snapshot, and publishes it. Reads stage across all their blocks and
// commit once, so subscribers never see a half-applied refresh.
func (s *Session) commit(staged map[uint16]uint16) DeviceState {
	s.mu.Lock()
	for a, v := range staged {
		s.raw[a] = v
	}
	snap := s.snapshot.withRegisters(staged)
	snap.UpdatedAt = time.Now()
	s.snapshot = snap
	subs := s.subscribersLocked()
	s.mu.Unlock()

	s.notify(subs, snap)
	return snap
}

// transition moves the lifecycle state and publishes the change.
func (s *Session) transition(status Status, cause string) {
	s.mu.Lock()
	if s.status == status && s.snapshot.Cause == cause {
		s.mu.Unlock()
		return
	}
	s.status = status
	snap := s.snapshot
	snap.Status = status
	snap.Cause = cause
	s.snapshot = snap
	subs := s.subscribersLocked()
	s.mu.Unlock()

	s.log.Debug("status changed", "status", status.String(), "cause", cause)
	s.notify(subs, snap)
}

func (s *Session) subscribersLocked() []func(DeviceState) {
	out := make([]func(DeviceState), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

// notify invokes subscribers outside any lock. A panicking subscriber
// is logged and skipped, never allowed to kill the pump.
func (s *Session) notify(subs []func(DeviceState), snap DeviceState) {
	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("subscriber panicked", "panic", r)
				}
			}()
			fn(snap)
		}()
	}
}
