// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Poller defaults. Two seconds matches the device's own display
// refresh; three missed polls in a row is a dead link, not a blip.
const (
	DefaultPollInterval     = 2 * time.Second
	DefaultFailureThreshold = 3
)

// PollerConfig parameterizes a Poller. The zero value gets defaults.
type PollerConfig struct {
	Interval time.Duration

	// FailureThreshold is how many consecutive failed polls are
	// tolerated before the device is declared unavailable.
	FailureThreshold int

	// Names is the register set each poll refreshes. Defaults to the
	// live registers.
	Names []RegisterName

	Logger *slog.Logger
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultPollInterval
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if len(c.Names) == 0 {
		c.Names = PollRegisters()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Poller refreshes the session's snapshot on a fixed interval.
//
// It is a well-behaved tenant of the single-flight session: a tick
// that lands while another caller holds the session is skipped, not
// queued, and a poll that overruns the interval simply absorbs the
// ticks it missed. Transient failures are tolerated up to the
// threshold; after that the poller disconnects the session, leaving it
// in a persistent Disconnected state, and Run returns. Whether to
// reconnect and poll again is the host's call.
type Poller struct {
	session *Session
	cfg     PollerConfig
	log     *slog.Logger

	mu          sync.Mutex
	consecutive int
	polls       uint64
	skipped     uint64
}

// NewPoller wraps a session. Call Run to start polling.
func NewPoller(session *Session, cfg PollerConfig) *Poller {
	cfg = cfg.withDefaults()
	return &Poller{session: session, cfg: cfg, log: cfg.Logger}
}

// Run polls until the context ends or the failure threshold trips. The
// first poll happens immediately; subsequent polls follow the ticker.
// Returns the context error on cancellation, or a threshold error
// after the session has been forced down.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.poll(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				return err
			}
		}
	}
}

// poll runs one refresh. A non-nil return means polling must stop.
func (p *Poller) poll(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if p.session.Busy() {
		p.mu.Lock()
		p.skipped++
		p.mu.Unlock()
		p.log.Debug("session busy, skipping poll")
		return nil
	}

	_, err := p.session.ReadRegisters(ctx, p.cfg.Names...)

	p.mu.Lock()
	p.polls++
	if err == nil {
		p.consecutive = 0
		p.mu.Unlock()
		return nil
	}
	p.consecutive++
	failures := p.consecutive
	p.mu.Unlock()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.log.Warn("poll failed", "failures", failures,
		"threshold", p.cfg.FailureThreshold, "error", err)

	if failures < p.cfg.FailureThreshold {
		return nil
	}

	// The device has stopped answering. Force the session down so the
	// snapshot reflects reality, and hand the decision back.
	p.session.Disconnect()
	return fmt.Errorf("device unavailable after %d consecutive poll failures: %w", failures, err)
}

// ConsecutiveFailures returns the current failure streak.
func (p *Poller) ConsecutiveFailures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consecutive
}

// Polls returns how many refreshes have run and how many ticks were
// skipped because the session was busy.
func (p *Poller) Polls() (completed, skipped uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls, p.skipped
}
