// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPollerRefreshes(t *testing.T) {
	sim := NewSim()
	s := NewSession(sim, testConfig(QueueWait))
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	p := NewPoller(s, PollerConfig{Interval: 10 * time.Millisecond, Logger: s.log})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- p.Run(runCtx) }()

	require.Eventually(t, func() bool {
		return !s.Snapshot().UpdatedAt.IsZero()
	}, time.Second, time.Millisecond)

	first := s.Snapshot().UpdatedAt
	require.Eventually(t, func() bool {
		return s.Snapshot().UpdatedAt.After(first)
	}, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	completed, _ := p.Polls()
	require.GreaterOrEqual(t, completed, uint64(2))
	require.Zero(t, p.ConsecutiveFailures())
}

func TestPollerSkipsWhenBusy(t *testing.T) {
	sim := NewSim()
	s := NewSession(sim, testConfig(QueueWait))
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	p := NewPoller(s, PollerConfig{Interval: 10 * time.Millisecond, Logger: s.log})

	// Occupy the session the way a long-running command would.
	require.NoError(t, s.acquire(ctx, true))
	require.NoError(t, p.poll(ctx))
	s.release()

	completed, skipped := p.Polls()
	require.Zero(t, completed)
	require.Equal(t, uint64(1), skipped)
	require.Zero(t, p.ConsecutiveFailures())

	// With the session free again the same poll goes through.
	require.NoError(t, p.poll(ctx))
	completed, _ = p.Polls()
	require.Equal(t, uint64(1), completed)
}

func TestPollerFailureThreshold(t *testing.T) {
	sim := NewSim()
	cfg := testConfig(QueueWait)
	cfg.Timeout = 10 * time.Millisecond
	s := NewSession(sim, cfg)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	sim.DropResponses(1 << 20)

	p := NewPoller(s, PollerConfig{
		Interval: 5 * time.Millisecond,
		Logger:   s.log,
	})

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := p.Run(runCtx)
	require.Error(t, err)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	require.Contains(t, err.Error(), "3 consecutive poll failures")

	// The poller forced the session down and stopped; the snapshot
	// shows a persistent disconnect instead of silent retrying.
	require.Equal(t, StatusDisconnected, s.Status())
	require.Equal(t, 3, p.ConsecutiveFailures())
}

func TestPollerRecoversWithinThreshold(t *testing.T) {
	sim := NewSim()
	cfg := testConfig(QueueWait)
	cfg.Timeout = 10 * time.Millisecond
	s := NewSession(sim, cfg)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	p := NewPoller(s, PollerConfig{Interval: 5 * time.Millisecond, Logger: s.log})

	// One failed poll, then the device answers again: the streak must
	// reset instead of accumulating toward the threshold.
	sim.DropResponses(1 << 20)
	require.NoError(t, p.poll(ctx))
	require.Equal(t, 1, p.ConsecutiveFailures())

	// The failed poll exhausted its retries and dropped the link.
	require.Equal(t, StatusDisconnected, s.Status())
	sim.DropResponses(0)
	require.NoError(t, s.Connect(ctx))

	require.NoError(t, p.poll(ctx))
	require.Zero(t, p.ConsecutiveFailures())
}
