// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Voltlab

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sony/gobreaker/v2"
	"github.com/spf13/cobra"

	"github.com/voltlab/rkctl/pkg/rk6006"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard with setpoint entry and output control",
	Long: `Full-screen dashboard showing live telemetry, with inline setpoint
entry, an output toggle and link statistics.

The dashboard keeps itself connected: when the link drops it
reconnects with exponential backoff (1s doubling to 30s), and repeated
connect failures open a circuit breaker that spaces the attempts out
further.

Keys:
  tab        cycle focus between the inputs and the output button
  enter      apply the focused input / press the button
  o          toggle the output from anywhere
  q, ctrl+c  quit`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", rk6006.DefaultPollInterval, "Poll interval")
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := quietLogger()

	tr, connInfo, err := openTransport()
	if err != nil {
		return err
	}
	cfg, err := sessionConfig(log)
	if err != nil {
		return err
	}
	sess := rk6006.NewSession(tr, cfg)
	defer sess.Close()
	ctrl := rk6006.NewController(sess, newFlagStore(), log)

	interval := watchInterval
	if !cmd.Flags().Changed("interval") {
		interval = configPollInterval(watchInterval)
	}

	mgr := newDeviceManager(ctrl, sess, connInfo, interval, log)
	m := initialWatchModel(mgr, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen())
	mgr.setProgram(p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.run(ctx)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// deviceManager owns the device stack behind the dashboard: it
// connects, keeps a poller running, and brings the link back with
// exponential backoff when it drops. Connect attempts run through a
// circuit breaker so a supply that is powered off does not get
// hammered forever.
type deviceManager struct {
	ctrl     *rk6006.Controller
	session  *rk6006.Session
	connInfo string
	interval time.Duration
	log      *slog.Logger

	mu sync.RWMutex
	p  *tea.Program

	breaker *gobreaker.CircuitBreaker[struct{}]
}

func newDeviceManager(ctrl *rk6006.Controller, sess *rk6006.Session, connInfo string, interval time.Duration, log *slog.Logger) *deviceManager {
	m := &deviceManager{
		ctrl:     ctrl,
		session:  sess,
		connInfo: connInfo,
		interval: interval,
		log:      log,
	}
	m.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "connect",
		MaxRequests: 1, // one probe in half-open
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.log.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return m
}

func (m *deviceManager) setProgram(p *tea.Program) {
	m.mu.Lock()
	m.p = p
	m.mu.Unlock()
}

func (m *deviceManager) send(msg tea.Msg) {
	m.mu.RLock()
	p := m.p
	m.mu.RUnlock()
	if p != nil {
		p.Send(msg)
	}
}

// run drives the connect/poll/reconnect cycle until ctx is canceled.
func (m *deviceManager) run(ctx context.Context) {
	unsubscribe := m.session.Subscribe(func(snap rk6006.DeviceState) {
		m.send(watchStateMsg{state: snap})
	})
	defer unsubscribe()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for ctx.Err() == nil {
		_, err := m.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, m.ctrl.Connect(ctx)
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.send(watchLogMsg{
				text:    fmt.Sprintf("connect failed: %v (retrying in %s)", err, backoff),
				isError: true,
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = 1 * time.Second
		m.send(watchConnectedMsg{info: m.connInfo})

		poller := rk6006.NewPoller(m.session, rk6006.PollerConfig{
			Interval: m.interval,
			Logger:   m.log,
		})
		err = poller.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		m.send(watchLostMsg{cause: err})
	}
}

// applyVoltage and friends run device writes off the TUI goroutine and
// report back as log messages.
func (m *deviceManager) applyVoltage(volts float64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := m.ctrl.SetVoltage(ctx, volts); err != nil {
			return watchLogMsg{text: fmt.Sprintf("set voltage: %v", err), isError: true}
		}
		return watchLogMsg{text: fmt.Sprintf("voltage set to %.2f V", m.ctrl.Snapshot().SetVoltage)}
	}
}

func (m *deviceManager) applyCurrent(amps float64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := m.ctrl.SetCurrent(ctx, amps); err != nil {
			return watchLogMsg{text: fmt.Sprintf("set current: %v", err), isError: true}
		}
		return watchLogMsg{text: fmt.Sprintf("current limit set to %.3f A", m.ctrl.Snapshot().SetCurrent)}
	}
}

func (m *deviceManager) toggleOutput() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		on := !m.ctrl.Snapshot().OutputEnabled
		if err := m.ctrl.SetOutputEnabled(ctx, on); err != nil {
			return watchLogMsg{text: fmt.Sprintf("toggle output: %v", err), isError: true}
		}
		return watchLogMsg{text: fmt.Sprintf("output %s", onOff(on))}
	}
}

func (m *deviceManager) stats() rk6006.LinkStats {
	s := m.ctrl.Stats()
	s.CalculateRates()
	return s
}
