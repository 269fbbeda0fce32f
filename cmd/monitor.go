// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Voltlab

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voltlab/rkctl/pkg/rk6006"
)

var (
	monitorInterval      time.Duration
	monitorStatsInterval int
	monitorShowAll       bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch telemetry for anomalies and print statistics",
	Long: `Poll the supply continuously and validate every snapshot.

Detected anomalies:
  - Protection trips (OVP/OCP latched the output off)
  - Readings beyond the hardware's ceilings (corrupted register image)
  - Internal over-temperature
  - Input voltage sagging under the setpoint
  - CV output drifting off the setpoint
  - Stale snapshots (polls stopped delivering)

By default only anomalies are displayed. Use --show-all to print a
summary line for clean snapshots too. Statistics summaries print at a
configurable interval.

Exits with an error when the device becomes unavailable.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", rk6006.DefaultPollInterval, "Poll interval")
	monitorCmd.Flags().IntVar(&monitorStatsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&monitorShowAll, "show-all", false, "Show all snapshots (not just anomalies)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctrl, sess, connInfo, err := openController()
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := monitorInterval
	if !cmd.Flags().Changed("interval") {
		interval = configPollInterval(monitorInterval)
	}
	// A snapshot older than a few intervals means polling stalled.
	maxAge := 3 * interval

	if err := ctrl.Connect(ctx); err != nil {
		return err
	}
	defer ctrl.Disconnect()

	fmt.Printf("rkctl - Anomaly Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Poll interval: %s, statistics every %ds\n", interval, monitorStatsInterval)
	if monitorShowAll {
		fmt.Printf("Mode: all snapshots\n")
	} else {
		fmt.Printf("Mode: anomalies only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	snaps := make(chan rk6006.DeviceState, 8)
	unsubscribe := sess.Subscribe(func(d rk6006.DeviceState) {
		select {
		case snaps <- d:
		default:
		}
	})
	defer unsubscribe()

	poller := rk6006.NewPoller(sess, rk6006.PollerConfig{
		Interval: interval,
		Logger:   logger,
	})
	pollErr := make(chan error, 1)
	go func() {
		pollErr <- poller.Run(ctx)
	}()

	statsTicker := time.NewTicker(time.Duration(monitorStatsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case d := <-snaps:
			issues := rk6006.ValidateState(d, maxAge, time.Now())
			if len(issues) > 0 {
				printAnomalies(issues)
			} else if monitorShowAll && d.Status == rk6006.StatusConnected {
				printSnapshotLine(d)
			}

		case <-statsTicker.C:
			stats := ctrl.Stats()
			stats.CalculateRates()
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()

		case err := <-pollErr:
			if ctx.Err() != nil {
				return nil
			}
			return err

		case <-ctx.Done():
			return nil
		}
	}
}

// printSnapshotLine prints a one-line summary of a clean snapshot
func printSnapshotLine(d rk6006.DeviceState) {
	timestamp := time.Now().Format("15:04:05.000")
	output := "off"
	if d.OutputEnabled {
		output = d.Regulation.String()
	}
	fmt.Printf("[%s] %6.2f V  %6.3f A  %6.2f W  in %5.2f V  %s\n",
		timestamp, d.OutputVoltage, d.OutputCurrent, d.Power, d.InputVoltage, output)
}

// printAnomalies prints validation failures in highlighted format
func printAnomalies(issues []rk6006.ValidationError) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;33mANOMALY:\033[0m %d issue(s)\n", timestamp, len(issues))

	for i, issue := range issues {
		switch issue.Type {
		case rk6006.AnomalyProtectionTripped, rk6006.AnomalyOverVoltage, rk6006.AnomalyOverCurrent:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, issue.Message)

		case rk6006.AnomalyOverTemp:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, issue.Message)
			if temp, ok := issue.Details["temp_internal"].(float64); ok {
				fmt.Printf("    internal=%.0f°C\n", temp)
			}

		case rk6006.AnomalyInputSag:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, issue.Message)
			if in, ok := issue.Details["input_voltage"].(float64); ok {
				if set, ok := issue.Details["set_voltage"].(float64); ok {
					fmt.Printf("    input=%.2fV, setpoint=%.2fV\n", in, set)
				}
			}

		default:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, issue.Message)
		}
	}

	fmt.Printf("  >>> CHECK SUPPLY <<<\n\n")
}
