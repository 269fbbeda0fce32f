// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Voltlab

package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Device selection flags
	deviceString string
	baudRate     int

	// WebSocket auth flags
	wsUsername    string
	wsNoSSLVerify bool

	// Request behavior flags
	reqTimeout  time.Duration
	reqRetries  int
	queuePolicy string

	// Config and logging flags
	configPath string
	logLevel   string
	logFile    string
)

// Populated by the persistent pre-run before any command executes.
var (
	logger    *slog.Logger
	appConfig *Config
)

var rootCmd = &cobra.Command{
	Use:   "rkctl",
	Short: "RK6006 bench power supply controller",
	Long: `rkctl - Control and monitor Riden RK6006 power supplies over Modbus RTU.

Talks to the supply through its BLE UART bridge, a direct serial adapter,
a WebSocket-to-serial bridge, or a built-in simulator.

Device strings (--device, or "device" in the config file):
  BLE:       ble:AA:BB:CC:DD:EE:FF  (a bare MAC address also works)
  Serial:    serial:/dev/ttyUSB0 [--baud 115200]
  WebSocket: ws://host/path [--username user]
  Simulator: sim:

For WebSocket authentication, the password is read from the RKCTL_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell
history.`,
	Version:       "1.2.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	// Assigned here rather than in the literal above: the closure calls
	// applyConfig, which reads rootCmd's flags, and that reference back
	// to rootCmd would otherwise be an initialization cycle.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = initLogger()
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return applyConfig()
	}

	// Device selection flags
	rootCmd.PersistentFlags().StringVarP(&deviceString, "device", "d", "", "Device string (ble:MAC, serial:/dev/..., ws://host/path, sim:)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket auth flags
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth (WebSocket only)")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Request behavior flags
	rootCmd.PersistentFlags().DurationVar(&reqTimeout, "timeout", 2*time.Second, "Per-request response timeout")
	rootCmd.PersistentFlags().IntVar(&reqRetries, "retries", 2, "Re-sends after a timed-out request")
	rootCmd.PersistentFlags().StringVar(&queuePolicy, "queue-policy", "wait", "Concurrent request handling: wait or reject")

	// Config and logging flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Append logs to a file instead of stderr")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
