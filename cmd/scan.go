// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Voltlab

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"tinygo.org/x/bluetooth"

	"github.com/voltlab/rkctl/pkg/rk6006"
)

var (
	scanTimeout int
	scanAll     bool
	scanNoBLE   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find RK6006 supplies over BLE and list serial ports",
	Long: `Scan for nearby supplies advertising the RK6006 name prefix and list
local serial ports a UART adapter could be on.

Each BLE hit prints as soon as it is seen. Use --all to show every
advertising peripheral, not just supplies.

Examples:
  # Default 10 second scan
  rkctl scan

  # Longer scan, everything in the air
  rkctl scan --timeout 30 --all

Exit codes:
  0 - At least one supply found
  1 - No supplies found
  2 - Adapter error`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 10, "BLE scan duration in seconds")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Show all BLE peripherals, not just supplies")
	scanCmd.Flags().BoolVar(&scanNoBLE, "no-ble", false, "Skip the BLE scan, list serial ports only")
}

func runScan(cmd *cobra.Command, args []string) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		logger.Warn("serial port enumeration failed", "error", err)
	} else if len(ports) > 0 {
		fmt.Printf("Serial ports:\n")
		for _, p := range ports {
			fmt.Printf("  serial:%s\n", p)
		}
		fmt.Println()
	} else {
		fmt.Printf("Serial ports: none\n\n")
	}

	if scanNoBLE {
		return nil
	}

	adapter, err := enableBLE()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Adapter error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Scanning for %d seconds...\n\n", scanTimeout)
	fmt.Printf("%-20s %-6s %s\n", "ADDRESS", "RSSI", "NAME")

	// Results print from the scan callback as they arrive; the map
	// only deduplicates repeat advertisements.
	seen := make(map[string]bool)
	supplies := 0

	stop := time.AfterFunc(time.Duration(scanTimeout)*time.Second, func() {
		adapter.StopScan()
	})
	defer stop.Stop()

	err = adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
		name := r.LocalName()
		isSupply := strings.HasPrefix(name, rk6006.DeviceNamePrefix)
		if !scanAll && !isSupply {
			return
		}
		addr := r.Address.String()
		if seen[addr] {
			return
		}
		seen[addr] = true
		if isSupply {
			supplies++
		}
		fmt.Printf("%-20s %-6d %s\n", addr, r.RSSI, name)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scan error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("\n%d supply(ies) found\n", supplies)
	if supplies == 0 {
		os.Exit(1)
	}
	fmt.Printf("\nConnect with: rkctl status --device ble:<ADDRESS>\n")
	return nil
}
