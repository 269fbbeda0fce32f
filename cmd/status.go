// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Voltlab

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voltlab/rkctl/pkg/rk6006"
)

var statusStats bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Connect once and print the full device state",
	Long: `Connect to the supply, refresh every register block and print a
formatted snapshot.

Examples:
  rkctl status --device ble:AA:BB:CC:DD:EE:FF
  rkctl status --device sim: --link-stats`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusStats, "link-stats", false, "Also print link statistics")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctrl, sess, connInfo, err := openController()
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := opContext()
	defer cancel()

	if err := ctrl.Connect(ctx); err != nil {
		return err
	}
	defer ctrl.Disconnect()

	snap, err := ctrl.Refresh(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Connection: %s\n\n", connInfo)
	fmt.Print(formatSnapshot(snap))

	if statusStats {
		stats := ctrl.Stats()
		fmt.Printf("\n%s", stats.String())
	}
	return nil
}

// formatSnapshot renders a device snapshot as an aligned text block.
func formatSnapshot(d rk6006.DeviceState) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "RK%d  S/N %08d  firmware %.2f\n\n", d.Model, d.Serial, d.Firmware)

	output := "OFF"
	if d.OutputEnabled {
		output = "ON "
	}
	fmt.Fprintf(&sb, "  Output   %s  %s", output, d.Regulation)
	if d.Protection != rk6006.ProtectionNone {
		fmt.Fprintf(&sb, "  [%s TRIPPED]", d.Protection)
	}
	sb.WriteByte('\n')

	fmt.Fprintf(&sb, "  Set      %6.2f V  %6.3f A\n", d.SetVoltage, d.SetCurrent)
	fmt.Fprintf(&sb, "  Out      %6.2f V  %6.3f A  %7.2f W\n", d.OutputVoltage, d.OutputCurrent, d.Power)
	fmt.Fprintf(&sb, "  Input    %6.2f V\n", d.InputVoltage)
	fmt.Fprintf(&sb, "  Limits   OVP %.2f V  OCP %.3f A\n", d.OVP, d.OCP)

	if d.ProbeAttached {
		fmt.Fprintf(&sb, "  Temp     %.0f °C internal, %.0f °C probe\n", d.TempInternal, d.TempExternal)
	} else {
		fmt.Fprintf(&sb, "  Temp     %.0f °C internal, no probe\n", d.TempInternal)
	}

	fmt.Fprintf(&sb, "  Energy   %.3f Ah  %.3f Wh\n", d.AmpHours, d.WattHours)

	if d.BatteryMode {
		fmt.Fprintf(&sb, "  Battery  charging, %.2f V at the terminals\n", d.BatteryVoltage)
	}

	fmt.Fprintf(&sb, "  Panel    backlight %d, buzzer %s, output on boot %s, take-out %s\n",
		d.Backlight, onOff(d.Buzzer), onOff(d.PowerOnBoot), onOff(d.TakeOut))

	return sb.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
