// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Voltlab

package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/voltlab/rkctl/pkg/rk6006"
)

var (
	presetVoltage float64
	presetCurrent float64
	presetOVP     float64
	presetOCP     float64
)

var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Read, write and recall the M0-M9 memory slots",
	Long: `Work with the supply's ten memory slots.

Each slot stores a voltage setpoint, a current limit and both
protection thresholds. Slot 0 is special: its words are the live
protection thresholds, so writing M0 changes the active OVP/OCP.

Examples:
  rkctl preset show 3
  rkctl preset save 3 --voltage 13.8 --current 1.5
  rkctl preset recall 3`,
}

func init() {
	rootCmd.AddCommand(presetCmd)
	presetCmd.AddCommand(presetShowCmd)
	presetCmd.AddCommand(presetSaveCmd)
	presetCmd.AddCommand(presetRecallCmd)

	presetSaveCmd.Flags().Float64Var(&presetVoltage, "voltage", 0, "Voltage setpoint in volts")
	presetSaveCmd.Flags().Float64Var(&presetCurrent, "current", 0, "Current limit in amps")
	presetSaveCmd.Flags().Float64Var(&presetOVP, "ovp", 0, "Over-voltage threshold in volts")
	presetSaveCmd.Flags().Float64Var(&presetOCP, "ocp", 0, "Over-current threshold in amps")
}

var presetShowCmd = &cobra.Command{
	Use:   "show <0-9>",
	Short: "Print one memory slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}
		return withController(func(ctx context.Context, ctrl *rk6006.Controller) error {
			p, err := ctrl.ReadPreset(ctx, slot)
			if err != nil {
				return err
			}
			printPreset(slot, p)
			return nil
		})
	},
}

var presetSaveCmd = &cobra.Command{
	Use:   "save <0-9>",
	Short: "Write fields of a memory slot",
	Long: `Write a memory slot. Only the fields given as flags change; the
rest keep what the slot already holds.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if !flags.Changed("voltage") && !flags.Changed("current") &&
			!flags.Changed("ovp") && !flags.Changed("ocp") {
			return fmt.Errorf("nothing to save: give at least one of --voltage, --current, --ovp, --ocp")
		}
		return withController(func(ctx context.Context, ctrl *rk6006.Controller) error {
			p, err := ctrl.ReadPreset(ctx, slot)
			if err != nil {
				return err
			}
			if flags.Changed("voltage") {
				p.Voltage = presetVoltage
			}
			if flags.Changed("current") {
				p.Current = presetCurrent
			}
			if flags.Changed("ovp") {
				p.OVP = presetOVP
			}
			if flags.Changed("ocp") {
				p.OCP = presetOCP
			}
			if err := ctrl.SavePreset(ctx, slot, p); err != nil {
				return err
			}
			printPreset(slot, p)
			return nil
		})
	},
}

var presetRecallCmd = &cobra.Command{
	Use:   "recall <0-9>",
	Short: "Apply a memory slot to the working setpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}
		return withController(func(ctx context.Context, ctrl *rk6006.Controller) error {
			p, err := ctrl.RecallPreset(ctx, slot)
			if err != nil {
				return err
			}
			fmt.Printf("recalled ")
			printPreset(slot, p)
			return nil
		})
	},
}

func parseSlot(s string) (int, error) {
	slot, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad slot %q: want an integer 0-9", s)
	}
	return slot, nil
}

func printPreset(slot int, p rk6006.Preset) {
	fmt.Printf("M%d: %.2f V  %.3f A  (OVP %.2f V, OCP %.3f A)\n",
		slot, p.Voltage, p.Current, p.OVP, p.OCP)
}
