// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Voltlab

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voltlab/rkctl/pkg/rk6006"
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Write a setpoint, limit or front-panel switch",
	Long: `Write a single value to the supply and exit.

Numeric fields take decimal values in volts or amps; switches take
on or off. The device may clamp what it accepts; the confirmation
echoes what the supply actually stored.

Examples:
  rkctl set voltage 12.5
  rkctl set current 0.250
  rkctl set output on
  rkctl set connection off   # persisted, refuses future connects`,
}

func init() {
	rootCmd.AddCommand(setCmd)
	setCmd.AddCommand(setVoltageCmd)
	setCmd.AddCommand(setCurrentCmd)
	setCmd.AddCommand(setOVPCmd)
	setCmd.AddCommand(setOCPCmd)
	setCmd.AddCommand(setOutputCmd)
	setCmd.AddCommand(setBuzzerCmd)
	setCmd.AddCommand(setBootCmd)
	setCmd.AddCommand(setTakeOutCmd)
	setCmd.AddCommand(setBacklightCmd)
	setCmd.AddCommand(setConnectionCmd)
}

var setVoltageCmd = &cobra.Command{
	Use:   "voltage <volts>",
	Short: "Set the output voltage target (0-60 V)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		volts, err := parseNumber(args[0], "voltage")
		if err != nil {
			return err
		}
		return withController(func(ctx context.Context, ctrl *rk6006.Controller) error {
			if err := ctrl.SetVoltage(ctx, volts); err != nil {
				return err
			}
			fmt.Printf("voltage set to %.2f V\n", ctrl.Snapshot().SetVoltage)
			return nil
		})
	},
}

var setCurrentCmd = &cobra.Command{
	Use:   "current <amps>",
	Short: "Set the output current limit (0-6 A)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amps, err := parseNumber(args[0], "current")
		if err != nil {
			return err
		}
		return withController(func(ctx context.Context, ctrl *rk6006.Controller) error {
			if err := ctrl.SetCurrent(ctx, amps); err != nil {
				return err
			}
			fmt.Printf("current limit set to %.3f A\n", ctrl.Snapshot().SetCurrent)
			return nil
		})
	},
}

var setOVPCmd = &cobra.Command{
	Use:   "ovp <volts>",
	Short: "Set the over-voltage protection threshold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		volts, err := parseNumber(args[0], "OVP threshold")
		if err != nil {
			return err
		}
		return withController(func(ctx context.Context, ctrl *rk6006.Controller) error {
			if err := ctrl.SetOVP(ctx, volts); err != nil {
				return err
			}
			fmt.Printf("OVP set to %.2f V\n", ctrl.Snapshot().OVP)
			return nil
		})
	},
}

var setOCPCmd = &cobra.Command{
	Use:   "ocp <amps>",
	Short: "Set the over-current protection threshold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amps, err := parseNumber(args[0], "OCP threshold")
		if err != nil {
			return err
		}
		return withController(func(ctx context.Context, ctrl *rk6006.Controller) error {
			if err := ctrl.SetOCP(ctx, amps); err != nil {
				return err
			}
			fmt.Printf("OCP set to %.3f A\n", ctrl.Snapshot().OCP)
			return nil
		})
	},
}

var setOutputCmd = &cobra.Command{
	Use:   "output on|off",
	Short: "Enable or disable the output stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return withController(func(ctx context.Context, ctrl *rk6006.Controller) error {
			if err := ctrl.SetOutputEnabled(ctx, on); err != nil {
				return err
			}
			fmt.Printf("output %s\n", onOff(on))
			return nil
		})
	},
}

var setBuzzerCmd = &cobra.Command{
	Use:   "buzzer on|off",
	Short: "Enable or disable the key-press buzzer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return withController(func(ctx context.Context, ctrl *rk6006.Controller) error {
			if err := ctrl.SetBuzzerEnabled(ctx, on); err != nil {
				return err
			}
			fmt.Printf("buzzer %s\n", onOff(on))
			return nil
		})
	},
}

var setBootCmd = &cobra.Command{
	Use:   "boot on|off",
	Short: "Enable or disable output at power-on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return withController(func(ctx context.Context, ctrl *rk6006.Controller) error {
			if err := ctrl.SetPowerOnBoot(ctx, on); err != nil {
				return err
			}
			fmt.Printf("output on boot %s\n", onOff(on))
			return nil
		})
	},
}

var setTakeOutCmd = &cobra.Command{
	Use:   "takeout on|off",
	Short: "Enable or disable take-out mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return withController(func(ctx context.Context, ctrl *rk6006.Controller) error {
			if err := ctrl.SetTakeOut(ctx, on); err != nil {
				return err
			}
			fmt.Printf("take-out mode %s\n", onOff(on))
			return nil
		})
	},
}

var setBacklightCmd = &cobra.Command{
	Use:   "backlight <0-5>",
	Short: "Set the display backlight level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("bad backlight level %q: want an integer 0-5", args[0])
		}
		return withController(func(ctx context.Context, ctrl *rk6006.Controller) error {
			if err := ctrl.SetBacklight(ctx, level); err != nil {
				return err
			}
			fmt.Printf("backlight set to %d\n", ctrl.Snapshot().Backlight)
			return nil
		})
	},
}

var setConnectionCmd = &cobra.Command{
	Use:   "connection on|off",
	Short: "Persistently allow or forbid connecting to the device",
	Long: `Flip the persisted connection switch in the config file.

With the switch off, every command that would open the device refuses
with an error until it is switched back on. This needs no device
access; only the config file is touched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		store := newFlagStore()
		if err := store.SetConnectionEnabled(on); err != nil {
			return err
		}
		fmt.Printf("connection %s (persisted to %s)\n", onOff(on), configPath)
		return nil
	},
}

func parseNumber(s, what string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: want a decimal number", what, s)
	}
	return v, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	default:
		return false, fmt.Errorf("bad switch value %q: want on or off", s)
	}
}
