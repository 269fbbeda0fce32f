// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab
//
// rkctl - Ruideng RK6006 bench power supply controller
//
// A CLI tool for controlling and monitoring RK6006-series programmable
// power supplies over BLE, serial, or a WebSocket serial bridge.

package main

import (
	"os"

	"github.com/voltlab/rkctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
