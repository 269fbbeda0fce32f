// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Voltlab

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// initLogger builds the process-wide logger from --log-level and
// --log-file. With no log file, records go to stderr.
func initLogger() (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", logLevel)
	}

	var out io.Writer = os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}

// quietLogger returns the configured logger when it writes to a file,
// and a discarding logger otherwise. Full-screen commands use it:
// stderr writes would tear the display.
func quietLogger() *slog.Logger {
	if logFile != "" {
		return logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
