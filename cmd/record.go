// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Voltlab

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voltlab/rkctl/pkg/modbusrtu"
	"github.com/voltlab/rkctl/pkg/rk6006"
)

var (
	recordInterval   time.Duration
	recordTracePath  string
	recordReplayPath string
	recordHex        bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Log decoded wire traffic, optionally capturing it to a file",
	Long: `Poll the supply and print every frame crossing the wire, decoded
into human-readable form. Requests print with an arrow to the device,
responses with an arrow back.

With --trace, every raw chunk is also captured with timestamps to a
CBOR file for later inspection. With --replay, no device is opened:
the capture file is decoded and pretty-printed instead.

Examples:
  rkctl record --device sim:
  rkctl record --trace session.cbor
  rkctl record --replay session.cbor`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().DurationVar(&recordInterval, "interval", rk6006.DefaultPollInterval, "Poll interval")
	recordCmd.Flags().StringVar(&recordTracePath, "trace", "", "Capture raw traffic to a CBOR file")
	recordCmd.Flags().StringVar(&recordReplayPath, "replay", "", "Pretty-print a capture file instead of connecting")
	recordCmd.Flags().BoolVar(&recordHex, "hex", false, "Also dump raw chunk bytes")
}

func runRecord(cmd *cobra.Command, args []string) error {
	if recordReplayPath != "" {
		return replayTrace(recordReplayPath)
	}

	tr, connInfo, err := openTransport()
	if err != nil {
		return err
	}
	tap := newTapTransport(tr)

	cfg, err := sessionConfig(logger)
	if err != nil {
		return err
	}
	if recordTracePath != "" {
		f, err := os.Create(recordTracePath)
		if err != nil {
			return fmt.Errorf("create trace file: %w", err)
		}
		defer f.Close()
		cfg.Trace = rk6006.NewTraceWriter(f)
	}

	sess := rk6006.NewSession(tap, cfg)
	defer sess.Close()
	ctrl := rk6006.NewController(sess, newFlagStore(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := recordInterval
	if !cmd.Flags().Changed("interval") {
		interval = configPollInterval(recordInterval)
	}

	fmt.Printf("rkctl - Wire Recorder\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if recordTracePath != "" {
		fmt.Printf("Capturing to: %s\n", recordTracePath)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if err := ctrl.Connect(ctx); err != nil {
		return err
	}
	defer ctrl.Disconnect()

	poller := rk6006.NewPoller(sess, rk6006.PollerConfig{
		Interval: interval,
		Logger:   logger,
	})
	err = poller.Run(ctx)
	if ctx.Err() != nil {
		err = nil
	}

	if recordTracePath != "" {
		fmt.Printf("\ncapture written to %s\n", recordTracePath)
	}
	return err
}

// tapTransport decorates a transport and pretty-prints every frame
// crossing it. Requests decode standalone; response bytes run through
// a streaming decoder because notifications arrive in arbitrary
// chunks.
type tapTransport struct {
	inner rk6006.Transport

	mu  sync.Mutex
	dec *modbusrtu.Decoder
	out chan []byte
}

func newTapTransport(inner rk6006.Transport) *tapTransport {
	return &tapTransport{inner: inner, dec: modbusrtu.NewDecoder(modbusrtu.DefaultSlaveID)}
}

func (t *tapTransport) Connect(ctx context.Context) error {
	if err := t.inner.Connect(ctx); err != nil {
		return err
	}

	out := make(chan []byte, 32)
	t.mu.Lock()
	t.out = out
	t.dec.Reset()
	t.mu.Unlock()

	go func() {
		defer close(out)
		for chunk := range t.inner.Notifications() {
			t.printRecv(chunk)
			out <- chunk
		}
	}()
	return nil
}

func (t *tapTransport) Send(p []byte) error {
	t.printSend(p)
	return t.inner.Send(p)
}

func (t *tapTransport) Disconnect() error {
	return t.inner.Disconnect()
}

func (t *tapTransport) Connected() bool {
	return t.inner.Connected()
}

func (t *tapTransport) String() string {
	return t.inner.String()
}

func (t *tapTransport) Notifications() <-chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.out
}

func (t *tapTransport) printSend(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if recordHex {
		fmt.Printf("→ %s\n", modbusrtu.FormatHex(p))
	}
	f, err := modbusrtu.DecodeRequest(modbusrtu.DefaultSlaveID, p)
	if err != nil {
		fmt.Printf("→ [ERROR] %v: %s\n", err, modbusrtu.FormatHex(p))
		return
	}
	fmt.Printf("→ %s", modbusrtu.FormatFrame(f))
}

func (t *tapTransport) printRecv(chunk []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if recordHex {
		fmt.Printf("← %s\n", modbusrtu.FormatHex(chunk))
	}
	for _, b := range chunk {
		f, err := t.dec.DecodeByte(b)
		if err != nil {
			fmt.Printf("← [ERROR] %v\n", err)
			continue
		}
		if f != nil {
			fmt.Printf("← %s", modbusrtu.FormatFrame(f))
		}
	}
}

// replayTrace decodes a capture file and pretty-prints it with the
// recorded timestamps.
func replayTrace(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	records, err := rk6006.ReadTrace(f)
	if err != nil {
		return fmt.Errorf("read capture: %w", err)
	}

	dec := modbusrtu.NewDecoder(modbusrtu.DefaultSlaveID)
	for _, rec := range records {
		ts := rec.At.Format("15:04:05.000")
		switch rec.Dir {
		case rk6006.DirSend:
			line := modbusrtu.FormatHex(rec.Data)
			if fr, err := modbusrtu.DecodeRequest(modbusrtu.DefaultSlaveID, rec.Data); err == nil {
				line = frameSummary(fr)
			}
			fmt.Printf("[%s] → %s\n", ts, line)

		case rk6006.DirRecv:
			fmt.Printf("[%s] ← %s\n", ts, modbusrtu.FormatHex(rec.Data))
			for _, b := range rec.Data {
				fr, err := dec.DecodeByte(b)
				if err != nil {
					fmt.Printf("              [ERROR] %v\n", err)
					continue
				}
				if fr != nil {
					fmt.Printf("              %s\n", frameSummary(fr))
				}
			}
		}
	}

	fmt.Printf("\n%d records\n", len(records))
	return nil
}

// frameSummary renders a frame as a single line without a timestamp,
// for replay output where the capture time is printed instead.
func frameSummary(f *modbusrtu.Frame) string {
	name := modbusrtu.FormatFunction(f.Function())
	switch {
	case f.IsResponse():
		return fmt.Sprintf("%s RESPONSE words=%d %v", name, len(f.Data())/2, f.Registers())
	case f.Function() == modbusrtu.FuncWriteSingle:
		return fmt.Sprintf("%s reg=0x%04X value=%d (0x%04X)", name, f.Address(), f.Value(), f.Value())
	default:
		return fmt.Sprintf("%s REQUEST start=0x%04X count=%d", name, f.Address(), f.Value())
	}
}
