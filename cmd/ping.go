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
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Probe the link with repeated register reads",
	Long: `Send repeated reads of the model register and measure the round trip.

The protocol has no dedicated echo operation, so the model register
stands in: it is read-only, constant, and answers in a single frame.
Reported times include any link-level retries, so a lossy link shows
up as slow pings before it shows up as lost ones.

Exit codes:
  0 - All pings answered
  1 - One or more pings lost
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 5, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", time.Second, "Delay between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	sess, connInfo, err := openSession()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer sess.Disconnect()

	fmt.Printf("rkctl - Link Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	successCount := 0
	failCount := 0
	var minRTT, maxRTT, totalRTT time.Duration

	for i := 1; i <= pingCount; i++ {
		if ctx.Err() != nil {
			break
		}
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		words, err := sess.ReadRaw(ctx, rk6006.AddrModel, 1)
		rtt := time.Since(startTime)

		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
			// A failed read tears the session down; bring it back
			// for the next ping.
			if ctx.Err() == nil && sess.Status() != rk6006.StatusConnected {
				if cerr := sess.Connect(ctx); cerr != nil {
					fmt.Fprintf(os.Stderr, "\nReconnect failed: %v\n", cerr)
					break
				}
			}
		} else {
			fmt.Printf("reply model=%d, rtt=%v\n", words[0], rtt.Round(time.Millisecond))
			successCount++
			totalRTT += rtt
			if minRTT == 0 || rtt < minRTT {
				minRTT = rtt
			}
			if rtt > maxRTT {
				maxRTT = rtt
			}
		}

		if i < pingCount {
			select {
			case <-ctx.Done():
			case <-time.After(pingInterval):
			}
		}
	}

	sent := successCount + failCount
	fmt.Printf("\n--- Ping statistics ---\n")
	loss := 0.0
	if sent > 0 {
		loss = float64(failCount) / float64(sent) * 100
	}
	fmt.Printf("%d pings sent, %d answered, %.0f%% loss\n", sent, successCount, loss)
	if successCount > 0 {
		avg := totalRTT / time.Duration(successCount)
		fmt.Printf("rtt min/avg/max = %v/%v/%v\n",
			minRTT.Round(time.Millisecond),
			avg.Round(time.Millisecond),
			maxRTT.Round(time.Millisecond))
	}

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
