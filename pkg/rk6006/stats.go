// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"fmt"
	"time"
)

// LinkStats tracks request and response accounting for one session.
// Counters survive reconnects; Reset starts a fresh window.
type LinkStats struct {
	StartTime time.Time

	// Counters
	Sends       uint64 // request frames handed to the transport
	Responses   uint64 // matched responses delivered to callers
	Retries     uint64 // re-sends after a per-attempt timeout
	Timeouts    uint64 // attempts that expired without a response
	CodecErrors uint64 // frames the decoder rejected
	Unmatched   uint64 // well-formed frames no pending request claimed
	NoiseBytes  uint64 // bytes skipped hunting for a frame start
	Connects    uint64
	Disconnects uint64

	// Rates (calculated)
	RequestRate float64 // sends/sec
	ErrorRate   float64 // failures/sec
}

func newLinkStats() LinkStats {
	return LinkStats{StartTime: time.Now()}
}

// CalculateRates fills in the derived rate fields.
func (s *LinkStats) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.RequestRate = float64(s.Sends) / elapsed
		failures := s.Timeouts + s.CodecErrors
		s.ErrorRate = float64(failures) / elapsed
	}
}

// String returns a formatted summary block.
func (s *LinkStats) String() string {
	s.CalculateRates()

	var successPercent, timeoutPercent float64
	if s.Sends > 0 {
		successPercent = float64(s.Responses) * 100.0 / float64(s.Sends)
		timeoutPercent = float64(s.Timeouts) * 100.0 / float64(s.Sends)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Requests Sent:   %8d\n", s.Sends)
	result += fmt.Sprintf("Responses:       %8d (%.1f%%)\n", s.Responses, successPercent)
	if s.Retries > 0 {
		result += fmt.Sprintf("Retries:         %8d\n", s.Retries)
	}
	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d (%.1f%%)\n", s.Timeouts, timeoutPercent)
	}
	if s.CodecErrors > 0 {
		result += fmt.Sprintf("Codec Errors:    %8d\n", s.CodecErrors)
	}
	if s.Unmatched > 0 {
		result += fmt.Sprintf("Unmatched Frames:%8d\n", s.Unmatched)
	}
	if s.NoiseBytes > 0 {
		result += fmt.Sprintf("Noise Bytes:     %8d\n", s.NoiseBytes)
	}
	result += fmt.Sprintf("Connects:        %8d\n", s.Connects)
	result += fmt.Sprintf("Disconnects:     %8d\n", s.Disconnects)
	result += fmt.Sprintf("Request Rate:    %8.1f reqs/sec\n", s.RequestRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "==================================\n"

	return result
}

// Reset zeroes every counter and restarts the rate window.
func (s *LinkStats) Reset() {
	*s = LinkStats{StartTime: time.Now()}
}
