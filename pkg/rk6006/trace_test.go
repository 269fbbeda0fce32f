// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Voltlab

package rk6006

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voltlab/rkctl/pkg/modbusrtu"
)

func TestTraceRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewTraceWriter(&buf)

	require.NoError(t, w.Record(DirSend, []byte{0x01, 0x03, 0x00}))
	require.NoError(t, w.Record(DirRecv, []byte{0xAA}))

	records, err := ReadTrace(&buf)
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, DirSend, records[0].Dir)
	require.Equal(t, []byte{0x01, 0x03, 0x00}, records[0].Data)
	require.Equal(t, DirRecv, records[1].Dir)
	require.False(t, records[0].At.IsZero())
	require.False(t, records[1].At.Before(records[0].At))
}

func TestTraceEmptyStream(t *testing.T) {
	records, err := ReadTrace(bytes.NewReader(nil))
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestSessionTracesWire(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig(QueueWait)
	cfg.Trace = NewTraceWriter(&buf)

	sim := NewSim()
	s := NewSession(sim, cfg)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.WriteRegister(ctx, RegSetVoltage, 5))
	require.NoError(t, s.Disconnect())

	records, err := ReadTrace(&buf)
	require.NoError(t, err)
	require.NotEmpty(t, records)

	var sends, recvs int
	for _, r := range records {
		switch r.Dir {
		case DirSend:
			sends++
			// Every captured send must be a well-formed request.
			req, err := modbusrtu.DecodeRequest(modbusrtu.DefaultSlaveID, r.Data)
			require.NoError(t, err)
			require.Equal(t, uint8(modbusrtu.FuncWriteSingle), req.Function())
		case DirRecv:
			recvs++
		}
	}
	require.Equal(t, 1, sends)
	require.Equal(t, 1, recvs)
}
