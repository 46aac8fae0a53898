// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package receiver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rocwire/rocstream/internal/depacketize"
	"github.com/rocwire/rocstream/internal/fec"
	"github.com/rocwire/rocstream/internal/iface"
	"github.com/rocwire/rocstream/internal/latency"
	"github.com/rocwire/rocstream/internal/resample"
	"github.com/rocwire/rocstream/internal/session"
	"github.com/rocwire/rocstream/internal/sink"
	"github.com/rocwire/rocstream/internal/wire"
	"github.com/stretchr/testify/require"
)

// fakeNetwork replays a fixed set of pre-built datagrams, one per Recv
// call, then blocks until ctx is cancelled — standing in for a real UDP
// socket in the network-goroutine test.
type fakeNetwork struct {
	datagrams []iface.Datagram
	i         int
	done      <-chan struct{}
}

func (f *fakeNetwork) Recv() (iface.Datagram, error) {
	if f.i < len(f.datagrams) {
		dg := f.datagrams[f.i]
		f.i++
		return dg, nil
	}
	<-f.done
	return iface.Datagram{}, context.Canceled
}

func (f *fakeNetwork) Send(b []byte, dest net.Addr) error { return nil }

func receiverTestFactory(ssrc uint32) session.Config {
	return session.Config{
		SSRC:                 ssrc,
		FEC:                  fec.Config{Scheme: wire.SchemeNone},
		Format:               depacketize.LinearPCM16(1, 8000),
		Channels:             1,
		SamplesPerFrame:      4,
		FrameDuration:        20 * time.Millisecond,
		JitterCapacity:       16,
		Latency:              latency.Config{Target: 40 * time.Millisecond, Profile: latency.Gentle},
		ResamplerQuality:     resample.QualityLow,
		WatchdogNoPackets:    time.Second,
		WatchdogBrokenFrames: time.Second,
		WatchdogBrokenRatio:  0.9,
		QueueCapacity:        32,
	}
}

// TestReceiverEndToEndCleanStream exercises a clean-stream scenario
// through the full Receiver: a network goroutine routing real RTP
// datagrams and a pipeline goroutine paced by a Device sink.
func TestReceiverEndToEndCleanStream(t *testing.T) {
	r, err := New(4, receiverTestFactory)
	require.NoError(t, err)

	base := time.Now()
	var datagrams []iface.Datagram
	for seq := uint16(0); seq < 10; seq++ {
		payload := make([]byte, 4)
		b, err := wire.BuildSource(1, seq, uint32(seq)*4, false, 0, payload)
		require.NoError(t, err)
		datagrams = append(datagrams, iface.Datagram{
			Bytes:   b,
			Arrival: base.Add(time.Duration(seq) * 20 * time.Millisecond),
		})
	}

	done := make(chan struct{})
	nw := &fakeNetwork{datagrams: datagrams, done: done}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go r.RunNetwork(ctx, nw)
	time.Sleep(20 * time.Millisecond) // let the network goroutine drain the fixed datagram set

	d := sink.NewDevice(time.Millisecond)
	defer d.Close()

	pipelineCtx, pipelineCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer pipelineCancel()
	_ = r.RunPipeline(pipelineCtx, d, nw)

	require.Len(t, r.Router().Sessions(), 1)
	close(done)
}
