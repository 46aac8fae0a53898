// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package session

import (
	"testing"
	"time"

	"github.com/rocwire/rocstream/internal/depacketize"
	"github.com/rocwire/rocstream/internal/fec"
	"github.com/rocwire/rocstream/internal/latency"
	"github.com/rocwire/rocstream/internal/resample"
	"github.com/rocwire/rocstream/internal/wire"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(ssrc uint32) Config {
	return Config{
		SSRC:            ssrc,
		FEC:             fec.Config{Scheme: wire.SchemeNone},
		Format:          depacketize.LinearPCM16(1, 8000),
		Channels:        1,
		SamplesPerFrame: 4,
		FrameDuration:   20 * time.Millisecond,
		JitterCapacity:  16,
		Latency:         latency.Config{Target: 40 * time.Millisecond, Profile: latency.Responsive},
		ResamplerQuality: resample.QualityLow,
		WatchdogNoPackets:    200 * time.Millisecond,
		WatchdogBrokenFrames: 200 * time.Millisecond,
		WatchdogBrokenRatio:  0.5,
		QueueCapacity:        32,
	}
}

func TestSessionLifecycleCreatedToActive(t *testing.T) {
	s := New(testConfig(1), zerolog.Nop())
	assert.Equal(t, StateCreated, s.State())

	pkt := wire.NewPacket()
	pkt.Kind = wire.KindSource
	pkt.SequenceNumber = 1
	pkt.Payload = []byte{0, 1, 0, 2}
	s.Enqueue(pkt)
	s.Drain()

	// Session stays created until the pipeline observes the jitter
	// buffer has reached its target fill and calls MarkActive; draining
	// packets alone does not promote it.
	assert.Equal(t, StateCreated, s.State())
	_, ready := s.Buffer().Peek(pkt.Arrival.Add(s.cfg.Latency.Target), s.Monitor().Target())
	require.True(t, ready)
	s.MarkActive()
	assert.Equal(t, StateActive, s.State())
}

func TestWatchdogMarksBrokenAfterSilence(t *testing.T) {
	s := New(testConfig(2), zerolog.Nop())
	pkt := wire.NewPacket()
	pkt.Kind = wire.KindSource
	pkt.Payload = []byte{0, 0, 0, 0}
	now := time.Now()
	pkt.Arrival = now
	s.Enqueue(pkt)
	s.Drain()
	s.MarkActive()
	require.Equal(t, StateActive, s.State())

	s.CheckWatchdog(now.Add(500 * time.Millisecond))
	assert.Equal(t, StateBroken, s.State())
}

func TestEnqueueDropsOnFullQueue(t *testing.T) {
	cfg := testConfig(3)
	cfg.QueueCapacity = 1
	s := New(cfg, zerolog.Nop())

	p1 := wire.NewPacket()
	p1.Kind = wire.KindSource
	p2 := wire.NewPacket()
	p2.Kind = wire.KindSource

	s.Enqueue(p1)
	s.Enqueue(p2) // queue full, dropped+released, must not panic or block
}

func TestBrokenSessionDropsIncomingPackets(t *testing.T) {
	s := New(testConfig(4), zerolog.Nop())
	s.setState(StateBroken)

	pkt := wire.NewPacket()
	pkt.Kind = wire.KindSource
	s.Enqueue(pkt)

	control := s.Drain()
	assert.Empty(t, control)
}
