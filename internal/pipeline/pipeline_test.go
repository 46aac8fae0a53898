// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package pipeline

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rocwire/rocstream/internal/depacketize"
	"github.com/rocwire/rocstream/internal/fec"
	"github.com/rocwire/rocstream/internal/latency"
	"github.com/rocwire/rocstream/internal/metrics"
	"github.com/rocwire/rocstream/internal/resample"
	"github.com/rocwire/rocstream/internal/router"
	"github.com/rocwire/rocstream/internal/session"
	"github.com/rocwire/rocstream/internal/wire"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipelineTestFactory(ssrc uint32) session.Config {
	return session.Config{
		SSRC:                 ssrc,
		FEC:                  fec.Config{Scheme: wire.SchemeNone},
		Format:               depacketize.LinearPCM16(1, 8000),
		Channels:             1,
		SamplesPerFrame:      4,
		FrameDuration:        20 * time.Millisecond,
		JitterCapacity:       16,
		Latency:              latency.Config{Target: 40 * time.Millisecond, Min: 0, Max: 200 * time.Millisecond, Profile: latency.Gentle},
		ResamplerQuality:     resample.QualityLow,
		WatchdogNoPackets:    time.Second,
		WatchdogBrokenFrames: time.Second,
		WatchdogBrokenRatio:  0.9,
		QueueCapacity:        32,
	}
}

func sourcePkt(ssrc uint32, seq uint16, arrival time.Time, val int16) *wire.Packet {
	p := wire.NewPacket()
	p.Kind = wire.KindSource
	p.SSRC = ssrc
	p.SequenceNumber = seq
	p.Timestamp = uint32(seq) * 4
	p.Arrival = arrival
	p.Payload = []byte{byte(val >> 8), byte(val), byte(val >> 8), byte(val)}
	return p
}

// TestPipelineCleanStream: a single session with no loss should produce
// a non-silent frame once enough packets have been routed.
func TestPipelineCleanStream(t *testing.T) {
	r := router.New(8, pipelineTestFactory, zerolog.Nop())
	mx := metrics.New("test_clean", prometheus.NewRegistry())
	p := New(Config{Channels: 1, SamplesPerFrame: 4}, r, mx, zerolog.Nop())

	base := time.Now()
	for seq := uint16(0); seq < 8; seq++ {
		r.Route(sourcePkt(1, seq, base.Add(time.Duration(seq)*20*time.Millisecond), 100))
	}

	var sawAudio bool
	now := base
	for i := 0; i < 8; i++ {
		now = now.Add(20 * time.Millisecond)
		out := p.Tick(now, nil)
		require.NotNil(t, out)
		for _, s := range out.Samples {
			if s != 0 {
				sawAudio = true
			}
		}
	}
	assert.True(t, sawAudio, "expected at least one non-silent output frame")
}

// TestPipelineBecomesActiveOnlyOnceBufferIsReady checks that a session
// stays in created (no audio emitted) until the jitter buffer reaches
// its target fill, and only then transitions to active.
func TestPipelineBecomesActiveOnlyOnceBufferIsReady(t *testing.T) {
	r := router.New(8, pipelineTestFactory, zerolog.Nop())
	p := New(Config{Channels: 1, SamplesPerFrame: 4}, r, nil, zerolog.Nop())

	base := time.Now()
	r.Route(sourcePkt(1, 0, base, 100))

	p.Tick(base.Add(20*time.Millisecond), nil)
	sessions := r.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, session.StateCreated, sessions[0].State(), "buffer has not yet reached its 40ms target")

	p.Tick(base.Add(40*time.Millisecond), nil)
	assert.Equal(t, session.StateActive, sessions[0].State())
}

// TestPipelineSessionTimeout: a session that stops receiving packets is
// marked broken once its watchdog fires, and the pipeline stops mixing
// its audio.
func TestPipelineSessionTimeout(t *testing.T) {
	r := router.New(8, pipelineTestFactory, zerolog.Nop())
	p := New(Config{Channels: 1, SamplesPerFrame: 4}, r, nil, zerolog.Nop())

	base := time.Now()
	r.Route(sourcePkt(1, 0, base, 100))
	p.Tick(base.Add(40*time.Millisecond), nil)

	sessions := r.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, session.StateActive, sessions[0].State())

	p.Tick(base.Add(2*time.Second), nil)
	assert.Equal(t, session.StateBroken, sessions[0].State())
}
