// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package mixer sums aligned frames from every live session into one
// output frame. Sessions are expected to have already resampled to the
// sink's nominal rate; the mixer only adds.
package mixer

import (
	"math"
	"time"

	"github.com/rocwire/rocstream/internal/frame"
)

// Mixer accumulates per-session frames into one fixed-size output frame
// every Tick. It owns its accumulator and output buffers so a session
// running at steady state never asks the allocator for either.
type Mixer struct {
	channels          int
	samplesPerChannel int

	acc []int32
	out *frame.Frame
}

// New creates a Mixer for channels-interleaved audio, samplesPerChannel
// samples per output frame.
func New(channels, samplesPerChannel int) *Mixer {
	n := channels * samplesPerChannel
	return &Mixer{
		channels:          channels,
		samplesPerChannel: samplesPerChannel,
		acc:               make([]int32, n),
		out:               &frame.Frame{Samples: make([]int16, n), Channels: channels},
	}
}

// Mix sums the samples of every frame in frames into the mixer's
// reused output frame, saturating rather than wrapping on overflow.
// With no input frames it returns silence tagged FlagSilence. The
// returned frame is only valid until the next call to Mix; callers must
// copy what they need out of it before calling Mix again.
func (m *Mixer) Mix(frames []*frame.Frame) *frame.Frame {
	m.out.Flag = 0
	m.out.CaptureTime = time.Time{}
	m.out.Duration = 0

	if len(frames) == 0 {
		for i := range m.out.Samples {
			m.out.Samples[i] = 0
		}
		m.out.Flag |= frame.FlagSilence
		return m.out
	}

	for i := range m.acc {
		m.acc[i] = 0
	}
	n := len(m.acc)
	var anyInterpolated bool
	earliestCapture := frames[0].CaptureTime
	var maxDuration = frames[0].Duration

	for _, f := range frames {
		if f == nil {
			continue
		}
		for i := 0; i < n && i < len(f.Samples); i++ {
			m.acc[i] += int32(f.Samples[i])
		}
		if f.HasFlag(frame.FlagInterpolated) {
			anyInterpolated = true
		}
		if f.CaptureTime.Before(earliestCapture) {
			earliestCapture = f.CaptureTime
		}
		if f.Duration > maxDuration {
			maxDuration = f.Duration
		}
	}

	for i, v := range m.acc {
		m.out.Samples[i] = saturate(v)
	}
	m.out.CaptureTime = earliestCapture
	m.out.Duration = maxDuration
	if anyInterpolated {
		m.out.Flag |= frame.FlagInterpolated
	}
	return m.out
}

func saturate(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
