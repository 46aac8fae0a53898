// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package frame defines the fixed-duration PCM slice the pipeline
// produces for the sink.
package frame

import "time"

// Flag annotates how a Frame's samples were produced.
type Flag uint8

const (
	// FlagSilence marks a frame zero-filled because of packet loss.
	FlagSilence Flag = 1 << iota
	// FlagResampled marks a frame whose samples passed through the
	// resampler with a scaling factor != 1.
	FlagResampled
	// FlagInterpolated marks a frame containing loss-concealed
	// (CFT-interpolated) audio.
	FlagInterpolated
	// FlagUnderrun marks a frame emitted because the sink pulled faster
	// than data arrived.
	FlagUnderrun
)

// Frame is a contiguous view of interleaved PCM samples, int16 per
// channel sample, plus the metadata the latency monitor and mixer need.
type Frame struct {
	// Samples holds Channels-interleaved int16 samples. Its length is
	// Channels * samplesPerChannel.
	Samples []int16
	// Channels is the interleaving factor of Samples.
	Channels int
	// Duration is this frame's length in the stream-timestamp domain.
	Duration time.Duration
	// CaptureTime estimates when the first sample of this frame was
	// captured, in the sender's clock domain translated to local time.
	CaptureTime time.Time
	Flag        Flag

	release func(*Frame)
}

// Release returns the frame to its pool, if it was obtained from one.
// Safe to call on a frame built directly with &Frame{...}; it is then a
// no-op. Callers must not touch Samples after calling Release.
func (f *Frame) Release() {
	if f.release != nil {
		rel := f.release
		f.release = nil
		rel(f)
	}
}

// SetPool attaches the callback invoked by Release. Used by
// internal/pool when handing out a frame.
func (f *Frame) SetPool(release func(*Frame)) {
	f.release = release
}

// SamplesPerChannel returns the number of samples in one channel.
func (f *Frame) SamplesPerChannel() int {
	if f.Channels == 0 {
		return 0
	}
	return len(f.Samples) / f.Channels
}

// HasFlag reports whether flag is set.
func (f *Frame) HasFlag(flag Flag) bool {
	return f.Flag&flag != 0
}

// Zero fills Samples with silence and tags the frame accordingly.
func (f *Frame) Zero() {
	for i := range f.Samples {
		f.Samples[i] = 0
	}
	f.Flag |= FlagSilence
}
