// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package depacketize converts the jitter buffer's per-slot packet (or
// loss marker) stream into fixed-size audio frames, decoding payloads
// and carrying any partial-frame remainder across packet boundaries.
package depacketize

import (
	"time"

	"github.com/rocwire/rocstream/internal/frame"
	"github.com/rocwire/rocstream/internal/jitter"
	"github.com/rocwire/rocstream/internal/pool"
	"github.com/rocwire/rocstream/internal/wire"
	"github.com/zaf/g711"
)

// PayloadFormat describes the samples-per-channel/bytes-per-sample
// mapping for one RTP payload type.
type PayloadFormat struct {
	Channels   int
	SampleRate int
	// Decode turns a wire payload into interleaved int16 PCM samples. For
	// raw PCM payload types this simply reinterprets the bytes; for G.711
	// it runs the codec's decompressor.
	Decode func(payload []byte) []int16
}

// LinearPCM16 decodes a big-endian 16-bit signed interleaved payload.
func LinearPCM16(channels, sampleRate int) PayloadFormat {
	return PayloadFormat{
		Channels:   channels,
		SampleRate: sampleRate,
		Decode: func(payload []byte) []int16 {
			n := len(payload) / 2
			out := make([]int16, n)
			for i := 0; i < n; i++ {
				out[i] = int16(uint16(payload[2*i])<<8 | uint16(payload[2*i+1]))
			}
			return out
		},
	}
}

// ULawPCM decodes G.711 mu-law via the zaf/g711 codec.
func ULawPCM() PayloadFormat {
	return PayloadFormat{
		Channels:   1,
		SampleRate: 8000,
		Decode: func(payload []byte) []int16 {
			return bytesToSamples(g711.DecodeUlaw(payload))
		},
	}
}

// ALawPCM decodes G.711 a-law.
func ALawPCM() PayloadFormat {
	return PayloadFormat{
		Channels:   1,
		SampleRate: 8000,
		Decode: func(payload []byte) []int16 {
			return bytesToSamples(g711.DecodeAlaw(payload))
		},
	}
}

func bytesToSamples(lpcm []byte) []int16 {
	n := len(lpcm) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(lpcm[2*i]) | uint16(lpcm[2*i+1])<<8)
	}
	return out
}

// Depacketizer accumulates decoded samples across packet boundaries and
// emits fixed-size frames, carrying any remainder into the next frame.
type Depacketizer struct {
	format         PayloadFormat
	samplesPerFrame int // per channel
	frameDuration  time.Duration
	fadeOnLoss     bool

	remainder   []int16
	lastSample  []int16 // last full frame of real samples, for fade
	concealBuf  []int16 // scratch for concealment(), reused across calls
	captureBase time.Time
	tsBase      uint32
	haveBase    bool
	rateHz      int

	frames *pool.FramePool // pre-sized for one output frame's Samples
}

// framePoolCapacity bounds how many in-flight depacketized frames one
// session can hold before Get falls back to a fresh allocation; a
// single Push call rarely produces more than one or two.
const framePoolCapacity = 4

// New creates a Depacketizer producing samplesPerChannel-sample frames
// at format's channel count, with the given duration per frame.
func New(format PayloadFormat, samplesPerChannel int, frameDuration time.Duration, fadeOnLoss bool) *Depacketizer {
	return &Depacketizer{
		format:          format,
		samplesPerFrame: samplesPerChannel,
		frameDuration:   frameDuration,
		fadeOnLoss:      fadeOnLoss,
		rateHz:          format.SampleRate,
		frames:          pool.NewFramePool(framePoolCapacity, samplesPerChannel*format.Channels),
	}
}

// Push decodes one jitter-buffer slot (a packet or a loss token) into
// zero or more output frames. A packet may contribute to multiple frames
// and a frame may be built from multiple packets; partial packets carry
// remainder samples forward.
func (d *Depacketizer) Push(slot jitter.Slot) []*frame.Frame {
	var decoded []int16
	if slot.Packet != nil {
		decoded = d.format.Decode(slot.Packet.Payload)
		if !d.haveBase {
			d.captureBase = slot.Packet.Arrival
			d.tsBase = slot.Packet.Timestamp
			d.haveBase = true
		}
		slot.Packet.Release()
	} else {
		decoded = d.concealment()
	}

	d.remainder = append(d.remainder, decoded...)

	var out []*frame.Frame
	frameLen := d.samplesPerFrame * d.format.Channels
	for len(d.remainder) >= frameLen {
		f := d.frames.Get()
		copy(f.Samples, d.remainder[:frameLen])
		d.remainder = d.remainder[frameLen:]

		f.Channels = d.format.Channels
		f.Duration = d.frameDuration
		f.CaptureTime = d.nextCaptureTime()
		if slot.Packet == nil {
			f.Flag |= frame.FlagInterpolated
			if !d.fadeOnLoss {
				f.Flag |= frame.FlagSilence
			}
		}
		out = append(out, f)
		// lastSample is copied rather than aliased to f.Samples: f is
		// pool-owned and may be reused (and overwritten) by the time a
		// later loss needs to fade from it. Concealed frames do not
		// replace it.
		if slot.Packet != nil {
			if cap(d.lastSample) < frameLen {
				d.lastSample = make([]int16, frameLen)
			}
			d.lastSample = d.lastSample[:frameLen]
			copy(d.lastSample, f.Samples)
		}
	}
	return out
}

func (d *Depacketizer) nextCaptureTime() time.Time {
	t := d.captureBase
	d.captureBase = d.captureBase.Add(d.frameDuration)
	return t
}

// concealment produces one frame's worth of loss-concealed samples: zero
// fill, or a brief linear fade from the last real frame when fadeOnLoss
// is enabled. Fills a reused scratch buffer rather than allocating, since
// its contents are immediately copied into d.remainder by the caller.
func (d *Depacketizer) concealment() []int16 {
	n := d.samplesPerFrame * d.format.Channels
	if cap(d.concealBuf) < n {
		d.concealBuf = make([]int16, n)
	}
	out := d.concealBuf[:n]

	if !d.fadeOnLoss || len(d.lastSample) == 0 {
		for i := range out {
			out[i] = 0
		}
		return out
	}
	last := d.lastSample
	for i := range out {
		ref := 0
		if i < len(last) {
			ref = int(last[i])
		}
		// Linear fade to silence across the concealed frame.
		factor := 1.0 - float64(i)/float64(n)
		out[i] = int16(float64(ref) * factor)
	}
	return out
}
