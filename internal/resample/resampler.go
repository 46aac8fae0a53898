// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package resample implements a fractional-rate linear-phase polyphase
// resampler: a windowed-sinc kernel evaluated at a continuously
// adjustable fractional read position, so the latency monitor can steer
// playback speed without audible glitches.
package resample

import "math"

// Quality selects one of the resampler's kernel tiers, trading CPU cost
// for interpolation accuracy.
type Quality int

const (
	// QualityLow is the low-latency/low-quality tier: a short kernel,
	// coarse interpolation table.
	QualityLow Quality = iota
	// QualityMedium sits between the low and high tiers.
	QualityMedium
	// QualityHigh is the high-quality tier: longer kernel, finer
	// interpolation table, used by latency profiles that prioritize
	// responsiveness over CPU budget.
	QualityHigh
)

type profile struct {
	halfTaps   int // kernel half-width in input samples
	tableSize  int // interpolation table resolution per unit sample
	beta       float64
}

func profileFor(q Quality) profile {
	switch q {
	case QualityHigh:
		return profile{halfTaps: 16, tableSize: 256, beta: 8.0}
	case QualityMedium:
		return profile{halfTaps: 8, tableSize: 128, beta: 6.0}
	default:
		return profile{halfTaps: 4, tableSize: 64, beta: 4.0}
	}
}

// Resampler advances a fractional read position through a rolling window
// of input taps, producing one output frame at a time at scaling factor
// s (close to 1.0). Not safe for concurrent use.
type Resampler struct {
	channels int
	prof     profile
	kernel   [][]float64 // [tableIndex][tap]

	history   []float64 // interleaved history: consumed frames are trimmed once it exceeds 4*(2*halfTaps+2) frames
	historyN  int        // frames currently valid in history, per channel
	pos       float64    // fractional read position in input frames, relative to history start
	scale     float64
}

// New creates a Resampler for channels-interleaved audio at the given
// quality tier, starting at unity scaling.
func New(channels int, quality Quality) *Resampler {
	prof := profileFor(quality)
	r := &Resampler{
		channels: channels,
		prof:     prof,
		kernel:   buildKernel(prof),
		scale:    1.0,
	}
	taps := 2*prof.halfTaps + 2
	// halfTaps frames of leading silence give the kernel its left-hand
	// context, so the first output sample-set reads the first input one.
	r.history = make([]float64, prof.halfTaps*channels, taps*channels)
	r.historyN = prof.halfTaps
	r.pos = float64(prof.halfTaps)
	return r
}

// buildKernel precomputes a windowed-sinc table indexed by fractional
// offset, using a Kaiser-like window parameterized by prof.beta. This is
// evaluated once per Resampler, not per sample, so updates to s never
// recompute it.
func buildKernel(prof profile) [][]float64 {
	taps := 2*prof.halfTaps + 1
	table := make([][]float64, prof.tableSize)
	for ti := 0; ti < prof.tableSize; ti++ {
		frac := float64(ti) / float64(prof.tableSize)
		row := make([]float64, taps)
		var sum float64
		for j := 0; j < taps; j++ {
			x := float64(j-prof.halfTaps) - frac
			row[j] = sinc(x) * window(x, float64(prof.halfTaps), prof.beta)
			sum += row[j]
		}
		if sum != 0 {
			for j := range row {
				row[j] /= sum
			}
		}
		table[ti] = row
	}
	return table
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// window is a smooth Kaiser-ish taper so the kernel rolls off to zero at
// its edges rather than ringing.
func window(x, halfTaps, beta float64) float64 {
	if halfTaps == 0 {
		return 1
	}
	r := x / halfTaps
	if r < -1 || r > 1 {
		return 0
	}
	return math.Pow(1-r*r, beta/8)
}

// SetScale updates the scaling factor s applied to subsequent output
// samples. Phase (r.pos) is untouched, so the change is glitch-free: the
// next output sample still reads from exactly where the last one left
// off, just advancing at the new rate from there on.
func (r *Resampler) SetScale(s float64) {
	r.scale = s
}

// Scale returns the current scaling factor.
func (r *Resampler) Scale() float64 {
	return r.scale
}

// Push appends one frame's worth of input samples (channels-interleaved)
// to the resampler's history.
func (r *Resampler) Push(in []int16) {
	frames := len(in) / r.channels
	for f := 0; f < frames; f++ {
		for c := 0; c < r.channels; c++ {
			r.history = append(r.history, float64(in[f*r.channels+c]))
		}
	}
	r.historyN += frames
	r.trimHistory()
}

func (r *Resampler) trimHistory() {
	maxFrames := 4 * (2*r.prof.halfTaps + 2)
	if r.historyN <= maxFrames {
		return
	}
	drop := r.historyN - maxFrames
	// Only frames the kernel no longer reaches at the read position may go.
	if consumed := int(math.Floor(r.pos)) - r.prof.halfTaps; drop > consumed {
		drop = consumed
	}
	if drop <= 0 {
		return
	}
	r.history = r.history[drop*r.channels:]
	r.historyN -= drop
	r.pos -= float64(drop)
}

// Available reports whether there is enough history to produce another
// output frame at the current read position.
func (r *Resampler) Available() bool {
	return int(r.pos)+r.prof.halfTaps+1 < r.historyN
}

// Pull fills dst (channels-interleaved, so len(dst) must be a multiple
// of r.channels) by stepping the fractional read position forward by
// scale per output sample-set and convolving with the windowed-sinc
// kernel. It never allocates: callers own dst and are expected to reuse
// it across calls.
func (r *Resampler) Pull(dst []int16) {
	outLen := len(dst) / r.channels
	out := dst
	for f := 0; f < outLen; f++ {
		if !r.Available() {
			// Starve gracefully: zero this sample-set rather than reading
			// out of bounds or leaking whatever dst held before the call.
			for c := 0; c < r.channels; c++ {
				out[f*r.channels+c] = 0
			}
			continue
		}
		base := int(math.Floor(r.pos))
		frac := r.pos - float64(base)
		ti := int(frac * float64(r.prof.tableSize))
		if ti >= r.prof.tableSize {
			ti = r.prof.tableSize - 1
		}
		taps := r.kernel[ti]

		for c := 0; c < r.channels; c++ {
			var acc float64
			for j, w := range taps {
				idx := base - r.prof.halfTaps + j
				if idx < 0 || idx >= r.historyN {
					continue
				}
				acc += w * r.history[idx*r.channels+c]
			}
			out[f*r.channels+c] = clampSample(acc)
		}
		r.pos += r.scale
	}
}

func clampSample(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
