// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rocwire/rocstream/internal/frame"
)

// Profiler times a single stage of the pipeline and reports it as a
// histogram observation. A single Profiler wraps the pipeline's own
// Tick call.
type Profiler struct {
	stage     string
	histogram prometheus.Histogram
}

// NewProfiler creates a Profiler reporting onto a histogram registered
// under "<namespace>_<stage>_duration_seconds".
func NewProfiler(namespace, stage string, reg prometheus.Registerer) *Profiler {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      stage + "_duration_seconds",
		Help:      "Wall-clock duration of the " + stage + " pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12),
	})
	reg.MustRegister(h)
	return &Profiler{stage: stage, histogram: h}
}

// Time runs fn and records its elapsed duration.
func (p *Profiler) Time(fn func()) {
	start := time.Now()
	fn()
	p.histogram.Observe(time.Since(start).Seconds())
}

// WrapTick returns a tick function that profiles calls to next.
func (p *Profiler) WrapTick(next func(now time.Time) *frame.Frame) func(now time.Time) *frame.Frame {
	return func(now time.Time) *frame.Frame {
		start := time.Now()
		out := next(now)
		p.histogram.Observe(time.Since(start).Seconds())
		return out
	}
}
