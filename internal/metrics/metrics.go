// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package metrics exposes Prometheus instrumentation for the receiver
// pipeline: pool, queue, and latency visibility. Collectors are built
// with plain prometheus.New* constructors registered on a caller-
// supplied registry, no promauto magic.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every gauge/counter/histogram the pipeline updates on
// its hot path. All fields are safe for concurrent use (the prometheus
// client types already are).
type Metrics struct {
	FramesEmitted   prometheus.Counter
	SilenceFrames   prometheus.Counter
	PacketsRouted   prometheus.Counter
	PacketsDropped  prometheus.Counter
	PacketsMalformed prometheus.Counter

	SessionsActive prometheus.Gauge
	SessionsBroken prometheus.Counter

	FECRecovered prometheus.Counter
	FECLost      prometheus.Counter

	JitterBufferDepth prometheus.Gauge

	LatencyMs       prometheus.Histogram
	ResamplerScale  prometheus.Gauge
	ResamplerClamped prometheus.Counter
}

// New creates a Metrics bundle with the given namespace and registers
// every collector on reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_emitted_total",
			Help: "Frames produced by the mixer stage.",
		}),
		SilenceFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "silence_frames_total",
			Help: "Frames emitted with no live session contributing audio.",
		}),
		PacketsRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_routed_total",
			Help: "Parsed packets handed to the router, including any it then drops.",
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_dropped_total",
			Help: "Packets dropped for session-cap or full-queue reasons.",
		}),
		PacketsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_malformed_total",
			Help: "Datagrams that failed to parse.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sessions_active",
			Help: "Number of sessions currently tracked by the router.",
		}),
		SessionsBroken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_broken_total",
			Help: "Sessions that transitioned to the broken state.",
		}),
		FECRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fec_recovered_total",
			Help: "Source packets reconstructed by the FEC decoder.",
		}),
		FECLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fec_lost_total",
			Help: "Source packets the FEC decoder reported as lost.",
		}),
		JitterBufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "jitter_buffer_depth",
			Help: "Packets currently held in the most recently observed jitter buffer.",
		}),
		LatencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "latency_ms",
			Help:    "Measured end-to-end latency in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		}),
		ResamplerScale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "resampler_scale",
			Help: "Most recently applied resampler scaling factor.",
		}),
		ResamplerClamped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "resampler_clamped_total",
			Help: "Latency observations made while the controller has flagged its session for restart after sustained clamping.",
		}),
	}

	reg.MustRegister(
		m.FramesEmitted, m.SilenceFrames, m.PacketsRouted, m.PacketsDropped,
		m.PacketsMalformed, m.SessionsActive, m.SessionsBroken,
		m.FECRecovered, m.FECLost, m.JitterBufferDepth, m.LatencyMs,
		m.ResamplerScale, m.ResamplerClamped,
	)
	return m
}
