// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package receiver wires the parser/router, per-session pipelines, and
// sink-driven clock into the top-level entry point: a network goroutine
// that only parses and routes, and a pipeline goroutine paced
// exclusively by the sink.
package receiver

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rocwire/rocstream/internal/iface"
	"github.com/rocwire/rocstream/internal/metrics"
	"github.com/rocwire/rocstream/internal/pipeline"
	"github.com/rocwire/rocstream/internal/pool"
	"github.com/rocwire/rocstream/internal/router"
	"github.com/rocwire/rocstream/internal/wire"
	"github.com/rs/zerolog"
)

// Config configures a Receiver. It is validated once at construction and
// never exposes a partially-built Receiver on error.
type Config struct {
	MaxSessions     int
	Channels        int
	SamplesPerFrame int

	SessionFactory router.SessionFactory

	PacketPoolCapacity int
	PacketPoolPayload  int

	MetricsNamespace string
	MetricsRegistry  prometheus.Registerer

	// Profile enables per-Tick latency histograms via pipeline.Profiler.
	// Requires MetricsRegistry to also be set.
	Profile bool

	Log zerolog.Logger
}

// Validate checks Config for the minimum viable settings, returning
// early rather than constructing a half-usable Receiver.
func (c *Config) Validate() error {
	if c.MaxSessions <= 0 {
		return fmt.Errorf("receiver: MaxSessions must be positive")
	}
	if c.Channels <= 0 {
		return fmt.Errorf("receiver: Channels must be positive")
	}
	if c.SamplesPerFrame <= 0 {
		return fmt.Errorf("receiver: SamplesPerFrame must be positive")
	}
	if c.SessionFactory == nil {
		return fmt.Errorf("receiver: SessionFactory is required")
	}
	return nil
}

// Option mutates a Config.
type Option func(*Config)

// WithMetrics enables Prometheus instrumentation under namespace,
// registered on reg.
func WithMetrics(namespace string, reg prometheus.Registerer) Option {
	return func(c *Config) {
		c.MetricsNamespace = namespace
		c.MetricsRegistry = reg
	}
}

// WithProfiling turns on per-Tick latency histograms. Has no effect
// unless WithMetrics is also applied.
func WithProfiling() Option {
	return func(c *Config) {
		c.Profile = true
	}
}

// WithPacketPool overrides the default packet pool sizing.
func WithPacketPool(capacity, payloadSize int) Option {
	return func(c *Config) {
		c.PacketPoolCapacity = capacity
		c.PacketPoolPayload = payloadSize
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Config) {
		c.Log = log
	}
}

func defaultConfig(maxSessions int, factory router.SessionFactory) Config {
	return Config{
		MaxSessions:        maxSessions,
		Channels:           1,
		SamplesPerFrame:    160,
		SessionFactory:     factory,
		PacketPoolCapacity: 512,
		PacketPoolPayload:  1500,
		Log:                zerolog.Nop(),
	}
}

// Receiver is the assembled pipeline: a Router demultiplexing parsed
// packets into sessions, and a Pipeline that the sink's clock drives.
type Receiver struct {
	cfg      Config
	router   *router.Router
	pipeline *pipeline.Pipeline
	pool     *pool.PacketPool
	mx       *metrics.Metrics
	log      zerolog.Logger
}

// New constructs a Receiver admitting at most maxSessions concurrent
// SSRCs, building session state from factory. It fails fast on invalid
// configuration rather than returning a half-usable Receiver.
func New(maxSessions int, factory router.SessionFactory, opts ...Option) (*Receiver, error) {
	cfg := defaultConfig(maxSessions, factory)
	for _, o := range opts {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var mx *metrics.Metrics
	if cfg.MetricsRegistry != nil {
		mx = metrics.New(cfg.MetricsNamespace, cfg.MetricsRegistry)
	}

	r := router.New(cfg.MaxSessions, cfg.SessionFactory, cfg.Log)
	p := pipeline.New(pipeline.Config{
		Channels:        cfg.Channels,
		SamplesPerFrame: cfg.SamplesPerFrame,
	}, r, mx, cfg.Log)
	if cfg.Profile && cfg.MetricsRegistry != nil {
		p = p.WithProfiler(pipeline.NewProfiler(cfg.MetricsNamespace, "pipeline_tick", cfg.MetricsRegistry))
	}

	return &Receiver{
		cfg:      cfg,
		router:   r,
		pipeline: p,
		pool:     pool.NewPacketPool(cfg.PacketPoolCapacity, cfg.PacketPoolPayload),
		mx:       mx,
		log:      cfg.Log.With().Str("component", "receiver").Logger(),
	}, nil
}

// RunNetwork is the network-goroutine side: it only reads datagrams,
// parses them, and routes them — it never touches the pipeline's locks
// or performs audio work, and it suspends only inside nw.Recv.
func (r *Receiver) RunNetwork(ctx context.Context, nw iface.Network) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		dg, err := nw.Recv()
		if err != nil {
			return err
		}

		pkt := r.pool.Get(nil)
		if err := wire.Parse(dg.Bytes, dg.Arrival, pkt); err != nil {
			pkt.Release()
			if r.mx != nil {
				r.mx.PacketsMalformed.Inc()
			}
			continue
		}
		pkt.PeerAddr = dg.PeerAddr
		r.router.Route(pkt)
		if r.mx != nil {
			r.mx.PacketsRouted.Inc()
		}
	}
}

// RunPipeline is the pipeline-goroutine side: it blocks only inside the
// sink's Pull. nw is used solely to send RTCP receiver reports back to
// each session's peer; it does no receiving here (RunNetwork owns that).
func (r *Receiver) RunPipeline(ctx context.Context, sink iface.Sink, nw iface.Network) error {
	return r.pipeline.Run(ctx, sink, time.Now, nw)
}

// Router exposes the session table for inspection (e.g. RTCP reporting
// or metrics scraping that needs per-session stats).
func (r *Receiver) Router() *router.Router { return r.router }
