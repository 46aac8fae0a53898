// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package pipeline assembles the receiver stages into the sink-driven
// clock: on each pull, drain every session's queues, advance its FEC
// decoder and jitter buffer, steer its resampler, and return one mixed
// frame.
package pipeline

import (
	"context"
	"time"

	pionrtcp "github.com/pion/rtcp"
	"github.com/rocwire/rocstream/internal/frame"
	"github.com/rocwire/rocstream/internal/iface"
	"github.com/rocwire/rocstream/internal/metrics"
	"github.com/rocwire/rocstream/internal/mixer"
	"github.com/rocwire/rocstream/internal/router"
	"github.com/rocwire/rocstream/internal/session"
	"github.com/rs/zerolog"
)

// Config configures the top-level receiver pipeline.
type Config struct {
	Channels        int
	SamplesPerFrame int
}

// Pipeline is the pipeline-goroutine side of the receiver: it owns no
// network resources directly beyond an optional reply path for RTCP, and
// is driven exclusively by the sink's cadence.
type Pipeline struct {
	cfg     Config
	router  *router.Router
	log     zerolog.Logger
	mx      *metrics.Metrics
	profile *Profiler
	mixer   *mixer.Mixer
}

// New creates a Pipeline over r. mx may be nil to disable instrumentation.
func New(cfg Config, r *router.Router, mx *metrics.Metrics, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		router: r,
		log:    log.With().Str("component", "pipeline").Logger(),
		mx:     mx,
		mixer:  mixer.New(cfg.Channels, cfg.SamplesPerFrame),
	}
}

// WithProfiler attaches a Profiler that times every Tick call made
// through Run. Optional; a nil receiver profiler disables timing.
func (p *Pipeline) WithProfiler(prof *Profiler) *Pipeline {
	p.profile = prof
	return p
}

// Tick runs exactly one pipeline pull: drains every session, advances
// its state, mixes the result, and returns the output frame. now is the
// sink-supplied "now" used by the latency monitor and watchdog. nw, if
// non-nil, is used to send any RTCP receiver reports sessions have
// accrued this tick; a nil nw simply skips sending them.
//
// The returned frame is only valid until the next Tick call.
func (p *Pipeline) Tick(now time.Time, nw iface.Network) *frame.Frame {
	sessions := p.router.Sessions()

	var frames []*frame.Frame
	for _, s := range sessions {
		for _, ctrl := range s.Drain() {
			s.ObserveControl(ctrl, now)
		}
		s.CheckWatchdog(now)

		if s.ConsumeJustBroke() && p.mx != nil {
			p.mx.SessionsBroken.Inc()
		}

		if s.State() == session.StateBroken {
			continue
		}

		pkt, ready := s.Buffer().Peek(now, s.Monitor().Target())
		if p.mx != nil {
			p.mx.JitterBufferDepth.Set(float64(s.Buffer().Len()))
		}
		if !ready {
			continue
		}
		s.MarkActive()

		if pkt != nil {
			latencyNow := now.Sub(pkt.Arrival)
			scale := s.Monitor().Observe(now, latencyNow)
			s.SetScale(scale)
			if p.mx != nil {
				p.mx.LatencyMs.Observe(float64(latencyNow.Milliseconds()))
			}
			if s.Monitor().RestartNeeded() && p.mx != nil {
				p.mx.ResamplerClamped.Inc()
			}
		}
		if p.mx != nil {
			p.mx.ResamplerScale.Set(s.Monitor().Scale())
		}

		out := s.PullFrame(now)
		frames = append(frames, out...)

		if p.mx != nil {
			recovered, lost := s.DrainFECCounts()
			if recovered > 0 || lost > 0 {
				p.mx.FECRecovered.Add(float64(recovered))
				p.mx.FECLost.Add(float64(lost))
			}
		}

		p.sendReceiverReport(s, now, nw)
	}

	mixed := p.mixer.Mix(frames)
	for _, f := range frames {
		f.Release()
	}

	if p.mx != nil {
		p.mx.FramesEmitted.Inc()
		if mixed.HasFlag(frame.FlagSilence) {
			p.mx.SilenceFrames.Inc()
		}
		p.mx.SessionsActive.Set(float64(len(sessions)))
	}
	return mixed
}

// sendReceiverReport asks s for a pending RTCP receiver report and, if
// one is due and nw is available, marshals and sends it to the peer s
// has observed traffic from.
func (p *Pipeline) sendReceiverReport(s *session.Session, now time.Time, nw iface.Network) {
	if nw == nil {
		return
	}
	report, addr, ok := s.MaybeBuildReceiverReport(now)
	if !ok {
		return
	}
	b, err := pionrtcp.Marshal([]pionrtcp.Packet{report})
	if err != nil {
		p.log.Warn().Err(err).Msg("pipeline: failed to marshal receiver report")
		return
	}
	if err := nw.Send(b, addr); err != nil {
		p.log.Warn().Err(err).Msg("pipeline: failed to send receiver report")
	}
}

// Run drives the pipeline at the sink's cadence until ctx is cancelled.
// It is the sole pacer for the pipeline goroutine: the goroutine
// suspends only inside sink.Pull. nw is threaded through to Tick for
// RTCP receiver-report delivery; pass nil to disable sending them.
func (p *Pipeline) Run(ctx context.Context, sink iface.Sink, nowFn func() time.Time, nw iface.Network) error {
	buf := make([]int16, p.cfg.Channels*p.cfg.SamplesPerFrame)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		now := nowFn()
		tick := func(now time.Time) *frame.Frame { return p.Tick(now, nw) }
		if p.profile != nil {
			tick = p.profile.WrapTick(tick)
		}
		mixed := tick(now)
		copy(buf, mixed.Samples)

		if _, err := sink.Pull(buf, now); err != nil {
			return err
		}
	}
}
