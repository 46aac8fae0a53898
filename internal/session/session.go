// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package session owns one audio stream end to end: the per-session
// input queues, FEC decoder, jitter buffer, depacketiser, watchdog,
// resampler, and RTCP receiver-report bookkeeping.
package session

import (
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	pionrtcp "github.com/pion/rtcp"
	"github.com/rocwire/rocstream/internal/depacketize"
	"github.com/rocwire/rocstream/internal/fec"
	"github.com/rocwire/rocstream/internal/frame"
	"github.com/rocwire/rocstream/internal/jitter"
	"github.com/rocwire/rocstream/internal/latency"
	"github.com/rocwire/rocstream/internal/pool"
	"github.com/rocwire/rocstream/internal/resample"
	"github.com/rocwire/rocstream/internal/rtcp"
	"github.com/rocwire/rocstream/internal/wire"
	"github.com/rs/zerolog"
)

// State is a session's lifecycle stage.
type State int

const (
	StateCreated State = iota
	StateActive
	StateBroken
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateBroken:
		return "broken"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// receiverReportInterval is the minimum gap between RTCP receiver
// reports this session will offer for sending.
const receiverReportInterval = time.Second

// Config configures one session's pipeline, derived from the receiver's
// top-level configuration.
type Config struct {
	SSRC uint32

	FEC             fec.Config
	Format          depacketize.PayloadFormat
	Channels        int
	SamplesPerFrame int
	FrameDuration   time.Duration
	FadeOnLoss      bool

	JitterCapacity int

	Latency latency.Config

	ResamplerQuality resample.Quality

	// WatchdogNoPackets is T_audio: time since the last valid audio
	// packet before the session is marked broken. Applies from the
	// moment the session is created, not just once it becomes active,
	// so a session that never receives anything still times out.
	WatchdogNoPackets time.Duration
	// WatchdogBrokenFrames is T_frames: the duration over which produced
	// frames must be interpolated above WatchdogBrokenRatio before the
	// session is marked broken. Only evaluated once active, since no
	// frames are produced before then.
	WatchdogBrokenFrames time.Duration
	WatchdogBrokenRatio  float64

	QueueCapacity int
}

// Session is the per-SSRC receiver pipeline. Its input queues are safe
// for a single producer (the network goroutine); everything else is
// owned exclusively by the pipeline goroutine.
type Session struct {
	ID  uuid.UUID
	cfg Config
	log zerolog.Logger

	mu    sync.Mutex
	state State

	sourceQ  chan *wire.Packet
	repairQ  chan *wire.Packet
	controlQ chan *wire.Packet

	decoder *fec.Decoder
	buffer  *jitter.Buffer
	depack  *depacketize.Depacketizer
	monitor *latency.Monitor
	resamp  *resample.Resampler

	createdAt         time.Time
	lastAudioAt       time.Time
	interpWindowStart time.Time
	interpCount       int
	totalCount        int

	stats        *rtcp.Stats
	reporterSSRC uint32
	peerAddr     net.Addr
	nextReportAt time.Time

	resampled *pool.FramePool // output frames for resampleFrames

	fecRecovered int
	fecLost      int
	justBroke    bool
}

// resampledFramePoolCapacity bounds how many post-resample frames a
// session can hold in flight before Get falls back to a fresh
// allocation; one Tick rarely emits more than a couple.
const resampledFramePoolCapacity = 4

// New creates a Session in state created, for the given SSRC.
func New(cfg Config, log zerolog.Logger) *Session {
	now := time.Now()
	id := uuid.New()
	s := &Session{
		ID:           id,
		cfg:          cfg,
		log:          log.With().Str("session", fmtSSRC(cfg.SSRC)).Logger(),
		state:        StateCreated,
		sourceQ:      make(chan *wire.Packet, cfg.QueueCapacity),
		repairQ:      make(chan *wire.Packet, cfg.QueueCapacity),
		controlQ:     make(chan *wire.Packet, cfg.QueueCapacity),
		decoder:      fec.NewDecoder(cfg.FEC, log),
		buffer:       jitter.NewBuffer(cfg.JitterCapacity, cfg.FrameDuration),
		depack:       depacketize.New(cfg.Format, cfg.SamplesPerFrame, cfg.FrameDuration, cfg.FadeOnLoss),
		monitor:      latency.New(cfg.Latency),
		resamp:       resample.New(cfg.Channels, cfg.ResamplerQuality),
		createdAt:    now,
		lastAudioAt:  now,
		stats:        rtcp.NewStats(cfg.SSRC, uint32(cfg.Format.SampleRate)),
		reporterSSRC: binary.BigEndian.Uint32(id[:4]),
		resampled:    pool.NewFramePool(resampledFramePoolCapacity, cfg.SamplesPerFrame*cfg.Channels),
	}
	return s
}

func fmtSSRC(ssrc uint32) string {
	const hex = "0123456789abcdef"
	b := [8]byte{}
	for i := 7; i >= 0; i-- {
		b[i] = hex[ssrc&0xf]
		ssrc >>= 4
	}
	return string(b[:])
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	if st == StateBroken && prev != StateBroken {
		s.justBroke = true
	}
	s.mu.Unlock()
	if prev != st {
		s.log.Info().Str("from", prev.String()).Str("to", st.String()).Msg("session state transition")
	}
}

// MarkActive transitions a created session to active. The pipeline
// calls this the first time its jitter buffer reports ready (it has
// reached its configured target fill); it is a no-op outside
// StateCreated.
func (s *Session) MarkActive() {
	s.mu.Lock()
	created := s.state == StateCreated
	s.mu.Unlock()
	if created {
		s.setState(StateActive)
	}
}

// Enqueue is called by the network goroutine: it pushes source/repair
// packets to the corresponding queue. It never blocks: a full queue
// drops the packet and releases it.
func (s *Session) Enqueue(pkt *wire.Packet) {
	if s.State() == StateBroken || s.State() == StateDestroyed {
		pkt.Release()
		return
	}
	var q chan *wire.Packet
	switch pkt.Kind {
	case wire.KindSource:
		q = s.sourceQ
	case wire.KindRepair:
		q = s.repairQ
	case wire.KindControl:
		q = s.controlQ
	default:
		pkt.Release()
		return
	}
	select {
	case q <- pkt:
	default:
		pkt.Release()
	}
}

// Drain is called once per pipeline pull: it admits every queued source
// and repair packet into the FEC decoder and jitter buffer, and returns
// any control packets for the caller to hand to the RTCP input.
func (s *Session) Drain() (control []*wire.Packet) {
	for {
		select {
		case pkt := <-s.repairQ:
			s.admit(pkt)
		default:
			goto drainSource
		}
	}
drainSource:
	for {
		select {
		case pkt := <-s.sourceQ:
			s.admit(pkt)
		default:
			goto drainControl
		}
	}
drainControl:
	for {
		select {
		case pkt := <-s.controlQ:
			control = append(control, pkt)
		default:
			return control
		}
	}
}

func (s *Session) admit(pkt *wire.Packet) {
	s.lastAudioAt = pkt.Arrival
	if pkt.Kind == wire.KindSource {
		s.stats.Observe(pkt, pkt.Arrival)
		s.notePeer(pkt.PeerAddr)
	}
	outcome := s.decoder.Admit(pkt)
	for _, rec := range outcome.Recovered {
		if rec.Flag&wire.FlagReconstructed != 0 {
			s.fecRecovered++
		}
		s.buffer.Insert(rec)
	}
	// The jitter buffer only tracks sequence numbers it has been told
	// about via Insert; a block-level loss is surfaced when Advance
	// reaches that sequence and finds no slot. Still counted here so
	// the FEC-lost metric reflects what the decoder gave up on, not
	// just what the buffer later notices missing.
	s.fecLost += len(outcome.Lost)
	pkt.Release()
}

// DrainFECCounts returns the count of FEC-recovered source packets and
// decoder-reported loss since the last call, resetting both to zero. Used
// by the pipeline to feed a monotonic counter without re-adding totals
// already reported on a prior tick.
func (s *Session) DrainFECCounts() (recovered, lost int) {
	recovered, lost = s.fecRecovered, s.fecLost
	s.fecRecovered, s.fecLost = 0, 0
	return
}

// ConsumeJustBroke reports whether this session transitioned to broken
// since the last call, clearing the flag. Used by the pipeline to drive
// a one-shot counter rather than re-counting an already-broken session
// on every tick.
func (s *Session) ConsumeJustBroke() bool {
	s.mu.Lock()
	v := s.justBroke
	s.justBroke = false
	s.mu.Unlock()
	return v
}

func (s *Session) notePeer(addr net.Addr) {
	if addr != nil {
		s.peerAddr = addr
	}
}

// ObserveControl feeds one received control packet's sender-report
// content into this session's RTCP stats and notes the peer address to
// reply to, then releases pkt.
func (s *Session) ObserveControl(pkt *wire.Packet, now time.Time) {
	s.notePeer(pkt.PeerAddr)
	pkts, err := pionrtcp.Unmarshal(pkt.Payload)
	if err == nil {
		for _, p := range pkts {
			if sr, ok := p.(*pionrtcp.SenderReport); ok {
				s.stats.ObserveSenderReport(sr, now)
			}
		}
	}
	pkt.Release()
}

// MaybeBuildReceiverReport returns an RTCP receiver report for this
// session if enough time has passed since the last one and the peer
// address to send it to is known. ok is false when either condition
// isn't met, in which case the caller sends nothing this tick.
func (s *Session) MaybeBuildReceiverReport(now time.Time) (report *pionrtcp.ReceiverReport, addr net.Addr, ok bool) {
	if s.peerAddr == nil {
		return nil, nil, false
	}
	if !s.nextReportAt.IsZero() && now.Before(s.nextReportAt) {
		return nil, nil, false
	}
	s.nextReportAt = now.Add(receiverReportInterval)
	return s.stats.BuildReceiverReport(s.reporterSSRC), s.peerAddr, true
}

// PullFrame advances the jitter buffer by one slot, depacketizes it,
// resamples it, and returns the resulting frames (zero or more, since
// the depacketiser may need several packets per frame or produce
// several frames from one packet). The caller (the pipeline) is
// responsible for only calling this once the buffer reports ready.
func (s *Session) PullFrame(now time.Time) []*frame.Frame {
	slot := s.buffer.Advance()
	frames := s.depack.Push(slot)
	s.accountFrames(now, frames)
	return s.resampleFrames(frames)
}

func (s *Session) accountFrames(now time.Time, frames []*frame.Frame) {
	if s.interpWindowStart.IsZero() {
		s.interpWindowStart = now
	}
	for _, f := range frames {
		s.totalCount++
		if f.HasFlag(frame.FlagInterpolated) {
			s.interpCount++
		}
	}
}

// resampleFrames feeds each depacketized frame's samples into the
// resampler and, once enough history has accumulated, pulls back an
// equal-length frame at the resampler's current scaling factor. Frames
// held back for warm-up are dropped rather than delivered early, keeping
// output strictly in capture-time order.
func (s *Session) resampleFrames(frames []*frame.Frame) []*frame.Frame {
	out := make([]*frame.Frame, 0, len(frames))
	for _, f := range frames {
		s.resamp.Push(f.Samples)
		channels, duration, captureTime, flag := f.Channels, f.Duration, f.CaptureTime, f.Flag
		f.Release()
		if !s.resamp.Available() {
			continue
		}
		nf := s.resampled.Get()
		nf.Channels = channels
		nf.Duration = duration
		nf.CaptureTime = captureTime
		nf.Flag = flag
		s.resamp.Pull(nf.Samples)
		if s.resamp.Scale() != 1.0 {
			nf.Flag |= frame.FlagResampled
		}
		out = append(out, nf)
	}
	return out
}

// SetScale applies the latency monitor's latest scaling factor to this
// session's resampler.
func (s *Session) SetScale(scale float64) {
	s.resamp.SetScale(scale)
}

// Monitor exposes the session's latency monitor to the pipeline.
func (s *Session) Monitor() *latency.Monitor {
	return s.monitor
}

// Buffer exposes the jitter buffer to the pipeline, which consults its
// readiness before advancing it and marking the session active.
func (s *Session) Buffer() *jitter.Buffer {
	return s.buffer
}

// CheckWatchdog evaluates both thresholds at the given pipeline "now"
// and transitions the session to broken if either fires. The
// no-audio-packets check runs from creation onward so a session that is
// never primed still times out; the interpolated-frames check only
// makes sense once the session is producing frames at all.
func (s *Session) CheckWatchdog(now time.Time) {
	state := s.State()
	if state != StateCreated && state != StateActive {
		return
	}
	if now.Sub(s.lastAudioAt) > s.cfg.WatchdogNoPackets {
		s.log.Warn().Msg("watchdog: no audio packets, marking session broken")
		s.setState(StateBroken)
		return
	}
	if state != StateActive {
		return
	}
	if !s.interpWindowStart.IsZero() && now.Sub(s.interpWindowStart) > s.cfg.WatchdogBrokenFrames {
		if s.totalCount > 0 {
			ratio := float64(s.interpCount) / float64(s.totalCount)
			if ratio > s.cfg.WatchdogBrokenRatio {
				s.log.Warn().Float64("ratio", ratio).Msg("watchdog: too many interpolated frames, marking session broken")
				s.setState(StateBroken)
			}
		}
		s.interpWindowStart = now
		s.interpCount = 0
		s.totalCount = 0
	}
}

// Destroy releases all pending resources: draining queues back to the
// pool and resetting the jitter buffer.
func (s *Session) Destroy() {
	s.setState(StateDestroyed)
	for {
		select {
		case pkt := <-s.sourceQ:
			pkt.Release()
		case pkt := <-s.repairQ:
			pkt.Release()
		case pkt := <-s.controlQ:
			pkt.Release()
		default:
			s.buffer.Reset()
			return
		}
	}
}
