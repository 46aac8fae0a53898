// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package router implements the parser/router stage: identifies the
// SSRC of each parsed packet, creates sessions on first sight, and
// demultiplexes into per-session queues.
package router

import (
	"sync"
	"time"

	"github.com/rocwire/rocstream/internal/ratelimit"
	"github.com/rocwire/rocstream/internal/session"
	"github.com/rocwire/rocstream/internal/wire"
	"github.com/rs/zerolog"
)

// SessionFactory builds a new session.Config for a newly-seen SSRC. The
// router calls it once per new SSRC so callers can tailor FEC/format
// settings per stream if needed (most deployments return the same
// template every time).
type SessionFactory func(ssrc uint32) session.Config

// Router owns the SSRC -> Session table. Session lookup is read-mostly:
// readers (the network goroutine routing packets) never block each
// other; only session creation/destruction takes the exclusive lock
// briefly.
type Router struct {
	mu       sync.RWMutex
	sessions map[uint32]*session.Session

	maxSessions int
	factory     SessionFactory
	log         zerolog.Logger

	capLimiter *ratelimit.Limiter

	malformedCount int64
	droppedCount   int64
}

// New creates a Router admitting at most maxSessions concurrent SSRCs.
func New(maxSessions int, factory SessionFactory, log zerolog.Logger) *Router {
	return &Router{
		sessions:    make(map[uint32]*session.Session),
		maxSessions: maxSessions,
		factory:     factory,
		log:         log.With().Str("component", "router").Logger(),
		capLimiter:  ratelimit.New(time.Second, 1, nil),
	}
}

// Ingest parses datagram and routes the result. Malformed datagrams are
// dropped and counted.
func (r *Router) Ingest(datagram []byte, arrival time.Time, pkt *wire.Packet) {
	if err := wire.Parse(datagram, arrival, pkt); err != nil {
		r.malformedCount++
		return
	}
	r.Route(pkt)
}

// Route demultiplexes a parsed packet to its session's queue, creating a
// new session on first unknown SSRC carrying audio (source or repair).
func (r *Router) Route(pkt *wire.Packet) {
	r.mu.RLock()
	sess, ok := r.sessions[pkt.SSRC]
	r.mu.RUnlock()

	if !ok {
		if pkt.Kind == wire.KindControl {
			// Control packets never create a session on their own; a
			// receiver report with no matching source stream is
			// meaningless.
			pkt.Release()
			return
		}
		sess, ok = r.createSession(pkt.SSRC)
		if !ok {
			r.droppedCount++
			if r.capLimiter.Allow() {
				r.log.Warn().Uint32("ssrc", pkt.SSRC).Msg("router: session cap reached, dropping packet")
			}
			pkt.Release()
			return
		}
	}

	sess.Enqueue(pkt)
}

func (r *Router) createSession(ssrc uint32) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[ssrc]; ok {
		return sess, true
	}
	if len(r.sessions) >= r.maxSessions {
		return nil, false
	}
	sess := session.New(r.factory(ssrc), r.log)
	r.sessions[ssrc] = sess
	return sess, true
}

// Sessions returns a snapshot slice of every currently-tracked session.
func (r *Router) Sessions() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Remove destroys and forgets the session for ssrc: once this returns,
// the router no longer holds the SSRC, so the next routed packet for it
// creates a fresh session rather than reusing the destroyed one.
func (r *Router) Remove(ssrc uint32) {
	r.mu.Lock()
	sess, ok := r.sessions[ssrc]
	if ok {
		delete(r.sessions, ssrc)
	}
	r.mu.Unlock()
	if ok {
		sess.Destroy()
	}
}

// MalformedCount returns the number of datagrams dropped for a parse
// error.
func (r *Router) MalformedCount() int64 { return r.malformedCount }

// DroppedCount returns the number of packets dropped because the session
// table was at its cap.
func (r *Router) DroppedCount() int64 { return r.droppedCount }
