// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package iface declares the narrow external collaborator boundaries
// the core pipeline consumes but does not implement: the network, the
// sink, and the source.
package iface

import (
	"net"
	"time"
)

// Datagram is one inbound unit from the network collaborator: raw bytes,
// the receiver's monotonic arrival time, and the peer that sent it.
type Datagram struct {
	Bytes     []byte
	Arrival   time.Time
	PeerAddr  net.Addr
}

// Network is the network collaborator: a source of datagrams tagged with
// arrival timestamps, and a sink for outgoing ones. No reliability, no
// ordering.
type Network interface {
	// Recv blocks until a datagram is available or ctx-like cancellation
	// occurs; implementations are expected to never block on the
	// pipeline's behalf, and to do no audio work of their own.
	Recv() (Datagram, error)
	Send(b []byte, dest net.Addr) error
}

// Sink is the audio device boundary. Pull is the pipeline's sole pacer:
// it blocks until the device wants another buffer's worth of frames.
type Sink interface {
	// Pull fills buf (channels-interleaved int16) and returns how many
	// samples per channel were actually filled. nominalTS is the sink's
	// notion of "now" in the stream-timestamp domain, used by the
	// latency monitor and watchdog.
	Pull(buf []int16, nominalTS time.Time) (filled int, err error)
}

// Source is the sender-side audio device boundary.
type Source interface {
	// Push blocks until buf has been consumed (or buffered) by the
	// source and returns how many samples per channel were consumed.
	Push(buf []int16) (consumed int, err error)
}
