// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package jitter implements the reorder/jitter buffer: a bounded
// structure keyed by signed sequence-number distance that accepts
// packets in any order and releases them in monotonically increasing
// sequence order once enough has accumulated to absorb the arrival
// jitter it was sized for.
package jitter

import (
	"time"

	"github.com/rocwire/rocstream/internal/wire"
)

// Slot is what Advance releases for one sequence-number position: either
// a packet or nothing (a loss token).
type Slot struct {
	Packet *wire.Packet // nil means loss
	Seq    uint16
}

// Buffer is the bounded priority structure behind one session's
// playout queue. Not safe for concurrent use; owned exclusively by one
// session.
//
// Before its first packet, a Buffer is unprimed: Peek never reports
// ready, regardless of target, since there is nothing yet to measure a
// fill level against. Once primed, readiness is timing-based rather
// than count-based: a play-out deadline starts at the first packet's
// arrival time plus the target latency, and advances by one frame
// duration on every Advance, so a run of losses still drains at the
// frame rate instead of stalling.
type Buffer struct {
	capacity      int
	frameDuration time.Duration

	slots   map[uint16]*wire.Packet
	cursor  uint16
	started bool

	primed   bool
	deadline time.Time
}

// NewBuffer creates a buffer holding at most capacity packets, sized
// for frame durations of frameDuration (used to advance the readiness
// deadline on every Advance).
func NewBuffer(capacity int, frameDuration time.Duration) *Buffer {
	return &Buffer{
		capacity:      capacity,
		frameDuration: frameDuration,
		slots:         make(map[uint16]*wire.Packet, capacity),
	}
}

// Insert admits a source packet (original or FEC-reconstructed). Packets
// older than the read cursor are dropped as late. When the buffer is
// full, the oldest held packet is evicted if the new one is newer,
// otherwise the new packet itself is dropped.
//
// Insert takes ownership of one reference to pkt; it releases it if the
// packet is dropped rather than stored.
func (b *Buffer) Insert(pkt *wire.Packet) {
	if !b.started {
		b.cursor = pkt.SequenceNumber
		b.started = true
	}
	if !b.primed {
		b.primed = true
		b.deadline = pkt.Arrival
	}

	if wire.SeqLess(pkt.SequenceNumber, b.cursor) {
		pkt.Release()
		return
	}

	if _, exists := b.slots[pkt.SequenceNumber]; exists {
		pkt.Release()
		return
	}

	if len(b.slots) >= b.capacity {
		oldestSeq, oldestFound := b.oldest()
		if oldestFound && wire.SeqLess(oldestSeq, pkt.SequenceNumber) {
			b.slots[oldestSeq].Release()
			delete(b.slots, oldestSeq)
		} else {
			pkt.Release()
			return
		}
	}

	b.slots[pkt.SequenceNumber] = pkt
}

func (b *Buffer) oldest() (uint16, bool) {
	found := false
	var oldest uint16
	for seq := range b.slots {
		if !found || wire.SeqLess(seq, oldest) {
			oldest = seq
			found = true
		}
	}
	return oldest, found
}

// Cursor returns the sequence number that the next Advance will release.
func (b *Buffer) Cursor() uint16 {
	return b.cursor
}

// Peek returns the packet at the read cursor, if any, without advancing,
// and whether the buffer is ready to deliver it: unprimed buffers are
// never ready, and a primed buffer becomes ready once now has reached
// its play-out deadline (first-packet arrival plus target).
func (b *Buffer) Peek(now time.Time, target time.Duration) (*wire.Packet, bool) {
	pkt := b.slots[b.cursor]
	if !b.primed {
		return pkt, false
	}
	return pkt, !now.Before(b.deadline.Add(target))
}

// Advance moves the read cursor forward by one sequence number,
// releasing the packet at that slot (transferring ownership to the
// caller) or reporting a loss token when the slot is empty. The
// play-out deadline advances by one frame duration regardless of
// whether the slot held a packet, so a run of losses keeps draining at
// the frame rate instead of stalling forever.
func (b *Buffer) Advance() Slot {
	seq := b.cursor
	pkt, ok := b.slots[seq]
	if ok {
		delete(b.slots, seq)
	}
	b.cursor = seq + 1
	if b.primed {
		b.deadline = b.deadline.Add(b.frameDuration)
	}
	return Slot{Packet: pkt, Seq: seq}
}

// Len reports the number of packets currently held.
func (b *Buffer) Len() int {
	return len(b.slots)
}

// Reset releases every held packet, clears the cursor, and unprimes the
// buffer. Used on session teardown.
func (b *Buffer) Reset() {
	for _, pkt := range b.slots {
		pkt.Release()
	}
	b.slots = make(map[uint16]*wire.Packet, b.capacity)
	b.started = false
	b.primed = false
	b.deadline = time.Time{}
}
