// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package jitter

import (
	"testing"
	"time"

	"github.com/rocwire/rocstream/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFrameDuration = 20 * time.Millisecond

func pkt(seq uint16) *wire.Packet {
	p := wire.NewPacket()
	p.SequenceNumber = seq
	return p
}

func pktAt(seq uint16, arrival time.Time) *wire.Packet {
	p := pkt(seq)
	p.Arrival = arrival
	return p
}

func TestReorderWithinWindow(t *testing.T) {
	b := NewBuffer(16, testFrameDuration)
	b.Insert(pkt(10))
	b.Insert(pkt(12))
	b.Insert(pkt(11))

	s := b.Advance()
	assert.Equal(t, uint16(10), s.Seq)
	assert.NotNil(t, s.Packet)

	s = b.Advance()
	assert.Equal(t, uint16(11), s.Seq)
	assert.NotNil(t, s.Packet)

	s = b.Advance()
	assert.Equal(t, uint16(12), s.Seq)
	assert.NotNil(t, s.Packet)
}

func TestAdvanceEmitsLossToken(t *testing.T) {
	b := NewBuffer(16, testFrameDuration)
	b.Insert(pkt(5))
	b.Insert(pkt(7))

	s := b.Advance() // 5
	assert.NotNil(t, s.Packet)

	s = b.Advance() // 6 missing
	assert.Nil(t, s.Packet)
	assert.Equal(t, uint16(6), s.Seq)

	s = b.Advance() // 7
	assert.NotNil(t, s.Packet)
}

func TestInsertDropsLatePacket(t *testing.T) {
	b := NewBuffer(16, testFrameDuration)
	b.Insert(pkt(10))
	b.Advance() // cursor now at 11

	b.Insert(pkt(9)) // late, dropped
	assert.Equal(t, 0, b.Len())
}

func TestInsertEvictsOldestWhenFull(t *testing.T) {
	b := NewBuffer(2, testFrameDuration)
	b.Insert(pkt(1))
	b.Insert(pkt(2))
	b.Insert(pkt(3)) // evicts 1

	assert.Equal(t, 2, b.Len())
	s := b.Advance()
	assert.Equal(t, uint16(1), s.Seq)
	assert.Nil(t, s.Packet) // 1 was evicted
}

func TestMonotonicCursorAdvance(t *testing.T) {
	b := NewBuffer(16, testFrameDuration)
	b.Insert(pkt(65534))
	b.Insert(pkt(65535))
	b.Insert(pkt(0))

	var seqs []uint16
	for i := 0; i < 3; i++ {
		seqs = append(seqs, b.Advance().Seq)
	}
	assert.Equal(t, []uint16{65534, 65535, 0}, seqs)
}

func TestPeekNotReadyBeforePriming(t *testing.T) {
	b := NewBuffer(16, testFrameDuration)
	_, ready := b.Peek(time.Now(), 100*time.Millisecond)
	assert.False(t, ready)
}

func TestPeekNotReadyBeforeTargetFill(t *testing.T) {
	base := time.Now()
	b := NewBuffer(16, testFrameDuration)
	b.Insert(pktAt(1, base))

	target := 100 * time.Millisecond
	_, ready := b.Peek(base.Add(50*time.Millisecond), target)
	assert.False(t, ready)
}

func TestPeekReadyOnceTargetFillReached(t *testing.T) {
	base := time.Now()
	b := NewBuffer(16, testFrameDuration)
	b.Insert(pktAt(1, base))

	target := 100 * time.Millisecond
	pkt, ready := b.Peek(base.Add(target), target)
	require.True(t, ready)
	require.NotNil(t, pkt)
	assert.Equal(t, uint16(1), pkt.SequenceNumber)
}

func TestPeekDeadlineAdvancesWithAdvanceNotArrival(t *testing.T) {
	base := time.Now()
	b := NewBuffer(16, testFrameDuration)
	b.Insert(pktAt(1, base))

	target := 100 * time.Millisecond
	b.Advance() // cursor -> 2, deadline -> base+frameDuration

	// Even with no packet for seq 2, the deadline keeps advancing by
	// frame duration rather than stalling on the missing arrival.
	_, ready := b.Peek(base.Add(target).Add(testFrameDuration), target)
	assert.True(t, ready)
}
