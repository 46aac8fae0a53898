// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package pool

import (
	"sync"

	"github.com/rocwire/rocstream/internal/wire"
)

// PacketPool recycles *wire.Packet values and their payload buffers. Get
// never blocks: when exhausted it evicts the single oldest packet handed
// out so far via the evict callback (typically the jitter buffer's
// oldest held slot) rather than block or fail.
type PacketPool struct {
	mu       sync.Mutex
	free     []*wire.Packet
	capacity int
	payload  int
}

// NewPacketPool creates capacity packets, each with a payload buffer of
// at least payloadSize bytes pre-allocated.
func NewPacketPool(capacity, payloadSize int) *PacketPool {
	p := &PacketPool{
		free:     make([]*wire.Packet, 0, capacity),
		capacity: capacity,
		payload:  payloadSize,
	}
	for i := 0; i < capacity; i++ {
		pkt := wire.NewPacket()
		pkt.Payload = make([]byte, 0, payloadSize)
		p.free = append(p.free, pkt)
	}
	return p
}

// Get returns a packet ready for reuse, with release wired back to this
// pool. If the pool is exhausted, evict (if non-nil) is asked to free up
// a slot; if it cannot, a fresh packet is allocated so the RT path never
// blocks or fails.
func (p *PacketPool) Get(evict func() *wire.Packet) *wire.Packet {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		if evict != nil {
			if victim := evict(); victim != nil {
				victim.Reset()
				victim.SetPool(p.release)
				return victim
			}
		}
		pkt := wire.NewPacket()
		pkt.Payload = make([]byte, 0, p.payload)
		pkt.SetPool(p.release)
		return pkt
	}
	pkt := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()

	pkt.Reset()
	pkt.SetPool(p.release)
	return pkt
}

func (p *PacketPool) release(pkt *wire.Packet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.capacity {
		return
	}
	p.free = append(p.free, pkt)
}

// Len reports the number of packets currently available.
func (p *PacketPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
