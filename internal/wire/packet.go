// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package wire

import (
	"net"
	"sync/atomic"
	"time"
)

// Kind identifies which of the three protocols a Packet carries.
type Kind uint8

const (
	KindSource Kind = iota
	KindRepair
	KindControl
)

// Flag is a bitset of reconstruction/loss annotations carried alongside a
// Packet once it leaves the FEC decoder.
type Flag uint8

const (
	// FlagReconstructed marks a source packet that was recovered by the
	// FEC decoder rather than received off the wire.
	FlagReconstructed Flag = 1 << iota
	// FlagLoss marks a sequence-number slot with no packet and no
	// reconstruction available; downstream treats it as silence.
	FlagLoss
)

// FECCoords locates a source or repair packet inside its FEC block.
// Zero value means "no FEC" (fec_scheme = none).
type FECCoords struct {
	SBN   uint16
	Index uint16
	K     uint16
	M     uint16
}

// Packet is a reference-counted record carrying one RTP/RTCP/FEC datagram
// plus the receiver-side bookkeeping needed to route and reorder it.
//
// Packets are drawn from and returned to a pool (internal/pool); Release
// must be called exactly once by whichever stage currently owns the
// packet when it is done with it.
type Packet struct {
	Kind Kind
	Flag Flag

	SSRC           uint32
	SequenceNumber uint16
	Timestamp      uint32
	Marker         bool
	PayloadType    uint8

	FEC FECCoords

	// repairScheme is set by Parse for KindRepair packets; read via
	// RepairScheme by internal/fec when it selects a Scheme.
	repairScheme SchemeID

	// Payload is the packet's audio/control payload. It references a
	// pooled buffer; callers must not retain it past Release.
	Payload []byte

	// Arrival is the receiver's monotonic arrival time, stamped by the
	// network collaborator at ingress.
	Arrival time.Time

	// PeerAddr is the datagram's source address, stamped by the network
	// collaborator at ingress. Carried so a session can address an RTCP
	// receiver report back to whoever it heard from.
	PeerAddr net.Addr

	refs    int32
	release func(*Packet)
}

// NewPacket returns an empty standalone packet holding one reference and
// no backing pool; used for reconstructed packets and in tests. Release
// only counts references down: there is no pool to return it to.
func NewPacket() *Packet {
	return &Packet{refs: 1}
}

// Retain increments the reference count. Every holder of a *Packet beyond
// its creator must Retain before storing it and Release when done.
func (p *Packet) Retain() {
	atomic.AddInt32(&p.refs, 1)
}

// Release decrements the reference count, returning the packet (and its
// backing buffer) to its pool once the count reaches zero.
func (p *Packet) Release() {
	if atomic.AddInt32(&p.refs, -1) == 0 && p.release != nil {
		p.release(p)
	}
}

// SetPool attaches the callback invoked when the last reference is
// released. Used by internal/pool when handing out a packet.
func (p *Packet) SetPool(release func(*Packet)) {
	p.refs = 1
	p.release = release
}

// Reset clears a packet for reuse by a pool. Payload slice capacity is
// kept so the caller can refill it without a new allocation.
func (p *Packet) Reset() {
	p.Kind = KindSource
	p.Flag = 0
	p.SSRC = 0
	p.SequenceNumber = 0
	p.Timestamp = 0
	p.Marker = false
	p.PayloadType = 0
	p.FEC = FECCoords{}
	p.repairScheme = 0
	p.Payload = p.Payload[:0]
	p.Arrival = time.Time{}
	p.PeerAddr = nil
}

// RepairScheme returns the FEC scheme id carried by a repair packet.
// Meaningless for other kinds.
func (p *Packet) RepairScheme() SchemeID {
	return p.repairScheme
}

// SetRepairScheme sets the FEC scheme id on a repair packet. Used by the
// sender-side encoder boundary and by tests that build repair packets
// without going through Parse.
func (p *Packet) SetRepairScheme(id SchemeID) {
	p.repairScheme = id
}

// Clone makes an independent copy of p, including a fresh copy of its
// payload bytes, detached from any pool. The FEC decoder does not use it:
// it keeps the packets it holds with Retain.
func (p *Packet) Clone() *Packet {
	c := &Packet{
		Kind:           p.Kind,
		Flag:           p.Flag,
		SSRC:           p.SSRC,
		SequenceNumber: p.SequenceNumber,
		Timestamp:      p.Timestamp,
		Marker:         p.Marker,
		PayloadType:    p.PayloadType,
		FEC:            p.FEC,
		Arrival:        p.Arrival,
		PeerAddr:       p.PeerAddr,
		repairScheme:   p.repairScheme,
		refs:           1,
	}
	c.Payload = append([]byte(nil), p.Payload...)
	return c
}
