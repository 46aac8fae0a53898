// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package fec

import (
	"github.com/rocwire/rocstream/internal/wire"
	"github.com/rs/zerolog"
)

// Config configures a Decoder: the FEC scheme, block shape (K source +
// M repair symbols), and window size.
type Config struct {
	Scheme wire.SchemeID
	K      int
	M      int
	// Window is the maximum number of concurrently-tracked source
	// blocks, typically 4-8.
	Window int
	// MaxSBNJump restarts the window when an incoming SBN is further
	// ahead than this.
	MaxSBNJump int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 8
	}
	if c.MaxSBNJump <= 0 {
		c.MaxSBNJump = 64
	}
	return c
}

// Outcome is what the decoder produced for one admitted packet: any
// newly-recoverable source packets from a block that just crossed the K
// threshold, plus loss markers for source slots the decoder gave up on
// while flushing.
type Outcome struct {
	Recovered []*wire.Packet
	Lost      []LostSlot
}

// LostSlot identifies a source sequence number the decoder could not
// fill before flushing its block.
type LostSlot struct {
	SSRC           uint32
	SequenceNumber uint16
}

type block struct {
	sbn       uint16
	baseSeq   uint16
	k, m      int
	scheme    Scheme
	schemeID  wire.SchemeID
	have      []bool
	sources   []*wire.Packet // index 0..k-1, nil until received/recovered
	solved    bool
	flushedAt int // index up to which (exclusive) the consumer has advanced
}

func newBlock(sbn uint16, cfg Config, schemeID wire.SchemeID) *block {
	b := &block{
		sbn:      sbn,
		k:        cfg.K,
		m:        cfg.M,
		schemeID: schemeID,
		scheme:   NewScheme(schemeID),
		have:     make([]bool, cfg.K+cfg.M),
		sources:  make([]*wire.Packet, cfg.K),
	}
	b.scheme.Init(b.k, b.m)
	return b
}

func (b *block) receivedCount() int {
	n := 0
	for _, ok := range b.have {
		if ok {
			n++
		}
	}
	return n
}

// Decoder owns a sliding window of at most Config.Window consecutive
// source blocks, admitting source and repair packets and reconstructing
// missing source slots once a block reaches its K-of-K+M threshold.
//
// Decoder is not safe for concurrent use; it is owned exclusively by one
// session's pipeline goroutine.
type Decoder struct {
	cfg    Config
	blocks map[uint16]*block
	order  []uint16 // oldest-first SBNs currently tracked
	ssrc   uint32
	seen   bool
	log    zerolog.Logger
}

// NewDecoder builds a Decoder for one session's FEC stream.
func NewDecoder(cfg Config, log zerolog.Logger) *Decoder {
	return &Decoder{
		cfg:    cfg.withDefaults(),
		blocks: make(map[uint16]*block),
		log:    log.With().Str("component", "fec.decoder").Logger(),
	}
}

// Admit feeds one source or repair packet into the decoder's window and
// returns whatever the admission makes available: a pass-through of a
// plain source packet, or block(s) that just completed.
//
// Admit does not gate delivery: a source packet is returned immediately
// in addition to being recorded, unless its slot was already filled (by
// an earlier copy or by a reconstruction), so each source slot is
// delivered once whatever the arrival order. The decoder only inserts
// reconstructions; it never withholds the first copy of a packet.
func (d *Decoder) Admit(pkt *wire.Packet) Outcome {
	if d.cfg.Scheme == wire.SchemeNone || pkt.FEC == (wire.FECCoords{}) {
		// No FEC block to track: source packets still pass straight through.
		if pkt.Kind == wire.KindSource {
			return Outcome{Recovered: []*wire.Packet{passThrough(pkt)}}
		}
		return Outcome{}
	}

	sbn := pkt.FEC.SBN
	if !d.seen {
		d.seen = true
		d.ssrc = pkt.SSRC
	} else if d.sbnJump(sbn) {
		d.log.Warn().Uint16("sbn", sbn).Msg("fec: sbn jump exceeds max, restarting window")
		d.reset()
	}

	if len(d.order) > 0 && seqBehindWindow(d.order[0], sbn) {
		// Older than the oldest tracked block: the window never slides
		// back, so this packet is simply too late to help.
		return Outcome{}
	}

	b, slid := d.admitBlock(sbn, pkt)
	if b == nil {
		return Outcome{Lost: slid}
	}

	index := int(pkt.FEC.Index)
	if pkt.Kind == wire.KindRepair {
		index = d.cfg.K + int(pkt.FEC.Index)
	}
	if pkt.Kind == wire.KindSource {
		// A block opened by a repair packet learns its base sequence
		// number from the first source packet it sees.
		b.baseSeq = pkt.SequenceNumber - uint16(pkt.FEC.Index)
	}
	alreadyFilled := pkt.Kind == wire.KindSource && index >= 0 && index < len(b.sources) && b.sources[index] != nil
	if index >= 0 && index < len(b.have) && !b.have[index] {
		b.have[index] = true
		b.scheme.Feed(index, pkt.Payload)
		if pkt.Kind == wire.KindSource && !alreadyFilled {
			pkt.Retain()
			b.sources[index] = pkt
		}
	}

	out := Outcome{Lost: slid}
	if pkt.Kind == wire.KindSource && !alreadyFilled {
		out.Recovered = append(out.Recovered, passThrough(pkt))
	}

	if !b.solved && b.receivedCount() >= b.k {
		recovered, lost := d.solve(b)
		out.Recovered = append(out.Recovered, recovered...)
		out.Lost = append(out.Lost, lost...)
	}

	return out
}

// passThrough returns pkt itself (already Retain()'d by the block above
// if it was a source packet tracked there); callers own one reference.
func passThrough(pkt *wire.Packet) *wire.Packet {
	pkt.Retain()
	return pkt
}

func (d *Decoder) admitBlock(sbn uint16, pkt *wire.Packet) (*block, []LostSlot) {
	if b, ok := d.blocks[sbn]; ok {
		return b, nil
	}

	k, m := d.cfg.K, d.cfg.M
	if pkt.FEC.K > 0 {
		k, m = int(pkt.FEC.K), int(pkt.FEC.M)
	}
	schemeID := d.cfg.Scheme
	if pkt.Kind == wire.KindRepair {
		schemeID = pkt.RepairScheme()
	}

	b := newBlock(sbn, Config{K: k, M: m}, schemeID)
	if pkt.Kind == wire.KindSource {
		b.baseSeq = pkt.SequenceNumber - uint16(pkt.FEC.Index)
	}
	d.blocks[sbn] = b
	d.order = append(d.order, sbn)

	var lost []LostSlot
	for len(d.order) > d.cfg.Window {
		oldest := d.order[0]
		d.order = d.order[1:]
		lost = append(lost, d.flush(d.blocks[oldest])...)
		delete(d.blocks, oldest)
	}
	return b, lost
}

func (d *Decoder) solve(b *block) ([]*wire.Packet, []LostSlot) {
	recovered, err := b.scheme.Solve()
	if err != nil {
		return nil, nil
	}
	b.solved = true

	var out []*wire.Packet
	var lost []LostSlot
	for idx := 0; idx < b.k; idx++ {
		if b.sources[idx] != nil {
			continue
		}
		symbol, ok := recovered[idx]
		if !ok || symbol == nil {
			lost = append(lost, LostSlot{SSRC: d.ssrc, SequenceNumber: b.baseSeq + uint16(idx)})
			continue
		}
		rp := wire.NewPacket()
		rp.Kind = wire.KindSource
		rp.Flag = wire.FlagReconstructed
		rp.SSRC = d.ssrc
		rp.SequenceNumber = b.baseSeq + uint16(idx)
		rp.FEC = wire.FECCoords{SBN: b.sbn, Index: uint16(idx), K: uint16(b.k), M: uint16(b.m)}
		rp.Payload = symbol
		b.sources[idx] = rp
		out = append(out, passThrough(rp))
	}
	return out, lost
}

// Flush releases a block addressed by sbn once the consumer has advanced
// past every one of its sequence numbers. Any source slots still
// missing are reported as loss.
func (d *Decoder) Flush(sbn uint16) []LostSlot {
	b, ok := d.blocks[sbn]
	if !ok {
		return nil
	}
	lost := d.flush(b)
	delete(d.blocks, sbn)
	for i, s := range d.order {
		if s == sbn {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return lost
}

func (d *Decoder) flush(b *block) []LostSlot {
	if b == nil {
		return nil
	}
	var lost []LostSlot
	for idx := 0; idx < b.k; idx++ {
		if b.sources[idx] == nil {
			lost = append(lost, LostSlot{SSRC: d.ssrc, SequenceNumber: b.baseSeq + uint16(idx)})
		} else {
			b.sources[idx].Release()
		}
	}
	return lost
}

func (d *Decoder) reset() {
	for _, b := range d.blocks {
		d.flush(b)
	}
	d.blocks = make(map[uint16]*block)
	d.order = nil
	d.seen = false
}

func (d *Decoder) sbnJump(sbn uint16) bool {
	if len(d.order) == 0 {
		return false
	}
	latest := d.order[len(d.order)-1]
	return sbnDiff(latest, sbn) > int32(d.cfg.MaxSBNJump)
}

func sbnDiff(a, b uint16) int32 {
	return int32(int16(b - a))
}

func seqBehindWindow(oldest, sbn uint16) bool {
	return sbnDiff(oldest, sbn) < 0
}
