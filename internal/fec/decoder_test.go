// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package fec

import (
	"testing"

	"github.com/klauspost/reedsolomon"
	"github.com/rocwire/rocstream/internal/wire"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourcePkt(sbn, index uint16, k, m int, seq uint16, payload []byte) *wire.Packet {
	p := wire.NewPacket()
	p.Kind = wire.KindSource
	p.SSRC = 1
	p.SequenceNumber = seq
	p.FEC = wire.FECCoords{SBN: sbn, Index: index, K: uint16(k), M: uint16(m)}
	p.Payload = payload
	return p
}

func repairPkt(sbn, index uint16, k, m int, symbol []byte) *wire.Packet {
	p := wire.NewPacket()
	p.Kind = wire.KindRepair
	p.SSRC = 1
	p.FEC = wire.FECCoords{SBN: sbn, Index: index, K: uint16(k), M: uint16(m)}
	p.Payload = symbol
	p.SetRepairScheme(wire.SchemeReedSolomon8)
	return p
}

// TestLossMasking checks that given K source and up to M losses out of
// K+M packets, all source packets are delivered, possibly reconstructed.
func TestLossMasking(t *testing.T) {
	const k, m = 4, 2
	d := NewDecoder(Config{Scheme: wire.SchemeReedSolomon8, K: k, M: m}, zerolog.Nop())

	sources := [][]byte{{1, 1}, {2, 2}, {3, 3}, {4, 4}}

	shards := make([][]byte, k+m)
	for i, s := range sources {
		shards[i] = append([]byte(nil), s...)
	}
	for i := k; i < k+m; i++ {
		shards[i] = make([]byte, 2)
	}
	enc, err := reedsolomon.New(k, m)
	require.NoError(t, err)
	require.NoError(t, enc.Encode(shards))

	// Drop index 1 and index 3 (both source slots); keep both repairs.
	var out Outcome
	for i, s := range shards {
		if i == 1 || i == 3 {
			continue
		}
		var pkt *wire.Packet
		if i < k {
			pkt = sourcePkt(7, uint16(i), k, m, uint16(100+i), s)
		} else {
			pkt = repairPkt(7, uint16(i-k), k, m, s)
		}
		res := d.Admit(pkt)
		out.Recovered = append(out.Recovered, res.Recovered...)
		out.Lost = append(out.Lost, res.Lost...)
	}

	assert.Empty(t, out.Lost, "loss masking: no source packet should be unrecoverable")

	bySeq := map[uint16]*wire.Packet{}
	for _, p := range out.Recovered {
		bySeq[p.SequenceNumber] = p
	}
	require.Contains(t, bySeq, uint16(101))
	require.Contains(t, bySeq, uint16(103))
	assert.Equal(t, sources[1], bySeq[101].Payload)
	assert.Equal(t, sources[3], bySeq[103].Payload)
	assert.True(t, bySeq[101].Flag&wire.FlagReconstructed != 0)
}

// TestBurstLossExceedsFEC exercises a burst larger than M: dropping three
// of a block's six packets (one source slot and both repairs) must
// surface exactly the undelivered source slot as loss, not a crash or
// partial reconstruction.
func TestBurstLossExceedsFEC(t *testing.T) {
	const k, m = 4, 2
	d := NewDecoder(Config{Scheme: wire.SchemeReedSolomon8, K: k, M: m}, zerolog.Nop())

	// Only 3 of 6 slots arrive (< K): irrecoverable.
	d.Admit(sourcePkt(1, 0, k, m, 200, []byte{9}))
	d.Admit(sourcePkt(1, 1, k, m, 201, []byte{9}))
	res := d.Admit(sourcePkt(1, 2, k, m, 202, []byte{9}))
	assert.Empty(t, res.Lost)

	lost := d.Flush(1)
	assert.Len(t, lost, 1) // index 3 never arrived
	assert.Equal(t, uint16(203), lost[0].SequenceNumber)
}

// TestFECIdempotence checks that for any block with >=K source+repair
// packets arriving, the delivered sequence is identical regardless of
// arrival order.
func TestFECIdempotence(t *testing.T) {
	const k, m = 4, 2
	sources := [][]byte{{1}, {2}, {3}, {4}}
	shards := make([][]byte, k+m)
	for i, s := range sources {
		shards[i] = append([]byte(nil), s...)
	}
	for i := k; i < k+m; i++ {
		shards[i] = make([]byte, 1)
	}
	enc, err := reedsolomon.New(k, m)
	require.NoError(t, err)
	require.NoError(t, enc.Encode(shards))

	orders := [][]int{
		{0, 1, 2, 3, 4, 5},
		{5, 4, 3, 2, 1, 0},
		{2, 0, 5, 1, 4, 3},
	}

	var results [][]byte
	for _, order := range orders {
		d := NewDecoder(Config{Scheme: wire.SchemeReedSolomon8, K: k, M: m}, zerolog.Nop())
		var recovered []*wire.Packet
		for _, i := range order {
			var pkt *wire.Packet
			if i < k {
				pkt = sourcePkt(3, uint16(i), k, m, uint16(i), shards[i])
			} else {
				pkt = repairPkt(3, uint16(i-k), k, m, shards[i])
			}
			res := d.Admit(pkt)
			recovered = append(recovered, res.Recovered...)
		}
		var flat []byte
		for _, p := range recovered {
			flat = append(flat, byte(p.SequenceNumber))
			flat = append(flat, p.Payload...)
		}
		results = append(results, flat)
	}

	for i := 1; i < len(results); i++ {
		assert.ElementsMatch(t, results[0], results[i])
	}
}
