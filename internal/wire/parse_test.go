// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package wire

import (
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSource(t *testing.T) {
	raw, err := BuildSource(0xabcd1234, 42, 1000, true, 96, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	pkt := NewPacket()
	arrival := time.Now()
	require.NoError(t, Parse(raw, arrival, pkt))

	assert.Equal(t, KindSource, pkt.Kind)
	assert.Equal(t, uint32(0xabcd1234), pkt.SSRC)
	assert.Equal(t, uint16(42), pkt.SequenceNumber)
	assert.Equal(t, uint32(1000), pkt.Timestamp)
	assert.True(t, pkt.Marker)
	assert.Equal(t, uint8(96), pkt.PayloadType)
	assert.Equal(t, []byte{1, 2, 3, 4}, pkt.Payload)
	assert.Equal(t, arrival, pkt.Arrival)
}

func TestParseRepair(t *testing.T) {
	raw, err := BuildRepair(7, 10, 2000, 3, 1, 20, 10, SchemeReedSolomon8, []byte{0xaa, 0xbb})
	require.NoError(t, err)

	pkt := NewPacket()
	require.NoError(t, Parse(raw, time.Now(), pkt))

	assert.Equal(t, KindRepair, pkt.Kind)
	assert.Equal(t, FECCoords{SBN: 3, Index: 1, K: 20, M: 10}, pkt.FEC)
	assert.Equal(t, SchemeReedSolomon8, pkt.RepairScheme())
	assert.Equal(t, []byte{0xaa, 0xbb}, pkt.Payload)
}

func TestParseControl(t *testing.T) {
	sr := rtcp.SenderReport{SSRC: 99}
	raw, err := sr.Marshal()
	require.NoError(t, err)

	pkt := NewPacket()
	require.NoError(t, Parse(raw, time.Now(), pkt))

	assert.Equal(t, KindControl, pkt.Kind)
	assert.Equal(t, uint32(99), pkt.SSRC)
}

func TestParseMalformed(t *testing.T) {
	pkt := NewPacket()
	err := Parse(nil, time.Now(), pkt)
	assert.ErrorIs(t, err, ErrMalformed)

	err = Parse([]byte{0x00}, time.Now(), pkt)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSeqDiffWraparound(t *testing.T) {
	assert.Equal(t, int32(1), SeqDiff(65535, 0))
	assert.Equal(t, int32(-1), SeqDiff(0, 65535))
	assert.True(t, SeqLess(65535, 0))
	assert.False(t, SeqLess(0, 65535))
}
