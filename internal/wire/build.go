// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package wire

import (
	"github.com/pion/rtp"
)

// BuildSource marshals a source (RTP-audio) packet onto the wire.
// Used by tests and by the sender-side encoder boundary.
func BuildSource(ssrc uint32, seq uint16, ts uint32, marker bool, payloadType uint8, payload []byte) ([]byte, error) {
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    payloadType,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	return pkt.Marshal()
}

// BuildRepair marshals a repair packet: an RTP header (payload type
// RepairPayloadType) followed by the FEC framing header and the repair
// symbol.
func BuildRepair(ssrc uint32, seq uint16, ts uint32, sbn, index, k, m uint16, scheme SchemeID, symbol []byte) ([]byte, error) {
	fecHdr := make([]byte, fecHeaderLen, fecHeaderLen+len(symbol))
	putBE16(fecHdr[0:2], sbn)
	putBE16(fecHdr[2:4], index)
	putBE16(fecHdr[4:6], k)
	putBE16(fecHdr[6:8], m)
	fecHdr[8] = byte(scheme)
	fecHdr = append(fecHdr, symbol...)

	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    RepairPayloadType,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           ssrc,
		},
		Payload: fecHdr,
	}
	return pkt.Marshal()
}

func putBE16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}
