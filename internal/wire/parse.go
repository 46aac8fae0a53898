// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package wire

import (
	"errors"
	"fmt"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// ErrMalformed is wrapped by every parse failure, so callers can tell a
// parse error from other failures with errors.Is.
var ErrMalformed = errors.New("wire: malformed packet")

// RepairPayloadType is the RTP payload type value reserved, within this
// toolkit's configuration, for FEC repair packets. RTCP is identified by
// its own packet-type byte range per RFC 3550 §6.1, independent of this
// value.
const RepairPayloadType = 127

// fecHeaderLen is the wire size of the repair framing header: SBN(16) |
// Index(16) | K(16) | M(16) | SchemeID(8), big-endian. See build.go for
// the encoder side.
const fecHeaderLen = 9

// SchemeID identifies the FEC codec a repair packet's symbol was built
// with. Mirrors internal/fec.Scheme without importing it, since wire must
// stay below fec in the dependency order.
type SchemeID uint8

const (
	SchemeNone SchemeID = iota
	SchemeReedSolomon8
	SchemeReedSolomon2M
	SchemeLDPCStaircase
)

// Parse identifies the protocol from the first bytes of datagram, decodes
// its header, and tags the result with arrival. It never blocks and never
// retains a reference to datagram: the payload is copied into pkt's own
// buffer so the caller's receive buffer can be reused immediately.
//
// pkt must already be obtained from a pool (see internal/pool) with its
// Payload slice at zero length and spare capacity.
func Parse(datagram []byte, arrival time.Time, pkt *Packet) error {
	if len(datagram) < 1 {
		return fmt.Errorf("%w: empty datagram", ErrMalformed)
	}

	pkt.Arrival = arrival

	firstByte := datagram[0]
	version := firstByte >> 6
	if version != 2 {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformed, version)
	}

	// RTCP packet types occupy 200-204 in the second byte, where RTP keeps
	// its marker bit and payload type; a source/repair RTP payload type
	// never overlaps that range, so the whole byte is compared.
	if datagram[1] >= 192 && datagram[1] <= 223 {
		return parseControl(datagram, pkt)
	}
	payloadType := datagram[1] & 0x7f
	if payloadType == RepairPayloadType {
		return parseRepair(datagram, arrival, pkt)
	}
	return parseSource(datagram, arrival, pkt)
}

func parseSource(datagram []byte, arrival time.Time, pkt *Packet) error {
	var hdr rtp.Header
	n, err := hdr.Unmarshal(datagram)
	if err != nil {
		return fmt.Errorf("%w: rtp header: %w", ErrMalformed, err)
	}
	payload := datagram[n:]

	pkt.Kind = KindSource
	pkt.Flag = 0
	pkt.SSRC = hdr.SSRC
	pkt.SequenceNumber = hdr.SequenceNumber
	pkt.Timestamp = hdr.Timestamp
	pkt.Marker = hdr.Marker
	pkt.PayloadType = hdr.PayloadType
	pkt.FEC = FECCoords{}
	pkt.Payload = appendPayload(pkt.Payload, payload)
	return nil
}

func parseRepair(datagram []byte, arrival time.Time, pkt *Packet) error {
	var hdr rtp.Header
	n, err := hdr.Unmarshal(datagram)
	if err != nil {
		return fmt.Errorf("%w: rtp header: %w", ErrMalformed, err)
	}
	rest := datagram[n:]
	if len(rest) < fecHeaderLen {
		return fmt.Errorf("%w: short fec header", ErrMalformed)
	}

	sbn := be16(rest[0:2])
	index := be16(rest[2:4])
	k := be16(rest[4:6])
	m := be16(rest[6:8])
	scheme := rest[8]
	symbol := rest[fecHeaderLen:]

	pkt.Kind = KindRepair
	pkt.Flag = 0
	pkt.SSRC = hdr.SSRC
	pkt.SequenceNumber = hdr.SequenceNumber
	pkt.Timestamp = hdr.Timestamp
	pkt.Marker = hdr.Marker
	pkt.PayloadType = hdr.PayloadType
	pkt.FEC = FECCoords{SBN: sbn, Index: index, K: k, M: m}
	pkt.Payload = appendPayload(pkt.Payload, symbol)
	_ = scheme // scheme id is read by internal/fec from pkt via RepairScheme
	pkt.repairScheme = SchemeID(scheme)
	return nil
}

func parseControl(datagram []byte, pkt *Packet) error {
	pkts, err := rtcp.Unmarshal(datagram)
	if err != nil {
		return fmt.Errorf("%w: rtcp: %w", ErrMalformed, err)
	}
	if len(pkts) == 0 {
		return fmt.Errorf("%w: empty rtcp compound", ErrMalformed)
	}

	ssrc, ok := controlSSRC(pkts[0])
	if !ok {
		return fmt.Errorf("%w: rtcp packet carries no ssrc", ErrMalformed)
	}

	pkt.Kind = KindControl
	pkt.Flag = 0
	pkt.SSRC = ssrc
	pkt.FEC = FECCoords{}
	pkt.Payload = appendPayload(pkt.Payload, datagram)
	return nil
}

func controlSSRC(pkt rtcp.Packet) (uint32, bool) {
	switch p := pkt.(type) {
	case *rtcp.SenderReport:
		return p.SSRC, true
	case *rtcp.ReceiverReport:
		return p.SSRC, true
	case *rtcp.SourceDescription:
		if len(p.Chunks) > 0 {
			return p.Chunks[0].Source, true
		}
	case *rtcp.Goodbye:
		if len(p.Sources) > 0 {
			return p.Sources[0], true
		}
	}
	return 0, false
}

func appendPayload(dst, src []byte) []byte {
	dst = dst[:0]
	return append(dst, src...)
}

func be16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}
