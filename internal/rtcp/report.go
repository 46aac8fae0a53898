// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package rtcp builds receiver reports from observed loss/jitter/arrival
// statistics and extracts the sender clock correlation from sender
// reports.
package rtcp

import (
	"time"

	"github.com/pion/rtcp"
	"github.com/rocwire/rocstream/internal/clock"
	"github.com/rocwire/rocstream/internal/wire"
)

// Stats accumulates the per-session counters a receiver report needs:
// cumulative loss, extended highest sequence, interarrival jitter
// estimate, and the most recent sender report's NTP/RTP correlation.
type Stats struct {
	ssrc uint32

	baseSeq       uint16
	haveBase      bool
	highestSeq    uint16
	wrapCount     uint32
	expected      uint64
	received      uint64

	lastTransit   int64
	jitter        float64
	clockRateHz   uint32

	lastSR   clock.NTPTime
	lastSRAt time.Time
	srSeen   bool
}

// NewStats creates a Stats accumulator for one session's SSRC at the
// given RTP clock rate.
func NewStats(ssrc uint32, clockRateHz uint32) *Stats {
	return &Stats{ssrc: ssrc, clockRateHz: clockRateHz}
}

// Observe updates loss/jitter bookkeeping for one arriving source
// packet, using the RFC 3550 §6.4.1 jitter estimator.
func (s *Stats) Observe(pkt *wire.Packet, arrival time.Time) {
	if !s.haveBase {
		s.baseSeq = pkt.SequenceNumber
		s.highestSeq = pkt.SequenceNumber
		s.haveBase = true
	} else if wire.SeqLess(s.highestSeq, pkt.SequenceNumber) {
		if pkt.SequenceNumber < s.highestSeq {
			s.wrapCount++
		}
		s.highestSeq = pkt.SequenceNumber
	}
	s.expected = uint64(s.wrapCount)<<16 + uint64(s.highestSeq) - uint64(s.baseSeq) + 1
	s.received++

	if s.clockRateHz > 0 {
		arrivalRTP := int64(arrival.UnixNano()) * int64(s.clockRateHz) / int64(time.Second)
		transit := arrivalRTP - int64(pkt.Timestamp)
		if s.lastTransit != 0 {
			d := transit - s.lastTransit
			if d < 0 {
				d = -d
			}
			s.jitter += (float64(d) - s.jitter) / 16
		}
		s.lastTransit = transit
	}
}

// ObserveSenderReport records the clock correlation carried by a sender
// report, for later DLSR computation.
func (s *Stats) ObserveSenderReport(sr *rtcp.SenderReport, now time.Time) {
	s.lastSR = clock.NTPTime(sr.NTPTime)
	s.lastSRAt = now
	s.srSeen = true
}

// CumulativeLoss returns expected-minus-received packets, floored at
// zero (duplicates/reordering can otherwise make this negative).
func (s *Stats) CumulativeLoss() int32 {
	if s.expected < s.received {
		return 0
	}
	loss := int64(s.expected) - int64(s.received)
	if loss > 0x7fffff {
		loss = 0x7fffff
	}
	return int32(loss)
}

// FractionLost returns the fraction of expected packets lost since the
// first observed packet, scaled to the 0-255 range RTCP receiver reports
// use. It is cumulative: it does not reset between calls or reports.
func (s *Stats) FractionLost() uint8 {
	if s.expected == 0 {
		return 0
	}
	loss := s.CumulativeLoss()
	frac := float64(loss) / float64(s.expected) * 255
	if frac < 0 {
		return 0
	}
	if frac > 255 {
		return 255
	}
	return uint8(frac)
}

// BuildReceiverReport constructs an RTCP receiver report block for this
// session.
func (s *Stats) BuildReceiverReport(reporterSSRC uint32) *rtcp.ReceiverReport {
	var lsr, dlsr uint32
	if s.srSeen {
		lsr = uint32(s.lastSR >> 16)
		delay := time.Since(s.lastSRAt)
		dlsr = uint32(delay.Seconds() * 65536)
	}

	return &rtcp.ReceiverReport{
		SSRC: reporterSSRC,
		Reports: []rtcp.ReceptionReport{
			{
				SSRC:               s.ssrc,
				FractionLost:       s.FractionLost(),
				TotalLost:          uint32(s.CumulativeLoss()),
				LastSequenceNumber: uint32(s.wrapCount)<<16 | uint32(s.highestSeq),
				Jitter:             uint32(s.jitter),
				LastSenderReport:   lsr,
				Delay:              dlsr,
			},
		},
	}
}
