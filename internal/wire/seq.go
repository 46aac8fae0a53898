// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package wire defines the packet representation shared by every stage of
// the receiver pipeline, and the parsers that turn raw datagrams into it.
package wire

// SeqDiff returns the signed distance b-a in sequence-number space,
// accounting for 16-bit wraparound. A positive result means b is ahead
// of a.
//
// Uses the extended-sequence-number arithmetic from RFC 1889 appendix
// A.2.
func SeqDiff(a, b uint16) int32 {
	return int32(int16(b - a))
}

// SeqLess reports whether a is strictly before b in sequence-number space.
func SeqLess(a, b uint16) bool {
	return SeqDiff(a, b) > 0
}

// TSDiff returns the signed distance b-a in stream-timestamp space,
// accounting for 32-bit wraparound.
func TSDiff(a, b uint32) int64 {
	return int64(int32(b - a))
}

// TSLess reports whether a is strictly before b in stream-timestamp space.
func TSLess(a, b uint32) bool {
	return TSDiff(a, b) > 0
}
