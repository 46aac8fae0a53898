// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package clock maps between the sender's NTP-epoch clock domain carried
// in RTCP reports and the receiver's local monotonic clock.
package clock

import "time"

// ntpEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01) and the Unix epoch (1970-01-01): 70 years plus 17 leap
// days.
const ntpEpochOffset = (70*365 + 17) * 24 * 3600

// NTPTime is a 64-bit fixed-point NTP timestamp: the upper 32 bits are
// whole seconds since the NTP epoch, the lower 32 bits are a binary
// fraction of a second.
type NTPTime uint64

// FromTime converts a wall-clock time to its NTP fixed-point
// representation.
func FromTime(t time.Time) NTPTime {
	secs := t.Unix() + ntpEpochOffset
	frac := (uint64(t.Nanosecond()) << 32) / 1e9
	return NTPTime(uint64(secs)<<32 | frac)
}

// ToTime converts an NTP fixed-point timestamp back to a wall-clock time.
func (n NTPTime) ToTime() time.Time {
	secs := int64(n>>32) - ntpEpochOffset
	frac := uint64(n) & 0xffffffff
	nanos := (frac * 1e9) >> 32
	return time.Unix(secs, int64(nanos))
}

// Seconds returns the integer-seconds component.
func (n NTPTime) Seconds() uint32 {
	return uint32(n >> 32)
}

// Fraction returns the fractional-second component.
func (n NTPTime) Fraction() uint32 {
	return uint32(n)
}
