// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNTPRoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 500_000_000, time.UTC)
	n := FromTime(now)
	back := n.ToTime()

	assert.WithinDuration(t, now, back, time.Millisecond)
}

func TestNTPEpochOffset(t *testing.T) {
	epoch := time.Unix(0, 0).UTC()
	n := FromTime(epoch)
	assert.Equal(t, uint32(ntpEpochOffset), n.Seconds())
}
