// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package mixer

import (
	"testing"

	"github.com/rocwire/rocstream/internal/frame"
	"github.com/stretchr/testify/assert"
)

func TestMixSumsChannels(t *testing.T) {
	a := &frame.Frame{Samples: []int16{100, 200}, Channels: 2}
	b := &frame.Frame{Samples: []int16{50, 50}, Channels: 2}

	m := New(2, 1)
	out := m.Mix([]*frame.Frame{a, b})
	assert.Equal(t, []int16{150, 250}, out.Samples)
	assert.False(t, out.HasFlag(frame.FlagSilence))
}

func TestMixSaturates(t *testing.T) {
	a := &frame.Frame{Samples: []int16{30000}, Channels: 1}
	b := &frame.Frame{Samples: []int16{30000}, Channels: 1}

	m := New(1, 1)
	out := m.Mix([]*frame.Frame{a, b})
	assert.Equal(t, int16(32767), out.Samples[0])
}

func TestMixEmptyIsSilence(t *testing.T) {
	m := New(2, 4)
	out := m.Mix(nil)
	assert.True(t, out.HasFlag(frame.FlagSilence))
	for _, s := range out.Samples {
		assert.Equal(t, int16(0), s)
	}
}

func TestMixReusesOutputBufferAcrossCalls(t *testing.T) {
	m := New(1, 1)
	first := m.Mix([]*frame.Frame{{Samples: []int16{100}, Channels: 1}})
	second := m.Mix([]*frame.Frame{{Samples: []int16{200}, Channels: 1}})

	assert.Same(t, &first.Samples[0], &second.Samples[0], "Mix should reuse its output buffer, not allocate a new one per call")
	assert.Equal(t, int16(200), second.Samples[0])
}
