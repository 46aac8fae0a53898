// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package pipeline

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rocwire/rocstream/internal/frame"
	"github.com/stretchr/testify/require"
)

func TestProfilerRecordsObservation(t *testing.T) {
	reg := prometheus.NewRegistry()
	prof := NewProfiler("test_profile", "tick", reg)

	calls := 0
	wrapped := prof.WrapTick(func(now time.Time) *frame.Frame {
		calls++
		return &frame.Frame{Samples: make([]int16, 320), Channels: 2}
	})

	out := wrapped(time.Now())
	require.Equal(t, 1, calls)
	require.NotNil(t, out)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, metricFamilies)

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_profile_tick_duration_seconds" {
			found = true
			require.Equal(t, uint64(1), mf.Metric[0].GetHistogram().GetSampleCount())
		}
	}
	require.True(t, found)
}
