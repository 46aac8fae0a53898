// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package sink

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDevicePacesAtPtime(t *testing.T) {
	start := time.Now()
	d := NewDevice(5 * time.Millisecond)
	defer d.Close()

	buf := make([]int16, 4)
	n, err := d.Pull(buf, start)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestWavFileWritesPCM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	require.NoError(t, err)
	defer f.Close()

	w := NewWavFile(f, 8000, 1)
	buf := []int16{100, -100, 200, -200}
	n, err := w.Pull(buf, time.Now())
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(44)) // header + at least one sample
}
