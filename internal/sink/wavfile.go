// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package sink

import (
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavFile is a file-backed Sink that appends every pulled buffer to a
// WAV encoder, for the cmd/rocrecv demo and for tests that want to
// inspect the pipeline's output offline. Unlike Device it does not pace
// itself; callers drive its cadence (e.g. with Device.Pull first, or a
// plain time.Sleep loop in a demo binary).
type WavFile struct {
	enc      *wav.Encoder
	channels int
}

// NewWavFile creates a WavFile sink writing 16-bit PCM at sampleRate
// with the given channel count, using the go-audio/wav encoder.
func NewWavFile(w io.WriteSeeker, sampleRate, channels int) *WavFile {
	return &WavFile{
		enc:      wav.NewEncoder(w, sampleRate, 16, channels, 1),
		channels: channels,
	}
}

// Pull implements iface.Sink by writing buf to the WAV file. It never
// blocks on a device clock; it reports the full buffer consumed.
func (f *WavFile) Pull(buf []int16, nominalTS time.Time) (int, error) {
	ints := make([]int, len(buf))
	for i, s := range buf {
		ints[i] = int(s)
	}
	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: f.channels, SampleRate: f.enc.SampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}
	if err := f.enc.Write(ib); err != nil {
		return 0, err
	}
	return len(buf) / f.channels, nil
}

// Close finalizes the WAV header. Must be called after the last Pull.
func (f *WavFile) Close() error {
	return f.enc.Close()
}
