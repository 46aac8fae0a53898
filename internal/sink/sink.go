// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package sink provides concrete iface.Sink collaborators. The receiver
// core only depends on the narrow iface.Sink boundary; these are the
// two concrete pacers a demo or test actually drives it with.
package sink

import (
	"time"
)

// Device is a synthetic real-time pacer: it blocks Pull until the next
// tick of a ticker with period ptime. It stands in for a real audio
// device in tests and command-line demos.
type Device struct {
	ticker *time.Ticker
	ptime  time.Duration
	start  time.Time
}

// NewDevice creates a Device pacing Pull calls at ptime intervals.
func NewDevice(ptime time.Duration) *Device {
	return &Device{
		ticker: time.NewTicker(ptime),
		ptime:  ptime,
		start:  time.Now(),
	}
}

// Pull blocks until the next tick, then reports buf fully consumed by
// returning len(buf). Device has no channel count, so this equals the
// samples-per-channel count only for mono buffers. nominalTS is ignored.
func (d *Device) Pull(buf []int16, nominalTS time.Time) (int, error) {
	<-d.ticker.C
	return len(buf), nil
}

// Close stops the pacing ticker.
func (d *Device) Close() error {
	d.ticker.Stop()
	return nil
}

// Paced wraps a non-pacing Sink (such as WavFile) with a Device clock,
// so a demo binary gets a realistic pull cadence even though the file
// writer itself returns instantly.
type Paced struct {
	clock *Device
	inner interface {
		Pull(buf []int16, nominalTS time.Time) (int, error)
	}
}

// NewPaced combines clock and inner into a single Sink: each Pull waits
// for clock's tick, then forwards buf to inner.
func NewPaced(clock *Device, inner interface {
	Pull(buf []int16, nominalTS time.Time) (int, error)
}) *Paced {
	return &Paced{clock: clock, inner: inner}
}

// Pull paces itself via clock, then writes through to inner.
func (p *Paced) Pull(buf []int16, nominalTS time.Time) (int, error) {
	if _, err := p.clock.Pull(buf, nominalTS); err != nil {
		return 0, err
	}
	return p.inner.Pull(buf, nominalTS)
}
