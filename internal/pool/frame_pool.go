// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package pool

import (
	"sync"
	"time"

	"github.com/rocwire/rocstream/internal/frame"
)

// FramePool recycles *frame.Frame values together with their Samples
// backing array, for the depacketiser and resampler stages of the hot
// Tick path. Frames handed out carry a release callback so a caller can
// return every frame it produced with a single f.Release() once the
// mixer has read it, regardless of which pool (or none) it came from.
type FramePool struct {
	mu       sync.Mutex
	free     []*frame.Frame
	length   int
	capacity int
	// putFn is p.put bound once, so Get does not allocate a fresh
	// method value on every call.
	putFn func(*frame.Frame)
}

// NewFramePool creates a pool of capacity frames, each with a Samples
// slice of length int16s pre-allocated.
func NewFramePool(capacity, length int) *FramePool {
	p := &FramePool{
		free:     make([]*frame.Frame, 0, capacity),
		length:   length,
		capacity: capacity,
	}
	p.putFn = p.put
	for i := 0; i < capacity; i++ {
		p.free = append(p.free, &frame.Frame{Samples: make([]int16, length)})
	}
	return p
}

// Get returns a frame ready for reuse, its Samples cleared to length
// and release wired back to this pool. Allocates a fresh frame if the
// pool is exhausted, so the RT path never blocks.
func (p *FramePool) Get() *frame.Frame {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		f := &frame.Frame{Samples: make([]int16, p.length)}
		f.SetPool(p.putFn)
		return f
	}
	f := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()

	f.Channels = 0
	f.Duration = 0
	f.CaptureTime = time.Time{}
	f.Flag = 0
	f.SetPool(p.putFn)
	return f
}

func (p *FramePool) put(f *frame.Frame) {
	if cap(f.Samples) < p.length {
		return
	}
	f.Samples = f.Samples[:p.length]
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.capacity {
		return
	}
	p.free = append(p.free, f)
}

// Len reports the number of frames currently available.
func (p *FramePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
