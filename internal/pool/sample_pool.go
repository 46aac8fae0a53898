// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package pool

import "sync"

// SamplePool hands out fixed-length []int16 sample buffers for the
// mixing/resampling/depacketizing stages of the hot Tick path, the same
// never-block/never-fail contract as BufferPool. Get on an empty pool
// allocates; the caller is expected to warm the pool up front and Put
// every buffer back once done with it so that never happens in steady
// state.
type SamplePool struct {
	mu       sync.Mutex
	free     [][]int16
	length   int
	capacity int
}

// NewSamplePool creates a pool of capacity buffers, each length int16s,
// all pre-allocated.
func NewSamplePool(capacity, length int) *SamplePool {
	p := &SamplePool{
		free:     make([][]int16, 0, capacity),
		length:   length,
		capacity: capacity,
	}
	for i := 0; i < capacity; i++ {
		p.free = append(p.free, make([]int16, length))
	}
	return p
}

// Get removes and returns one buffer from the pool, or allocates a
// fresh one if the pool is empty. Its contents are not zeroed; callers
// overwrite every element they use.
func (p *SamplePool) Get() []int16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return make([]int16, p.length)
	}
	b := p.free[n-1]
	p.free = p.free[:n-1]
	return b[:p.length]
}

// Put returns a buffer to the pool. Buffers with less than length
// capacity are dropped rather than stored; larger ones are kept,
// resliced to length.
func (p *SamplePool) Put(b []int16) {
	if cap(b) < p.length {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.capacity {
		return
	}
	p.free = append(p.free, b[:p.length])
}

// Len reports the number of buffers currently available.
func (p *SamplePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
