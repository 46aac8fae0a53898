// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package fec

import (
	"github.com/klauspost/reedsolomon"
)

// reedSolomon8 implements Scheme over GF(2^8) using klauspost/reedsolomon.
//
// Reed-Solomon shards must be equal length; source/repair payloads in
// practice differ only by small encoder padding, so symbols are zero-
// padded up to the widest one seen in the block before solving.
type reedSolomon8 struct {
	k, m    int
	shards  [][]byte
	present []bool
	width   int
}

func newReedSolomon8() *reedSolomon8 {
	return &reedSolomon8{}
}

func (r *reedSolomon8) Init(k, m int) error {
	r.k = k
	r.m = m
	r.shards = make([][]byte, k+m)
	r.present = make([]bool, k+m)
	r.width = 0
	return nil
}

func (r *reedSolomon8) Feed(index int, symbol []byte) error {
	if index < 0 || index >= r.k+r.m {
		return ErrIrrecoverable
	}
	cp := append([]byte(nil), symbol...)
	r.shards[index] = cp
	r.present[index] = true
	if len(cp) > r.width {
		r.width = len(cp)
	}
	return nil
}

func (r *reedSolomon8) Solve() (map[int][]byte, error) {
	have := 0
	for _, ok := range r.present {
		if ok {
			have++
		}
	}
	if have < r.k {
		return nil, ErrIrrecoverable
	}
	if have == r.k+r.m {
		// Nothing missing among the symbols we track; still return
		// present source shards for uniformity.
		return r.recoveredSources(), nil
	}

	enc, err := reedsolomon.New(r.k, r.m)
	if err != nil {
		return nil, err
	}

	padded := make([][]byte, r.k+r.m)
	for i, s := range r.shards {
		if !r.present[i] {
			continue
		}
		if len(s) == r.width {
			padded[i] = s
			continue
		}
		buf := make([]byte, r.width)
		copy(buf, s)
		padded[i] = buf
	}

	if err := enc.Reconstruct(padded); err != nil {
		return nil, ErrIrrecoverable
	}

	out := make(map[int][]byte, r.k)
	for i := 0; i < r.k; i++ {
		if r.present[i] {
			continue
		}
		out[i] = padded[i]
	}
	return out, nil
}

func (r *reedSolomon8) recoveredSources() map[int][]byte {
	out := make(map[int][]byte)
	for i := 0; i < r.k; i++ {
		if !r.present[i] {
			out[i] = nil
		}
	}
	return out
}
