// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package fec implements a block Forward Error Correction decoder: a
// sliding window of source blocks, admission of source/repair packets
// into a block, and reconstruction of missing source packets once a
// block holds at least K of its K+M slots.
package fec

import (
	"errors"

	"github.com/rocwire/rocstream/internal/wire"
)

// Scheme is the polymorphic FEC codec interface: init, feed indexed
// symbols, solve for the missing ones.
type Scheme interface {
	// Init (re)initializes the codec for a block shaped K source + M
	// repair symbols.
	Init(k, m int) error
	// Feed records the symbol at the given 0..K+M-1 index. Index < K is
	// a source symbol, index >= K is a repair symbol.
	Feed(index int, symbol []byte) error
	// Solve attempts reconstruction and returns the recovered source
	// symbols keyed by their 0..K-1 source index. It is only called once
	// at least K of K+M indices have been fed.
	Solve() (map[int][]byte, error)
}

// ErrSchemeUnsupported is returned by schemes that are registered in the
// variant set but not implemented ("LdpcStaircase" and "ReedSolomon2m"
// are named but not required to be functional).
var ErrSchemeUnsupported = errors.New("fec: scheme not implemented")

// ErrIrrecoverable is returned by Solve when fewer than K symbols were
// fed, or the algebraic solve failed; the decoder treats this as partial
// loss, not a fatal error.
var ErrIrrecoverable = errors.New("fec: block irrecoverable")

// NewScheme constructs the Scheme implementation for id.
func NewScheme(id wire.SchemeID) Scheme {
	switch id {
	case wire.SchemeReedSolomon8:
		return newReedSolomon8()
	case wire.SchemeReedSolomon2M, wire.SchemeLDPCStaircase:
		return unsupportedScheme{}
	default:
		return noopScheme{}
	}
}

type unsupportedScheme struct{}

func (unsupportedScheme) Init(k, m int) error                 { return nil }
func (unsupportedScheme) Feed(index int, symbol []byte) error { return nil }
func (unsupportedScheme) Solve() (map[int][]byte, error)      { return nil, ErrSchemeUnsupported }

// noopScheme backs SchemeNone: no repair packets exist, so every
// incomplete block is reported irrecoverable immediately.
type noopScheme struct{}

func (noopScheme) Init(k, m int) error                 { return nil }
func (noopScheme) Feed(index int, symbol []byte) error { return nil }
func (noopScheme) Solve() (map[int][]byte, error)      { return nil, ErrIrrecoverable }
