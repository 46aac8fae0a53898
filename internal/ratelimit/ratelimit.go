// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Package ratelimit provides a token-bucket gate for noisy log lines,
// grounded on roc_core::RateLimiter from the original C++ implementation
// this toolkit's spec was distilled from.
package ratelimit

import "time"

// Limiter allows up to burst events per period, refilling burst tokens
// at the start of each period.
type Limiter struct {
	period     time.Duration
	burst      int
	nowFn      func() time.Time
	expiresAt  time.Time
	tokens     int
	started    bool
}

// New creates a Limiter. nowFn defaults to time.Now; tests may override
// it for determinism.
func New(period time.Duration, burst int, nowFn func() time.Time) *Limiter {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Limiter{period: period, burst: burst, nowFn: nowFn}
}

// Allow reports whether an event may proceed right now, consuming one
// token if so.
func (l *Limiter) Allow() bool {
	now := l.nowFn()
	if !l.started || !now.Before(l.expiresAt) {
		l.expiresAt = now.Add(l.period)
		l.tokens = l.burst
		l.started = true
	}
	if l.tokens > 0 {
		l.tokens--
		return true
	}
	return false
}
