// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the HTTP plumbing shared by source clients: a
// per-client request limiter and GET helpers that set the User-Agent and
// check status codes.
package httputil

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum delay between outbound requests of one client.
// It is a burst-1 token bucket, so the first request goes out immediately and
// later ones are spaced by the configured delay.
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter returns a limiter spacing requests by minDelay. A non-positive
// delay disables limiting.
func NewLimiter(minDelay time.Duration) *Limiter {
	if minDelay <= 0 {
		return &Limiter{rl: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{rl: rate.NewLimiter(rate.Every(minDelay), 1)}
}

// Wait blocks until the next request may be sent or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.rl.Wait(ctx)
}
