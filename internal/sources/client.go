// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sources queries external data providers and normalizes their
// answers into types.Record. Each source family has its own Client type;
// Factory maps a catalog descriptor to a client and Fetch isolates every
// call so that one failing source never affects another.
package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/trendlab/internal/metrics"
	"github.com/pdiddy/trendlab/pkg/types"
)

// Client searches a single data source. Implementations build their query
// from the first few keywords, wait on their own limiter before every
// outbound request, and map the native response into records. A missing
// credential yields (nil, nil) after a logged warning.
type Client interface {
	Name() string
	Search(ctx context.Context, keywords []string, limit int) ([]types.Record, error)
}

// Result is the isolated outcome of one Fetch.
type Result struct {
	Source  types.SourceDescriptor
	Records []types.Record
	// Err is the captured failure, if any. Records is empty when Err is set.
	Err     error
	Elapsed time.Duration
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Fetch runs c.Search under timeout, recovers panics, trims the result to
// limit, logs failures, and records metrics. It never returns an error to
// the caller; failures are reported in Result.Err.
func Fetch(ctx context.Context, c Client, desc types.SourceDescriptor, keywords []string, limit int, timeout time.Duration, log *zap.Logger) (res Result) {
	if log == nil {
		log = zap.NewNop()
	}
	res.Source = desc
	start := time.Now()

	defer func() {
		res.Elapsed = time.Since(start)

		status := string(types.AttemptSuccess)
		if res.Err != nil {
			status = string(types.AttemptError)
			log.Warn("sources: fetch failed",
				zap.String("source", desc.Name),
				zap.Duration("elapsed", res.Elapsed),
				zap.Error(res.Err))
		} else {
			log.Debug("sources: fetch done",
				zap.String("source", desc.Name),
				zap.Int("records", len(res.Records)),
				zap.Duration("elapsed", res.Elapsed))
		}
		metrics.ObserveSourceAttempt(desc.Name, string(desc.Kind), status, res.Elapsed)
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// The search runs in its own goroutine so a client that ignores ctx
	// still cannot hold the caller past the timeout.
	type outcome struct {
		records []types.Record
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("source %s panicked: %v", desc.Name, p)}
			}
		}()
		records, err := c.Search(ctx, keywords, limit)
		done <- outcome{records: records, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			res.Err = o.err
			return res
		}
		if limit > 0 && len(o.records) > limit {
			o.records = o.records[:limit]
		}
		res.Records = o.records
	case <-ctx.Done():
		res.Err = fmt.Errorf("source %s: %w", desc.Name, ctx.Err())
	}
	return res
}

// queryTerms returns the first n non-empty trimmed keywords.
func queryTerms(keywords []string, n int) []string {
	var out []string
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out = append(out, k)
		if len(out) == n {
			break
		}
	}
	return out
}

// matchesAny reports whether text contains any keyword, case-insensitively.
func matchesAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// clip shortens s to at most max runes, marking the cut with "...".
func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
