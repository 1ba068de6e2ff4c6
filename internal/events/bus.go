// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package events carries per-job progress events from the orchestrator to
// stream readers. Each job has one bounded channel. Publishing never blocks:
// when a channel is full the oldest event is discarded. A terminal event
// (complete or error) closes the job's channel.
//
// Events live in memory only. After a restart, readers must fall back to
// the persisted job status. The bus remembers a bounded number of finished
// jobs; older ones are forgotten and readers rely on the job status for them.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/trendlab/internal/metrics"
	"github.com/pdiddy/trendlab/pkg/types"
)

// DefaultSize is the per-job channel capacity used when NewBus gets a
// non-positive size.
const DefaultSize = 256

// DefaultRetained is how many finished jobs the bus remembers.
const DefaultRetained = 1024

// Option configures a Bus.
type Option func(*Bus)

// WithRetained sets how many finished jobs the bus remembers. Non-positive
// values keep the default.
func WithRetained(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.retain = n
		}
	}
}

// Bus fans progress events out to one reader per job.
type Bus struct {
	mu     sync.Mutex
	size   int
	chans  map[string]chan types.Event
	closed map[string]struct{}
	retain int
	order  []string // finished jobs, oldest at next once full
	next   int
	log    *zap.Logger
	now    func() time.Time
}

// NewBus returns a bus whose job channels hold size events.
func NewBus(size int, log *zap.Logger, opts ...Option) *Bus {
	if size <= 0 {
		size = DefaultSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bus{
		size:   size,
		chans:  make(map[string]chan types.Event),
		closed: make(map[string]struct{}),
		retain: DefaultRetained,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish appends ev to its job's channel. Events for a job whose stream
// already ended are discarded.
func (b *Bus) Publish(ev types.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, done := b.closed[ev.JobID]; done {
		b.log.Debug("events: discarding event for finished job",
			zap.String("job_id", ev.JobID), zap.String("type", string(ev.Type)))
		return
	}
	ch := b.channel(ev.JobID)

	for {
		select {
		case ch <- ev:
			if ev.Type.IsTerminal() {
				close(ch)
				delete(b.chans, ev.JobID)
				b.tombstone(ev.JobID)
			}
			return
		default:
		}
		// Full: drop the oldest event and try again.
		select {
		case old := <-ch:
			metrics.ObserveDroppedEvent()
			b.log.Warn("events: buffer full, dropping oldest event",
				zap.String("job_id", ev.JobID), zap.String("dropped_type", string(old.Type)))
		default:
		}
	}
}

// Subscribe returns the event channel of jobID, creating it if needed. The
// channel is closed after the job's terminal event. For a job whose
// stream already ended the returned channel is closed and empty.
func (b *Bus) Subscribe(jobID string) <-chan types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, done := b.closed[jobID]; done {
		ch := make(chan types.Event)
		close(ch)
		return ch
	}
	return b.channel(jobID)
}

// Unsubscribe releases jobID's channel when a reader leaves and nothing is
// waiting in it. Later publishes recreate the channel. It reports whether
// the channel was removed. Finished jobs stay remembered.
func (b *Bus) Unsubscribe(jobID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.chans[jobID]
	if !ok || len(ch) > 0 {
		return false
	}
	close(ch)
	delete(b.chans, jobID)
	return true
}

// Drop forgets jobID, closing its channel if still open.
func (b *Bus) Drop(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.chans[jobID]; ok {
		close(ch)
		delete(b.chans, jobID)
	}
	delete(b.closed, jobID)
}

// Open returns the number of jobs with an open channel.
func (b *Bus) Open() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chans)
}

// Finished returns the number of finished jobs the bus remembers.
func (b *Bus) Finished() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.closed)
}

// tombstone marks jobID finished, forgetting the oldest finished job once
// retain is reached.
func (b *Bus) tombstone(jobID string) {
	b.closed[jobID] = struct{}{}
	if len(b.order) < b.retain {
		b.order = append(b.order, jobID)
		return
	}
	delete(b.closed, b.order[b.next])
	b.order[b.next] = jobID
	b.next = (b.next + 1) % b.retain
}

func (b *Bus) channel(jobID string) chan types.Event {
	ch, ok := b.chans[jobID]
	if !ok {
		ch = make(chan types.Event, b.size)
		b.chans[jobID] = ch
	}
	return ch
}
