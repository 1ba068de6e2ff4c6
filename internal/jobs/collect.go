// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/trendlab/internal/sources"
	"github.com/pdiddy/trendlab/pkg/types"
)

// collect queries every descriptor on a bounded pool and records one
// attempt per source. A failing source only marks its own attempt as an
// error. Progress moves through the 15..65 band by completed count and
// never decreases. Findings are returned in dispatch order for every
// successful attempt.
func (o *Orchestrator) collect(ctx context.Context, jobID string, descs []types.SourceDescriptor, keywords []string) ([]types.Finding, error) {
	attempts := make([]types.SourceAttempt, len(descs))
	for i, d := range descs {
		attempts[i] = types.SourceAttempt{
			ID:         uuid.NewString(),
			JobID:      jobID,
			Seq:        i,
			SourceName: d.Name,
			SourceURL:  d.URL,
			Status:     types.AttemptPending,
		}
		if err := o.store.CreateAttempt(ctx, attempts[i]); err != nil {
			return nil, fmt.Errorf("creating attempt: %w", err)
		}
	}

	var (
		mu       sync.Mutex
		done     int
		progress = progressCollectStart
		results  = make([]sources.Result, len(descs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, d := range descs {
		g.Go(func() error {
			a := attempts[i]
			a.Status = types.AttemptProcessing
			if err := o.store.UpdateAttempt(gctx, a); err != nil {
				o.log.Warn("orchestrator: marking attempt processing",
					zap.String("job_id", jobID), zap.String("source", d.Name), zap.Error(err))
			}

			client := o.sources.Create(d)
			res := sources.Fetch(gctx, client, d, keywords, o.limit, o.sources.Timeout(d), o.log)
			results[i] = res

			if res.OK() {
				a.Status = types.AttemptSuccess
				a.FoundItems = len(res.Records)
				a.NormalizedPayload = res.Records
				if a.NormalizedPayload == nil {
					a.NormalizedPayload = []types.Record{}
				}
			} else {
				a.Status = types.AttemptError
				a.ErrorMessage = res.Err.Error()
			}
			// The final write must land even when the job was cancelled
			// mid-fetch, so it runs on a short context detached from gctx.
			rctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), failTimeout)
			err := o.store.UpdateAttempt(rctx, a)
			cancel()
			if err != nil {
				o.log.Warn("orchestrator: recording attempt",
					zap.String("job_id", jobID), zap.String("source", d.Name), zap.Error(err))
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			if p := progressCollectStart + done*(progressCollectEnd-progressCollectStart)/len(descs); p > progress {
				progress = p
				if err := o.store.UpdateStatus(gctx, jobID, types.StatusScrapingData, p); err != nil {
					o.log.Debug("orchestrator: recording progress",
						zap.String("job_id", jobID), zap.Int("progress", p), zap.Error(err))
				}
			}
			ev := types.Event{
				JobID:    jobID,
				Status:   types.StatusScrapingData,
				Progress: progress,
				Source:   d.Name,
			}
			if res.OK() {
				ev.Type = types.EventSuccess
				ev.FoundItems = len(res.Records)
				ev.Message = fmt.Sprintf("%s: %d items found", d.Name, len(res.Records))
			} else {
				ev.Type = types.EventWarning
				ev.Message = fmt.Sprintf("%s: failed: %v", d.Name, res.Err)
			}
			o.emit(ev)
			// Source failures stay in their attempt; the group never aborts.
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	findings := make([]types.Finding, 0, len(descs))
	for i, res := range results {
		if !res.OK() {
			continue
		}
		findings = append(findings, types.Finding{
			SourceName: descs[i].Name,
			SourceURL:  descs[i].URL,
			Records:    res.Records,
		})
	}
	return findings, nil
}
