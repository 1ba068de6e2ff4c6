// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package jobs runs research jobs through their phases:
//
//	queued → generating_plan → waiting_approval → processing_strategy →
//	scraping_data → synthesizing_report → finalizing_report →
//	generating_pdf → completed
//
// A job pauses at waiting_approval until Approve is called, possibly by a
// different process sharing the same store. Every phase transition is
// persisted before the phase's work starts. Any phase may end in failed,
// and Cancel moves a non-terminal job to cancelled. There is no automatic
// retry or resume after a crash.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/trendlab/internal/events"
	"github.com/pdiddy/trendlab/internal/metrics"
	"github.com/pdiddy/trendlab/internal/registry"
	"github.com/pdiddy/trendlab/internal/sources"
	"github.com/pdiddy/trendlab/internal/store"
	"github.com/pdiddy/trendlab/pkg/types"
)

// Sentinel errors.
var (
	// ErrNotFound is returned for an unknown job id.
	ErrNotFound = store.ErrNotFound
	// ErrBriefTooShort is returned by Start for descriptions under
	// MinDescriptionLength characters.
	ErrBriefTooShort = errors.New("description too short")
	// ErrNotAwaitingApproval is returned by Approve when the job is not
	// paused at waiting_approval, including a second approval.
	ErrNotAwaitingApproval = errors.New("job is not awaiting approval")
	// ErrEmptyPlan is returned by Approve for a plan without sources.
	ErrEmptyPlan = errors.New("plan selects no sources")
	// ErrNoPlan is returned by GetPlan before planning finished.
	ErrNoPlan = errors.New("job has no plan yet")
	// ErrFinished is returned by Cancel for a job already in a terminal state.
	ErrFinished = errors.New("job already finished")
)

// MinDescriptionLength is the shortest accepted brief description.
const MinDescriptionLength = 20

// CancelledMessage is recorded on cancelled jobs and sent as their final event.
const CancelledMessage = "research job cancelled"

// Progress checkpoints.
const (
	progressGeneratingPlan  = 2
	progressWaitingApproval = 5
	progressStrategy        = 10
	progressCollectStart    = 15
	progressCollectEnd      = 65
	progressSynthesizing    = 67
	progressFinalizing      = 77
	progressRendering       = 87
	progressCompleted       = 100
)

const (
	defaultConcurrency = 4
	defaultMaxKeywords = 3
	defaultResultLimit = 10
	failTimeout        = 10 * time.Second
)

// Planner produces a research plan for a brief. It never fails.
type Planner interface {
	GeneratePlan(ctx context.Context, brief types.Brief) (types.ResearchPlan, types.PlanProvenance)
}

// Synthesizer drafts and polishes the report. Neither stage fails.
type Synthesizer interface {
	Synthesize(ctx context.Context, brief types.Brief, findings []types.Finding) types.Report
	Finalize(ctx context.Context, report types.Report, findings []types.Finding) types.Report
}

// ClientFactory builds source clients.
type ClientFactory interface {
	Create(desc types.SourceDescriptor) sources.Client
	Timeout(desc types.SourceDescriptor) time.Duration
}

// Renderer stores the final report and returns its handle.
type Renderer interface {
	Render(ctx context.Context, jobID string, report types.Report) (string, error)
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store       *store.Store
	Registry    *registry.Registry
	Planner     Planner
	Sources     ClientFactory
	Synthesizer Synthesizer
	Renderer    Renderer
	Bus         *events.Bus
	Collection  types.CollectionConfig
	// ResultLimit is the per-source record limit.
	ResultLimit int
	Log         *zap.Logger
}

// Orchestrator drives research jobs. Phase work runs on background
// goroutines detached from the caller's context.
type Orchestrator struct {
	store    *store.Store
	reg      *registry.Registry
	planner  Planner
	sources  ClientFactory
	synth    Synthesizer
	renderer Renderer
	bus      *events.Bus
	cfg      types.CollectionConfig
	limit    int
	log      *zap.Logger

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	running map[string]*phase
}

// phase is the cancel handle of a job's running background work.
type phase struct {
	cancel context.CancelFunc
}

// New returns an orchestrator. A nil Bus gets a default one.
func New(d Deps) *Orchestrator {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	bus := d.Bus
	if bus == nil {
		bus = events.NewBus(events.DefaultSize, log)
	}
	cfg := d.Collection
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = defaultMaxKeywords
	}
	limit := d.ResultLimit
	if limit <= 0 {
		limit = defaultResultLimit
	}

	base, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		store:    d.Store,
		reg:      d.Registry,
		planner:  d.Planner,
		sources:  d.Sources,
		synth:    d.Synthesizer,
		renderer: d.Renderer,
		bus:      bus,
		cfg:      cfg,
		limit:    limit,
		log:      log,
		base:     base,
		stop:     stop,
		running:  make(map[string]*phase),
	}
}

// Start validates and stores the brief, then generates the plan in the
// background. It returns the new job id.
func (o *Orchestrator) Start(ctx context.Context, brief types.Brief) (string, error) {
	brief = NormalizeBrief(brief)
	if n := len([]rune(brief.Description)); n < MinDescriptionLength {
		return "", fmt.Errorf("%w: %d characters, need at least %d", ErrBriefTooShort, n, MinDescriptionLength)
	}

	job := types.ResearchJob{
		ID:     uuid.NewString(),
		Brief:  brief,
		Status: types.StatusQueued,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("creating job: %w", err)
	}
	metrics.ObservePhase(string(types.StatusQueued))
	o.log.Info("orchestrator: job created", zap.String("job_id", job.ID))
	o.emit(types.Event{JobID: job.ID, Type: types.EventInfo, Status: types.StatusQueued,
		Message: "Research job created"})

	o.spawn(job.ID, func(ctx context.Context) error {
		return o.plan(ctx, job)
	})
	return job.ID, nil
}

// GetPlan returns the stored plan of a job and its provenance.
func (o *Orchestrator) GetPlan(ctx context.Context, id string) (types.ResearchPlan, types.PlanProvenance, error) {
	job, err := o.store.Job(ctx, id)
	if err != nil {
		return types.ResearchPlan{}, "", err
	}
	if job.Plan == nil {
		return types.ResearchPlan{}, "", fmt.Errorf("job %s is %s: %w", id, job.Status, ErrNoPlan)
	}
	return *job.Plan, job.PlanProvenance, nil
}

// Approve resumes a job paused at waiting_approval. A nil plan keeps the
// stored plan; otherwise plan replaces it verbatim. Only the first approval
// of a job succeeds.
func (o *Orchestrator) Approve(ctx context.Context, id string, plan *types.ResearchPlan) error {
	if _, err := o.store.Job(ctx, id); err != nil {
		return err
	}
	if plan != nil && plan.SourceCount() == 0 {
		return ErrEmptyPlan
	}
	err := o.store.ApprovePlan(ctx, id, plan, progressStrategy)
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrNotAwaitingApproval, err)
	}
	if err != nil {
		return fmt.Errorf("approving plan: %w", err)
	}

	metrics.ObservePhase(string(types.StatusProcessingStrategy))
	o.log.Info("orchestrator: plan approved",
		zap.String("job_id", id), zap.Bool("edited", plan != nil))
	o.emit(types.Event{JobID: id, Type: types.EventInfo, Status: types.StatusProcessingStrategy,
		Progress: progressStrategy, Message: "Research plan approved"})

	o.spawn(id, func(ctx context.Context) error {
		return o.run(ctx, id)
	})
	return nil
}

// Cancel moves a non-terminal job to cancelled and stops its running phase.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	err := o.store.Finish(ctx, id, types.StatusCancelled, CancelledMessage)
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrFinished, err)
	}
	if err != nil {
		return err
	}

	o.mu.Lock()
	if p, ok := o.running[id]; ok {
		p.cancel()
	}
	o.mu.Unlock()

	metrics.ObservePhase(string(types.StatusCancelled))
	o.log.Info("orchestrator: job cancelled", zap.String("job_id", id))
	o.emit(types.Event{JobID: id, Type: types.EventError, Status: types.StatusCancelled,
		Message: CancelledMessage})
	return nil
}

// Job returns the persisted job.
func (o *Orchestrator) Job(ctx context.Context, id string) (types.ResearchJob, error) {
	return o.store.Job(ctx, id)
}

// Attempts returns the source attempts of a job in dispatch order.
func (o *Orchestrator) Attempts(ctx context.Context, id string) ([]types.SourceAttempt, error) {
	return o.store.Attempts(ctx, id)
}

// List returns the most recent jobs, newest first.
func (o *Orchestrator) List(ctx context.Context, limit int) ([]types.ResearchJob, error) {
	return o.store.ListJobs(ctx, limit)
}

// Report returns the final report of a completed job and its result handle.
func (o *Orchestrator) Report(ctx context.Context, id string) (types.Report, string, error) {
	return o.store.Report(ctx, id)
}

// Events returns the progress stream of a job. See events.Bus.Subscribe.
func (o *Orchestrator) Events(id string) <-chan types.Event {
	return o.bus.Subscribe(id)
}

// Release tells the orchestrator a stream reader of id has left. The
// job's channel is freed when nothing is waiting in it, which covers jobs
// this process never runs.
func (o *Orchestrator) Release(id string) {
	if o.bus.Unsubscribe(id) {
		o.log.Debug("orchestrator: released event channel", zap.String("job_id", id))
	}
}

// Wait blocks until all background phases have returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close stops all running phases and waits for them. Interrupted jobs are
// marked failed.
func (o *Orchestrator) Close() {
	o.stop()
	o.wg.Wait()
}

// spawn runs fn for job id on a background goroutine with a cancellable
// context detached from any request.
func (o *Orchestrator) spawn(id string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(o.base)
	p := &phase{cancel: cancel}
	o.mu.Lock()
	o.running[id] = p
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			if o.running[id] == p {
				delete(o.running, id)
			}
			o.mu.Unlock()
			cancel()
		}()
		defer func() {
			if r := recover(); r != nil {
				o.fail(id, fmt.Errorf("panic: %v", r))
			}
		}()

		if err := fn(ctx); err != nil {
			o.fail(id, err)
		}
	}()
}

// fail marks job id failed unless it already reached a terminal state.
func (o *Orchestrator) fail(id string, cause error) {
	msg := cause.Error()
	if errors.Is(cause, context.Canceled) && o.base.Err() != nil {
		msg = "interrupted by shutdown"
	}

	ctx, cancel := context.WithTimeout(context.Background(), failTimeout)
	defer cancel()
	err := o.store.Finish(ctx, id, types.StatusFailed, msg)
	if errors.Is(err, store.ErrConflict) {
		o.log.Debug("orchestrator: job already finished", zap.String("job_id", id), zap.Error(cause))
		return
	}
	if err != nil {
		o.log.Error("orchestrator: recording job failure",
			zap.String("job_id", id), zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	metrics.ObservePhase(string(types.StatusFailed))
	o.log.Error("orchestrator: job failed", zap.String("job_id", id), zap.Error(cause))
	o.emit(types.Event{JobID: id, Type: types.EventError, Status: types.StatusFailed, Message: msg})
}

// plan runs generating_plan and pauses the job at waiting_approval.
func (o *Orchestrator) plan(ctx context.Context, job types.ResearchJob) error {
	if err := o.advance(ctx, job.ID, types.StatusGeneratingPlan, progressGeneratingPlan,
		"Generating research plan"); err != nil {
		return err
	}

	plan, prov := o.planner.GeneratePlan(ctx, job.Brief)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.store.SavePlan(ctx, job.ID, plan, prov, types.StatusWaitingApproval, progressWaitingApproval); err != nil {
		return stopOnConflict(fmt.Errorf("saving plan: %w", err))
	}

	metrics.ObservePhase(string(types.StatusWaitingApproval))
	o.log.Info("orchestrator: plan ready",
		zap.String("job_id", job.ID), zap.String("provenance", string(prov)), zap.Int("sources", plan.SourceCount()))
	o.emit(types.Event{
		JobID:      job.ID,
		Type:       types.EventPlanReady,
		Status:     types.StatusWaitingApproval,
		Progress:   progressWaitingApproval,
		Message:    fmt.Sprintf("Research plan ready with %d sources, waiting for approval", plan.SourceCount()),
		Plan:       &plan,
		Provenance: prov,
	})
	return nil
}

// run executes every phase after approval.
func (o *Orchestrator) run(ctx context.Context, id string) error {
	job, err := o.store.Job(ctx, id)
	if err != nil {
		return err
	}
	if job.Plan == nil {
		return fmt.Errorf("job %s has no plan", id)
	}

	descs := o.expand(id, *job.Plan)
	keywords := SearchTerms(job.Brief, o.cfg.MaxKeywords)

	if err := o.advance(ctx, id, types.StatusScrapingData, progressCollectStart,
		fmt.Sprintf("Collecting data from %d sources", len(descs))); err != nil {
		return err
	}
	findings, err := o.collect(ctx, id, descs, keywords)
	if err != nil {
		return err
	}

	if err := o.advance(ctx, id, types.StatusSynthesizingReport, progressSynthesizing,
		"Synthesizing report"); err != nil {
		return err
	}
	report := o.synth.Synthesize(ctx, job.Brief, findings)

	if err := o.advance(ctx, id, types.StatusFinalizingReport, progressFinalizing,
		"Finalizing report"); err != nil {
		return err
	}
	report = o.synth.Finalize(ctx, report, findings)

	if err := o.advance(ctx, id, types.StatusGeneratingPDF, progressRendering,
		"Rendering report"); err != nil {
		return err
	}
	handle, err := o.renderer.Render(ctx, id, report)
	if err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	if err := o.store.SaveReport(ctx, id, report, handle); err != nil {
		return err
	}
	if err := o.store.Complete(ctx, id, handle); err != nil {
		return stopOnConflict(err)
	}

	total := 0
	for _, f := range findings {
		total += len(f.Records)
	}
	metrics.ObservePhase(string(types.StatusCompleted))
	o.log.Info("orchestrator: job completed",
		zap.String("job_id", id), zap.String("result_handle", handle), zap.Int("total_items", total))
	o.emit(types.Event{
		JobID:        id,
		Type:         types.EventComplete,
		Status:       types.StatusCompleted,
		Progress:     progressCompleted,
		Message:      "Research completed",
		ResultHandle: handle,
		TotalItems:   total,
	})
	return nil
}

// expand resolves plan names against the registry. Unknown names are
// skipped with a warning event.
func (o *Orchestrator) expand(id string, plan types.ResearchPlan) []types.SourceDescriptor {
	names := plan.AutomatedSources.Names()
	descs := make([]types.SourceDescriptor, 0, len(names))
	for _, name := range names {
		d, ok := o.reg.Lookup(name)
		if !ok {
			o.log.Warn("orchestrator: unknown source in plan",
				zap.String("job_id", id), zap.String("source", name))
			o.emit(types.Event{JobID: id, Type: types.EventWarning, Status: types.StatusProcessingStrategy,
				Progress: progressStrategy, Source: name, Message: "Unknown source skipped: " + name})
			continue
		}
		descs = append(descs, d)
	}
	return descs
}

// advance persists a phase transition and announces it. A job that was
// moved to a terminal state meanwhile stops quietly.
func (o *Orchestrator) advance(ctx context.Context, id string, status types.JobStatus, progress int, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.store.UpdateStatus(ctx, id, status, progress); err != nil {
		return stopOnConflict(fmt.Errorf("entering %s: %w", status, err))
	}
	metrics.ObservePhase(string(status))
	o.log.Debug("orchestrator: phase",
		zap.String("job_id", id), zap.String("status", string(status)), zap.Int("progress", progress))
	o.emit(types.Event{JobID: id, Type: types.EventInfo, Status: status, Progress: progress, Message: msg})
	return nil
}

func (o *Orchestrator) emit(ev types.Event) {
	o.bus.Publish(ev)
}

// errStopped ends a phase whose job reached a terminal state elsewhere.
var errStopped = errors.New("job stopped")

// stopOnConflict maps a terminal-state conflict to errStopped so the
// caller does not overwrite the terminal status.
func stopOnConflict(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%w: %v", errStopped, err)
	}
	return err
}

// NormalizeBrief trims the description and trims and deduplicates
// keywords and categories, dropping empty entries.
func NormalizeBrief(b types.Brief) types.Brief {
	return types.Brief{
		Description: strings.TrimSpace(b.Description),
		Keywords:    dedupe(b.Keywords),
		Categories:  dedupe(b.Categories),
	}
}

// SearchTerms returns the keywords of b, or when there are none, up to max
// words of four or more letters from the description.
func SearchTerms(b types.Brief, max int) []string {
	if len(b.Keywords) > 0 {
		return b.Keywords
	}
	words := strings.FieldsFunc(strings.ToLower(b.Description), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	var terms []string
	seen := make(map[string]bool)
	for _, w := range words {
		w = strings.Trim(w, "-")
		if len([]rune(w)) < 4 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
		if len(terms) == max {
			break
		}
	}
	return terms
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
