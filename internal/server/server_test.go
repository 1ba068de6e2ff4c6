// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/trendlab/internal/jobs"
	"github.com/pdiddy/trendlab/pkg/types"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// --- fake service ---

type fakeService struct {
	mu        sync.Mutex
	jobs      map[string]types.ResearchJob
	attempts  map[string][]types.SourceAttempt
	reports   map[string]types.Report
	streams   map[string]chan types.Event
	approved  map[string]*types.ResearchPlan
	lastBrief types.Brief
	startErr  error
	released  []string

	onSubscribe func()
}

func newFakeService() *fakeService {
	return &fakeService{
		jobs:     make(map[string]types.ResearchJob),
		attempts: make(map[string][]types.SourceAttempt),
		reports:  make(map[string]types.Report),
		streams:  make(map[string]chan types.Event),
		approved: make(map[string]*types.ResearchPlan),
	}
}

func (f *fakeService) put(job types.ResearchJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
}

func (f *fakeService) stream(id string) chan types.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.streams[id]
	if !ok {
		ch = make(chan types.Event, 16)
		f.streams[id] = ch
	}
	return ch
}

func (f *fakeService) Start(_ context.Context, b types.Brief) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastBrief = b
	if f.startErr != nil {
		return "", f.startErr
	}
	return "job-new", nil
}

func (f *fakeService) GetPlan(_ context.Context, id string) (types.ResearchPlan, types.PlanProvenance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return types.ResearchPlan{}, "", jobs.ErrNotFound
	}
	if j.Plan == nil {
		return types.ResearchPlan{}, "", jobs.ErrNoPlan
	}
	return *j.Plan, j.PlanProvenance, nil
}

func (f *fakeService) Approve(_ context.Context, id string, plan *types.ResearchPlan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return jobs.ErrNotFound
	}
	if plan != nil && plan.SourceCount() == 0 {
		return jobs.ErrEmptyPlan
	}
	if j.Status != types.StatusWaitingApproval {
		return jobs.ErrNotAwaitingApproval
	}
	j.Status = types.StatusProcessingStrategy
	f.jobs[id] = j
	f.approved[id] = plan
	return nil
}

func (f *fakeService) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return jobs.ErrNotFound
	}
	if j.Status.IsTerminal() {
		return jobs.ErrFinished
	}
	j.Status = types.StatusCancelled
	f.jobs[id] = j
	return nil
}

func (f *fakeService) Job(_ context.Context, id string) (types.ResearchJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return types.ResearchJob{}, fmt.Errorf("job %s: %w", id, jobs.ErrNotFound)
	}
	return j, nil
}

func (f *fakeService) Attempts(_ context.Context, id string) ([]types.SourceAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[id], nil
}

func (f *fakeService) Report(_ context.Context, id string) (types.Report, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return types.Report{}, "", jobs.ErrNotFound
	}
	return r, "out/trend_report_" + id + ".md", nil
}

func (f *fakeService) Events(id string) <-chan types.Event {
	ch := f.stream(id)
	if f.onSubscribe != nil {
		f.onSubscribe()
	}
	return ch
}

func (f *fakeService) Release(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, id)
	delete(f.streams, id)
}

// --- helpers ---

func newTestServer(t *testing.T, svc Service, opts ...Option) *Server {
	t.Helper()
	return New(svc, types.ServerConfig{Addr: ":0"}, zaptest.NewLogger(t), opts...)
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func samplePlan() *types.ResearchPlan {
	return &types.ResearchPlan{
		ResearchObjectives: []string{"Map demand"},
		AutomatedSources: types.AutomatedSources{
			General:        []string{"PubMed", "Open Food Facts"},
			StatisticalDBs: map[string]string{"EU": "Eurostat"},
		},
	}
}

// readSSE parses "data:" payloads of message events from an SSE body.
func readSSE(t *testing.T, body string) []types.Event {
	t.Helper()
	var (
		out   []types.Event
		event string
	)
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:") && event == "message":
			var ev types.Event
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &ev))
			out = append(out, ev)
		}
	}
	return out
}

// --- tests ---

func TestStart(t *testing.T) {
	svc := newFakeService()
	s := newTestServer(t, svc)

	rec, body := do(t, s, http.MethodPost, "/api/deep-research/start",
		`{"description": "cereal bar protein trends", "keywords": ["protein", "bar"], "categories": ["health"]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "job-new", body["job_id"])
	assert.Equal(t, []string{"protein", "bar"}, svc.lastBrief.Keywords)
}

func TestStart_BadRequests(t *testing.T) {
	svc := newFakeService()
	s := newTestServer(t, svc)

	rec, body := do(t, s, http.MethodPost, "/api/deep-research/start", `{"keywords": ["x"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, _ = do(t, s, http.MethodPost, "/api/deep-research/start", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.startErr = fmt.Errorf("%w: 5 characters", jobs.ErrBriefTooShort)
	rec, body = do(t, s, http.MethodPost, "/api/deep-research/start", `{"description": "short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "too short")

	svc.startErr = errors.New("disk full")
	rec, _ = do(t, s, http.MethodPost, "/api/deep-research/start", `{"description": "long enough description here"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPlan(t *testing.T) {
	svc := newFakeService()
	svc.put(types.ResearchJob{ID: "j1", Status: types.StatusWaitingApproval, Plan: samplePlan(), PlanProvenance: types.ProvenanceFallback})
	svc.put(types.ResearchJob{ID: "j2", Status: types.StatusGeneratingPlan})
	s := newTestServer(t, svc)

	rec, body := do(t, s, http.MethodGet, "/api/deep-research/plan/j1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fallback", body["provenance"])
	assert.Equal(t, "waiting_approval", body["status"])
	plan := body["plan"].(map[string]any)
	assert.Contains(t, plan, "automated_sources")

	rec, _ = do(t, s, http.MethodGet, "/api/deep-research/plan/j2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no plan yet")

	rec, _ = do(t, s, http.MethodGet, "/api/deep-research/plan/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApprove(t *testing.T) {
	tests := []struct {
		name     string
		job      string
		body     string
		wantCode int
		wantPlan bool
	}{
		{"keep stored plan", "waiting", "", http.StatusOK, false},
		{"explicit null plan", "waiting", `{"plan": null}`, http.StatusOK, false},
		{"edited plan", "waiting", `{"plan": {"automated_sources": {"general": ["PubMed"]}}}`, http.StatusOK, true},
		{"empty plan", "waiting", `{"plan": {"automated_sources": {}}}`, http.StatusBadRequest, false},
		{"not waiting", "running", "", http.StatusConflict, false},
		{"unknown job", "nope", "", http.StatusNotFound, false},
		{"bad json", "waiting", `{"plan": [}`, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.put(types.ResearchJob{ID: "waiting", Status: types.StatusWaitingApproval, Plan: samplePlan()})
			svc.put(types.ResearchJob{ID: "running", Status: types.StatusScrapingData, Plan: samplePlan()})
			s := newTestServer(t, svc)

			rec, _ := do(t, s, http.MethodPost, "/api/deep-research/plan/"+tt.job+"/approve", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode == http.StatusOK {
				plan, ok := svc.approved[tt.job]
				require.True(t, ok)
				assert.Equal(t, tt.wantPlan, plan != nil)
			}
		})
	}
}

func TestCancel(t *testing.T) {
	svc := newFakeService()
	svc.put(types.ResearchJob{ID: "j1", Status: types.StatusScrapingData})
	svc.put(types.ResearchJob{ID: "done", Status: types.StatusCompleted})
	s := newTestServer(t, svc)

	rec, body := do(t, s, http.MethodPost, "/api/deep-research/j1/cancel", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, jobs.CancelledMessage, body["message"])

	rec, _ = do(t, s, http.MethodPost, "/api/deep-research/done/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/deep-research/nope/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJob(t *testing.T) {
	svc := newFakeService()
	svc.put(types.ResearchJob{ID: "j1", Status: types.StatusCompleted, Progress: 100})
	svc.attempts["j1"] = []types.SourceAttempt{
		{SourceName: "PubMed", Status: types.AttemptSuccess, FoundItems: 4},
		{SourceName: "Eurostat", Status: types.AttemptError, ErrorMessage: "HTTP 500"},
	}
	s := newTestServer(t, svc)

	rec, body := do(t, s, http.MethodGet, "/api/deep-research/jobs/j1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	job := body["job"].(map[string]any)
	assert.Equal(t, "j1", job["job_id"])
	assert.Len(t, body["attempts"], 2)
	summary := body["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["succeeded"])
	assert.Equal(t, float64(1), summary["failed"])
	assert.Equal(t, float64(4), summary["total_items"])

	rec, _ = do(t, s, http.MethodGet, "/api/deep-research/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReport(t *testing.T) {
	svc := newFakeService()
	svc.reports["j1"] = types.Report{Title: "Protein Bars", Sources: []types.ReportSource{{Name: "PubMed"}}}
	s := newTestServer(t, svc)

	rec, body := do(t, s, http.MethodGet, "/api/deep-research/report/j1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Protein Bars", body["report"].(map[string]any)["title"])
	assert.Equal(t, "out/trend_report_j1.md", body["result_handle"])

	rec, _ = do(t, s, http.MethodGet, "/api/deep-research/report/j2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, newFakeService())

	rec, body := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, _ = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStream_ForwardsUntilTerminal(t *testing.T) {
	svc := newFakeService()
	svc.put(types.ResearchJob{ID: "j1", Status: types.StatusScrapingData, Progress: 20})
	ch := svc.stream("j1")
	ch <- types.Event{JobID: "j1", Type: types.EventSuccess, Progress: 30, Source: "PubMed", FoundItems: 3}
	ch <- types.Event{JobID: "j1", Type: types.EventInfo, Progress: 67, Status: types.StatusSynthesizingReport}
	ch <- types.Event{JobID: "j1", Type: types.EventComplete, Progress: 100, ResultHandle: "out/r.md"}
	ch <- types.Event{JobID: "j1", Type: types.EventInfo, Message: "never sent"}
	s := newTestServer(t, svc)

	rec, _ := do(t, s, http.MethodGet, "/api/deep-research/stream/j1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	evs := readSSE(t, rec.Body.String())
	require.Len(t, evs, 3)
	assert.Equal(t, "PubMed", evs[0].Source)
	assert.Equal(t, 3, evs[0].FoundItems)
	assert.Equal(t, types.EventComplete, evs[2].Type)
	assert.Equal(t, "out/r.md", evs[2].ResultHandle)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Equal(t, []string{"j1"}, svc.released, "reader releases the stream on exit")
}

func TestStream_TerminalJobGetsOneEvent(t *testing.T) {
	for _, tt := range []struct {
		job  types.ResearchJob
		want types.EventType
		msg  string
	}{
		{types.ResearchJob{ID: "ok", Status: types.StatusCompleted, Progress: 100, ResultHandle: "out/x.md"}, types.EventComplete, "Research completed"},
		{types.ResearchJob{ID: "bad", Status: types.StatusFailed, ErrorMessage: "saving plan: disk full"}, types.EventError, "saving plan: disk full"},
		{types.ResearchJob{ID: "stop", Status: types.StatusCancelled, ErrorMessage: jobs.CancelledMessage}, types.EventError, jobs.CancelledMessage},
	} {
		t.Run(string(tt.job.Status), func(t *testing.T) {
			svc := newFakeService()
			svc.put(tt.job)
			s := newTestServer(t, svc)

			rec, _ := do(t, s, http.MethodGet, "/api/deep-research/stream/"+tt.job.ID, "")
			evs := readSSE(t, rec.Body.String())
			require.Len(t, evs, 1)
			assert.Equal(t, tt.want, evs[0].Type)
			assert.Equal(t, tt.msg, evs[0].Message)
			assert.Equal(t, tt.job.Status, evs[0].Status)
			svc.mu.Lock()
			assert.Empty(t, svc.streams, "no subscription for finished jobs")
			svc.mu.Unlock()
		})
	}
}

func TestStream_ClosedChannelFallsBackToJob(t *testing.T) {
	svc := newFakeService()
	svc.put(types.ResearchJob{ID: "j1", Status: types.StatusScrapingData})
	ch := svc.stream("j1")
	ch <- types.Event{JobID: "j1", Type: types.EventInfo, Progress: 40}
	close(ch)
	svc.onSubscribe = func() {
		svc.put(types.ResearchJob{ID: "j1", Status: types.StatusFailed, ErrorMessage: "boom"})
	}
	s := newTestServer(t, svc)

	rec, _ := do(t, s, http.MethodGet, "/api/deep-research/stream/j1", "")
	evs := readSSE(t, rec.Body.String())
	require.Len(t, evs, 2)
	assert.Equal(t, 40, evs[0].Progress)
	assert.Equal(t, types.EventError, evs[1].Type)
	assert.Equal(t, "boom", evs[1].Message)
}

func TestStream_ResubscribesWhileJobRuns(t *testing.T) {
	svc := newFakeService()
	svc.put(types.ResearchJob{ID: "j1", Status: types.StatusScrapingData})
	ch := svc.stream("j1")
	ch <- types.Event{JobID: "j1", Type: types.EventInfo, Progress: 40}
	close(ch)
	subscribed := 0
	svc.onSubscribe = func() {
		subscribed++
		if subscribed > 1 {
			return
		}
		// Another reader released the first channel; later events land
		// in a new one.
		fresh := make(chan types.Event, 4)
		fresh <- types.Event{JobID: "j1", Type: types.EventInfo, Progress: 70}
		fresh <- types.Event{JobID: "j1", Type: types.EventComplete, Progress: 100}
		svc.mu.Lock()
		svc.streams["j1"] = fresh
		svc.mu.Unlock()
	}
	s := newTestServer(t, svc, WithHeartbeat(20*time.Millisecond))

	rec, _ := do(t, s, http.MethodGet, "/api/deep-research/stream/j1", "")
	evs := readSSE(t, rec.Body.String())
	require.Len(t, evs, 3)
	assert.Equal(t, 40, evs[0].Progress)
	assert.Equal(t, 70, evs[1].Progress)
	assert.Equal(t, types.EventComplete, evs[2].Type)
	assert.Equal(t, 2, subscribed)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Equal(t, []string{"j1"}, svc.released)
}

func TestStream_HeartbeatNoticesFinishedJob(t *testing.T) {
	svc := newFakeService()
	svc.put(types.ResearchJob{ID: "j1", Status: types.StatusScrapingData})
	s := newTestServer(t, svc, WithHeartbeat(20*time.Millisecond))

	go func() {
		time.Sleep(60 * time.Millisecond)
		svc.put(types.ResearchJob{ID: "j1", Status: types.StatusCompleted, Progress: 100})
	}()

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/deep-research/stream/j1", nil))
		done <- rec
	}()

	select {
	case rec := <-done:
		assert.Contains(t, rec.Body.String(), "event:ping")
		evs := readSSE(t, rec.Body.String())
		require.Len(t, evs, 1)
		assert.Equal(t, types.EventComplete, evs[0].Type)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after the job finished")
	}
}

func TestStream_UnknownJob(t *testing.T) {
	s := newTestServer(t, newFakeService())
	rec, _ := do(t, s, http.MethodGet, "/api/deep-research/stream/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStop_EndsOpenStreams(t *testing.T) {
	svc := newFakeService()
	svc.put(types.ResearchJob{ID: "j1", Status: types.StatusScrapingData})
	s := newTestServer(t, svc)

	done := make(chan struct{})
	go func() {
		defer close(done)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/deep-research/stream/j1", nil))
	}()
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream still open after Stop")
	}
}
