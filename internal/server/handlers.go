// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pdiddy/trendlab/internal/jobs"
	"github.com/pdiddy/trendlab/pkg/types"
)

type startRequest struct {
	Description string   `json:"description" binding:"required"`
	Keywords    []string `json:"keywords"`
	Categories  []string `json:"categories"`
}

type approveRequest struct {
	Plan *types.ResearchPlan `json:"plan"`
}

// statusFor maps job errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, jobs.ErrNoPlan):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrNotAwaitingApproval), errors.Is(err, jobs.ErrFinished):
		return http.StatusConflict
	case errors.Is(err, jobs.ErrBriefTooShort), errors.Is(err, jobs.ErrEmptyPlan):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error("server: request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, gin.H{"success": false, "error": err.Error()})
}

func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	id, err := s.svc.Start(c.Request.Context(), types.Brief{
		Description: req.Description,
		Keywords:    req.Keywords,
		Categories:  req.Categories,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"job_id":  id,
		"message": "Research job started; the plan will be ready for approval shortly",
	})
}

func (s *Server) handlePlan(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("job_id")
	plan, prov, err := s.svc.GetPlan(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	job, err := s.svc.Job(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"plan":          plan,
		"provenance":    prov,
		"status":        job.Status,
		"plan_approved": job.PlanApproved,
	})
}

func (s *Server) handleApprove(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	id := c.Param("job_id")
	if err := s.svc.Approve(c.Request.Context(), id, req.Plan); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "job_id": id, "message": "Research plan approved"})
}

func (s *Server) handleCancel(c *gin.Context) {
	id := c.Param("job_id")
	if err := s.svc.Cancel(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "job_id": id, "message": jobs.CancelledMessage})
}

func (s *Server) handleJob(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("job_id")
	job, err := s.svc.Job(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	attempts, err := s.svc.Attempts(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"job":      job,
		"attempts": attempts,
		"summary":  jobs.Summarize(attempts),
	})
}

func (s *Server) handleReport(c *gin.Context) {
	id := c.Param("job_id")
	report, handle, err := s.svc.Report(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "job_id": id, "report": report, "result_handle": handle})
}

// handleStream sends the job's events as SSE "message" events until a
// terminal event. A job that is already finished gets one synthesized
// terminal event. Idle streams re-check the job on every heartbeat so a
// job finished by another process still ends the stream.
func (s *Server) handleStream(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("job_id")

	job, err := s.svc.Job(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	send := func(ev types.Event) {
		c.SSEvent("message", ev)
		c.Writer.Flush()
	}

	if job.Status.IsTerminal() {
		send(terminalEvent(job))
		return
	}

	events := s.svc.Events(id)
	defer s.svc.Release(id)
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Stream ended before we saw its terminal event, or another
				// reader released the channel. Resubscribe on the next tick
				// while the job is still running.
				job, err := s.svc.Job(ctx, id)
				if err != nil || job.Status.IsTerminal() {
					if err == nil {
						send(terminalEvent(job))
					}
					return
				}
				events = nil
				continue
			}
			send(ev)
			if ev.Type.IsTerminal() {
				return
			}
		case <-ticker.C:
			job, err := s.svc.Job(ctx, id)
			if err == nil && job.Status.IsTerminal() {
				send(terminalEvent(job))
				return
			}
			if events == nil {
				events = s.svc.Events(id)
			}
			c.SSEvent("ping", gin.H{"job_id": id, "timestamp": time.Now().UTC()})
			c.Writer.Flush()
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// terminalEvent describes a finished job as the event that ended it.
func terminalEvent(job types.ResearchJob) types.Event {
	ev := types.Event{
		JobID:        job.ID,
		Status:       job.Status,
		Progress:     job.Progress,
		ResultHandle: job.ResultHandle,
		Timestamp:    job.UpdatedAt,
	}
	if job.Status == types.StatusCompleted {
		ev.Type = types.EventComplete
		ev.Message = "Research completed"
		return ev
	}
	ev.Type = types.EventError
	ev.Message = job.ErrorMessage
	if ev.Message == "" {
		ev.Message = "research job " + string(job.Status)
	}
	return ev
}
