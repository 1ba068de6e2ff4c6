// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes research jobs over HTTP: starting a job, reading
// and approving its plan, cancelling it, inspecting attempts and the final
// report, and following progress as a Server-Sent Events stream. It also
// serves Prometheus metrics and a health check.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pdiddy/trendlab/internal/metrics"
	"github.com/pdiddy/trendlab/pkg/types"
)

const (
	defaultHeartbeat = 15 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// Service is the job API the server exposes. *jobs.Orchestrator
// implements it.
type Service interface {
	Start(ctx context.Context, brief types.Brief) (string, error)
	GetPlan(ctx context.Context, id string) (types.ResearchPlan, types.PlanProvenance, error)
	Approve(ctx context.Context, id string, plan *types.ResearchPlan) error
	Cancel(ctx context.Context, id string) error
	Job(ctx context.Context, id string) (types.ResearchJob, error)
	Attempts(ctx context.Context, id string) ([]types.SourceAttempt, error)
	Report(ctx context.Context, id string) (types.Report, string, error)
	Events(id string) <-chan types.Event
	Release(id string)
}

// Server is the HTTP front end.
type Server struct {
	svc       Service
	cfg       types.ServerConfig
	log       *zap.Logger
	router    *gin.Engine
	heartbeat time.Duration

	done     chan struct{}
	doneOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithHeartbeat sets how often an idle event stream re-checks the job and
// sends a keep-alive.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) { s.heartbeat = d }
}

// New builds the router for svc.
func New(svc Service, cfg types.ServerConfig, log *zap.Logger, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		svc:       svc,
		cfg:       cfg,
		log:       log,
		heartbeat: defaultHeartbeat,
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/deep-research")
	{
		api.POST("/start", s.handleStart)
		api.GET("/plan/:job_id", s.handlePlan)
		api.POST("/plan/:job_id/approve", s.handleApprove)
		api.POST("/:job_id/cancel", s.handleCancel)
		api.GET("/jobs/:job_id", s.handleJob)
		api.GET("/report/:job_id", s.handleReport)
		api.GET("/stream/:job_id", s.handleStream)
	}
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully.
// Open event streams are ended first.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", zap.String("addr", s.cfg.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("server: shutting down")
	s.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// Stop ends all open event streams.
func (s *Server) Stop() {
	s.doneOnce.Do(func() { close(s.done) })
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("server: request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}
