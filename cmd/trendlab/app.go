// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pdiddy/trendlab/internal/events"
	"github.com/pdiddy/trendlab/internal/jobs"
	"github.com/pdiddy/trendlab/internal/llm"
	"github.com/pdiddy/trendlab/internal/planner"
	"github.com/pdiddy/trendlab/internal/registry"
	"github.com/pdiddy/trendlab/internal/render"
	"github.com/pdiddy/trendlab/internal/sources"
	"github.com/pdiddy/trendlab/internal/store"
	"github.com/pdiddy/trendlab/internal/synthesis"
	"github.com/pdiddy/trendlab/pkg/types"
)

// app holds the wired components behind every job command.
type app struct {
	store *store.Store
	reg   *registry.Registry
	orch  *jobs.Orchestrator
}

// newApp opens the store and wires the orchestrator from cfg.
func newApp(ctx context.Context, cfg types.Config, log *zap.Logger) (*app, error) {
	reg, err := loadRegistry(cfg.Sources)
	if err != nil {
		return nil, err
	}

	client := &http.Client{}
	completer, err := llm.New(ctx, cfg.LLM, client, log)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	renderer, err := render.New(cfg.Render, render.WithLogger(log))
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	orch := jobs.New(jobs.Deps{
		Store:       st,
		Registry:    reg,
		Planner:     newPlanner(completer, reg, cfg.LLM, log),
		Sources:     sources.NewFactory(cfg.Sources, client, sources.WithLogger(log)),
		Synthesizer: synthesis.New(completer, synthesis.WithLogger(log), synthesis.WithTimeout(cfg.LLM.Timeout)),
		Renderer:    renderer,
		Bus:         events.NewBus(cfg.Server.EventBuffer, log, events.WithRetained(cfg.Server.EventRetained)),
		Collection:  cfg.Collection,
		ResultLimit: cfg.Sources.ResultLimit,
		Log:         log,
	})
	return &app{store: st, reg: reg, orch: orch}, nil
}

// Close stops running phases and closes the store.
func (a *app) Close() error {
	a.orch.Close()
	return a.store.Close()
}

func newPlanner(c llm.Completer, reg *registry.Registry, cfg types.LLMConfig, log *zap.Logger) *planner.Planner {
	return planner.New(c, reg,
		planner.WithLogger(log),
		planner.WithTimeout(cfg.Timeout),
		planner.WithTemperature(cfg.Temperature))
}

// loadRegistry returns the embedded catalog, or the file named in cfg.
func loadRegistry(cfg types.SourcesConfig) (*registry.Registry, error) {
	if cfg.RegistryFile == "" {
		return registry.Default(), nil
	}
	reg, err := registry.LoadFile(cfg.RegistryFile)
	if err != nil {
		return nil, fmt.Errorf("loading source registry: %w", err)
	}
	return reg, nil
}
