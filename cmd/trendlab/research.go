// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/trendlab/internal/jobs"
	"github.com/pdiddy/trendlab/pkg/types"
)

// errAwaitingApproval ends a follow at the approval gate.
var errAwaitingApproval = errors.New("plan awaiting approval")

var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Start a research job and follow its progress",
	Long: `Research starts a job from a brief and prints its progress events on
stderr. Without --auto-approve it stops once the plan is ready, printing
the job id and the plan as YAML; approve it later with "trendlab approve".
With --auto-approve the plan is accepted as generated and the command runs
until the report is written. Interrupting the command cancels the job.`,
	RunE: runResearch,
}

func init() {
	researchCmd.Flags().String("description", "", "what to research (at least 20 characters)")
	researchCmd.Flags().StringSlice("keywords", nil, "search keywords (comma-separated)")
	researchCmd.Flags().StringSlice("categories", nil, "product categories (comma-separated)")
	researchCmd.Flags().Bool("auto-approve", false, "approve the generated plan and run to completion")
	researchCmd.MarkFlagRequired("description")

	rootCmd.AddCommand(researchCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	description, _ := cmd.Flags().GetString("description")
	keywords, _ := cmd.Flags().GetStringSlice("keywords")
	categories, _ := cmd.Flags().GetStringSlice("categories")
	autoApprove, _ := cmd.Flags().GetBool("auto-approve")

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.orch.Start(ctx, types.Brief{
		Description: description,
		Keywords:    keywords,
		Categories:  categories,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Started job %s\n", id)

	err = follow(ctx, a.orch, id, os.Stderr, func(ev types.Event) error {
		if autoApprove {
			return a.orch.Approve(ctx, id, nil)
		}
		fmt.Printf("job_id: %s\nprovenance: %s\n", id, ev.Provenance)
		if err := printYAML(os.Stdout, ev.Plan); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Approve with: trendlab approve %s [--plan edited.yaml]\n", id)
		return errAwaitingApproval
	})
	if errors.Is(err, errAwaitingApproval) {
		return nil
	}
	return err
}

// follow prints the job's events to w until a terminal event. onPlan is
// called for a plan_ready event; an error from it ends the follow. When
// ctx ends first the job is cancelled.
func follow(ctx context.Context, orch *jobs.Orchestrator, id string, w io.Writer, onPlan func(types.Event) error) error {
	events := orch.Events(id)
	defer orch.Release(id)
	for {
		select {
		case <-ctx.Done():
			cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := orch.Cancel(cctx, id); err != nil && !errors.Is(err, jobs.ErrFinished) {
				return err
			}
			return fmt.Errorf("job %s: %w", id, ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return finished(ctx, orch, id)
			}
			printEvent(w, ev)
			switch {
			case ev.Type == types.EventPlanReady && onPlan != nil:
				if err := onPlan(ev); err != nil {
					return err
				}
			case ev.Type == types.EventComplete:
				fmt.Printf("Report: %s\n", ev.ResultHandle)
				return nil
			case ev.Type == types.EventError:
				return fmt.Errorf("job %s: %s", id, ev.Message)
			}
		}
	}
}

// finished reports the outcome of a job whose stream closed before we
// read its terminal event.
func finished(ctx context.Context, orch *jobs.Orchestrator, id string) error {
	job, err := orch.Job(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == types.StatusCompleted {
		fmt.Printf("Report: %s\n", job.ResultHandle)
		return nil
	}
	return fmt.Errorf("job %s %s: %s", id, job.Status, job.ErrorMessage)
}

func printEvent(w io.Writer, ev types.Event) {
	msg := ev.Message
	if ev.Source != "" && !strings.Contains(msg, ev.Source) {
		msg = ev.Source + ": " + msg
	}
	fmt.Fprintf(w, "[%3d%%] %-10s %s\n", ev.Progress, ev.Type, msg)
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return enc.Close()
}
