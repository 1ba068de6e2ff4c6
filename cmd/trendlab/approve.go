// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/trendlab/pkg/types"
)

var approveCmd = &cobra.Command{
	Use:   "approve <job-id>",
	Short: "Approve a job's plan and run it to completion",
	Long: `Approve accepts the plan of a job waiting for approval, optionally
replacing it with an edited plan read from a YAML file, and follows the
job until the report is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

func init() {
	approveCmd.Flags().String("plan", "", "YAML file with an edited research plan")

	rootCmd.AddCommand(approveCmd)
}

func runApprove(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id := args[0]
	var plan *types.ResearchPlan
	if path, _ := cmd.Flags().GetString("plan"); path != "" {
		p, err := readPlan(path)
		if err != nil {
			return err
		}
		plan = &p
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orch.Approve(ctx, id, plan); err != nil {
		return err
	}
	return follow(ctx, a.orch, id, os.Stderr, nil)
}

func readPlan(path string) (types.ResearchPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ResearchPlan{}, fmt.Errorf("reading plan: %w", err)
	}
	var plan types.ResearchPlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return types.ResearchPlan{}, fmt.Errorf("parsing plan %s: %w", path, err)
	}
	return plan, nil
}
