// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/trendlab/internal/jobs"
	"github.com/pdiddy/trendlab/internal/llm"
	"github.com/pdiddy/trendlab/pkg/types"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate a research plan without starting a job",
	Long: `Plan runs only the planning step for a brief and prints the plan as
YAML, preceded by its provenance (llm or fallback). Nothing is stored.
Edit the output and pass it to "trendlab approve --plan" to run a job
with a hand-tuned source selection.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().String("description", "", "what to research")
	planCmd.Flags().StringSlice("keywords", nil, "search keywords (comma-separated)")
	planCmd.Flags().StringSlice("categories", nil, "product categories (comma-separated)")
	planCmd.MarkFlagRequired("description")

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	description, _ := cmd.Flags().GetString("description")
	keywords, _ := cmd.Flags().GetStringSlice("keywords")
	categories, _ := cmd.Flags().GetStringSlice("categories")
	brief := jobs.NormalizeBrief(types.Brief{Description: description, Keywords: keywords, Categories: categories})

	reg, err := loadRegistry(cfg.Sources)
	if err != nil {
		return err
	}
	completer, err := llm.New(ctx, cfg.LLM, &http.Client{}, logger)
	if err != nil {
		return fmt.Errorf("creating llm client: %w", err)
	}

	plan, prov := newPlanner(completer, reg, cfg.LLM, logger).GeneratePlan(ctx, brief)
	fmt.Fprintf(os.Stderr, "Plan provenance: %s, %d sources\n", prov, plan.SourceCount())
	return printYAML(os.Stdout, plan)
}
