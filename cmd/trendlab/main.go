// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the trendlab CLI. It runs the HTTP
// API and drives research jobs from the terminal.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/trendlab/internal/config"
	"github.com/pdiddy/trendlab/internal/logging"
	"github.com/pdiddy/trendlab/internal/secrets"
	"github.com/pdiddy/trendlab/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// Loaded by the root command before any subcommand runs.
var (
	cfg    types.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "trendlab",
	Short: "Plan, collect, and synthesize market trend research",
	Long: `trendlab turns a short research brief into a market trend report. A job
first gets a research plan naming the sources to query. After the plan is
approved the sources are queried concurrently, and the findings are
synthesized into a report written as Markdown, HTML, and DOCX.

Run "trendlab serve" for the HTTP API, or "trendlab research" to run a job
from the terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		creds, err := secrets.LoadAll(".secrets/", ".env")
		if err != nil {
			return err
		}
		if len(creds) > 0 {
			keys := make([]string, 0, len(creds))
			for k := range creds {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}

		cfgFile, _ := cmd.Flags().GetString("config")
		v, err := config.New(cfgFile)
		if err != nil {
			return err
		}
		if used := v.ConfigFileUsed(); used != "" {
			fmt.Fprintln(os.Stderr, "Using config file:", used)
		}
		if cfg, err = config.Load(v, creds); err != nil {
			return err
		}
		if logger, err = logging.New(cfg.Log); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./trendlab.yaml or ~/.config/trendlab/trendlab.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
