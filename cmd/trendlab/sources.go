// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/trendlab/pkg/types"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the source catalog",
	Long: `Sources prints the catalog the planner chooses from: general sources,
AI deep research services, national statistical databases, and industry
websites.`,
	RunE: runSources,
}

func init() {
	sourcesCmd.Flags().String("kind", "", "filter by kind: general, ai_deep_research, statistical, industry")

	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry(cfg.Sources)
	if err != nil {
		return err
	}

	list := reg.All()
	if kind, _ := cmd.Flags().GetString("kind"); kind != "" {
		switch k := types.SourceKind(kind); k {
		case types.KindGeneral, types.KindAIDeepResearch, types.KindStatistical, types.KindIndustry:
			list = reg.ByKind(k)
		default:
			return fmt.Errorf("unknown kind %q: use general, ai_deep_research, statistical, or industry", kind)
		}
	}

	fmt.Fprintf(os.Stdout, "%-40s  %-16s  %-4s  %s\n", "Name", "Kind", "CC", "URL")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for _, d := range list {
		fmt.Fprintf(os.Stdout, "%-40s  %-16s  %-4s  %s\n", truncate(d.Name, 40), d.Kind, d.CountryCode, d.URL)
	}
	fmt.Fprintf(os.Stdout, "\n%d sources\n", len(list))
	return nil
}
