// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/trendlab/internal/jobs"
	"github.com/pdiddy/trendlab/internal/render"
	"github.com/pdiddy/trendlab/internal/store"
	"github.com/pdiddy/trendlab/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job, its source attempts, and their summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job that has not finished",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var reportCmd = &cobra.Command{
	Use:   "report <job-id>",
	Short: "Print the final report of a completed job as Markdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent research jobs",
	RunE:  runJobs,
}

func init() {
	statusCmd.Flags().Bool("json", false, "output as JSON")
	jobsCmd.Flags().Int("limit", 20, "maximum number of jobs to list")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	job, err := st.Job(ctx, args[0])
	if err != nil {
		return err
	}
	attempts, err := st.Attempts(ctx, job.ID)
	if err != nil {
		return err
	}
	summary := jobs.Summarize(attempts)

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"job": job, "attempts": attempts, "summary": summary})
	}

	fmt.Printf("Job:      %s\n", job.ID)
	fmt.Printf("Brief:    %s\n", job.Brief.Description)
	fmt.Printf("Status:   %s (%d%%)\n", job.Status, job.Progress)
	if job.PlanProvenance != "" {
		fmt.Printf("Plan:     %s, approved=%t\n", job.PlanProvenance, job.PlanApproved)
	}
	if job.ResultHandle != "" {
		fmt.Printf("Report:   %s\n", job.ResultHandle)
	}
	if job.ErrorMessage != "" {
		fmt.Printf("Error:    %s\n", job.ErrorMessage)
	}
	if len(attempts) == 0 {
		return nil
	}

	fmt.Println()
	fmt.Fprintf(os.Stdout, "%-3s  %-32s  %-10s  %5s  %s\n", "#", "Source", "Status", "Items", "Error")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 90))
	for _, a := range attempts {
		fmt.Fprintf(os.Stdout, "%-3d  %-32s  %-10s  %5d  %s\n",
			a.Seq, truncate(a.SourceName, 32), a.Status, a.FoundItems, truncate(a.ErrorMessage, 40))
	}
	fmt.Fprintf(os.Stdout, "\n%d sources: %d succeeded, %d failed, %d pending; %d items (mean %.2f, median %.1f)\n",
		summary.Total, summary.Succeeded, summary.Failed, summary.Pending,
		summary.TotalItems, summary.MeanItems, summary.MedianItems)
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orch.Cancel(ctx, args[0]); err != nil {
		return err
	}
	job, err := a.orch.Job(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Println(statusLine(job))
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	report, handle, err := st.Report(ctx, args[0])
	if err != nil {
		return err
	}
	md, err := render.Markdown(report, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Result: %s\n", handle)
	_, err = os.Stdout.Write(md)
	return err
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	list, err := st.ListJobs(ctx, limit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No jobs found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-20s  %4s  %-16s  %s\n", "Job", "Status", "%", "Created", "Brief")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for _, j := range list {
		fmt.Fprintf(os.Stdout, "%-36s  %-20s  %4d  %-16s  %s\n",
			j.ID, j.Status, j.Progress, j.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(j.Brief.Description, 40))
	}
	return nil
}

// truncate shortens s to n runes with a trailing ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// statusLine is the one-line form of a job used by other commands.
func statusLine(j types.ResearchJob) string {
	return fmt.Sprintf("%s %s (%d%%)", j.ID, j.Status, j.Progress)
}
