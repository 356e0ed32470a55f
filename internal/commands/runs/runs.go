// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runs implements the runs command group, which inspects and
// cancels pipeline runs on a running controller.
package runs

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/uptimizeai/zenthia/internal/client"
	"github.com/uptimizeai/zenthia/internal/commands/shared"
	"github.com/uptimizeai/zenthia/internal/controller/api"
)

// requestTimeout bounds each CLI call to the controller.
const requestTimeout = 30 * time.Second

// NewCommand creates the runs command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and cancel pipeline runs",
		Long: `Commands for starting, listing, inspecting and cancelling pipeline runs
on a running zenthia controller.

The controller address is taken from --host or ZENTHIA_HOST.`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newCancelCommand())
	cmd.AddCommand(newStartCommand())
	cmd.AddCommand(newHistoryCommand())

	return cmd
}

func newListCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active runs",
		Long: `List the runs that are currently executing. With --all, runs that finished
recently and are still held by the controller are included.`,
		Example: `  # Active runs
  zenthia runs list

  # Everything the controller still holds, as JSON
  zenthia runs list --all --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				if all {
					runs, err := c.ListRuns(ctx)
					if err != nil {
						return shared.FromAPIError("failed to list runs", err)
					}
					return printRuns(cmd.OutOrStdout(), runs)
				}

				active, err := c.ActiveRuns(ctx)
				if err != nil {
					return shared.FromAPIError("failed to list active runs", err)
				}
				return printActive(cmd.OutOrStdout(), active)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include recently finished runs")

	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show run details",
		Long:  `Display a run. Runs no longer held in memory are read from history.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				run, err := c.GetRun(ctx, args[0])
				if err != nil {
					return shared.FromAPIError("failed to get run", err)
				}

				w := cmd.OutOrStdout()
				if shared.GetJSON() {
					return shared.EmitJSON(w, run)
				}

				fmt.Fprintf(w, "Run ID:    %s\n", run.ID)
				fmt.Fprintf(w, "Status:    %s\n", shared.RenderRunStatus(run.Status))
				fmt.Fprintf(w, "Agent:     %d\n", run.CurrentAgent)
				fmt.Fprintf(w, "Started:   %s\n", shared.FormatMillis(run.StartTime))
				fmt.Fprintf(w, "Completed: %s\n", shared.FormatMillis(run.CompletedAt))
				fmt.Fprintf(w, "Duration:  %s\n", shared.FormatDuration(run.Duration))
				if run.Error != "" {
					fmt.Fprintf(w, "Error:     %s\n", run.Error)
				}
				fmt.Fprintf(w, "Source:    %s\n", run.Source)
				return nil
			})
		},
	}
}

func newCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a running pipeline",
		Long: `Request cancellation of a running pipeline. The run stops at its next
cancellation check; the current agent call is aborted.

Exit codes: 3 if the run does not exist, 4 if it is no longer running.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.Cancel(ctx, args[0])
				if err != nil {
					return shared.FromAPIError("failed to cancel run", err)
				}

				w := cmd.OutOrStdout()
				if shared.GetJSON() {
					return shared.EmitJSON(w, resp)
				}
				if !shared.GetQuiet() {
					fmt.Fprintln(w, shared.RenderOK(fmt.Sprintf("%s: %s", resp.Message, resp.RunID)))
				}
				return nil
			})
		},
	}
}

func newStartCommand() *cobra.Command {
	var runID, input string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a pipeline run",
		Example: `  zenthia runs start --input "quarterly report"
  zenthia runs start --id nightly-2026-10-19 --input "digest"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				resp, err := c.StartRun(ctx, runID, input)
				if err != nil {
					return shared.FromAPIError("failed to start run", err)
				}

				w := cmd.OutOrStdout()
				if shared.GetJSON() {
					return shared.EmitJSON(w, resp)
				}
				if shared.GetQuiet() {
					fmt.Fprintln(w, resp.RunID)
					return nil
				}
				fmt.Fprintln(w, shared.RenderOK("Started run "+resp.RunID))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&runID, "id", "", "Run ID (generated if empty)")
	cmd.Flags().StringVarP(&input, "input", "i", "", "Input passed to the first agent")

	return cmd
}

func newHistoryCommand() *cobra.Command {
	var q client.HistoryQuery

	cmd := &cobra.Command{
		Use:     "history",
		Short:   "List finished runs",
		Example: `  zenthia runs history --status failed --limit 20`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				runs, err := c.History(ctx, q)
				if err != nil {
					return shared.FromAPIError("failed to list history", err)
				}
				return printRuns(cmd.OutOrStdout(), runs)
			})
		},
	}

	cmd.Flags().StringVar(&q.Status, "status", "", "Filter by status (completed, failed, cancelled)")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "Maximum number of runs")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "Number of runs to skip")

	return cmd
}

func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	c, err := shared.NewClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	return fn(ctx, c)
}

func printActive(w io.Writer, runs []api.ActiveRun) error {
	if shared.GetJSON() {
		return shared.EmitJSON(w, api.ActiveRunsResponse{ActiveRuns: runs})
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No active runs")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, shared.RenderHeader("ID\tAGENT\tSTARTED\tRUNNING FOR"))
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.ID, r.CurrentAgent, shared.FormatMillis(r.StartTime), shared.FormatDuration(r.Duration))
	}
	return tw.Flush()
}

func printRuns(w io.Writer, runs []api.RunView) error {
	if shared.GetJSON() {
		return shared.EmitJSON(w, api.RunListResponse{Runs: runs})
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, shared.RenderHeader("ID\tAGENT\tSTARTED\tDURATION\tSTATUS"))
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", r.ID, r.CurrentAgent, shared.FormatMillis(r.StartTime),
			shared.FormatDuration(r.Duration), shared.RenderRunStatus(r.Status))
	}
	return tw.Flush()
}
