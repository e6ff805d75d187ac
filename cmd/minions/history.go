package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/minions/internal/persistence"
)

func newHistoryCommand(opts *globalOptions) *cobra.Command {
	var (
		limit    int
		attempts bool
		prune    int
	)
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recent runs, or the task results of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, _, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Workspace.HistoryDB == "" {
				return fmt.Errorf("run history is disabled (workspace.history_db is empty)")
			}
			store, err := openStore(ctx, cfg.Workspace.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			w := cmd.OutOrStdout()
			if cmd.Flags().Changed("prune") {
				n, err := store.PruneRuns(ctx, prune)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "Pruned %d run(s).\n", n)
				return nil
			}
			if len(args) == 0 {
				return listRuns(ctx, w, store, limit)
			}
			return showRun(ctx, w, store, args[0], attempts)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&attempts, "attempts", false, "include per-attempt diagnostics")
	cmd.Flags().IntVar(&prune, "prune", 0, "delete all but the newest N runs")
	return cmd
}

func listRuns(ctx context.Context, w io.Writer, store persistence.Store, limit int) error {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tTOTAL\tOK\tFAILED\tRETRIES\tELAPSED")
	for _, r := range runs {
		elapsed := "running"
		if r.Finished() {
			elapsed = r.Stats.Elapsed.Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime),
			r.Stats.Total, r.Stats.Completed, r.Stats.Failed, r.Stats.Retries, elapsed)
	}
	return tw.Flush()
}

func showRun(ctx context.Context, w io.Writer, store persistence.Store, runID string, withAttempts bool) error {
	run, err := store.GetRun(ctx, runID)
	if errors.Is(err, persistence.ErrRunNotFound) {
		return fmt.Errorf("no run with id %s", runID)
	}
	if err != nil {
		return err
	}
	results, err := store.RunResults(ctx, runID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Run %s started %s: %d/%d committed\n\n",
		run.ID, run.StartedAt.Local().Format(time.DateTime), run.Stats.Completed, run.Stats.Total)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tPATH\tSTATUS\tATTEMPTS\tDETAIL")
	for _, res := range results {
		detail := res.Strategy.String()
		if !res.Succeeded() {
			detail = res.FinalReason
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", res.TaskID, res.TargetPath, statusLabel(res), res.AttemptsUsed, detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !withAttempts {
		return nil
	}

	for _, res := range results {
		recs, err := store.TaskAttempts(ctx, runID, res.TaskID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%s %s\n", res.TaskID, res.TargetPath)
		for _, rec := range recs {
			line := fmt.Sprintf("  #%d %s", rec.Attempt+1, rec.State)
			if rec.Reason != "" {
				line += fmt.Sprintf(" [%s] %s", rec.Kind, rec.Reason)
			}
			if rec.Strategy.String() != "none" {
				line += " via " + rec.Strategy.String()
			}
			fmt.Fprintln(w, line)
		}
	}
	return nil
}
