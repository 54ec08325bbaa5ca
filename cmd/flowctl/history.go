package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/simpleflow/flow/store"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect runs recorded in the history store",
	}
	cmd.AddCommand(
		newHistoryRunsCmd(a),
		newHistoryShowCmd(a),
	)
	return cmd
}

func newHistoryRunsCmd(a *app) *cobra.Command {
	var (
		flowName string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), flowName, limit)
			if err != nil {
				return err
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.ID, r.Flow, string(r.Status), formatTime(r.StartedAt), runDuration(r), r.Error}
			}
			return a.output().print(
				[]string{"ID", "FLOW", "STATUS", "STARTED", "DURATION", "ERROR"},
				rows, runs,
			)
		},
	}

	cmd.Flags().StringVar(&flowName, "flow", "", "Filter by flow name")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs (0 for all)")

	return cmd
}

func newHistoryShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show the history entries of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.LoadRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}

			out := a.output()
			if out.jsonMode {
				return out.json(run)
			}

			fmt.Fprintf(out.w, "Run:      %s\nFlow:     %s\nStatus:   %s\nStarted:  %s\nDuration: %s\n",
				run.ID, run.Flow, run.Status, formatTime(run.StartedAt), runDuration(*run))
			if run.Error != "" {
				fmt.Fprintf(out.w, "Error:    %s\n", run.Error)
			}
			fmt.Fprintln(out.w)

			rows := make([][]string, len(run.Entries))
			for i, e := range run.Entries {
				rows[i] = []string{
					strconv.Itoa(e.Seq), e.Name, result(e.Succeeded, e.Message),
					detail(e.Message, e.Error), formatTime(e.At),
				}
			}
			return out.table([]string{"SEQ", "NODE", "RESULT", "DETAIL", "AT"}, rows)
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func runDuration(r store.RunRecord) string {
	if r.FinishedAt.IsZero() {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}
