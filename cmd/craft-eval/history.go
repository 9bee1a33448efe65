package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ironsheep/craft-eval/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var dbPath, runID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded evaluation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := store.NewStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			if runID != "" {
				batches, err := s.Batches(cmd.Context(), runID)
				if err != nil {
					return err
				}
				return printBatches(cmd.OutOrStdout(), batches)
			}
			runs, err := s.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "craft-eval.db", "sqlite file written by eval --results-db")
	cmd.Flags().StringVar(&runID, "run", "", "show the batches of one run")
	return cmd
}

func printRuns(w io.Writer, runs []store.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tCHECKPOINT\tSEED\tBATCHES\tMEAN LOSS\tMEAN F-SCORE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%.8f\t%.4f\n",
			r.ID, r.StartedAt.Format(time.DateTime), r.Status, r.Checkpoint, r.Seed,
			r.Batches, r.MeanLoss, r.MeanFScore)
	}
	return tw.Flush()
}

func printBatches(w io.Writer, batches []store.BatchRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BATCH\tLOSS\tF-SCORE")
	for _, b := range batches {
		fmt.Fprintf(tw, "%d\t%.8f\t%.4f\n", b.No, b.Loss, b.FScore)
	}
	return tw.Flush()
}
