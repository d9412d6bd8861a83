package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/citysim/internal/indicators"
	"github.com/talgya/citysim/internal/llm"
	"github.com/talgya/citysim/internal/persistence"
)

type historyOptions struct {
	*rootOptions
	Database string
	RunID    string
	Limit    int
	Bulletin bool
}

func newHistoryCommand(root *rootOptions) *cobra.Command {
	opts := &historyOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored runs or one run's history",
		Long: `Without --run, list stored runs. With --run, print the run's history
records, newest last.

Example:
  citysim history --db ./citysim.db
  citysim history --db ./citysim.db --run 6f1c... --limit 24
  citysim history --db ./citysim.db --run 6f1c... --bulletin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", defaultDB(), "SQLite database (env CITYSIM_DB)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show only the last N periods (all when 0)")
	cmd.Flags().BoolVar(&opts.Bulletin, "bulletin", false, "print the economic bulletin for the latest period")

	return cmd
}

func showHistory(ctx context.Context, opts *historyOptions, out io.Writer) error {
	if opts.Database == "" {
		return fmt.Errorf("--db or CITYSIM_DB is required")
	}
	db, err := persistence.Open(opts.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if opts.RunID == "" {
		runs, err := db.Runs(50)
		if err != nil {
			return err
		}
		printRuns(out, runs)
		return nil
	}

	run, err := db.Run(opts.RunID)
	if err != nil {
		return err
	}
	hist, err := db.History(opts.RunID)
	if err != nil {
		return err
	}
	records := hist.Tail(opts.Limit)

	if opts.Bulletin {
		if len(records) == 0 {
			return fmt.Errorf("run %s has no periods yet", opts.RunID)
		}
		var prev *indicators.HistoryRecord
		if len(records) > 1 {
			prev = &records[len(records)-2]
		}
		cfg, err := run.Config()
		if err != nil {
			return err
		}
		b := llm.GenerateBulletin(ctx, newLLMClient(cfg), &records[len(records)-1], prev)
		fmt.Fprintln(out, b.Content)
		return nil
	}

	printRecords(out, records)
	return nil
}

func printRuns(out io.Writer, runs []persistence.Run) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSEED\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", r.ID, r.Seed, humanize.Time(r.CreatedAt))
	}
	tw.Flush()
}

func printRecords(out io.Writer, records []indicators.HistoryRecord) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "PERIOD\tPHASE\tGDP\tREAL GDP\tUNEMP\tINDEX\tINFL\tGINI\tRATE\tHH\tFIRMS\t")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.1f%%\t%.1f\t%.2f%%\t%.3f\t%.2f%%\t%d\t%d\t\n",
			r.Period, r.Phase, money(r.GDP), money(r.RealGDP),
			r.Unemployment*100, r.PriceIndex, r.Inflation*100, r.Gini,
			r.PolicyRate*100, r.Households, r.Firms-r.BankruptFirms)
	}
	tw.Flush()
}
