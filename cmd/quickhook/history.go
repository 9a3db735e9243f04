package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/karmakaze/quicklog/internal/history"

	"github.com/spf13/cobra"
)

var (
	historyLimit   int
	historyOutcome string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent push deliveries",
	Long: `List the most recent push deliveries recorded in the delivery journal.

The journal is only written when history_db (or --db) is set.

Example:
  quickhook history -n 5 --outcome failed`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of deliveries to show")
	historyCmd.Flags().StringVar(&historyOutcome, "outcome", "", "Only show deliveries with this outcome (ignored, deployed, failed)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	switch historyOutcome {
	case "", history.OutcomeIgnored, history.OutcomeDeployed, history.OutcomeFailed:
	default:
		return fmt.Errorf("unknown outcome %q", historyOutcome)
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return fmt.Errorf("no delivery journal configured: set history_db or pass --db")
	}

	hist, err := history.NewHistory(cfg.HistoryDB)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer hist.Close()

	deliveries, err := hist.Recent(cmd.Context(), historyLimit, historyOutcome)
	if err != nil {
		return err
	}

	return printDeliveries(cmd.OutOrStdout(), deliveries)
}

func printDeliveries(out io.Writer, deliveries []history.Delivery) error {
	if len(deliveries) == 0 {
		_, err := fmt.Fprintln(out, "No deliveries recorded")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRECEIVED\tOUTCOME\tREPOSITORY\tREF\tCOMMIT\tDURATION\tERROR")
	for _, d := range deliveries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID,
			d.ReceivedAt.Local().Format(time.DateTime),
			d.Outcome,
			orDash(d.FullName),
			orDash(d.Ref),
			shortHash(d.CommitHash),
			formatDuration(d.DurationSeconds),
			deref(d.ErrorMessage))
	}
	return tw.Flush()
}

func shortHash(s *string) string {
	h := deref(s)
	if len(h) > 7 {
		return h[:7]
	}
	return orDash(h)
}

func formatDuration(seconds *float64) string {
	if seconds == nil {
		return "-"
	}
	return (time.Duration(*seconds * float64(time.Second))).Round(time.Millisecond).String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
