package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"longentry/app"
	"longentry/ranking"
)

var (
	runWeekFlag string

	rerankPool      string
	rerankMaxActive int
	rerankMinScore  float64

	overrideActive  string
	overrideVersion int64
)

// runWeekCmd runs one weekly evaluation
var runWeekCmd = &cobra.Command{
	Use:   "run-week",
	Short: "Evaluate a week and store every pool",
	Long: `Evaluate the universe for one week and write the snapshots of each
activation pool in a single transaction.

Examples:
  longentry run-week                    # the upcoming week
  longentry run-week --week 2026-10-19  # a specific week`,
	RunE: runWeek,
}

// rerankCmd changes a pool cap and re-ranks the latest week
var rerankCmd = &cobra.Command{
	Use:   "rerank",
	Short: "Change a pool's max_active and re-rank the latest week",
	RunE:  runRerank,
}

// overrideCmd sets or clears a manual override
var overrideCmd = &cobra.Command{
	Use:   "override SYMBOL",
	Short: "Force a symbol active or inactive, or clear its override",
	Args:  cobra.ExactArgs(1),
	RunE:  runOverride,
}

func init() {
	rootCmd.AddCommand(runWeekCmd, rerankCmd, overrideCmd)

	runWeekCmd.Flags().StringVar(&runWeekFlag, "week", "", "Any date of the week to evaluate (YYYY-MM-DD)")

	rerankCmd.Flags().StringVar(&rerankPool, "pool", "", "Pool name")
	rerankCmd.Flags().IntVar(&rerankMaxActive, "max-active", 0, "New activation cap")
	rerankCmd.Flags().Float64Var(&rerankMinScore, "min-score", 0, "New minimum final score")
	_ = rerankCmd.MarkFlagRequired("pool")
	_ = rerankCmd.MarkFlagRequired("max-active")

	overrideCmd.Flags().StringVar(&overrideActive, "active", "", "true, false or clear")
	overrideCmd.Flags().Int64Var(&overrideVersion, "version", 0, "Expected row version")
	_ = overrideCmd.MarkFlagRequired("active")
}

func runWeek(cmd *cobra.Command, args []string) error {
	application, cfg, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	week := app.UpcomingWeek(time.Now(), cfg.Engine.SessionOffset())
	if runWeekFlag != "" {
		if week, err = app.ParseWeek(runWeekFlag); err != nil {
			return err
		}
	}

	report, runErr := application.Runner().RunWeek(cmd.Context(), week)
	if report != nil {
		printReport(report)
	}
	return runErr
}

func printReport(rep *app.RunReport) {
	fmt.Printf("Run %s for week %s (%s)\n", rep.RunID, rep.WeekStart.Format(time.DateOnly), rep.Duration.Round(time.Millisecond))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POOL\tSYMBOLS\tACTIVE\tOVERRIDDEN\tUNRELIABLE\tWRITTEN\tRETRIED")
	for _, p := range rep.Pools {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%t\t%t\n",
			p.Pool, p.Symbols, p.Active, p.Overridden, len(p.Unreliable), p.Written, p.Retried)
	}
	w.Flush()
	if len(rep.Unassigned) > 0 {
		fmt.Printf("Unassigned: %v\n", rep.Unassigned)
	}
}

func runRerank(cmd *cobra.Command, args []string) error {
	application, _, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	var minScore *float64
	if cmd.Flags().Changed("min-score") {
		minScore = &rerankMinScore
	}
	res, err := application.Rerank().Rerank(cmd.Context(), rerankPool, rerankMaxActive, minScore)
	if err != nil {
		return err
	}
	if res.WeekStart.IsZero() {
		fmt.Printf("Pool %s: max_active=%d min_score=%.2f stored, no evaluated week yet\n",
			res.Pool.Name, res.Pool.MaxActive, res.Pool.MinScore)
		return nil
	}
	fmt.Printf("Pool %s week %s: max_active=%d min_score=%.2f active=%v\n",
		res.Pool.Name, res.WeekStart.Format(time.DateOnly), res.Pool.MaxActive, res.Pool.MinScore, res.Active)
	return nil
}

func runOverride(cmd *cobra.Command, args []string) error {
	var o ranking.Override
	switch overrideActive {
	case "true":
		o = ranking.Forced(true)
	case "false":
		o = ranking.Forced(false)
	case "clear":
		o = ranking.Auto()
	default:
		return fmt.Errorf("--active must be true, false or clear, got %q", overrideActive)
	}

	application, _, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	var expected *int64
	if cmd.Flags().Changed("version") {
		expected = &overrideVersion
	}
	row, err := application.Overrides().Set(cmd.Context(), args[0], o, expected)
	if err != nil {
		return err
	}
	fmt.Printf("%s week %s: override=%s active=%t version=%d\n",
		row.Symbol, row.WeekStart.Format(time.DateOnly), o.String(), row.IsActive, row.Version)
	return nil
}
