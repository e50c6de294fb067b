package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"longentry/app"
	"longentry/database"
	models "longentry/database/models_pkg"
	"longentry/fundamental"
)

var (
	fundamentalWeek string

	outlookFlags fundamental.Outlook

	eventDate   string
	eventTitle  string
	eventImpact string
)

// fundamentalCmd groups fundamental score maintenance
var fundamentalCmd = &cobra.Command{
	Use:   "fundamental",
	Short: "Maintain fundamental scores",
}

// fundamentalRefreshCmd recomputes fundamental scores from region outlooks
var fundamentalRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Recompute fundamental scores from the stored region outlooks and events",
	RunE:  runFundamentalRefresh,
}

// outlookCmd stores the macro outlook of a region
var outlookCmd = &cobra.Command{
	Use:   "outlook REGION",
	Short: "Set a region outlook; every stance is -1, 0 or 1",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetOutlook,
}

// eventCmd adds an economic calendar entry
var eventCmd = &cobra.Command{
	Use:   "event REGION",
	Short: "Add an economic calendar event",
	Args:  cobra.ExactArgs(1),
	RunE:  runAddEvent,
}

func init() {
	rootCmd.AddCommand(fundamentalCmd)
	fundamentalCmd.AddCommand(fundamentalRefreshCmd, outlookCmd, eventCmd)
	fundamentalRefreshCmd.Flags().StringVar(&fundamentalWeek, "week", "", "Any date of the week (YYYY-MM-DD)")

	outlookCmd.Flags().IntVar(&outlookFlags.CBStance, "cb-stance", 0, "-1 hawkish, 1 dovish")
	outlookCmd.Flags().IntVar(&outlookFlags.Growth, "growth", 0, "-1 contracting, 1 expanding")
	outlookCmd.Flags().IntVar(&outlookFlags.Inflation, "inflation", 0, "-1 falling, 1 rising")
	outlookCmd.Flags().IntVar(&outlookFlags.Risk, "risk", 0, "-1 risk-off, 1 risk-on")
	outlookCmd.Flags().StringVar(&outlookFlags.Notes, "notes", "", "Free text")

	eventCmd.Flags().StringVar(&eventDate, "date", "", "Event date (YYYY-MM-DD)")
	eventCmd.Flags().StringVar(&eventTitle, "title", "", "Event title")
	eventCmd.Flags().StringVar(&eventImpact, "impact", database.ImpactMedium, "high, medium or low")
	_ = eventCmd.MarkFlagRequired("date")
	_ = eventCmd.MarkFlagRequired("title")
}

func runFundamentalRefresh(cmd *cobra.Command, args []string) error {
	application, cfg, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	week := app.UpcomingWeek(time.Now(), cfg.Engine.SessionOffset())
	if fundamentalWeek != "" {
		if week, err = app.ParseWeek(fundamentalWeek); err != nil {
			return err
		}
	}
	scores, err := application.RefreshFundamentals(cmd.Context(), week)
	if err != nil {
		return err
	}
	for _, s := range scores {
		fmt.Printf("%-10s %5.1f %s\n", s.Symbol, s.Score, s.Label)
	}
	return nil
}

func runSetOutlook(cmd *cobra.Command, args []string) error {
	application, _, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	o := outlookFlags
	o.Region = args[0]
	if err := application.Fundamentals().SaveOutlook(cmd.Context(), o); err != nil {
		return err
	}
	fmt.Printf("Outlook %s stored\n", o.Region)
	return nil
}

func runAddEvent(cmd *cobra.Command, args []string) error {
	date, err := time.Parse(time.DateOnly, eventDate)
	if err != nil {
		return fmt.Errorf("--date: %w", err)
	}

	application, _, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	e := &models.EconomicEvent{
		Region:    args[0],
		EventDate: date,
		Title:     eventTitle,
		Impact:    strings.ToLower(eventImpact),
	}
	if err := application.Fundamentals().CreateEvent(cmd.Context(), e); err != nil {
		return err
	}
	fmt.Printf("Event %d stored for %s\n", e.ID, e.Region)
	return nil
}
