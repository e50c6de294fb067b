package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"longentry/app"
	"longentry/config"
	"longentry/helpers"
)

// rootCmd is the base command of the LongEntry service
var rootCmd = &cobra.Command{
	Use:   "longentry",
	Short: "LongEntry weekly long-entry decision engine",
	Long: `LongEntry scores a universe of markets once a week from hourly candles,
backtested entry parameters and a fundamental outlook, and decides which
symbols the trading clients may trade long during the coming week.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads config, sets up logging and connects the application.
func bootstrap(ctx context.Context) (*app.App, *config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, err
	}
	helpers.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	application := app.New(cfg)
	if err := application.Init(ctx); err != nil {
		application.Close()
		return nil, nil, err
	}
	return application, cfg, nil
}
