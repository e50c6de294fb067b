package main

import (
	"github.com/spf13/cobra"

	"longentry/api"
)

// serveCmd runs the HTTP API and the optional weekly scheduler
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the EA configuration, override, pool and analysis routes. With
RUN_SCHEDULE_ENABLED=true the weekly run is triggered in-process at
RUN_SCHEDULE_WEEKDAY / RUN_SCHEDULE_HOUR on the session clock.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	application, cfg, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}

	server := api.NewServer(api.Deps{
		Query:      application.Query(),
		Overrides:  application.Overrides(),
		Pools:      application.Rerank(),
		Results:    application.Results(),
		Candles:    application.Candles(),
		Analytics:  application.Analytics(),
		Metrics:    application.Metrics(),
		Health:     application.Health,
		Events:     application.Events(),
		APIKeyHash: cfg.API.APIKeyHash,
	})
	return application.Serve(server)
}
