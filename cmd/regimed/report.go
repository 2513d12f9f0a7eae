package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/breadthlab/regimed/internal/feedback"
	"github.com/breadthlab/regimed/internal/marketdata"
	"github.com/breadthlab/regimed/internal/persistence"
)

func newReportCmd() *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the accuracy report for the recent window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			repo, db, err := openRepository(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			tracker := feedback.NewTracker(cfg.Feedback, marketdata.NewHTTPBroker(cfg.Feeds), repo)
			now := time.Now()
			stats, err := tracker.Report(ctx, persistence.TimeRange{
				From: now.Add(-time.Duration(hours) * time.Hour),
				To:   now,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"window_hours": hours,
				"overall":      stats.Overall(),
				"total":        stats.Total,
				"by_regime":    stats.ByRegime,
			})
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 168, "report window in hours")
	return cmd
}
