package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/breadthlab/regimed/internal/classifier"
	"github.com/breadthlab/regimed/internal/feedback"
)

func newRetrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retrain",
		Short: "Train a model version from graded feedback now",
		Long: `Fits a new model on graded feedback history and stores it as a new
version. The daemon picks up the best stored version on its next retrain or
restart; a manual retrain never degrades a running instance.`,
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

			retrainer := feedback.NewRetrainer(cfg.Retention.Window(), repo, classifier.New(cfg.Classify))
			mv, err := retrainer.Retrain(ctx, time.Now())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"version":    mv.ID,
				"trained_at": mv.TrainedAt,
				"accuracy":   mv.Accuracy,
				"samples":    mv.Samples,
			})
		},
	}
}
