package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/breadthlab/regimed/internal/classifier"
	"github.com/breadthlab/regimed/internal/domain"
	"github.com/breadthlab/regimed/internal/validate"
)

// classify is the operator's one-shot: feed counts in, get the raw
// classification out. No smoothing, no persistence; the daemon path owns
// those.
func newClassifyCmd() *cobra.Command {
	var (
		longCount  int
		shortCount int
		total      int
		sma20      float64
		sma50      float64
		volume     float64
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a single snapshot from the command line",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fv := domain.FeatureVector{
				Ratio:               validate.Ratio(longCount, shortCount),
				SMA20Percent:        sma20,
				SMA50Percent:        sma50,
				VolumeParticipation: volume,
			}
			res := classifier.New(cfg.Classify).Classify(fv, time.Now())

			out := map[string]interface{}{
				"regime":     res.Prediction.Regime,
				"confidence": res.Prediction.Confidence,
				"source":     res.Prediction.Source,
				"ratio":      fv.Ratio,
			}
			if total > 0 && total < cfg.Validator.MinStockCount {
				out["warning"] = fmt.Sprintf("sample of %d is below the %d minimum; the daemon would reject this snapshot", total, cfg.Validator.MinStockCount)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().IntVar(&longCount, "long", 0, "long signal count")
	cmd.Flags().IntVar(&shortCount, "short", 0, "short signal count")
	cmd.Flags().IntVar(&total, "total", 0, "total stocks scanned")
	cmd.Flags().Float64Var(&sma20, "sma20", 50, "percent of universe above 20-day SMA")
	cmd.Flags().Float64Var(&sma50, "sma50", 50, "percent of universe above 50-day SMA")
	cmd.Flags().Float64Var(&volume, "volume", 50, "volume participation percent")
	return cmd
}
