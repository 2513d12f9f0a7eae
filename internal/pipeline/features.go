package pipeline

import (
	"gonum.org/v1/gonum/stat"

	"github.com/breadthlab/regimed/internal/domain"
)

// minScansForFeatures is the shortest scan history that yields meaningful
// moving averages. Below it the cycle is skipped, not guessed.
const minScansForFeatures = 3

// scanHistoryCap bounds the in-memory rings. MA10 is the longest lookback.
const scanHistoryCap = 32

// buildFeatures derives the classifier input from the scan/breadth rings.
// Rings hold oldest first; the caller guarantees at least minScansForFeatures
// scans and one breadth snapshot.
func buildFeatures(scans []domain.ScanSnapshot, breadths []domain.BreadthSnapshot) domain.FeatureVector {
	ratios := make([]float64, len(scans))
	for i, s := range scans {
		ratios[i] = s.Ratio
	}
	current := ratios[len(ratios)-1]

	ma5 := tailMean(ratios, 5)
	ma10 := tailMean(ratios, 10)

	volatility := 0.0
	if tail := tailSlice(ratios, 10); len(tail) >= 2 {
		if mean := stat.Mean(tail, nil); mean != 0 {
			volatility = stat.StdDev(tail, nil) / mean
		}
	}

	momentum := 0.0
	if ma5 != 0 {
		momentum = (current - ma5) / ma5
	}

	breadth := breadths[len(breadths)-1]
	breadthMomentum := 0.0
	if len(breadths) >= 2 {
		breadthMomentum = breadth.SMA20Percent - breadths[len(breadths)-2].SMA20Percent
	}

	return domain.FeatureVector{
		Ratio:               current,
		RatioMA5:            ma5,
		RatioMA10:           ma10,
		RatioVolatility:     volatility,
		RatioMomentum:       momentum,
		SMA20Percent:        breadth.SMA20Percent,
		SMA50Percent:        breadth.SMA50Percent,
		BreadthMomentum:     breadthMomentum,
		VolumeParticipation: breadth.VolumeParticipation,
	}
}

func tailSlice(v []float64, n int) []float64 {
	if len(v) > n {
		return v[len(v)-n:]
	}
	return v
}

func tailMean(v []float64, n int) float64 {
	tail := tailSlice(v, n)
	if len(tail) == 0 {
		return 0
	}
	return stat.Mean(tail, nil)
}
