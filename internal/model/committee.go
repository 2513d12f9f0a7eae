// Package model implements the trainable regime ensemble: a standard scaler
// feeding a one-vs-rest logistic committee. The classifier contract only
// requires class probabilities, so any supervised learner could be swapped in
// behind the same interface.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/breadthlab/regimed/internal/domain"
)

// Committee is a set of binary logistic regressors, one per regime class,
// trained one-vs-rest. Probabilities are the normalized sigmoid scores.
type Committee struct {
	Classes []domain.Regime `json:"classes"`
	// Weights holds one row per class: nFeatures coefficients plus a bias
	// term in the last position.
	Weights [][]float64 `json:"weights"`
}

// TrainOptions controls the gradient descent fit.
type TrainOptions struct {
	Epochs       int
	LearningRate float64
	L2           float64
	Seed         int64
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{Epochs: 200, LearningRate: 0.05, L2: 1e-4, Seed: 1}
}

// FitCommittee trains one-vs-rest logistic regressors on standardized
// features. Labels must come from the closed regime set.
func FitCommittee(x [][]float64, y []domain.Regime, opts TrainOptions) (*Committee, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("training set shape mismatch: %d rows, %d labels", len(x), len(y))
	}
	nFeat := len(x[0])
	classes := domain.AllRegimes()

	c := &Committee{Classes: classes, Weights: make([][]float64, len(classes))}
	rng := rand.New(rand.NewSource(opts.Seed))

	for ci, class := range classes {
		w := make([]float64, nFeat+1)
		for j := range w {
			w[j] = rng.NormFloat64() * 0.01
		}

		for epoch := 0; epoch < opts.Epochs; epoch++ {
			for i, row := range x {
				target := 0.0
				if y[i] == class {
					target = 1.0
				}
				p := sigmoid(floats.Dot(w[:nFeat], row) + w[nFeat])
				grad := p - target
				for j := 0; j < nFeat; j++ {
					w[j] -= opts.LearningRate * (grad*row[j] + opts.L2*w[j])
				}
				w[nFeat] -= opts.LearningRate * grad
			}
		}
		c.Weights[ci] = w
	}
	return c, nil
}

// PredictProba returns per-class probabilities aligned with c.Classes.
func (c *Committee) PredictProba(row []float64) ([]float64, error) {
	if len(c.Weights) == 0 {
		return nil, fmt.Errorf("committee is not fitted")
	}
	nFeat := len(c.Weights[0]) - 1
	if len(row) != nFeat {
		return nil, fmt.Errorf("feature width %d does not match model width %d", len(row), nFeat)
	}

	probs := make([]float64, len(c.Classes))
	sum := 0.0
	for ci, w := range c.Weights {
		p := sigmoid(floats.Dot(w[:nFeat], row) + w[nFeat])
		probs[ci] = p
		sum += p
	}
	if sum <= 0 || math.IsNaN(sum) {
		return nil, fmt.Errorf("degenerate probability mass")
	}
	floats.Scale(1/sum, probs)
	return probs, nil
}

func (c *Committee) MarshalBinary() ([]byte, error) {
	return json.Marshal(c)
}

func UnmarshalCommittee(data []byte) (*Committee, error) {
	var c Committee
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode committee: %w", err)
	}
	return &c, nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
