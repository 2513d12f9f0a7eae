package model

import (
	"fmt"
	"math/rand"

	"github.com/breadthlab/regimed/internal/domain"
)

// Ensemble pairs a fitted scaler with a fitted committee. It satisfies the
// classifier's Model interface; both halves must be fitted or the model path
// reports unavailable.
type Ensemble struct {
	Scaler    *Scaler
	Committee *Committee
}

// Fitted reports whether both the scaler and committee are usable.
func (e *Ensemble) Fitted() bool {
	return e != nil && e.Scaler.Fitted() && e.Committee != nil && len(e.Committee.Weights) > 0
}

// PredictProba scales the feature vector and returns class probabilities
// aligned with domain.AllRegimes().
func (e *Ensemble) PredictProba(fv domain.FeatureVector) ([]float64, error) {
	if !e.Fitted() {
		return nil, fmt.Errorf("ensemble is not fitted")
	}
	scaled, err := e.Scaler.Transform(fv.Values())
	if err != nil {
		return nil, err
	}
	return e.Committee.PredictProba(scaled)
}

// TrainResult carries a fresh ensemble plus its holdout evaluation.
type TrainResult struct {
	Ensemble *Ensemble
	Accuracy float64
	Samples  int
}

// Train fits scaler and committee on the labeled set and evaluates accuracy
// on a 20% holdout. Callers persist the result as a new ModelVersion; the
// serving model is always selected best-by-accuracy, so a worse retrain
// cannot degrade production.
func Train(features []domain.FeatureVector, labels []domain.Regime, opts TrainOptions) (*TrainResult, error) {
	if len(features) != len(labels) {
		return nil, fmt.Errorf("training set shape mismatch: %d features, %d labels", len(features), len(labels))
	}
	if len(features) < 20 {
		return nil, fmt.Errorf("not enough labeled samples to train: %d", len(features))
	}

	x := make([][]float64, len(features))
	for i, fv := range features {
		x[i] = fv.Values()
	}

	// Shuffled 80/20 split keeps evaluation honest on time-clustered labels.
	idx := rand.New(rand.NewSource(opts.Seed)).Perm(len(x))
	cut := len(x) - len(x)/5
	trainX, trainY := make([][]float64, 0, cut), make([]domain.Regime, 0, cut)
	testX, testY := make([][]float64, 0, len(x)-cut), make([]domain.Regime, 0, len(x)-cut)
	for n, i := range idx {
		if n < cut {
			trainX, trainY = append(trainX, x[i]), append(trainY, labels[i])
		} else {
			testX, testY = append(testX, x[i]), append(testY, labels[i])
		}
	}

	scaler, err := FitScaler(trainX)
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	scaledTrain := make([][]float64, len(trainX))
	for i, row := range trainX {
		if scaledTrain[i], err = scaler.Transform(row); err != nil {
			return nil, err
		}
	}

	committee, err := FitCommittee(scaledTrain, trainY, opts)
	if err != nil {
		return nil, fmt.Errorf("fit committee: %w", err)
	}

	e := &Ensemble{Scaler: scaler, Committee: committee}

	correct := 0
	for i, row := range testX {
		scaled, err := scaler.Transform(row)
		if err != nil {
			return nil, err
		}
		probs, err := committee.PredictProba(scaled)
		if err != nil {
			return nil, err
		}
		if e.Committee.Classes[argmax(probs)] == testY[i] {
			correct++
		}
	}
	accuracy := 0.0
	if len(testX) > 0 {
		accuracy = float64(correct) / float64(len(testX))
	}

	return &TrainResult{Ensemble: e, Accuracy: accuracy, Samples: len(features)}, nil
}

// FromVersion rebuilds a serving ensemble from a persisted artifact.
func FromVersion(v domain.ModelVersion) (*Ensemble, error) {
	scaler, err := UnmarshalScaler(v.Scaler)
	if err != nil {
		return nil, fmt.Errorf("model version %s: %w", v.ID, err)
	}
	committee, err := UnmarshalCommittee(v.Weights)
	if err != nil {
		return nil, fmt.Errorf("model version %s: %w", v.ID, err)
	}
	return &Ensemble{Scaler: scaler, Committee: committee}, nil
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
