// Package classifier maps a feature vector to a regime label. Two
// interchangeable strategies: the trained ensemble when a fitted model is
// loaded, and the deterministic rule table otherwise. Model failures surface
// as a tagged outcome, never as a missing classification; the rule path keeps
// the pipeline available.
package classifier

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/breadthlab/regimed/internal/config"
	"github.com/breadthlab/regimed/internal/domain"
	"github.com/breadthlab/regimed/internal/metrics"
)

// Model is the ensemble contract. PredictProba returns class probabilities
// aligned with domain.AllRegimes().
type Model interface {
	Fitted() bool
	PredictProba(fv domain.FeatureVector) ([]float64, error)
}

// ErrModelUnavailable tags cycles where no fitted model was loaded. It wraps
// the underlying cause when inference itself failed.
var ErrModelUnavailable = errors.New("model path unavailable")

// Result is the explicit classification outcome. When the model path failed,
// ModelErr carries the cause and the prediction comes from the rule path, so
// the caller can inspect the tag instead of relying on caught exceptions.
type Result struct {
	Prediction domain.RegimePrediction
	ModelErr   error
	// Probabilities is the full class distribution, model path only.
	Probabilities map[domain.Regime]float64
}

// Classifier owns the active model and the fallback rules. The model is
// hot-swapped after retraining; a classification in flight never observes a
// half-written artifact because swaps replace the whole pointer.
type Classifier struct {
	cfg config.ClassifyConfig

	mu    sync.RWMutex
	model Model

	defaultHeavy domain.Regime
}

func New(cfg config.ClassifyConfig) *Classifier {
	heavy, err := domain.ParseRegime(cfg.DefaultHeavyLabel)
	if err != nil {
		heavy = domain.Choppy
	}
	return &Classifier{cfg: cfg, defaultHeavy: heavy}
}

// SetModel installs a freshly loaded or retrained ensemble.
func (c *Classifier) SetModel(m Model) {
	c.mu.Lock()
	c.model = m
	c.mu.Unlock()
}

// Classify normalizes the features, tries the model path, and falls through
// to the rule table on any model failure.
func (c *Classifier) Classify(fv domain.FeatureVector, at time.Time) Result {
	fv = c.normalize(fv)

	pred, probs, err := c.classifyModel(fv, at)
	if err == nil {
		metrics.Predictions.WithLabelValues(pred.Regime.String(), string(pred.Source)).Inc()
		return Result{Prediction: pred, Probabilities: probs}
	}

	metrics.ModelFallbacks.Inc()
	log.Warn().Err(err).Msg("Model path failed, serving rule-based classification")

	pred = c.classifyRulesPred(fv, at)
	metrics.Predictions.WithLabelValues(pred.Regime.String(), string(pred.Source)).Inc()
	return Result{Prediction: pred, ModelErr: err}
}

func (c *Classifier) classifyModel(fv domain.FeatureVector, at time.Time) (domain.RegimePrediction, map[domain.Regime]float64, error) {
	c.mu.RLock()
	m := c.model
	c.mu.RUnlock()

	if m == nil || !m.Fitted() {
		return domain.RegimePrediction{}, nil, ErrModelUnavailable
	}

	probs, err := m.PredictProba(fv)
	if err != nil {
		return domain.RegimePrediction{}, nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	classes := domain.AllRegimes()
	if len(probs) != len(classes) {
		return domain.RegimePrediction{}, nil, fmt.Errorf("%w: %d probabilities for %d classes", ErrModelUnavailable, len(probs), len(classes))
	}

	top, second := rankTwo(probs)
	regime, conf := classes[top], probs[top]

	// Anti-monoculture rule: when the over-predicted class wins without
	// conviction and the runner-up has real mass, take the runner-up. This
	// keeps one label from dominating every cycle of an under-confident
	// model.
	if regime == c.defaultHeavy && conf < c.cfg.ConfidenceFloor && probs[second] > c.cfg.SecondRankFloor {
		log.Debug().
			Str("from", regime.String()).
			Str("to", classes[second].String()).
			Float64("top_p", conf).
			Float64("second_p", probs[second]).
			Msg("Anti-monoculture switch to second-ranked class")
		regime, conf = classes[second], probs[second]
	}

	dist := make(map[domain.Regime]float64, len(classes))
	for i, class := range classes {
		dist[class] = probs[i]
	}

	return domain.RegimePrediction{
		ID:         uuid.New().String(),
		Timestamp:  at,
		Regime:     regime,
		Confidence: conf,
		Source:     domain.SourceModel,
		Features:   fv,
	}, dist, nil
}

func (c *Classifier) classifyRulesPred(fv domain.FeatureVector, at time.Time) domain.RegimePrediction {
	regime, conf := classifyRules(fv.Ratio)
	return domain.RegimePrediction{
		ID:         uuid.New().String(),
		Timestamp:  at,
		Regime:     regime,
		Confidence: conf,
		Source:     domain.SourceRule,
		Features:   fv,
	}
}

// rankTwo returns the indices of the highest and second-highest entries.
func rankTwo(v []float64) (int, int) {
	top, second := 0, 1
	if len(v) > 1 && v[1] > v[0] {
		top, second = 1, 0
	}
	for i := 2; i < len(v); i++ {
		switch {
		case v[i] > v[top]:
			second = top
			top = i
		case v[i] > v[second]:
			second = i
		}
	}
	return top, second
}
