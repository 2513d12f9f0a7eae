// Package marketdata talks to the broker's market-score endpoint. The broker
// is the only external dependency graded feedback relies on, so calls run
// behind a circuit breaker and a rate limiter; when the breaker is open the
// feedback cycle skips its batch and retries on the next tick.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/breadthlab/regimed/internal/config"
)

// Quote is the broker's current composite market reading.
type Quote struct {
	Timestamp  time.Time `json:"ts"`
	Score      float64   `json:"score"`
	Volatility float64   `json:"volatility"`
}

// Broker fetches market scores for outcome grading.
type Broker interface {
	// Quote returns the current market score and realized volatility.
	Quote(ctx context.Context) (Quote, error)

	// ScoreAt returns the market score as of a past instant.
	ScoreAt(ctx context.Context, at time.Time) (float64, error)
}

// HTTPBroker implements Broker against a JSON endpoint.
type HTTPBroker struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func NewHTTPBroker(cfg config.FeedsConfig) *HTTPBroker {
	settings := gobreaker.Settings{Name: "broker"}
	settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}
	settings.Timeout = 30 * time.Second

	perSecond := rate.Limit(float64(cfg.RatePerMinute) / 60.0)
	return &HTTPBroker{
		baseURL: cfg.BrokerURL,
		client:  &http.Client{Timeout: cfg.Timeout()},
		limiter: rate.NewLimiter(perSecond, 2),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *HTTPBroker) Quote(ctx context.Context) (Quote, error) {
	var quote Quote
	if err := b.getJSON(ctx, b.baseURL+"/v1/market/score", &quote); err != nil {
		return Quote{}, fmt.Errorf("broker quote: %w", err)
	}
	return quote, nil
}

func (b *HTTPBroker) ScoreAt(ctx context.Context, at time.Time) (float64, error) {
	endpoint := b.baseURL + "/v1/market/score?at=" + url.QueryEscape(at.UTC().Format(time.RFC3339))
	var quote Quote
	if err := b.getJSON(ctx, endpoint, &quote); err != nil {
		return 0, fmt.Errorf("broker score at %s: %w", at.Format(time.RFC3339), err)
	}
	return quote.Score, nil
}

func (b *HTTPBroker) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := b.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil, json.NewDecoder(resp.Body).Decode(out)
	})
	return err
}
