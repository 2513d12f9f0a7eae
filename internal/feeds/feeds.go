// Package feeds pulls scan and breadth snapshots from their upstream
// services. Both feeds are read-only inputs; this service never writes back
// to them.
package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/breadthlab/regimed/internal/config"
	"github.com/breadthlab/regimed/internal/domain"
)

// ScanFeed delivers the latest long/short scan counts.
type ScanFeed interface {
	Latest(ctx context.Context) (domain.ScanSnapshot, error)
}

// BreadthFeed delivers the latest independent breadth reading.
type BreadthFeed interface {
	Latest(ctx context.Context) (domain.BreadthSnapshot, error)
}

// HTTPScanFeed fetches scan snapshots from a JSON endpoint.
type HTTPScanFeed struct {
	url    string
	client *http.Client
}

func NewHTTPScanFeed(cfg config.FeedsConfig) *HTTPScanFeed {
	return &HTTPScanFeed{
		url:    cfg.ScanURL,
		client: &http.Client{Timeout: cfg.Timeout()},
	}
}

func (f *HTTPScanFeed) Latest(ctx context.Context) (domain.ScanSnapshot, error) {
	var snap domain.ScanSnapshot
	if err := getJSON(ctx, f.client, f.url, &snap); err != nil {
		return domain.ScanSnapshot{}, fmt.Errorf("scan feed: %w", err)
	}
	return snap, nil
}

// HTTPBreadthFeed fetches breadth snapshots from a JSON endpoint.
type HTTPBreadthFeed struct {
	url    string
	client *http.Client
}

func NewHTTPBreadthFeed(cfg config.FeedsConfig) *HTTPBreadthFeed {
	return &HTTPBreadthFeed{
		url:    cfg.BreadthURL,
		client: &http.Client{Timeout: cfg.Timeout()},
	}
}

func (f *HTTPBreadthFeed) Latest(ctx context.Context) (domain.BreadthSnapshot, error) {
	var snap domain.BreadthSnapshot
	if err := getJSON(ctx, f.client, f.url, &snap); err != nil {
		return domain.BreadthSnapshot{}, fmt.Errorf("breadth feed: %w", err)
	}
	return snap, nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
