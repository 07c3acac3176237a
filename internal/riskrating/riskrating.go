// Package riskrating periodically enriches assets with a third-party
// risk-rating flag via a thin, timeout-bounded HTTP client hitting a
// public JSON endpoint, tolerant of individual asset failures.
package riskrating

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/orcfax/fact-index/internal/store"
)

// Client queries Xerberus-style risk ratings per ticker.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      store.Store
}

// New builds a Client against baseURL (the Xerberus-style risk-rating API).
func New(st store.Store, baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		store:      st,
	}
}

type ratingResponse struct {
	Ticker string `json:"ticker"`
	Rated  bool   `json:"rated"`
}

// Run enriches every stored asset with HasXerberusRiskRating, tolerating
// individual lookup failures.
func (c *Client) Run(ctx context.Context) error {
	assets, err := c.store.ListAssets(ctx)
	if err != nil {
		return fmt.Errorf("riskrating: list assets: %w", err)
	}
	for _, a := range assets {
		rated, err := c.lookup(ctx, a.Ticker)
		if err != nil {
			log.Printf("[riskrating] lookup %s: %v", a.Ticker, err)
			continue
		}
		if rated == a.HasXerberusRiskRating {
			continue
		}
		a.HasXerberusRiskRating = rated
		if err := c.store.UpdateAsset(ctx, a); err != nil {
			log.Printf("[riskrating] update asset %s: %v", a.Ticker, err)
		}
	}
	return nil
}

func (c *Client) lookup(ctx context.Context, ticker string) (bool, error) {
	url := fmt.Sprintf("%s/ratings/%s", c.baseURL, ticker)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("status %s", resp.Status)
	}

	var body ratingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode: %w", err)
	}
	return body.Rated, nil
}
