// Package feedsync reconciles the remote feed manifest with stored feed
// and asset records: compare remote vs cached, diff mutable fields,
// persist deltas.
package feedsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/orcfax/fact-index/internal/models"
	"github.com/orcfax/fact-index/internal/store"
)

// Manifest is the feed manifest document fetched from a network's
// active_feeds_url.
type Manifest struct {
	Meta  ManifestMeta   `json:"meta"`
	Feeds []ManifestFeed `json:"feeds"`
}

// ManifestMeta is the manifest's descriptive header.
type ManifestMeta struct {
	Description string `json:"description"`
	Version     string `json:"version"`
}

// ManifestFeed is one active-feed entry in the manifest.
type ManifestFeed struct {
	Pair       string  `json:"pair"`
	Label      string  `json:"label"`
	Interval   int     `json:"interval"`
	Deviation  float64 `json:"deviation"`
	Source     string  `json:"source"`     // cex | dex
	Calculation string `json:"calculation"` // median | "weighted mean"
	Status     string  `json:"status"`      // showcase | subsidized | paid
	Type       string  `json:"type"`        // "CER"
}

// Syncer fetches a network's manifest and reconciles it against the store.
type Syncer struct {
	httpClient *http.Client
	store      store.Store
}

// New builds a Syncer.
func New(st store.Store) *Syncer {
	return &Syncer{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		store:      st,
	}
}

// Sync fetches net.ActiveFeedsURL and reconciles it against stored feeds
// and assets. cached is the previously fetched manifest (nil on first
// call); if the freshly fetched manifest is structurally equal to cached,
// Sync returns it unchanged without touching the store. The freshly
// fetched manifest is always returned for use as the next call's cache.
func (s *Syncer) Sync(ctx context.Context, net models.Network, cached *Manifest) (*Manifest, error) {
	manifest, err := s.fetchManifest(ctx, net.ActiveFeedsURL)
	if err != nil {
		return cached, fmt.Errorf("feedsync: fetch manifest for %s: %w", net.Name, err)
	}

	if cached != nil && reflect.DeepEqual(*cached, *manifest) {
		return cached, nil
	}

	stored, err := s.store.ListFeeds(ctx, net.ID)
	if err != nil {
		return manifest, fmt.Errorf("feedsync: list feeds for %s: %w", net.Name, err)
	}
	byFeedID := make(map[string]models.Feed, len(stored))
	for _, f := range stored {
		byFeedID[f.FeedID] = f
	}

	seen := make(map[string]struct{}, len(manifest.Feeds))
	for _, mf := range manifest.Feeds {
		feedID := mf.Type + "/" + mf.Label + "/3"
		seen[feedID] = struct{}{}

		base, quote, err := splitLabel(mf.Label)
		if err != nil {
			log.Printf("[feedsync] %s: skipping feed %s: %v", net.Name, feedID, err)
			continue
		}

		baseAsset, err := s.ensureAsset(ctx, base)
		if err != nil {
			log.Printf("[feedsync] %s: ensure asset %s: %v", net.Name, base, err)
			continue
		}
		quoteAsset, err := s.ensureAsset(ctx, quote)
		if err != nil {
			log.Printf("[feedsync] %s: ensure asset %s: %v", net.Name, quote, err)
			continue
		}

		desired := models.Feed{
			NetworkID:         net.ID,
			FeedID:            feedID,
			Type:              mf.Type,
			Name:              mf.Label,
			Version:           "3",
			Status:            models.FeedStatusActive,
			SourceType:        sourceType(mf.Source),
			FundingType:       fundingType(mf.Status),
			CalculationMethod: mf.Calculation,
			HeartbeatInterval: mf.Interval,
			Deviation:         mf.Deviation,
			BaseAssetID:       baseAsset.ID,
			QuoteAssetID:      quoteAsset.ID,
		}

		existing, ok := byFeedID[feedID]
		if !ok {
			if _, err := s.store.CreateFeed(ctx, desired); err != nil {
				log.Printf("[feedsync] %s: create feed %s: %v", net.Name, feedID, err)
			}
			continue
		}

		if mutableFieldsDiffer(existing, desired) {
			desired.ID = existing.ID
			desired.BaseAssetID = existing.BaseAssetID
			desired.QuoteAssetID = existing.QuoteAssetID
			if err := s.store.UpdateFeed(ctx, desired); err != nil {
				log.Printf("[feedsync] %s: update feed %s: %v", net.Name, feedID, err)
			}
		}
	}

	for _, f := range stored {
		if _, ok := seen[f.FeedID]; !ok && f.Status == models.FeedStatusActive {
			f.Status = models.FeedStatusInactive
			if err := s.store.UpdateFeed(ctx, f); err != nil {
				log.Printf("[feedsync] %s: deactivate feed %s: %v", net.Name, f.FeedID, err)
			}
		}
	}

	return manifest, nil
}

func (s *Syncer) fetchManifest(ctx context.Context, url string) (*Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %s", resp.Status)
	}
	var m Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

func (s *Syncer) ensureAsset(ctx context.Context, ticker string) (models.Asset, error) {
	assets, err := s.store.ListAssets(ctx)
	if err != nil {
		return models.Asset{}, err
	}
	for _, a := range assets {
		if strings.EqualFold(a.Ticker, ticker) {
			return a, nil
		}
	}
	return s.store.CreateAsset(ctx, models.Asset{Ticker: ticker})
}

// splitLabel parses a manifest label into {base, quote} by splitting on
// "/" or "-"; exactly two parts are required.
func splitLabel(label string) (base, quote string, err error) {
	sep := "/"
	if !strings.Contains(label, sep) {
		sep = "-"
	}
	parts := strings.Split(label, sep)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("label %q does not split into exactly two parts", label)
	}
	return parts[0], parts[1], nil
}

func mutableFieldsDiffer(existing, desired models.Feed) bool {
	return existing.Name != desired.Name ||
		existing.SourceType != desired.SourceType ||
		existing.FundingType != desired.FundingType ||
		existing.CalculationMethod != desired.CalculationMethod ||
		existing.HeartbeatInterval != desired.HeartbeatInterval ||
		existing.Deviation != desired.Deviation
}

func sourceType(s string) models.SourceType {
	switch strings.ToLower(s) {
	case "cex":
		return models.SourceTypeCEX
	case "dex":
		return models.SourceTypeDEX
	default:
		return models.SourceTypeNone
	}
}

func fundingType(s string) models.FundingType {
	switch strings.ToLower(s) {
	case "showcase":
		return models.FundingShowcase
	case "paid":
		return models.FundingPaid
	case "subsidized":
		return models.FundingSubsidized
	default:
		return models.FundingNone
	}
}
