package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/orcfax/fact-index/internal/models"
)

// ListFeeds returns a network's feeds, including inactive ones, so callers
// (§4.5 feed sync) can diff the full catalog.
func (s *Store) ListFeeds(ctx context.Context, networkID string) ([]models.Feed, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, network_id, feed_id, type, name, version, status, source_type,
		       funding_type, calculation_method, heartbeat_interval, deviation,
		       COALESCE(base_asset_id, ''), COALESCE(quote_asset_id, '')
		FROM app.feeds WHERE network_id = $1`, networkID)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	var out []models.Feed
	for rows.Next() {
		var f models.Feed
		if err := rows.Scan(&f.ID, &f.NetworkID, &f.FeedID, &f.Type, &f.Name, &f.Version, &f.Status,
			&f.SourceType, &f.FundingType, &f.CalculationMethod, &f.HeartbeatInterval, &f.Deviation,
			&f.BaseAssetID, &f.QuoteAssetID); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// CreateFeed inserts a feed, assigning it an ID if one was not set.
func (s *Store) CreateFeed(ctx context.Context, f models.Feed) (models.Feed, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO app.feeds (id, network_id, feed_id, type, name, version, status, source_type,
			funding_type, calculation_method, heartbeat_interval, deviation, base_asset_id, quote_asset_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, NULLIF($13,''), NULLIF($14,''))`,
		f.ID, f.NetworkID, f.FeedID, f.Type, f.Name, f.Version, f.Status, f.SourceType,
		f.FundingType, f.CalculationMethod, f.HeartbeatInterval, f.Deviation, f.BaseAssetID, f.QuoteAssetID)
	if err != nil {
		return models.Feed{}, fmt.Errorf("create feed %s: %w", f.FeedID, err)
	}
	return f, nil
}

// UpdateFeed updates the mutable fields of a feed (the six compared by §4.5,
// plus status for the deactivation pass).
func (s *Store) UpdateFeed(ctx context.Context, f models.Feed) error {
	_, err := s.db.Exec(ctx, `
		UPDATE app.feeds SET name=$2, status=$3, source_type=$4, funding_type=$5,
			calculation_method=$6, heartbeat_interval=$7, deviation=$8
		WHERE id = $1`,
		f.ID, f.Name, f.Status, f.SourceType, f.FundingType, f.CalculationMethod, f.HeartbeatInterval, f.Deviation)
	if err != nil {
		return fmt.Errorf("update feed %s: %w", f.FeedID, err)
	}
	return nil
}

// ListAssets returns every known asset.
func (s *Store) ListAssets(ctx context.Context) ([]models.Asset, error) {
	rows, err := s.db.Query(ctx, `SELECT id, ticker, COALESCE(fingerprint, ''), has_xerberus_risk_rating FROM app.assets`)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var out []models.Asset
	for rows.Next() {
		var a models.Asset
		if err := rows.Scan(&a.ID, &a.Ticker, &a.Fingerprint, &a.HasXerberusRiskRating); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateAsset inserts a new asset, tolerating a concurrent insert of the
// same ticker by returning the existing row instead. The insert conflict
// compares tickers exactly; the read-back matches them case-insensitively.
func (s *Store) CreateAsset(ctx context.Context, a models.Asset) (models.Asset, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO app.assets (id, ticker, fingerprint, has_xerberus_risk_rating)
		VALUES ($1,$2,NULLIF($3,''),$4)
		ON CONFLICT (ticker) DO NOTHING`,
		a.ID, a.Ticker, a.Fingerprint, a.HasXerberusRiskRating)
	if err != nil {
		return models.Asset{}, fmt.Errorf("create asset %s: %w", a.Ticker, err)
	}

	var existing models.Asset
	err = s.db.QueryRow(ctx, `
		SELECT id, ticker, COALESCE(fingerprint, ''), has_xerberus_risk_rating
		FROM app.assets WHERE lower(ticker) = lower($1)`, a.Ticker).
		Scan(&existing.ID, &existing.Ticker, &existing.Fingerprint, &existing.HasXerberusRiskRating)
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.Asset{}, fmt.Errorf("asset %s vanished after insert", a.Ticker)
		}
		return models.Asset{}, fmt.Errorf("read back asset %s: %w", a.Ticker, err)
	}
	return existing, nil
}

// UpdateAsset persists risk-rating enrichment (internal/riskrating).
func (s *Store) UpdateAsset(ctx context.Context, a models.Asset) error {
	_, err := s.db.Exec(ctx, `
		UPDATE app.assets SET fingerprint = NULLIF($2,''), has_xerberus_risk_rating = $3 WHERE id = $1`,
		a.ID, a.Fingerprint, a.HasXerberusRiskRating)
	if err != nil {
		return fmt.Errorf("update asset %s: %w", a.Ticker, err)
	}
	return nil
}
