// Package store defines the persistence boundary every indexing component
// depends on. The record store is treated as an external collaborator —
// it could be any indexed document/row store. This interface is the only
// thing the core depends on; internal/store/postgres is one concrete
// implementation.
package store

import (
	"context"
	"time"

	"github.com/orcfax/fact-index/internal/models"
)

// IndexingError is a record of a non-fatal failure (TransientFetch /
// ProtocolViolation / PermanentArchiveError), kept so an operator can
// query what failed without grepping logs.
type IndexingError struct {
	ID            string
	NetworkID     string
	Slot          int64
	TransactionID string
	Kind          string
	Message       string
	CreatedAt     time.Time
}

// Store is the full datastore boundary this indexer requires.
type Store interface {
	ListNetworks(ctx context.Context) ([]models.Network, error)
	CreateNetwork(ctx context.Context, n models.Network) error
	UpdateNetwork(ctx context.Context, n models.Network) error

	ListPolicies(ctx context.Context, networkID string) ([]models.Policy, error)
	CreatePolicy(ctx context.Context, p models.Policy) error

	ListFeeds(ctx context.Context, networkID string) ([]models.Feed, error)
	CreateFeed(ctx context.Context, f models.Feed) (models.Feed, error)
	UpdateFeed(ctx context.Context, f models.Feed) error

	ListAssets(ctx context.Context) ([]models.Asset, error)
	CreateAsset(ctx context.Context, a models.Asset) (models.Asset, error)
	UpdateAsset(ctx context.Context, a models.Asset) error

	// InsertFact returns inserted=false (and a nil error) when the
	// (network, fact_urn) uniqueness key already exists, surfaced without
	// an error type so callers can bump a skipped-counter instead of
	// handling an error.
	InsertFact(ctx context.Context, f models.FactStatement) (inserted bool, err error)
	UpdateFact(ctx context.Context, f models.FactStatement) error
	DeleteFactsWithSlotGreaterThan(ctx context.Context, networkID string, slot int64) error
	LastIndexedFact(ctx context.Context, networkID string) (models.FactStatement, bool, error)
	ListUnarchivedFacts(ctx context.Context, networkID string) ([]models.FactStatement, error)

	ListNodes(ctx context.Context, networkID string) ([]models.Node, error)
	CreateNode(ctx context.Context, n models.Node) (models.Node, error)

	ListSources(ctx context.Context, networkID string) ([]models.Source, error)
	CreateSource(ctx context.Context, s models.Source) (models.Source, error)
	UpdateSource(ctx context.Context, s models.Source) error

	LogIndexingError(ctx context.Context, e IndexingError) error
	ListIndexingErrors(ctx context.Context, networkID string, limit int) ([]IndexingError, error)
}
