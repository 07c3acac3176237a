package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/orcfax/fact-index/internal/models"
	"github.com/orcfax/fact-index/internal/store"
)

// concurrencyTrackingStore counts how many ListNetworks calls are in
// flight at once, so a test can assert the scheduler never overlaps two
// processing passes.
type concurrencyTrackingStore struct {
	inFlight      int32
	maxConcurrent int32
	calls         int32
	sleep         time.Duration
}

func (s *concurrencyTrackingStore) ListNetworks(ctx context.Context) ([]models.Network, error) {
	atomic.AddInt32(&s.calls, 1)
	n := atomic.AddInt32(&s.inFlight, 1)
	for {
		max := atomic.LoadInt32(&s.maxConcurrent)
		if n <= max || atomic.CompareAndSwapInt32(&s.maxConcurrent, max, n) {
			break
		}
	}
	time.Sleep(s.sleep)
	atomic.AddInt32(&s.inFlight, -1)
	return nil, nil
}

func (s *concurrencyTrackingStore) CreateNetwork(ctx context.Context, n models.Network) error { return nil }
func (s *concurrencyTrackingStore) UpdateNetwork(ctx context.Context, n models.Network) error  { return nil }
func (s *concurrencyTrackingStore) ListPolicies(ctx context.Context, networkID string) ([]models.Policy, error) {
	return nil, nil
}
func (s *concurrencyTrackingStore) CreatePolicy(ctx context.Context, p models.Policy) error { return nil }
func (s *concurrencyTrackingStore) ListFeeds(ctx context.Context, networkID string) ([]models.Feed, error) {
	return nil, nil
}
func (s *concurrencyTrackingStore) CreateFeed(ctx context.Context, f models.Feed) (models.Feed, error) {
	return f, nil
}
func (s *concurrencyTrackingStore) UpdateFeed(ctx context.Context, f models.Feed) error { return nil }
func (s *concurrencyTrackingStore) ListAssets(ctx context.Context) ([]models.Asset, error) {
	return nil, nil
}
func (s *concurrencyTrackingStore) CreateAsset(ctx context.Context, a models.Asset) (models.Asset, error) {
	return a, nil
}
func (s *concurrencyTrackingStore) UpdateAsset(ctx context.Context, a models.Asset) error { return nil }
func (s *concurrencyTrackingStore) InsertFact(ctx context.Context, f models.FactStatement) (bool, error) {
	return true, nil
}
func (s *concurrencyTrackingStore) UpdateFact(ctx context.Context, f models.FactStatement) error {
	return nil
}
func (s *concurrencyTrackingStore) DeleteFactsWithSlotGreaterThan(ctx context.Context, networkID string, slot int64) error {
	return nil
}
func (s *concurrencyTrackingStore) LastIndexedFact(ctx context.Context, networkID string) (models.FactStatement, bool, error) {
	return models.FactStatement{}, false, nil
}
func (s *concurrencyTrackingStore) ListUnarchivedFacts(ctx context.Context, networkID string) ([]models.FactStatement, error) {
	return nil, nil
}
func (s *concurrencyTrackingStore) ListNodes(ctx context.Context, networkID string) ([]models.Node, error) {
	return nil, nil
}
func (s *concurrencyTrackingStore) CreateNode(ctx context.Context, n models.Node) (models.Node, error) {
	return n, nil
}
func (s *concurrencyTrackingStore) ListSources(ctx context.Context, networkID string) ([]models.Source, error) {
	return nil, nil
}
func (s *concurrencyTrackingStore) CreateSource(ctx context.Context, src models.Source) (models.Source, error) {
	return src, nil
}
func (s *concurrencyTrackingStore) UpdateSource(ctx context.Context, src models.Source) error {
	return nil
}
func (s *concurrencyTrackingStore) LogIndexingError(ctx context.Context, e store.IndexingError) error {
	return nil
}
func (s *concurrencyTrackingStore) ListIndexingErrors(ctx context.Context, networkID string, limit int) ([]store.IndexingError, error) {
	return nil, nil
}

var _ store.Store = (*concurrencyTrackingStore)(nil)
