package syncer

import (
	"context"
	"fmt"

	"github.com/orcfax/fact-index/internal/models"
	"github.com/orcfax/fact-index/internal/store"
)

// fakeStore is a minimal in-memory store.Store for testing the syncer's
// orchestration logic without a real database.
type fakeStore struct {
	networks map[string]models.Network
	policies map[string][]models.Policy
	feeds    map[string][]models.Feed
	assets   []models.Asset
	facts    map[string]models.FactStatement // keyed by network|fact_urn
	errors   []store.IndexingError
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		networks: make(map[string]models.Network),
		policies: make(map[string][]models.Policy),
		feeds:    make(map[string][]models.Feed),
		facts:    make(map[string]models.FactStatement),
	}
}

func (f *fakeStore) ListNetworks(ctx context.Context) ([]models.Network, error) {
	var out []models.Network
	for _, n := range f.networks {
		out = append(out, n)
	}
	return out, nil
}
func (f *fakeStore) CreateNetwork(ctx context.Context, n models.Network) error {
	f.networks[n.ID] = n
	return nil
}
func (f *fakeStore) UpdateNetwork(ctx context.Context, n models.Network) error {
	f.networks[n.ID] = n
	return nil
}
func (f *fakeStore) ListPolicies(ctx context.Context, networkID string) ([]models.Policy, error) {
	return f.policies[networkID], nil
}
func (f *fakeStore) CreatePolicy(ctx context.Context, p models.Policy) error {
	f.policies[p.NetworkID] = append(f.policies[p.NetworkID], p)
	return nil
}
func (f *fakeStore) ListFeeds(ctx context.Context, networkID string) ([]models.Feed, error) {
	return f.feeds[networkID], nil
}
func (f *fakeStore) CreateFeed(ctx context.Context, feed models.Feed) (models.Feed, error) {
	if feed.ID == "" {
		feed.ID = fmt.Sprintf("feed-%d", len(f.feeds[feed.NetworkID])+1)
	}
	f.feeds[feed.NetworkID] = append(f.feeds[feed.NetworkID], feed)
	return feed, nil
}
func (f *fakeStore) UpdateFeed(ctx context.Context, feed models.Feed) error { return nil }
func (f *fakeStore) ListAssets(ctx context.Context) ([]models.Asset, error) { return f.assets, nil }
func (f *fakeStore) CreateAsset(ctx context.Context, a models.Asset) (models.Asset, error) {
	f.assets = append(f.assets, a)
	return a, nil
}
func (f *fakeStore) UpdateAsset(ctx context.Context, a models.Asset) error { return nil }

func (f *fakeStore) InsertFact(ctx context.Context, fact models.FactStatement) (bool, error) {
	key := fact.NetworkID + "|" + fact.FactURN
	if _, exists := f.facts[key]; exists {
		return false, nil
	}
	f.facts[key] = fact
	return true, nil
}
func (f *fakeStore) UpdateFact(ctx context.Context, fact models.FactStatement) error {
	key := fact.NetworkID + "|" + fact.FactURN
	f.facts[key] = fact
	return nil
}
func (f *fakeStore) DeleteFactsWithSlotGreaterThan(ctx context.Context, networkID string, slot int64) error {
	for k, fact := range f.facts {
		if fact.NetworkID == networkID && fact.Slot > slot {
			delete(f.facts, k)
		}
	}
	return nil
}
func (f *fakeStore) LastIndexedFact(ctx context.Context, networkID string) (models.FactStatement, bool, error) {
	var best models.FactStatement
	found := false
	for _, fact := range f.facts {
		if fact.NetworkID != networkID {
			continue
		}
		if !found || fact.Slot > best.Slot {
			best = fact
			found = true
		}
	}
	return best, found, nil
}
func (f *fakeStore) ListUnarchivedFacts(ctx context.Context, networkID string) ([]models.FactStatement, error) {
	var out []models.FactStatement
	for _, fact := range f.facts {
		if fact.NetworkID == networkID && !fact.IsArchiveIndexed && fact.StorageURN != "" {
			out = append(out, fact)
		}
	}
	return out, nil
}
func (f *fakeStore) ListNodes(ctx context.Context, networkID string) ([]models.Node, error) { return nil, nil }
func (f *fakeStore) CreateNode(ctx context.Context, n models.Node) (models.Node, error)      { return n, nil }
func (f *fakeStore) ListSources(ctx context.Context, networkID string) ([]models.Source, error) {
	return nil, nil
}
func (f *fakeStore) CreateSource(ctx context.Context, s models.Source) (models.Source, error) {
	return s, nil
}
func (f *fakeStore) UpdateSource(ctx context.Context, s models.Source) error { return nil }
func (f *fakeStore) LogIndexingError(ctx context.Context, e store.IndexingError) error {
	f.errors = append(f.errors, e)
	return nil
}
func (f *fakeStore) ListIndexingErrors(ctx context.Context, networkID string, limit int) ([]store.IndexingError, error) {
	return f.errors, nil
}

var _ store.Store = (*fakeStore)(nil)
