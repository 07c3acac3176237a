package archive

import (
	"context"

	"github.com/orcfax/fact-index/internal/models"
	"github.com/orcfax/fact-index/internal/store"
)

// fakeStore is a minimal in-memory store.Store for testing source/node
// resolution without a real database.
type fakeStore struct {
	sources []models.Source
	nodes   []models.Node
	errors  []store.IndexingError
}

func (f *fakeStore) ListNetworks(ctx context.Context) ([]models.Network, error) { return nil, nil }
func (f *fakeStore) CreateNetwork(ctx context.Context, n models.Network) error  { return nil }
func (f *fakeStore) UpdateNetwork(ctx context.Context, n models.Network) error  { return nil }
func (f *fakeStore) ListPolicies(ctx context.Context, networkID string) ([]models.Policy, error) {
	return nil, nil
}
func (f *fakeStore) CreatePolicy(ctx context.Context, p models.Policy) error { return nil }
func (f *fakeStore) ListFeeds(ctx context.Context, networkID string) ([]models.Feed, error) {
	return nil, nil
}
func (f *fakeStore) CreateFeed(ctx context.Context, feed models.Feed) (models.Feed, error) {
	return feed, nil
}
func (f *fakeStore) UpdateFeed(ctx context.Context, feed models.Feed) error { return nil }
func (f *fakeStore) ListAssets(ctx context.Context) ([]models.Asset, error) { return nil, nil }
func (f *fakeStore) CreateAsset(ctx context.Context, a models.Asset) (models.Asset, error) {
	return a, nil
}
func (f *fakeStore) UpdateAsset(ctx context.Context, a models.Asset) error { return nil }
func (f *fakeStore) InsertFact(ctx context.Context, fact models.FactStatement) (bool, error) {
	return true, nil
}
func (f *fakeStore) UpdateFact(ctx context.Context, fact models.FactStatement) error { return nil }
func (f *fakeStore) DeleteFactsWithSlotGreaterThan(ctx context.Context, networkID string, slot int64) error {
	return nil
}
func (f *fakeStore) LastIndexedFact(ctx context.Context, networkID string) (models.FactStatement, bool, error) {
	return models.FactStatement{}, false, nil
}
func (f *fakeStore) ListUnarchivedFacts(ctx context.Context, networkID string) ([]models.FactStatement, error) {
	return nil, nil
}
func (f *fakeStore) ListNodes(ctx context.Context, networkID string) ([]models.Node, error) {
	return f.nodes, nil
}
func (f *fakeStore) CreateNode(ctx context.Context, n models.Node) (models.Node, error) {
	f.nodes = append(f.nodes, n)
	return n, nil
}
func (f *fakeStore) ListSources(ctx context.Context, networkID string) ([]models.Source, error) {
	return f.sources, nil
}
func (f *fakeStore) CreateSource(ctx context.Context, s models.Source) (models.Source, error) {
	f.sources = append(f.sources, s)
	return s, nil
}
func (f *fakeStore) UpdateSource(ctx context.Context, s models.Source) error {
	for i, existing := range f.sources {
		if existing.Recipient == s.Recipient && existing.NetworkID == s.NetworkID {
			f.sources[i] = s
			return nil
		}
	}
	f.sources = append(f.sources, s)
	return nil
}
func (f *fakeStore) LogIndexingError(ctx context.Context, e store.IndexingError) error {
	f.errors = append(f.errors, e)
	return nil
}
func (f *fakeStore) ListIndexingErrors(ctx context.Context, networkID string, limit int) ([]store.IndexingError, error) {
	return f.errors, nil
}

var _ store.Store = (*fakeStore)(nil)
