// Package archive resolves a fact's archival package — a gzipped POSIX
// tar bundle pinned on Arweave — into node and source records, then
// marks the fact archived, via a bounded-concurrency worker pool.
package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/orcfax/fact-index/internal/models"
	"github.com/orcfax/fact-index/internal/store"
)

const maxConcurrentWorkers = 5

// Indexer resolves archival packages for facts pending archival.
type Indexer struct {
	httpClient *http.Client
	store      store.Store
}

// New builds an Indexer.
func New(st store.Store) *Indexer {
	return &Indexer{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		store:      st,
	}
}

// RunNetwork archives every pending fact for net, up to maxConcurrentWorkers
// at a time. Partial failures affect only the failing fact; the batch
// continues.
func (idx *Indexer) RunNetwork(ctx context.Context, net models.Network) error {
	if !net.TracksArchives {
		return nil
	}

	facts, err := idx.store.ListUnarchivedFacts(ctx, net.ID)
	if err != nil {
		return fmt.Errorf("archive: %s: list unarchived facts: %w", net.Name, err)
	}
	if len(facts) == 0 {
		return nil
	}

	// nodeCache/sourceCache are owned by this goroutine. Each worker copies
	// nodeSnapshot/sourceSnapshot under mu and appends any node/source it
	// created back onto them under the same mutex, so no slice is shared
	// without synchronization.
	nodeCache, err := idx.loadNodeCache(ctx, net.ID)
	if err != nil {
		return fmt.Errorf("archive: %s: load node cache: %w", net.Name, err)
	}
	sourceCache, err := idx.loadSourceCache(ctx, net.ID)
	if err != nil {
		return fmt.Errorf("archive: %s: load source cache: %w", net.Name, err)
	}

	type cacheUpdate struct {
		node   *models.Node
		source *models.Source
	}
	updates := make(chan cacheUpdate, len(facts))

	sem := make(chan struct{}, maxConcurrentWorkers)
	var wg sync.WaitGroup

	var mu sync.Mutex
	nodeSnapshot := append([]models.Node(nil), nodeCache...)
	sourceSnapshot := append([]models.Source(nil), sourceCache...)

	for _, f := range facts {
		f := f
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			mu.Lock()
			nodes := append([]models.Node(nil), nodeSnapshot...)
			sources := append([]models.Source(nil), sourceSnapshot...)
			mu.Unlock()

			node, source, err := idx.processFact(ctx, net, f, nodes, sources)
			if err != nil {
				log.Printf("[archive] %s: fact %s: %v", net.Name, f.FactURN, err)
				return
			}

			mu.Lock()
			if node != nil {
				nodeSnapshot = append(nodeSnapshot, *node)
			}
			if source != nil {
				sourceSnapshot = append(sourceSnapshot, *source)
			}
			mu.Unlock()
			updates <- cacheUpdate{node: node, source: source}
		}()
	}

	wg.Wait()
	close(updates)
	for range updates {
	}

	return nil
}

func (idx *Indexer) loadNodeCache(ctx context.Context, networkID string) ([]models.Node, error) {
	return idx.store.ListNodes(ctx, networkID)
}

func (idx *Indexer) loadSourceCache(ctx context.Context, networkID string) ([]models.Source, error) {
	return idx.store.ListSources(ctx, networkID)
}

// processFact fetches, extracts, and applies one fact's archival package.
// It returns any newly-created node/source so the caller can fold them
// into its snapshot.
func (idx *Indexer) processFact(ctx context.Context, net models.Network, f models.FactStatement, nodes []models.Node, sources []models.Source) (*models.Node, *models.Source, error) {
	body, err := idx.fetchArchive(ctx, f.StorageURN)
	if err != nil {
		idx.logFailure(ctx, net.ID, f, err)
		return nil, nil, err
	}

	entries, err := extractEntries(body)
	if err != nil {
		idx.logFailure(ctx, net.ID, f, err)
		return nil, nil, err
	}

	validation, ok := findEntry(entries, "validation-")
	if !ok {
		err := fmt.Errorf("no validation-* entry in archive")
		idx.logFailure(ctx, net.ID, f, err)
		return nil, nil, err
	}
	var vf ValidationFile
	if err := json.Unmarshal(validation.data, &vf); err != nil {
		idx.logFailure(ctx, net.ID, f, fmt.Errorf("parse validation file: %w", err))
		return nil, nil, err
	}

	node, newNode, err := idx.resolveNode(ctx, net.ID, vf, nodes)
	if err != nil {
		idx.logFailure(ctx, net.ID, f, err)
		return nil, nil, err
	}

	var sourceIDs []string
	var newSource *models.Source
	for _, e := range entries {
		if !strings.Contains(path.Base(e.name), "message-") {
			continue
		}
		var msg FactSourceMessage
		if err := json.Unmarshal(e.data, &msg); err != nil {
			log.Printf("[archive] %s: fact %s: parse %s: %v", net.Name, f.FactURN, e.name, err)
			continue
		}
		src, created, err := idx.resolveSource(ctx, net.ID, path.Base(e.name), msg, sources)
		if err != nil {
			log.Printf("[archive] %s: fact %s: resolve source from %s: %v", net.Name, f.FactURN, e.name, err)
			continue
		}
		sourceIDs = append(sourceIDs, src.ID)
		if created {
			newSource = &src
			sources = append(sources, src)
		}
	}

	contentSignature, collectionDate, err := extractContentSignature(vf)
	if err != nil {
		idx.logFailure(ctx, net.ID, f, err)
		return nil, nil, err
	}

	f.ContentSignature = contentSignature
	f.CollectionDate = collectionDate
	f.ParticipatingNodes = []string{node.ID}
	f.Sources = sourceIDs
	f.IsArchiveIndexed = true
	if err := idx.store.UpdateFact(ctx, f); err != nil {
		return nil, nil, fmt.Errorf("patch fact %s: %w", f.FactURN, err)
	}

	if newNode != nil {
		return newNode, newSource, nil
	}
	return nil, newSource, nil
}

func (idx *Indexer) fetchArchive(ctx context.Context, storageURN string) ([]byte, error) {
	if len(storageURN) < 12 {
		return nil, fmt.Errorf("storage_urn too short to derive archive URL: %q", storageURN)
	}
	url := "https://arweave.net/" + storageURN[12:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := idx.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("archive fetch: status %s", resp.Status)
	}
	ct := resp.Header.Get("content-type")
	if !strings.Contains(ct, "x-tar") && !strings.Contains(ct, "gzip") {
		return nil, fmt.Errorf("archive fetch: unexpected content-type %q", ct)
	}
	return io.ReadAll(resp.Body)
}

type archiveEntry struct {
	name string
	data []byte
	json bool
}

// extractEntries gunzips and untars body, collecting every .json/.txt
// entry by basename. Directory entries are ignored.
func extractEntries(body []byte) ([]archiveEntry, error) {
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var out []archiveEntry
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tar extract: %w", err)
		}
		if hdr.Typeflag == tar.TypeDir {
			continue
		}
		base := path.Base(hdr.Name)
		isJSON := strings.HasSuffix(base, ".json")
		isTxt := strings.HasSuffix(base, ".txt")
		if !isJSON && !isTxt {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", hdr.Name, err)
		}
		out = append(out, archiveEntry{name: hdr.Name, data: data, json: isJSON})
	}
	return out, nil
}

func findEntry(entries []archiveEntry, substr string) (archiveEntry, bool) {
	for _, e := range entries {
		if strings.Contains(path.Base(e.name), substr) {
			return e, true
		}
	}
	return archiveEntry{}, false
}

var sourceNamePattern = regexp.MustCompile(`-([\w]+?)(?:\.tick_|-\d{4}-\d{2}-\d{2}T)`)

func sourceNameToken(basename string) string {
	m := sourceNamePattern.FindStringSubmatch(basename)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
