// Package metadata extracts the per-output fact URN and storage URN from a
// transaction's Orcfax metadata (label 1226).
package metadata

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orcfax/fact-index/internal/chainindex"
)

// tosDisclaimers lists the accepted literal ToS-disclaimer head elements
// that the metadata decoder must tolerate and skip. Two sentinels have
// been observed on-chain across the feed's lifetime; this list may need
// extending if a golden sample surfaces a third.
var tosDisclaimers = map[string]struct{}{
	"Use oracle data at your own risk: https://orcfax.io/tos/": {},
	"Orcfax data is provided as-is; see https://orcfax.io/tos/ for terms": {},
}

// arweaveFailureSentinels are storage_urn values that signal a failed
// archival upload rather than a real URN; they are normalized to "".
var arweaveFailureSentinels = []string{
	"arweave tx not created",
	"send to Arkly feature is not currently enabled",
}

// OutputURNs is the (fact_urn, storage_urn) pair for one transaction output.
type OutputURNs struct {
	OutputIndex int
	FactURN     string
	StorageURN  string
}

// Decode parses the label-1226 list of the first entry that carries one
// (Schema.Label1226.List) into one OutputURNs per
// transaction output, pairing list entries with outputs sorted by
// OutputIndex ascending. A ToS disclaimer as the list head is skipped.
func Decode(entries []chainindex.MetadataEntry, outputIndexes []int) ([]OutputURNs, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("metadata: no entries returned")
	}
	label, ok := firstLabel1226(entries)
	if !ok {
		return nil, fmt.Errorf("metadata: no label 1226 present")
	}

	list := label.List
	if len(list) > 0 && isTosDisclaimer(list[0]) {
		list = list[1:]
	}

	sortedOutputs := append([]int(nil), outputIndexes...)
	sort.Ints(sortedOutputs)

	if len(list) != len(sortedOutputs) {
		return nil, fmt.Errorf("metadata: %d datum-metadata entries for %d outputs", len(list), len(sortedOutputs))
	}

	out := make([]OutputURNs, 0, len(sortedOutputs))
	for i, outputIndex := range sortedOutputs {
		entry := list[i]
		factURN, storageURN, err := parseDatumMetadata(entry)
		if err != nil {
			return nil, fmt.Errorf("metadata: output %d: %w", outputIndex, err)
		}
		out = append(out, OutputURNs{
			OutputIndex: outputIndex,
			FactURN:     factURN,
			StorageURN:  normalizeStorageURN(storageURN),
		})
	}
	return out, nil
}

func firstLabel1226(entries []chainindex.MetadataEntry) (chainindex.Label1226, bool) {
	for _, e := range entries {
		if e.Schema.Label1226 != nil {
			return *e.Schema.Label1226, true
		}
	}
	return chainindex.Label1226{}, false
}

func isTosDisclaimer(v chainindex.RawSchemaValue) bool {
	if v.String == nil {
		return false
	}
	_, known := tosDisclaimers[*v.String]
	return known
}

// parseDatumMetadata extracts fact_urn = map[0].v.string and
// storage_urn = map[1].v.string from one list entry.
func parseDatumMetadata(v chainindex.RawSchemaValue) (factURN string, storageURN string, err error) {
	if len(v.Map) < 2 {
		return "", "", fmt.Errorf("expected a 2+ entry map, got %d entries", len(v.Map))
	}
	fact := v.Map[0].V.String
	storage := v.Map[1].V.String
	if fact == nil {
		return "", "", fmt.Errorf("map[0].v is not a string")
	}
	if storage == nil {
		return "", "", fmt.Errorf("map[1].v is not a string")
	}
	return *fact, *storage, nil
}

func normalizeStorageURN(storageURN string) string {
	for _, sentinel := range arweaveFailureSentinels {
		if strings.Contains(storageURN, sentinel) {
			return ""
		}
	}
	return storageURN
}
