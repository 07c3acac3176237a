// Package syncer implements the incremental syncer: per-tick advancement
// of a network from its stored checkpoint, including policy rotation
// handling and rollback repair. The parsing path is a block-by-block
// catch-up with reorg detection, retargeted at Kupo-style
// matches/datums/metadata.
package syncer

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/orcfax/fact-index/internal/chainindex"
	"github.com/orcfax/fact-index/internal/datum"
	"github.com/orcfax/fact-index/internal/metadata"
	"github.com/orcfax/fact-index/internal/models"
	"github.com/orcfax/fact-index/internal/store"
	"github.com/orcfax/fact-index/internal/timebase"
)

// IndexResult summarizes the outcome of indexing one batch of matches.
type IndexResult struct {
	Inserted int
	Skipped  int // duplicate (network, fact_urn)
	Failed   int // protocol violations / transient errors on individual transactions
}

// IndexMatches groups matches by transaction, parses and inserts a
// FactStatement per output, and returns aggregate counts. It never fails
// the whole batch: a single transaction's failure is logged, recorded via
// store.LogIndexingError, and counted in Failed. A ProtocolViolation on
// one transaction fails just that transaction; the caller is responsible
// for not advancing the checkpoint past a failing transaction.
func IndexMatches(ctx context.Context, client *chainindex.Client, st store.Store, net models.Network, policy models.Policy, matches []chainindex.KupoMatch) IndexResult {
	var result IndexResult

	byTx := make(map[string][]chainindex.KupoMatch)
	var txOrder []string
	for _, m := range matches {
		if _, ok := byTx[m.TransactionID]; !ok {
			txOrder = append(txOrder, m.TransactionID)
		}
		byTx[m.TransactionID] = append(byTx[m.TransactionID], m)
	}

	for _, txID := range txOrder {
		outputs := byTx[txID]
		sort.Slice(outputs, func(i, j int) bool { return outputs[i].OutputIndex < outputs[j].OutputIndex })

		slot := outputs[0].CreatedAt.SlotNo
		for _, o := range outputs {
			if o.CreatedAt.SlotNo != slot {
				msg := fmt.Sprintf("transaction %s: outputs span multiple slots (%d and %d)", txID, slot, o.CreatedAt.SlotNo)
				logIndexingFailure(ctx, st, net.ID, slot, txID, "ProtocolViolation", msg)
				result.Failed++
				goto nextTx
			}
		}

		{
			entries, err := client.FetchMetadata(ctx, slot, txID)
			if err != nil {
				logIndexingFailure(ctx, st, net.ID, slot, txID, "TransientFetch", err.Error())
				result.Failed++
				goto nextTx
			}

			outputIndexes := make([]int, len(outputs))
			for i, o := range outputs {
				outputIndexes[i] = o.OutputIndex
			}
			urns, err := metadata.Decode(entries, outputIndexes)
			if err != nil {
				logIndexingFailure(ctx, st, net.ID, slot, txID, "ProtocolViolation", err.Error())
				result.Failed++
				goto nextTx
			}
			urnsByOutput := make(map[int]metadata.OutputURNs, len(urns))
			for _, u := range urns {
				urnsByOutput[u.OutputIndex] = u
			}

			for _, o := range outputs {
				if o.DatumHash == "" {
					logIndexingFailure(ctx, st, net.ID, slot, txID, "ProtocolViolation", fmt.Sprintf("output %d: missing datum hash", o.OutputIndex))
					result.Failed++
					continue
				}
				urn, ok := urnsByOutput[o.OutputIndex]
				if !ok {
					logIndexingFailure(ctx, st, net.ID, slot, txID, "ProtocolViolation", fmt.Sprintf("output %d: no metadata pairing", o.OutputIndex))
					result.Failed++
					continue
				}

				hexDatum, err := client.FetchDatum(ctx, o.DatumHash)
				if err != nil || hexDatum == "" {
					logIndexingFailure(ctx, st, net.ID, slot, txID, "TransientFetch", fmt.Sprintf("output %d: fetch datum %s", o.OutputIndex, o.DatumHash))
					result.Failed++
					continue
				}
				cp, err := datum.Decode(hexDatum, o.DatumHash)
				if err != nil {
					logIndexingFailure(ctx, st, net.ID, slot, txID, "ProtocolViolation", fmt.Sprintf("output %d: decode datum: %v", o.OutputIndex, err))
					result.Failed++
					continue
				}

				feed, err := ensureFeed(ctx, st, net.ID, cp)
				if err != nil {
					logIndexingFailure(ctx, st, net.ID, slot, txID, "TransientFetch", fmt.Sprintf("output %d: ensure feed: %v", o.OutputIndex, err))
					result.Failed++
					continue
				}

				statementHash := computeStatementHash(o.DatumHash, urn.FactURN)

				fact := models.FactStatement{
					ID:              "",
					NetworkID:       net.ID,
					FeedID:          feed.ID,
					PolicyID:        policy.ID,
					FactURN:         urn.FactURN,
					StorageURN:      urn.StorageURN,
					TransactionID:   txID,
					BlockHash:       o.CreatedAt.HeaderHash,
					Slot:            slot,
					Address:         o.Address,
					OutputIndex:     o.OutputIndex,
					StatementHash:   statementHash,
					Value:           cp.Value,
					ValueInverse:    cp.InverseValue,
					PublicationDate: timebase.SlotToDate(slot, net),
					ValidationDate:  time.UnixMilli(cp.ValidationDateMs).UTC(),
					PublicationCost: float64(o.Value.Coins) / 1_000_000,
					DatumHash:       o.DatumHash,
				}
				fact.ID = uuid.NewString()

				inserted, err := st.InsertFact(ctx, fact)
				if err != nil {
					logIndexingFailure(ctx, st, net.ID, slot, txID, "TransientFetch", fmt.Sprintf("output %d: insert fact: %v", o.OutputIndex, err))
					result.Failed++
					continue
				}
				if inserted {
					result.Inserted++
				} else {
					result.Skipped++
				}
			}
		}
	nextTx:
	}

	return result
}

func ensureFeed(ctx context.Context, st store.Store, networkID string, cp datum.CurrencyPairDatum) (models.Feed, error) {
	feeds, err := st.ListFeeds(ctx, networkID)
	if err != nil {
		return models.Feed{}, err
	}
	for _, f := range feeds {
		if f.FeedID == cp.FeedID {
			return f, nil
		}
	}
	// Unknown feed: create a minimal inactive record, reconciled later by
	// feedsync.
	log.Printf("[syncer] creating minimal inactive feed for unknown feed_id %s", cp.FeedID)
	return st.CreateFeed(ctx, models.Feed{
		NetworkID: networkID,
		FeedID:    cp.FeedID,
		Type:      cp.FeedType,
		Name:      cp.FeedName,
		Version:   cp.FeedVersion,
		Status:    models.FeedStatusInactive,
	})
}

// computeStatementHash hex-encodes BLAKE2b-256(datum_hash || fact_urn).
func computeStatementHash(datumHash, factURN string) string {
	sum := blake2b.Sum256([]byte(datumHash + factURN))
	return hex.EncodeToString(sum[:])
}

func logIndexingFailure(ctx context.Context, st store.Store, networkID string, slot int64, txID, kind, message string) {
	log.Printf("[syncer] %s: %s tx=%s slot=%d: %s", networkID, kind, txID, slot, message)
	if err := st.LogIndexingError(ctx, store.IndexingError{
		NetworkID:     networkID,
		Slot:          slot,
		TransactionID: txID,
		Kind:          kind,
		Message:       message,
	}); err != nil {
		log.Printf("[syncer] failed to log indexing error: %v", err)
	}
}
