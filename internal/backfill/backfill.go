// Package backfill walks a network's policies from origin to present in
// day-sized slot windows when its index is empty, following the same
// block-range replay shape as live catch-up but windowed day-by-day.
package backfill

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/orcfax/fact-index/internal/chainindex"
	"github.com/orcfax/fact-index/internal/models"
	"github.com/orcfax/fact-index/internal/store"
	"github.com/orcfax/fact-index/internal/syncer"
	"github.com/orcfax/fact-index/internal/timebase"
)

// Populator backfills a network's entire policy lineage.
type Populator struct {
	store store.Store
}

// New builds a Populator.
func New(st store.Store) *Populator {
	return &Populator{store: st}
}

// Run walks net.Policies in ascending starting-slot order (already the
// store's invariant), indexing every match in day-sized windows from each
// policy's origin slot up to now. Policies must be populated before Run is
// called.
func (p *Populator) Run(ctx context.Context, client *chainindex.Client, net models.Network) error {
	if len(net.Policies) == 0 {
		return fmt.Errorf("backfill: %s: no policies to backfill", net.Name)
	}

	now := timebase.DateToSlot(time.Now().UTC(), net)

	for _, pol := range net.Policies {
		current := pol.StartingSlot
		latest := now
		if err := p.backfillPolicy(ctx, client, net, pol, current, latest); err != nil {
			return fmt.Errorf("backfill: %s: policy %s: %w", net.Name, pol.PolicyID, err)
		}
	}

	net.LastCheckpointSlot = now
	if err := p.store.UpdateNetwork(ctx, net); err != nil {
		return fmt.Errorf("backfill: %s: persist checkpoint: %w", net.Name, err)
	}
	return nil
}

func (p *Populator) backfillPolicy(ctx context.Context, client *chainindex.Client, net models.Network, pol models.Policy, current, latest int64) error {
	for current < latest {
		end := timebase.SlotAfterPeriod(current, timebase.PeriodDay, net)
		if end > latest {
			end = latest
		}

		result, err := client.FetchMatches(ctx, chainindex.MatchesQuery{
			Pattern:          fmt.Sprintf("%s.*", pol.PolicyID),
			Order:            chainindex.OrderOldestFirst,
			CreatedAfter:     current,
			HasCreatedAfter:  true,
			CreatedBefore:    end,
			HasCreatedBefore: true,
		})
		if err != nil {
			if chainindex.IsNotModified(err) {
				current = end
				continue
			}
			log.Printf("[backfill] %s: policy %s window [%d,%d): %v", net.Name, pol.PolicyID, current, end, err)
			current = end
			continue
		}

		result_ := syncer.IndexMatches(ctx, client, p.store, net, pol, result.Matches)
		log.Printf("[backfill] %s: policy %s window [%d,%d): inserted=%d skipped=%d failed=%d",
			net.Name, pol.PolicyID, current, end, result_.Inserted, result_.Skipped, result_.Failed)

		net.LastBlockHash = result.ETag
		current = end
	}
	return nil
}

