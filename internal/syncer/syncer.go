package syncer

import (
	"context"
	"fmt"
	"log"

	"github.com/orcfax/fact-index/internal/chainindex"
	"github.com/orcfax/fact-index/internal/models"
	"github.com/orcfax/fact-index/internal/policy"
	"github.com/orcfax/fact-index/internal/store"
)

// Syncer advances one network's checkpoint per tick.
type Syncer struct {
	store   store.Store
	tracker *policy.Tracker
}

// New builds a Syncer.
func New(st store.Store, tracker *policy.Tracker) *Syncer {
	return &Syncer{store: st, tracker: tracker}
}

// Tick runs one incremental-sync pass for net: policy rotation handling,
// conditional matches fetch, rollback repair, and checkpoint advancement.
func (s *Syncer) Tick(ctx context.Context, client *chainindex.Client, net models.Network) error {
	rotated, err := s.tracker.Rotate(ctx, client, net)
	if err != nil {
		log.Printf("[syncer] %s: policy rotation check failed: %v", net.Name, err)
	}

	policies, err := s.store.ListPolicies(ctx, net.ID)
	if err != nil {
		return fmt.Errorf("syncer: %s: list policies: %w", net.Name, err)
	}
	net.Policies = policies
	current, ok := net.CurrentPolicy()
	if !ok {
		return fmt.Errorf("syncer: %s: no policies tracked yet", net.Name)
	}

	if rotated && len(policies) >= 2 {
		prev := policies[len(policies)-2]
		last, hasLast, err := s.store.LastIndexedFact(ctx, net.ID)
		if err != nil {
			return fmt.Errorf("syncer: %s: last indexed fact: %w", net.Name, err)
		}
		fromSlot := prev.StartingSlot
		if hasLast {
			fromSlot = last.Slot
		}

		if _, err := s.fetchAndIndex(ctx, client, net, prev, fromSlot, current.StartingSlot, true); err != nil {
			log.Printf("[syncer] %s: close out previous policy: %v", net.Name, err)
		}

		lastUnderNew, hasLastUnderNew, err := s.store.LastIndexedFact(ctx, net.ID)
		if err != nil {
			return fmt.Errorf("syncer: %s: last indexed fact under new policy: %w", net.Name, err)
		}
		startSlot := current.StartingSlot
		if hasLastUnderNew && lastUnderNew.PolicyID == current.ID {
			startSlot = lastUnderNew.Slot
		}
		result, err := s.fetchAndIndex(ctx, client, net, current, startSlot, 0, false)
		if err != nil {
			return err
		}
		if result == nil {
			return nil
		}

		net.LastBlockHash = result.ETag
		net.LastCheckpointSlot = result.MostRecentCheckpoint
		if err := s.store.UpdateNetwork(ctx, net); err != nil {
			return fmt.Errorf("syncer: %s: update checkpoint: %w", net.Name, err)
		}
		return nil
	}

	return s.tickWithCheckpoint(ctx, client, net, current)
}

// tickWithCheckpoint is the steady-state path (no rotation this tick):
// conditional fetch against the stored checkpoint, rollback repair, then
// checkpoint advancement.
func (s *Syncer) tickWithCheckpoint(ctx context.Context, client *chainindex.Client, net models.Network, current models.Policy) error {
	result, err := client.FetchMatches(ctx, chainindex.MatchesQuery{
		Pattern:         fmt.Sprintf("%s.*", current.PolicyID),
		Order:           chainindex.OrderOldestFirst,
		CreatedAfter:    net.LastCheckpointSlot,
		HasCreatedAfter: true,
		IfNoneMatch:     net.LastBlockHash,
	})
	if err != nil {
		if chainindex.IsNotModified(err) {
			return nil
		}
		return fmt.Errorf("syncer: %s: fetch matches: %w", net.Name, err)
	}

	if result.MostRecentCheckpoint < net.LastCheckpointSlot {
		log.Printf("[syncer] %s: rollback detected, stored=%d server=%d", net.Name, net.LastCheckpointSlot, result.MostRecentCheckpoint)
		if err := s.store.DeleteFactsWithSlotGreaterThan(ctx, net.ID, result.MostRecentCheckpoint); err != nil {
			return fmt.Errorf("syncer: %s: rollback repair: %w", net.Name, err)
		}
	}

	IndexMatches(ctx, client, s.store, net, current, result.Matches)

	net.LastBlockHash = result.ETag
	net.LastCheckpointSlot = result.MostRecentCheckpoint
	if err := s.store.UpdateNetwork(ctx, net); err != nil {
		return fmt.Errorf("syncer: %s: update checkpoint: %w", net.Name, err)
	}
	return nil
}

// fetchAndIndex fetches and indexes matches under one policy in
// [fromSlot, toSlot) (toSlot==0 means unbounded), used to close out a
// rotated-away policy and to seed the new one. It returns the fetch's
// result (nil on a 304) so the caller can persist the checkpoint.
func (s *Syncer) fetchAndIndex(ctx context.Context, client *chainindex.Client, net models.Network, pol models.Policy, fromSlot, toSlot int64, bounded bool) (*chainindex.MatchesResult, error) {
	q := chainindex.MatchesQuery{
		Pattern:         fmt.Sprintf("%s.*", pol.PolicyID),
		Order:           chainindex.OrderOldestFirst,
		CreatedAfter:    fromSlot,
		HasCreatedAfter: true,
	}
	if bounded {
		q.CreatedBefore = toSlot
		q.HasCreatedBefore = true
	}
	result, err := client.FetchMatches(ctx, q)
	if err != nil {
		if chainindex.IsNotModified(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch matches under policy %s: %w", pol.PolicyID, err)
	}
	IndexMatches(ctx, client, s.store, net, pol, result.Matches)
	return result, nil
}
