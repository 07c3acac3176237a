// Package policy discovers and tracks the oracle's fact-statement-pointer
// policy lineage per network: sequential discovery of successive policy
// generations, retargeted at Cardano policy IDs.
package policy

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/orcfax/fact-index/internal/chainindex"
	"github.com/orcfax/fact-index/internal/datum"
	"github.com/orcfax/fact-index/internal/models"
	"github.com/orcfax/fact-index/internal/store"
	"github.com/orcfax/fact-index/internal/timebase"
)

// Tracker discovers and rotates a network's policy lineage.
type Tracker struct {
	store store.Store
}

// New builds a Tracker.
func New(st store.Store) *Tracker {
	return &Tracker{store: st}
}

// Populate performs first-time policy discovery for a network with no
// stored policies: list every match at the fact-statement pointer, decode
// each match's datum into a policy ID, dedupe preserving first occurrence,
// drop ignored policies, and persist the remainder ordered by starting
// slot.
func (t *Tracker) Populate(ctx context.Context, client *chainindex.Client, net models.Network) error {
	result, err := client.FetchMatches(ctx, chainindex.MatchesQuery{
		Pattern: fmt.Sprintf("%s.%s", net.FactStatementPointer, net.ScriptToken),
		Order:   chainindex.OrderOldestFirst,
	})
	if err != nil {
		return fmt.Errorf("policy: list matches for %s: %w", net.Name, err)
	}

	seen := make(map[string]struct{})
	type candidate struct {
		policyID   string
		slot       int64
		headerHash string
	}
	var candidates []candidate

	for _, m := range result.Matches {
		if m.DatumHash == "" {
			continue
		}
		hexDatum, err := client.FetchDatum(ctx, m.DatumHash)
		if err != nil {
			log.Printf("[policy] %s: fetch datum %s: %v", net.Name, m.DatumHash, err)
			continue
		}
		if hexDatum == "" {
			continue
		}
		policyID, err := datum.DecodePolicyID(hexDatum)
		if err != nil {
			log.Printf("[policy] %s: decode policy datum %s: %v", net.Name, m.DatumHash, err)
			continue
		}
		if _, dup := seen[policyID]; dup {
			continue
		}
		if _, ignored := net.IgnorePolicies[policyID]; ignored {
			continue
		}
		seen[policyID] = struct{}{}
		candidates = append(candidates, candidate{policyID: policyID, slot: m.CreatedAt.SlotNo, headerHash: m.CreatedAt.HeaderHash})
	}

	for _, c := range candidates {
		p := models.Policy{
			ID:                uuid.NewString(),
			NetworkID:         net.ID,
			PolicyID:          c.policyID,
			StartingSlot:      c.slot,
			StartingBlockHash: c.headerHash,
			StartingDate:      timebase.SlotToDate(c.slot, net),
		}
		if err := t.store.CreatePolicy(ctx, p); err != nil {
			return fmt.Errorf("policy: persist %s: %w", c.policyID, err)
		}
	}
	return nil
}

// Rotate fetches the most-recent unspent match of the fact-statement
// pointer and compares its decoded policy ID against the network's
// current policy. An unchanged ID is a no-op; a changed ID appends a new
// Policy record. Returns true if a rotation occurred.
func (t *Tracker) Rotate(ctx context.Context, client *chainindex.Client, net models.Network) (bool, error) {
	result, err := client.FetchMatches(ctx, chainindex.MatchesQuery{
		Pattern: fmt.Sprintf("%s.%s", net.FactStatementPointer, net.ScriptToken),
		Order:   chainindex.OrderMostRecentFirst,
		Unspent: true,
	})
	if err != nil {
		return false, fmt.Errorf("policy: rotation check for %s: %w", net.Name, err)
	}
	if len(result.Matches) == 0 {
		return false, nil
	}

	m := result.Matches[0]
	if m.DatumHash == "" {
		return false, nil
	}
	hexDatum, err := client.FetchDatum(ctx, m.DatumHash)
	if err != nil {
		return false, fmt.Errorf("policy: fetch rotation datum: %w", err)
	}
	if hexDatum == "" {
		return false, nil
	}
	policyID, err := datum.DecodePolicyID(hexDatum)
	if err != nil {
		return false, fmt.Errorf("policy: decode rotation datum: %w", err)
	}

	current, ok := net.CurrentPolicy()
	if ok && current.PolicyID == policyID {
		return false, nil
	}
	if _, ignored := net.IgnorePolicies[policyID]; ignored {
		return false, nil
	}

	p := models.Policy{
		ID:                uuid.NewString(),
		NetworkID:         net.ID,
		PolicyID:          policyID,
		StartingSlot:      m.CreatedAt.SlotNo,
		StartingBlockHash: m.CreatedAt.HeaderHash,
		StartingDate:      timebase.SlotToDate(m.CreatedAt.SlotNo, net),
	}
	if err := t.store.CreatePolicy(ctx, p); err != nil {
		return false, fmt.Errorf("policy: persist rotation %s: %w", policyID, err)
	}
	log.Printf("[policy] %s: rotated to policy %s at slot %d", net.Name, policyID, p.StartingSlot)
	return true, nil
}
