package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/orcfax/fact-index/internal/models"
)

// ListNetworks returns every configured network, with Policies hydrated
// per network. Policy is a cyclic reference in the domain model (see
// models.Network doc); we never persist the back-pointer, only hydrate it
// here at read time.
func (s *Store) ListNetworks(ctx context.Context) ([]models.Network, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, fact_statement_pointer, script_token, chain_index_base_url,
		       active_feeds_url, zero_time_ms, zero_slot, slot_length_ms,
		       last_block_hash, last_checkpoint_slot, is_enabled, ignore_policies, tracks_archives
		FROM app.networks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}
	defer rows.Close()

	var out []models.Network
	for rows.Next() {
		var n models.Network
		var ignore []string
		if err := rows.Scan(&n.ID, &n.Name, &n.FactStatementPointer, &n.ScriptToken, &n.ChainIndexBaseURL,
			&n.ActiveFeedsURL, &n.ZeroTimeMs, &n.ZeroSlot, &n.SlotLengthMs,
			&n.LastBlockHash, &n.LastCheckpointSlot, &n.IsEnabled, &ignore, &n.TracksArchives); err != nil {
			return nil, fmt.Errorf("scan network: %w", err)
		}
		n.IgnorePolicies = toSet(ignore)
		policies, err := s.ListPolicies(ctx, n.ID)
		if err != nil {
			return nil, fmt.Errorf("hydrate policies for network %s: %w", n.ID, err)
		}
		n.Policies = policies
		out = append(out, n)
	}
	return out, rows.Err()
}

// CreateNetwork inserts a network record seeded at first boot.
func (s *Store) CreateNetwork(ctx context.Context, n models.Network) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO app.networks (id, name, fact_statement_pointer, script_token, chain_index_base_url,
			active_feeds_url, zero_time_ms, zero_slot, slot_length_ms, last_block_hash,
			last_checkpoint_slot, is_enabled, ignore_policies, tracks_archives)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.Name, n.FactStatementPointer, n.ScriptToken, n.ChainIndexBaseURL,
		n.ActiveFeedsURL, n.ZeroTimeMs, n.ZeroSlot, n.SlotLengthMs, n.LastBlockHash,
		n.LastCheckpointSlot, n.IsEnabled, fromSet(n.IgnorePolicies), n.TracksArchives)
	if err != nil {
		return fmt.Errorf("create network %s: %w", n.Name, err)
	}
	return nil
}

// UpdateNetwork persists the mutable checkpoint fields of a network
// (last_block_hash, last_checkpoint_slot) atomically.
func (s *Store) UpdateNetwork(ctx context.Context, n models.Network) error {
	_, err := s.db.Exec(ctx, `
		UPDATE app.networks
		SET last_block_hash = $2, last_checkpoint_slot = $3, is_enabled = $4
		WHERE id = $1`,
		n.ID, n.LastBlockHash, n.LastCheckpointSlot, n.IsEnabled)
	if err != nil {
		return fmt.Errorf("update network %s: %w", n.ID, err)
	}
	return nil
}

// ListPolicies returns a network's policies ordered by starting_slot
// ascending.
func (s *Store) ListPolicies(ctx context.Context, networkID string) ([]models.Policy, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, network_id, policy_id, starting_slot, starting_block_hash, starting_date
		FROM app.policies WHERE network_id = $1 ORDER BY starting_slot ASC`, networkID)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var out []models.Policy
	for rows.Next() {
		var p models.Policy
		var startingDate time.Time
		if err := rows.Scan(&p.ID, &p.NetworkID, &p.PolicyID, &p.StartingSlot, &p.StartingBlockHash, &startingDate); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		p.StartingDate = startingDate
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePolicy appends a new policy generation. Policies are never deleted.
func (s *Store) CreatePolicy(ctx context.Context, p models.Policy) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO app.policies (id, network_id, policy_id, starting_slot, starting_block_hash, starting_date)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.NetworkID, p.PolicyID, p.StartingSlot, p.StartingBlockHash, p.StartingDate)
	if err != nil {
		return fmt.Errorf("create policy: %w", err)
	}
	return nil
}

func toSet(v []string) map[string]struct{} {
	out := make(map[string]struct{}, len(v))
	for _, s := range v {
		out[s] = struct{}{}
	}
	return out
}

func fromSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	return out
}
