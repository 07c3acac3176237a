package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/orcfax/fact-index/internal/models"
)

// InsertFact attempts to insert a fact statement. inserted is false (with a
// nil error) when the (network_id, fact_urn) uniqueness key already exists
// — the store's "not unique" signal from store.Store, not an error.
func (s *Store) InsertFact(ctx context.Context, f models.FactStatement) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO app.facts (id, network_id, feed_id, policy_id, fact_urn, storage_urn,
			transaction_id, block_hash, slot, address, output_index, statement_hash,
			value, value_inverse, publication_date, validation_date, publication_cost,
			datum_hash, is_archive_indexed, content_signature, collection_date,
			participating_nodes, sources)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		ON CONFLICT (network_id, fact_urn) DO NOTHING`,
		f.ID, f.NetworkID, f.FeedID, f.PolicyID, f.FactURN, sanitizeForPG(f.StorageURN),
		f.TransactionID, f.BlockHash, f.Slot, f.Address, f.OutputIndex, f.StatementHash,
		f.Value, f.ValueInverse, f.PublicationDate, f.ValidationDate, f.PublicationCost,
		f.DatumHash, f.IsArchiveIndexed, f.ContentSignature, nullableTime(f.CollectionDate),
		f.ParticipatingNodes, f.Sources)
	if err != nil {
		return false, fmt.Errorf("insert fact %s: %w", f.FactURN, err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateFact persists the archival enrichment fields written once the
// Archive Indexer (§4.9) resolves a fact's archive package.
func (s *Store) UpdateFact(ctx context.Context, f models.FactStatement) error {
	_, err := s.db.Exec(ctx, `
		UPDATE app.facts SET
			is_archive_indexed = $2, content_signature = $3, collection_date = $4,
			participating_nodes = $5, sources = $6
		WHERE id = $1`,
		f.ID, f.IsArchiveIndexed, f.ContentSignature, nullableTime(f.CollectionDate),
		f.ParticipatingNodes, f.Sources)
	if err != nil {
		return fmt.Errorf("update fact %s: %w", f.FactURN, err)
	}
	return nil
}

// DeleteFactsWithSlotGreaterThan is the rollback-repair primitive: on a
// detected reorg, every fact indexed past the chain index's
// most-recent-checkpoint is removed so the next tick re-derives them
// from the canonical chain.
func (s *Store) DeleteFactsWithSlotGreaterThan(ctx context.Context, networkID string, slot int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM app.facts WHERE network_id = $1 AND slot > $2`, networkID, slot)
	if err != nil {
		return fmt.Errorf("rollback facts for network %s past slot %d: %w", networkID, slot, err)
	}
	return nil
}

// LastIndexedFact returns the highest-slot fact for a network, used to
// resume incremental sync after a restart.
func (s *Store) LastIndexedFact(ctx context.Context, networkID string) (models.FactStatement, bool, error) {
	f, err := scanFact(s.db.QueryRow(ctx, factSelectColumns+`
		FROM app.facts WHERE network_id = $1 ORDER BY slot DESC, output_index DESC LIMIT 1`, networkID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return models.FactStatement{}, false, nil
		}
		return models.FactStatement{}, false, fmt.Errorf("last indexed fact for network %s: %w", networkID, err)
	}
	return f, true, nil
}

// ListUnarchivedFacts returns facts with a storage_urn but not yet archive
// indexed, the Archive Indexer's (§4.9) work queue.
func (s *Store) ListUnarchivedFacts(ctx context.Context, networkID string) ([]models.FactStatement, error) {
	rows, err := s.db.Query(ctx, factSelectColumns+`
		FROM app.facts WHERE network_id = $1 AND is_archive_indexed = FALSE AND storage_urn <> ''
		ORDER BY slot ASC`, networkID)
	if err != nil {
		return nil, fmt.Errorf("list unarchived facts: %w", err)
	}
	defer rows.Close()

	var out []models.FactStatement
	for rows.Next() {
		f, err := scanFactRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

const factSelectColumns = `
	SELECT id, network_id, feed_id, policy_id, fact_urn, storage_urn, transaction_id,
	       block_hash, slot, address, output_index, statement_hash, value, value_inverse,
	       publication_date, validation_date, publication_cost, datum_hash,
	       is_archive_indexed, content_signature, collection_date, participating_nodes, sources
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFact(row pgx.Row) (models.FactStatement, error) {
	return scanFactRow(row)
}

func scanFactRows(rows pgx.Rows) (models.FactStatement, error) {
	return scanFactRow(rows)
}

func scanFactRow(r rowScanner) (models.FactStatement, error) {
	var f models.FactStatement
	var collectionDate *time.Time
	err := r.Scan(&f.ID, &f.NetworkID, &f.FeedID, &f.PolicyID, &f.FactURN, &f.StorageURN,
		&f.TransactionID, &f.BlockHash, &f.Slot, &f.Address, &f.OutputIndex, &f.StatementHash,
		&f.Value, &f.ValueInverse, &f.PublicationDate, &f.ValidationDate, &f.PublicationCost,
		&f.DatumHash, &f.IsArchiveIndexed, &f.ContentSignature, &collectionDate,
		&f.ParticipatingNodes, &f.Sources)
	if err != nil {
		return models.FactStatement{}, err
	}
	if collectionDate != nil {
		f.CollectionDate = *collectionDate
	}
	return f, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
