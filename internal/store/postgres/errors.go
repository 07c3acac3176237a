package postgres

import (
	"context"
	"fmt"

	"github.com/orcfax/fact-index/internal/store"
)

// LogIndexingError records a non-fatal indexing failure for operator
// visibility.
func (s *Store) LogIndexingError(ctx context.Context, e store.IndexingError) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO app.indexing_errors (network_id, slot, transaction_id, kind, message)
		VALUES ($1,$2,$3,$4,$5)`,
		e.NetworkID, e.Slot, e.TransactionID, e.Kind, sanitizeForPG(e.Message))
	if err != nil {
		return fmt.Errorf("log indexing error: %w", err)
	}
	return nil
}

// ListIndexingErrors returns the most recent indexing errors for a network,
// newest first.
func (s *Store) ListIndexingErrors(ctx context.Context, networkID string, limit int) ([]store.IndexingError, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, network_id, slot, transaction_id, kind, message, created_at
		FROM app.indexing_errors WHERE network_id = $1 ORDER BY created_at DESC LIMIT $2`,
		networkID, limit)
	if err != nil {
		return nil, fmt.Errorf("list indexing errors: %w", err)
	}
	defer rows.Close()

	var out []store.IndexingError
	for rows.Next() {
		var e store.IndexingError
		var id int64
		if err := rows.Scan(&id, &e.NetworkID, &e.Slot, &e.TransactionID, &e.Kind, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan indexing error: %w", err)
		}
		e.ID = fmt.Sprintf("%d", id)
		out = append(out, e)
	}
	return out, rows.Err()
}
