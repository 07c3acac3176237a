package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/orcfax/fact-index/internal/models"
)

// ListNodes returns every participating node known for a network.
func (s *Store) ListNodes(ctx context.Context, networkID string) ([]models.Node, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, network_id, node_urn, name, status, type, locality, region, geo
		FROM app.nodes WHERE network_id = $1`, networkID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var out []models.Node
	for rows.Next() {
		var n models.Node
		if err := rows.Scan(&n.ID, &n.NetworkID, &n.NodeURN, &n.Name, &n.Status, &n.Type,
			&n.Locality, &n.Region, &n.Geo); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CreateNode inserts a node, tolerating a concurrent insert of the same
// (network_id, node_urn) by returning the existing row instead.
func (s *Store) CreateNode(ctx context.Context, n models.Node) (models.Node, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO app.nodes (id, network_id, node_urn, name, status, type, locality, region, geo)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (network_id, node_urn) DO NOTHING`,
		n.ID, n.NetworkID, n.NodeURN, n.Name, n.Status, n.Type, n.Locality, n.Region, n.Geo)
	if err != nil {
		return models.Node{}, fmt.Errorf("create node %s: %w", n.NodeURN, err)
	}

	var existing models.Node
	err = s.db.QueryRow(ctx, `
		SELECT id, network_id, node_urn, name, status, type, locality, region, geo
		FROM app.nodes WHERE network_id = $1 AND node_urn = $2`, n.NetworkID, n.NodeURN).
		Scan(&existing.ID, &existing.NetworkID, &existing.NodeURN, &existing.Name, &existing.Status,
			&existing.Type, &existing.Locality, &existing.Region, &existing.Geo)
	if err != nil {
		return models.Node{}, fmt.Errorf("read back node %s: %w", n.NodeURN, err)
	}
	return existing, nil
}

// ListSources returns every data source known for a network.
func (s *Store) ListSources(ctx context.Context, networkID string) ([]models.Source, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, network_id, name, type, sender, recipient, status, website, image_path, background_color
		FROM app.sources WHERE network_id = $1`, networkID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		var src models.Source
		if err := rows.Scan(&src.ID, &src.NetworkID, &src.Name, &src.Type, &src.Sender, &src.Recipient,
			&src.Status, &src.Website, &src.ImagePath, &src.BackgroundColor); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// CreateSource inserts a source, tolerating a concurrent insert of the same
// (network_id, recipient) by returning the existing row instead. recipient
// is the uniqueness anchor: when the same (name, type, sender) shows up
// under a new recipient, that recipient gets a record of its own.
func (s *Store) CreateSource(ctx context.Context, src models.Source) (models.Source, error) {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO app.sources (id, network_id, name, type, sender, recipient, status, website, image_path, background_color)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (network_id, recipient) DO NOTHING`,
		src.ID, src.NetworkID, src.Name, src.Type, src.Sender, src.Recipient, src.Status,
		src.Website, src.ImagePath, src.BackgroundColor)
	if err != nil {
		return models.Source{}, fmt.Errorf("create source %s: %w", src.Recipient, err)
	}

	var existing models.Source
	err = s.db.QueryRow(ctx, `
		SELECT id, network_id, name, type, sender, recipient, status, website, image_path, background_color
		FROM app.sources WHERE network_id = $1 AND recipient = $2`, src.NetworkID, src.Recipient).
		Scan(&existing.ID, &existing.NetworkID, &existing.Name, &existing.Type, &existing.Sender,
			&existing.Recipient, &existing.Status, &existing.Website, &existing.ImagePath, &existing.BackgroundColor)
	if err != nil {
		return models.Source{}, fmt.Errorf("read back source %s: %w", src.Recipient, err)
	}
	return existing, nil
}

// UpdateSource persists the mutable fields of an existing source, such as
// the status change that retires a source whose recipient has rotated.
func (s *Store) UpdateSource(ctx context.Context, src models.Source) error {
	_, err := s.db.Exec(ctx, `
		UPDATE app.sources SET sender = $2, status = $3, name = $4, website = $5,
			image_path = $6, background_color = $7
		WHERE id = $1`,
		src.ID, src.Sender, src.Status, src.Name, src.Website, src.ImagePath, src.BackgroundColor)
	if err != nil {
		return fmt.Errorf("update source %s: %w", src.Recipient, err)
	}
	return nil
}
