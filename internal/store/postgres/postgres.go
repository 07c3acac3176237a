// Package postgres implements store.Store on top of PostgreSQL via pgx,
// with pool configuration, statement/idle timeouts, and schema bootstrap
// on connect.
package postgres

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the pgx-backed store.Store implementation.
type Store struct {
	db *pgxpool.Pool
}

// New connects to dbURL and ensures the schema exists.
func New(ctx context.Context, dbURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	if v := os.Getenv("DB_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConns = int32(n)
		}
	}
	if v := os.Getenv("DB_MAX_IDLE_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MinConns = int32(n)
		}
	}

	// Recycle connections periodically so stale sessions don't survive
	// across deployments.
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["statement_timeout"]; !ok {
		cfg.ConnConfig.RuntimeParams["statement_timeout"] = getEnvDefault("DB_STATEMENT_TIMEOUT", "300000")
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["idle_in_transaction_session_timeout"]; !ok {
		cfg.ConnConfig.RuntimeParams["idle_in_transaction_session_timeout"] = getEnvDefault("DB_IDLE_TX_TIMEOUT", "120000")
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Store{db: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Close releases the pool.
func (s *Store) Close() {
	s.db.Close()
}

// Ping reports whether the pool can currently reach the database,
// satisfying internal/health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// sanitizeForPG strips PostgreSQL-incompatible bytes (null bytes, invalid
// UTF-8) from a string before it is bound to a query parameter. Chain-index
// payloads are untrusted input and have been observed to carry embedded
// NULs.
func sanitizeForPG(s string) string {
	if strings.ContainsRune(s, 0) {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return s
}

const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS app;

CREATE TABLE IF NOT EXISTS app.networks (
	id                     TEXT PRIMARY KEY,
	name                   TEXT NOT NULL UNIQUE,
	fact_statement_pointer TEXT NOT NULL,
	script_token           TEXT NOT NULL,
	chain_index_base_url   TEXT NOT NULL,
	active_feeds_url       TEXT NOT NULL,
	zero_time_ms           BIGINT NOT NULL,
	zero_slot              BIGINT NOT NULL,
	slot_length_ms         BIGINT NOT NULL,
	last_block_hash        TEXT NOT NULL DEFAULT '',
	last_checkpoint_slot   BIGINT NOT NULL DEFAULT 0,
	is_enabled             BOOLEAN NOT NULL DEFAULT TRUE,
	ignore_policies        TEXT[] NOT NULL DEFAULT '{}',
	tracks_archives        BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS app.policies (
	id                  TEXT PRIMARY KEY,
	network_id          TEXT NOT NULL REFERENCES app.networks(id),
	policy_id           TEXT NOT NULL,
	starting_slot       BIGINT NOT NULL,
	starting_block_hash TEXT NOT NULL,
	starting_date       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_policies_network_slot ON app.policies (network_id, starting_slot);

CREATE TABLE IF NOT EXISTS app.assets (
	id                        TEXT PRIMARY KEY,
	ticker                    TEXT NOT NULL UNIQUE,
	fingerprint               TEXT,
	has_xerberus_risk_rating  BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS app.feeds (
	id                  TEXT PRIMARY KEY,
	network_id          TEXT NOT NULL REFERENCES app.networks(id),
	feed_id             TEXT NOT NULL,
	type                TEXT NOT NULL,
	name                TEXT NOT NULL,
	version             TEXT NOT NULL,
	status              TEXT NOT NULL,
	source_type         TEXT NOT NULL DEFAULT '',
	funding_type        TEXT NOT NULL DEFAULT '',
	calculation_method  TEXT NOT NULL DEFAULT '',
	heartbeat_interval  INT NOT NULL DEFAULT 0,
	deviation           DOUBLE PRECISION NOT NULL DEFAULT 0,
	base_asset_id       TEXT REFERENCES app.assets(id),
	quote_asset_id      TEXT REFERENCES app.assets(id),
	UNIQUE (network_id, feed_id)
);

CREATE TABLE IF NOT EXISTS app.facts (
	id                   TEXT PRIMARY KEY,
	network_id           TEXT NOT NULL REFERENCES app.networks(id),
	feed_id              TEXT NOT NULL REFERENCES app.feeds(id),
	policy_id            TEXT NOT NULL REFERENCES app.policies(id),
	fact_urn             TEXT NOT NULL,
	storage_urn          TEXT NOT NULL DEFAULT '',
	transaction_id       TEXT NOT NULL,
	block_hash           TEXT NOT NULL,
	slot                 BIGINT NOT NULL,
	address              TEXT NOT NULL,
	output_index         INT NOT NULL,
	statement_hash       TEXT NOT NULL,
	value                DOUBLE PRECISION NOT NULL,
	value_inverse        DOUBLE PRECISION NOT NULL,
	publication_date     TIMESTAMPTZ NOT NULL,
	validation_date      TIMESTAMPTZ NOT NULL,
	publication_cost     DOUBLE PRECISION NOT NULL,
	datum_hash           TEXT NOT NULL,
	is_archive_indexed   BOOLEAN NOT NULL DEFAULT FALSE,
	content_signature    TEXT NOT NULL DEFAULT '',
	collection_date      TIMESTAMPTZ,
	participating_nodes  TEXT[] NOT NULL DEFAULT '{}',
	sources              TEXT[] NOT NULL DEFAULT '{}',
	UNIQUE (network_id, fact_urn)
);
CREATE INDEX IF NOT EXISTS idx_facts_network_slot ON app.facts (network_id, slot);
CREATE INDEX IF NOT EXISTS idx_facts_unarchived ON app.facts (network_id) WHERE is_archive_indexed = FALSE AND storage_urn <> '';

CREATE TABLE IF NOT EXISTS app.nodes (
	id         TEXT PRIMARY KEY,
	network_id TEXT NOT NULL REFERENCES app.networks(id),
	node_urn   TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT '',
	type       TEXT NOT NULL DEFAULT '',
	locality   TEXT NOT NULL DEFAULT '',
	region     TEXT NOT NULL DEFAULT '',
	geo        TEXT NOT NULL DEFAULT '',
	UNIQUE (network_id, node_urn)
);

CREATE TABLE IF NOT EXISTS app.sources (
	id               TEXT PRIMARY KEY,
	network_id       TEXT NOT NULL REFERENCES app.networks(id),
	name             TEXT NOT NULL,
	type             TEXT NOT NULL,
	sender           TEXT NOT NULL,
	recipient        TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'active',
	website          TEXT NOT NULL DEFAULT '',
	image_path       TEXT NOT NULL DEFAULT '',
	background_color TEXT NOT NULL DEFAULT '',
	UNIQUE (network_id, recipient)
);

CREATE TABLE IF NOT EXISTS app.indexing_errors (
	id             BIGSERIAL PRIMARY KEY,
	network_id     TEXT NOT NULL,
	slot           BIGINT NOT NULL DEFAULT 0,
	transaction_id TEXT NOT NULL DEFAULT '',
	kind           TEXT NOT NULL,
	message        TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_indexing_errors_network ON app.indexing_errors (network_id, created_at DESC);
`

// ensureSchema runs the full DDL idempotently on connect, a "migrate
// on boot" posture.
func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaDDL)
	return err
}
