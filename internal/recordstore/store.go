// Package recordstore is the relational record-of-truth for the indexing
// pipeline: per-document advisory locks, document metadata upsert, and
// access-control/document-set membership lookups. The distilled pipeline
// spec treats this store as an external collaborator behind an interface;
// this package is its concrete Postgres-backed adapter.
package recordstore

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx.Tx that the metadata/access/document-set
// lookups need. pgx.Tx already satisfies it; tests substitute a fake
// without pulling in a real database connection.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DocumentMetadata is the attempt-scoped metadata upserted for each document
// before chunking/embedding/writing begins.
type DocumentMetadata struct {
	ConnectorID     int
	CredentialID    int
	DocumentID      string
	SemanticIdent   string
	FirstLink       string
	PrimaryOwners   []string
	SecondaryOwners []string
}

// AccessInfo is the access-control state resolved for one document.
type AccessInfo struct {
	Users  []string
	Groups []string
	Public bool
}

// Store is a pgx-backed implementation of the record-of-truth collaborator.
type Store struct {
	pool *pgxpool.Pool
}

// Open parses dsn and opens a connection pool sized for the indexing
// pipeline's bounded concurrency (a handful of connections per pipeline
// instance; the bulk of the pipeline's fan-out happens against the search
// engine, not this store).
func Open(ctx context.Context, dsn string) (*Store, error) {
	pgCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse record store dsn: %w", err)
	}
	pgCfg.MaxConns = 8
	pgCfg.MinConns = 0
	pgCfg.MaxConnLifetime = time.Hour
	pgCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("open record store pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping record store: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the tables this store needs if they don't already
// exist. Safe to call on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS document_metadata (
	document_id TEXT PRIMARY KEY,
	connector_id INT NOT NULL,
	credential_id INT NOT NULL,
	semantic_identifier TEXT,
	first_link TEXT,
	primary_owners TEXT[],
	secondary_owners TEXT[],
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS document_access (
	document_id TEXT PRIMARY KEY REFERENCES document_metadata(document_id) ON DELETE CASCADE,
	access_users TEXT[],
	access_groups TEXT[],
	is_public BOOLEAN NOT NULL DEFAULT false
);
CREATE TABLE IF NOT EXISTS document_set_membership (
	document_id TEXT REFERENCES document_metadata(document_id) ON DELETE CASCADE,
	document_set TEXT NOT NULL,
	PRIMARY KEY (document_id, document_set)
);
`)
	if err != nil {
		return fmt.Errorf("ensure record store schema: %w", err)
	}
	return nil
}

// WithDocumentLocks takes Postgres advisory locks for every document id,
// in ascending order (a fixed lock order across concurrent batches
// prevents the classic two-batch deadlock), runs fn inside that
// transaction, and commits on success. The locks are scoped to the
// transaction, so they release automatically on commit or rollback —
// including process crash, since Postgres releases session-held locks
// when the session ends.
func (s *Store) WithDocumentLocks(ctx context.Context, documentIDs []string, fn func(ctx context.Context, q Querier) error) error {
	ordered := append([]string(nil), documentIDs...)
	sort.Strings(ordered)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record store tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, id := range ordered {
		key := lockKey(id)
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key); err != nil {
			return fmt.Errorf("lock document %s: %w", id, err)
		}
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit record store tx: %w", err)
	}
	return nil
}

// lockKey hashes a document id into the int64 space pg_advisory_xact_lock
// takes. Collisions only cost extra serialization between unrelated
// documents, never correctness.
func lockKey(documentID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(documentID))
	return int64(h.Sum64())
}

// UpsertDocumentMetadata writes attempt-scoped metadata for one document
// within an already-open transaction.
func (s *Store) UpsertDocumentMetadata(ctx context.Context, q Querier, meta DocumentMetadata) error {
	_, err := q.Exec(ctx, `
INSERT INTO document_metadata (document_id, connector_id, credential_id, semantic_identifier, first_link, primary_owners, secondary_owners, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (document_id) DO UPDATE SET
	connector_id = EXCLUDED.connector_id,
	credential_id = EXCLUDED.credential_id,
	semantic_identifier = EXCLUDED.semantic_identifier,
	first_link = EXCLUDED.first_link,
	primary_owners = EXCLUDED.primary_owners,
	secondary_owners = EXCLUDED.secondary_owners,
	updated_at = now()
`, meta.DocumentID, meta.ConnectorID, meta.CredentialID, meta.SemanticIdent, meta.FirstLink, meta.PrimaryOwners, meta.SecondaryOwners)
	if err != nil {
		return fmt.Errorf("upsert document metadata %s: %w", meta.DocumentID, err)
	}
	return nil
}

// AccessForDocuments resolves access-control state for each document id.
// Documents with no row default to an empty, non-public AccessInfo.
func (s *Store) AccessForDocuments(ctx context.Context, q Querier, documentIDs []string) (map[string]AccessInfo, error) {
	out := make(map[string]AccessInfo, len(documentIDs))
	for _, id := range documentIDs {
		out[id] = AccessInfo{}
	}
	if len(documentIDs) == 0 {
		return out, nil
	}

	rows, err := q.Query(ctx, `
SELECT document_id, access_users, access_groups, is_public
FROM document_access
WHERE document_id = ANY($1)
`, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("query document access: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var info AccessInfo
		if err := rows.Scan(&id, &info.Users, &info.Groups, &info.Public); err != nil {
			return nil, fmt.Errorf("scan document access: %w", err)
		}
		out[id] = info
	}
	return out, rows.Err()
}

// DocumentSetsForDocuments resolves document-set membership for each
// document id. Documents with no rows map to an empty slice.
func (s *Store) DocumentSetsForDocuments(ctx context.Context, q Querier, documentIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(documentIDs))
	for _, id := range documentIDs {
		out[id] = nil
	}
	if len(documentIDs) == 0 {
		return out, nil
	}

	rows, err := q.Query(ctx, `
SELECT document_id, document_set
FROM document_set_membership
WHERE document_id = ANY($1)
`, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("query document set membership: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, set string
		if err := rows.Scan(&id, &set); err != nil {
			return nil, fmt.Errorf("scan document set membership: %w", err)
		}
		out[id] = append(out[id], set)
	}
	return out, rows.Err()
}
