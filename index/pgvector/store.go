// Package pgvector implements the index.Indexer contract on PostgreSQL with
// the pgvector extension, using cosine-distance nearest-neighbor queries.
// The schema (extension, table, HNSW similarity index) is bootstrapped
// lazily and idempotently on first use via embedded migrations.
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/kbflow/kbflow/embedding"
	"github.com/kbflow/kbflow/index"
	"github.com/kbflow/kbflow/logging"
)

// Querier is the database surface the store depends on. *pgxpool.Pool
// satisfies it; tests supply a fake.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Options configure the pgvector store.
type Options struct {
	// TopN is the ranked set Process surfaces, independent of and smaller
	// than the raw search topK.
	TopN int

	// QueryTimeout bounds one vector search round trip.
	QueryTimeout time.Duration

	Logger logging.Logger
}

// Store implements index.Indexer over a shared pgx connection pool.
// It is safe for concurrent use by multiple flows.
type Store struct {
	db           Querier
	connURL      string
	embedder     embedding.Embedder
	topN         int
	queryTimeout time.Duration
	logger       logging.Logger

	bootstrapOnce sync.Once
	bootstrapErr  error
}

const (
	defaultTopN         = 5
	defaultQueryTimeout = 10 * time.Second
)

// NewPool opens a pgx pool with pgvector's types registered on every
// connection. The pool is owned by the caller and must be shared, not
// recreated per call.
func NewPool(ctx context.Context, connURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres URL: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	return pool, nil
}

// New creates a Store over the given pool. connURL is reused for the lazy
// schema bootstrap.
func New(pool *pgxpool.Pool, connURL string, embedder embedding.Embedder, optFns ...func(o *Options)) *Store {
	s := newStore(pool, embedder, optFns...)
	s.connURL = connURL
	return s
}

// NewFromQuerier creates a Store over an existing querier with schema
// bootstrap disabled. Intended for tests.
func NewFromQuerier(db Querier, embedder embedding.Embedder, optFns ...func(o *Options)) *Store {
	return newStore(db, embedder, optFns...)
}

func newStore(db Querier, embedder embedding.Embedder, optFns ...func(o *Options)) *Store {
	opts := Options{
		TopN:         defaultTopN,
		QueryTimeout: defaultQueryTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{
		db:           db,
		embedder:     embedder,
		topN:         opts.TopN,
		queryTimeout: opts.QueryTimeout,
		logger:       logging.OrNoOp(opts.Logger),
	}
}

// ensureSchema performs the one-time lazy bootstrap. Concurrent callers
// share a single attempt; a failed bootstrap fails every subsequent call.
func (s *Store) ensureSchema() error {
	if s.connURL == "" {
		return nil
	}
	s.bootstrapOnce.Do(func() {
		s.bootstrapErr = migrateSchema(s.connURL)
	})
	return s.bootstrapErr
}

const upsertSQL = `
INSERT INTO kb_passages (id, scope_id, group_id, embedding, content, url, metadata, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (id) DO UPDATE SET
    scope_id   = EXCLUDED.scope_id,
    group_id   = EXCLUDED.group_id,
    embedding  = EXCLUDED.embedding,
    content    = EXCLUDED.content,
    url        = EXCLUDED.url,
    metadata   = EXCLUDED.metadata,
    updated_at = now()`

// Upsert embeds each document and writes it keyed by id; re-upserting the
// same id overwrites the row in place. An embedding failure fails the whole
// call for that document.
func (s *Store) Upsert(ctx context.Context, scopeID, groupID string, docs []index.Document) error {
	if err := s.ensureSchema(); err != nil {
		return fmt.Errorf("pgvector schema bootstrap failed: %w", err)
	}

	for _, doc := range docs {
		if err := s.upsertDocument(ctx, scopeID, groupID, doc); err != nil {
			return err
		}
		s.logger.Debug("upserted document", "id", doc.ID, "scope_id", scopeID)
	}
	return nil
}

// upsertDocument embeds and writes one document. The embedding call and the
// insert share one deadline, the same bound Search puts on its round trip.
func (s *Store) upsertDocument(ctx context.Context, scopeID, groupID string, doc index.Document) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(writeCtx, doc.Text)
	if err != nil {
		return fmt.Errorf("failed to embed document %q: %w", doc.ID, err)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for %q: %w", doc.ID, err)
	}

	embedded := pgvec.NewVector(vec)
	_, err = s.db.Exec(writeCtx, upsertSQL,
		doc.ID, scopeID, groupID, embedded, doc.DisplayContent(), doc.URL, metadataJSON)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("upsert of %q timed out after %s: %w", doc.ID, s.queryTimeout, err)
		}
		return fmt.Errorf("failed to upsert document %q: %w", doc.ID, err)
	}
	return nil
}

const searchSQL = `
SELECT id, content, url, metadata, 1 - (embedding <=> $1) AS similarity
FROM kb_passages
WHERE scope_id = $2 AND NOT (id = ANY($3))
ORDER BY embedding <=> $1
LIMIT $4`

// Search embeds the query once and runs a cosine nearest-neighbor query
// scoped to scopeID. Scores are cosine similarity, higher is more similar.
func (s *Store) Search(ctx context.Context, scopeID, query string, opts ...index.SearchOption) ([]index.Match, error) {
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("pgvector schema bootstrap failed: %w", err)
	}
	cfg := index.ApplySearchOptions(opts)

	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(queryCtx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	exclude := cfg.ExcludeIDs
	if exclude == nil {
		exclude = []string{}
	}

	embedded := pgvec.NewVector(vec)
	rows, err := s.db.Query(queryCtx, searchSQL, embedded, scopeID, exclude, cfg.TopK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timed out after %s: %w", s.queryTimeout, err)
		}
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var matches []index.Match
	for rows.Next() {
		var (
			id, content, url string
			metadataJSON     []byte
			similarity       float64
		)
		if err := rows.Scan(&id, &content, &url, &metadataJSON, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}

		metadata := map[string]string{}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
				s.logger.Warn("failed to parse metadata", "id", id, "error", err)
				metadata = map[string]string{}
			}
		}
		metadata[index.MetaContent] = content
		metadata[index.MetaURL] = url

		matches = append(matches, index.Match{ID: id, Score: similarity, Metadata: metadata})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search row iteration failed: %w", err)
	}
	return matches, nil
}

// Process applies the shared ranking contract with this store's top-N.
func (s *Store) Process(query string, matches []index.Match) []index.Passage {
	return index.ProcessMatches(matches, s.topN)
}

// DeleteByScope removes every document in a scope. Unknown scopes delete
// zero rows.
func (s *Store) DeleteByScope(ctx context.Context, scopeID string) error {
	if err := s.ensureSchema(); err != nil {
		return fmt.Errorf("pgvector schema bootstrap failed: %w", err)
	}
	deleteCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if _, err := s.db.Exec(deleteCtx, `DELETE FROM kb_passages WHERE scope_id = $1`, scopeID); err != nil {
		return fmt.Errorf("failed to delete scope %q: %w", scopeID, err)
	}
	return nil
}

// DeleteByIDs removes the given documents. Missing ids delete zero rows.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.ensureSchema(); err != nil {
		return fmt.Errorf("pgvector schema bootstrap failed: %w", err)
	}
	deleteCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	if _, err := s.db.Exec(deleteCtx, `DELETE FROM kb_passages WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}
