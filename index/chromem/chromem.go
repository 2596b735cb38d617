// Package chromem implements the index.Indexer contract on chromem-go, an
// embedded in-process vector store. It needs no external service, which
// makes it the default backend for local development and tests. Each scope
// maps to one chromem collection.
package chromem

import (
	"context"
	"fmt"
	"strings"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/kbflow/kbflow/embedding"
	"github.com/kbflow/kbflow/index"
	"github.com/kbflow/kbflow/logging"
)

const (
	defaultTopN      = 5
	collectionPrefix = "kb-"
)

// Options configure the chromem store.
type Options struct {
	// Path enables on-disk persistence when non-empty; otherwise the store
	// is purely in-memory.
	Path   string
	TopN   int
	Logger logging.Logger
}

// Store implements index.Indexer over an embedded chromem database.
type Store struct {
	db       *chromemgo.DB
	embedder embedding.Embedder
	topN     int
	logger   logging.Logger
}

// New creates a chromem store, persistent when opts.Path is set.
func New(embedder embedding.Embedder, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{TopN: defaultTopN}
	for _, fn := range optFns {
		fn(&opts)
	}

	var db *chromemgo.DB
	if opts.Path != "" {
		var err error
		db, err = chromemgo.NewPersistentDB(opts.Path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem store at %q: %w", opts.Path, err)
		}
	} else {
		db = chromemgo.NewDB()
	}

	return &Store{
		db:       db,
		embedder: embedder,
		topN:     opts.TopN,
		logger:   logging.OrNoOp(opts.Logger),
	}, nil
}

func (s *Store) embedFn() chromemgo.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.Embed(ctx, text)
	}
}

// collection returns the per-scope collection, creating it on first use
// with the store's embedder bridged to chromem's EmbeddingFunc. Only the
// write path may create; reads go through lookup.
func (s *Store) collection(scopeID string) (*chromemgo.Collection, error) {
	col, err := s.db.GetOrCreateCollection(collectionPrefix+scopeID, nil, s.embedFn())
	if err != nil {
		return nil, fmt.Errorf("failed to open collection for scope %q: %w", scopeID, err)
	}
	return col, nil
}

// lookup returns the per-scope collection, or nil when the scope has never
// been written to.
func (s *Store) lookup(scopeID string) *chromemgo.Collection {
	return s.db.GetCollection(collectionPrefix+scopeID, s.embedFn())
}

// Upsert writes each document keyed by id; chromem embeds the text through
// the store's embedder, so an embedding failure fails the call.
func (s *Store) Upsert(ctx context.Context, scopeID, groupID string, docs []index.Document) error {
	col, err := s.collection(scopeID)
	if err != nil {
		return err
	}

	for _, doc := range docs {
		metadata := make(map[string]string, len(doc.Metadata)+3)
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
		metadata[index.MetaContent] = doc.DisplayContent()
		metadata[index.MetaURL] = doc.URL
		if groupID != "" {
			metadata["group"] = groupID
		}

		err := col.AddDocuments(ctx, []chromemgo.Document{{
			ID:       doc.ID,
			Content:  doc.Text,
			Metadata: metadata,
		}}, 1)
		if err != nil {
			return fmt.Errorf("failed to upsert document %q: %w", doc.ID, err)
		}
	}
	s.logger.Debug("upserted documents", "count", len(docs), "scope_id", scopeID)
	return nil
}

// Search embeds the query once and queries the scope's collection. Scores
// are cosine similarity, higher is more similar. chromem rejects result
// counts above the collection size, so topK is clamped.
func (s *Store) Search(ctx context.Context, scopeID, query string, opts ...index.SearchOption) ([]index.Match, error) {
	cfg := index.ApplySearchOptions(opts)

	// A scope nobody has written to has no collection; querying it must not
	// create one as a side effect.
	col := s.lookup(scopeID)
	if col == nil || col.Count() == 0 {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	excluded := make(map[string]bool, len(cfg.ExcludeIDs))
	for _, id := range cfg.ExcludeIDs {
		excluded[id] = true
	}

	// Overfetch to survive client-side exclusion, bounded by what the
	// collection holds.
	n := cfg.TopK + len(cfg.ExcludeIDs)
	if count := col.Count(); n > count {
		n = count
	}

	results, err := col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	matches := make([]index.Match, 0, len(results))
	for _, r := range results {
		if excluded[r.ID] {
			continue
		}
		if len(matches) == cfg.TopK {
			break
		}
		metadata := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		matches = append(matches, index.Match{ID: r.ID, Score: float64(r.Similarity), Metadata: metadata})
	}
	return matches, nil
}

// Process applies the shared ranking contract with this store's top-N.
func (s *Store) Process(query string, matches []index.Match) []index.Passage {
	return index.ProcessMatches(matches, s.topN)
}

// DeleteByScope drops the scope's whole collection. A missing scope is a
// no-op.
func (s *Store) DeleteByScope(ctx context.Context, scopeID string) error {
	if err := s.db.DeleteCollection(collectionPrefix + scopeID); err != nil {
		return fmt.Errorf("failed to delete scope %q: %w", scopeID, err)
	}
	return nil
}

// DeleteByIDs removes the given documents from every scope that holds
// them. Missing ids are skipped.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for name, col := range s.db.ListCollections() {
		if !strings.HasPrefix(name, collectionPrefix) {
			continue
		}
		var present []string
		for _, id := range ids {
			if _, err := col.GetByID(ctx, id); err == nil {
				present = append(present, id)
			}
		}
		if len(present) == 0 {
			continue
		}
		if err := col.Delete(ctx, nil, nil, present...); err != nil {
			return fmt.Errorf("failed to delete documents from %q: %w", name, err)
		}
	}
	return nil
}
