// Package index defines the uniform retrieval contract implemented by the
// vector-store backends (pgvector, vectorize, chromem): upsert documents,
// search by free text, post-process raw matches into ranked passages and
// delete by scope or id set.
//
// Embeddings are not interchangeable across backends or embedding models, so
// callers must be explicit about which backend a knowledge base was indexed
// with; the Registry makes an unknown or unconfigured key a hard error
// rather than a silent fallback.
package index

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
)

// ErrUnknownBackend is returned by Registry.Get for keys that were never
// registered. This is a configuration error, never a fallback.
var ErrUnknownBackend = errors.New("unknown index backend")

// Metadata keys every stored document carries alongside caller metadata.
const (
	MetaContent = "content"
	MetaURL     = "url"
)

// Document is one unit of knowledge-base content to embed and store. ID is
// caller-assigned and must be stable across re-upserts of the same logical
// item; re-upserting overwrites in place.
type Document struct {
	ID string

	// Text is the raw text handed to the embedding provider.
	Text string

	// Content is the display text surfaced to callers. Falls back to Text
	// when empty.
	Content string

	// URL is the canonical source location used for citations.
	URL string

	Metadata map[string]string
}

// DisplayContent returns the text surfaced to callers.
func (d Document) DisplayContent() string {
	if d.Content != "" {
		return d.Content
	}
	return d.Text
}

// Match is one raw nearest-neighbor result. Score is on the backend's
// native similarity scale; the only cross-backend guarantee is that higher
// means more similar.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Passage is one ranked, citable retrieval result produced by Process. The
// correlation id ties the passage back to the retrieval call that surfaced
// it, so downstream citation highlighting can tell retrieval rounds apart.
type Passage struct {
	ID            string
	Score         float64
	Content       string
	URL           string
	CorrelationID string
	Metadata      map[string]string
}

// SearchOption configures a Search call.
type SearchOption func(*SearchConfig)

// SearchConfig holds resolved search parameters. Exported so backends can
// apply options with ApplySearchOptions.
type SearchConfig struct {
	TopK       int
	ExcludeIDs []string
}

// DefaultTopK is the raw nearest-neighbor fetch width used when no option
// overrides it. Deliberately wider than the surfaced top-N so Process has
// room to rank.
const DefaultTopK = 10

// WithTopK sets the raw nearest-neighbor fetch width.
func WithTopK(k int) SearchOption {
	return func(c *SearchConfig) {
		if k > 0 {
			c.TopK = k
		}
	}
}

// WithExcludeIDs removes the given document ids from the result set, used
// to avoid re-surfacing passages already cited in the same answer.
func WithExcludeIDs(ids ...string) SearchOption {
	return func(c *SearchConfig) {
		c.ExcludeIDs = append(c.ExcludeIDs, ids...)
	}
}

// ApplySearchOptions resolves options over the defaults.
func ApplySearchOptions(opts []SearchOption) SearchConfig {
	cfg := SearchConfig{TopK: DefaultTopK}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Indexer is the uniform contract over a vector-search backend. All
// implementations must behave identically at this boundary regardless of
// their native query semantics.
type Indexer interface {
	// Upsert embeds each document's text and writes it idempotently keyed
	// by id. A failed embedding call fails the upsert for that document; it
	// is never silently skipped.
	Upsert(ctx context.Context, scopeID, groupID string, docs []Document) error

	// Search embeds the query once and returns up to topK raw matches
	// scoped to scopeID, ordered by the backend's native similarity metric.
	Search(ctx context.Context, scopeID, query string, opts ...SearchOption) ([]Match, error)

	// Process re-sorts raw matches by descending similarity, truncates to
	// the backend's configured top-N and attaches a per-call correlation id.
	Process(query string, matches []Match) []Passage

	// DeleteByScope removes every document in a scope. Deleting a missing
	// scope is a no-op.
	DeleteByScope(ctx context.Context, scopeID string) error

	// DeleteByIDs removes the given documents. Missing ids are a no-op.
	DeleteByIDs(ctx context.Context, ids []string) error
}

// ProcessMatches implements the shared Process contract: sort by descending
// score, truncate to topN and stamp one freshly generated correlation id on
// each surfaced passage. Every backend delegates here so ranking stays
// backend-independent.
func ProcessMatches(matches []Match, topN int) []Passage {
	ranked := make([]Match, len(matches))
	copy(ranked, matches)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}

	correlationID := uuid.NewString()
	passages := make([]Passage, 0, len(ranked))
	for _, m := range ranked {
		passages = append(passages, Passage{
			ID:            m.ID,
			Score:         m.Score,
			Content:       m.Metadata[MetaContent],
			URL:           m.Metadata[MetaURL],
			CorrelationID: correlationID,
			Metadata:      m.Metadata,
		})
	}
	return passages
}
