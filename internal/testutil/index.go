package testutil

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/kbflow/kbflow/index"
)

// StaticEmbedder produces a deterministic vector derived from the text, so
// equal inputs embed equally without any network dependency.
type StaticEmbedder struct {
	Dim int
	Err error

	Calls []string
}

func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.Calls = append(e.Calls, text)
	if e.Err != nil {
		return nil, e.Err
	}
	dim := e.Dim
	if dim == 0 {
		dim = 8
	}
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	vec := make([]float32, dim)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(seed%1000) / 1000
	}
	return normalize(vec), nil
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// StaticIndexer implements index.Indexer over canned matches and records
// the calls it receives.
type StaticIndexer struct {
	Matches   []index.Match
	SearchErr error
	TopN      int

	SearchQueries []string
	SearchConfigs []index.SearchConfig
	Upserted      []index.Document
	DeletedScopes []string
	DeletedIDs    [][]string
}

func (s *StaticIndexer) Upsert(_ context.Context, scopeID, groupID string, docs []index.Document) error {
	s.Upserted = append(s.Upserted, docs...)
	return nil
}

func (s *StaticIndexer) Search(_ context.Context, scopeID, query string, opts ...index.SearchOption) ([]index.Match, error) {
	s.SearchQueries = append(s.SearchQueries, query)
	s.SearchConfigs = append(s.SearchConfigs, index.ApplySearchOptions(opts))
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	cfg := index.ApplySearchOptions(opts)
	excluded := make(map[string]bool, len(cfg.ExcludeIDs))
	for _, id := range cfg.ExcludeIDs {
		excluded[id] = true
	}
	var out []index.Match
	for _, m := range s.Matches {
		if excluded[m.ID] {
			continue
		}
		out = append(out, m)
		if len(out) == cfg.TopK {
			break
		}
	}
	return out, nil
}

func (s *StaticIndexer) Process(query string, matches []index.Match) []index.Passage {
	topN := s.TopN
	if topN == 0 {
		topN = 5
	}
	return index.ProcessMatches(matches, topN)
}

func (s *StaticIndexer) DeleteByScope(_ context.Context, scopeID string) error {
	s.DeletedScopes = append(s.DeletedScopes, scopeID)
	return nil
}

func (s *StaticIndexer) DeleteByIDs(_ context.Context, ids []string) error {
	s.DeletedIDs = append(s.DeletedIDs, ids)
	return nil
}

// MatchWithContent builds a match carrying the standard content and url
// metadata keys.
func MatchWithContent(id string, score float64, content, url string) index.Match {
	return index.Match{
		ID:    id,
		Score: score,
		Metadata: map[string]string{
			index.MetaContent: content,
			index.MetaURL:     url,
		},
	}
}

// Doc is a shorthand document constructor.
func Doc(id, text, url string) index.Document {
	return index.Document{ID: id, Text: text, URL: url}
}

var _ index.Indexer = (*StaticIndexer)(nil)
