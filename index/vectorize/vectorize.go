// Package vectorize implements the index.Indexer contract against a managed
// similarity-index service over its HTTP API: POST {base}/vectors/upsert,
// /vectors/query and /vectors/delete with bearer-token auth. Vectors are
// embedded locally and shipped with their metadata; the service owns the
// nearest-neighbor index.
package vectorize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kbflow/kbflow/embedding"
	"github.com/kbflow/kbflow/index"
	"github.com/kbflow/kbflow/logging"
)

const (
	defaultTopN    = 5
	defaultTimeout = 10 * time.Second
)

// Options configure the vectorize client.
type Options struct {
	TopN    int
	Timeout time.Duration
	HTTP    *http.Client
	Logger  logging.Logger
}

// Client implements index.Indexer over the managed service API. It is safe
// for concurrent use; the underlying http.Client is shared.
type Client struct {
	baseURL  string
	token    string
	embedder embedding.Embedder
	topN     int
	http     *http.Client
	logger   logging.Logger
}

// New creates a client for the given index base URL
// (e.g. https://vector.example.com/indexes/kb-main).
func New(baseURL, token string, embedder embedding.Embedder, optFns ...func(o *Options)) *Client {
	opts := Options{
		TopN:    defaultTopN,
		Timeout: defaultTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		token:    token,
		embedder: embedder,
		topN:     opts.TopN,
		http:     httpClient,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// vector is the wire shape of one stored vector.
type vector struct {
	ID       string            `json:"id"`
	Scope    string            `json:"scope"`
	Group    string            `json:"group,omitempty"`
	Values   []float32         `json:"values,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors []vector `json:"vectors"`
}

type queryRequest struct {
	Vector     []float32 `json:"vector"`
	Scope      string    `json:"scope"`
	TopK       int       `json:"top_k"`
	ExcludeIDs []string  `json:"exclude_ids,omitempty"`
}

type queryResponse struct {
	Matches []struct {
		ID       string            `json:"id"`
		Score    float64           `json:"score"`
		Metadata map[string]string `json:"metadata"`
	} `json:"matches"`
}

type deleteRequest struct {
	IDs   []string `json:"ids,omitempty"`
	Scope string   `json:"scope,omitempty"`
}

// Upsert embeds each document and ships it to the service keyed by id; the
// service overwrites vectors sharing an id.
func (c *Client) Upsert(ctx context.Context, scopeID, groupID string, docs []index.Document) error {
	vectors := make([]vector, 0, len(docs))
	for _, doc := range docs {
		values, err := c.embedder.Embed(ctx, doc.Text)
		if err != nil {
			return fmt.Errorf("failed to embed document %q: %w", doc.ID, err)
		}

		metadata := make(map[string]string, len(doc.Metadata)+2)
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
		metadata[index.MetaContent] = doc.DisplayContent()
		metadata[index.MetaURL] = doc.URL

		vectors = append(vectors, vector{
			ID:       doc.ID,
			Scope:    scopeID,
			Group:    groupID,
			Values:   values,
			Metadata: metadata,
		})
	}

	if err := c.post(ctx, "/vectors/upsert", upsertRequest{Vectors: vectors}, nil); err != nil {
		return fmt.Errorf("vectorize upsert failed: %w", err)
	}
	c.logger.Debug("upserted documents", "count", len(vectors), "scope_id", scopeID)
	return nil
}

// Search embeds the query once and runs a scoped nearest-neighbor query.
// Scores are the service's native similarity metric, higher is more similar.
func (c *Client) Search(ctx context.Context, scopeID, query string, opts ...index.SearchOption) ([]index.Match, error) {
	cfg := index.ApplySearchOptions(opts)

	values, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var resp queryResponse
	err = c.post(ctx, "/vectors/query", queryRequest{
		Vector:     values,
		Scope:      scopeID,
		TopK:       cfg.TopK,
		ExcludeIDs: cfg.ExcludeIDs,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("vectorize query failed: %w", err)
	}

	matches := make([]index.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		metadata := m.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		matches = append(matches, index.Match{ID: m.ID, Score: m.Score, Metadata: metadata})
	}
	return matches, nil
}

// Process applies the shared ranking contract with this client's top-N.
func (c *Client) Process(query string, matches []index.Match) []index.Passage {
	return index.ProcessMatches(matches, c.topN)
}

// DeleteByScope removes every vector in a scope. Unknown scopes are a
// no-op on the service side.
func (c *Client) DeleteByScope(ctx context.Context, scopeID string) error {
	if err := c.post(ctx, "/vectors/delete", deleteRequest{Scope: scopeID}, nil); err != nil {
		return fmt.Errorf("vectorize delete by scope failed: %w", err)
	}
	return nil
}

// DeleteByIDs removes the given vectors. Missing ids are a no-op.
func (c *Client) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.post(ctx, "/vectors/delete", deleteRequest{IDs: ids}, nil); err != nil {
		return fmt.Errorf("vectorize delete by ids failed: %w", err)
	}
	return nil
}

// post sends one JSON request and decodes the response into out when
// non-nil. Non-2xx statuses are returned as errors with the body included.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
