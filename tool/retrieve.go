package tool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kbflow/kbflow/index"
	"github.com/kbflow/kbflow/logging"
)

// Citation is the custom payload attached to a retrieval tool result, one
// entry per surfaced passage. The correlation id ties the citation back to
// the retrieval call that produced it.
type Citation struct {
	ID            string  `json:"id"`
	URL           string  `json:"url"`
	Score         float64 `json:"score"`
	CorrelationID string  `json:"correlation_id"`
}

// RetrieveOptions configure a RetrieveTool.
type RetrieveOptions struct {
	Name        string
	Description string
	TopK        int
	Logger      logging.Logger
}

// RetrieveTool is the canonical RAG lookup tool: it searches one knowledge
// base scope through an index backend and returns the ranked passages as
// content, with citation links in the custom payload.
//
// Passages already surfaced by this instance are excluded from later
// searches so one answer never cites the same passage twice. A RetrieveTool
// is therefore scoped to a single flow, not shared across conversations.
type RetrieveTool struct {
	name        string
	description string
	backend     index.Indexer
	scopeID     string
	topK        int
	logger      *logging.FlowLogger

	mu       sync.Mutex
	surfaced []string
}

// NewRetrieveTool builds a retrieval tool bound to one backend and scope.
func NewRetrieveTool(backend index.Indexer, scopeID string, optFns ...func(o *RetrieveOptions)) *RetrieveTool {
	opts := RetrieveOptions{
		Name:        "search_knowledge_base",
		Description: "Search the knowledge base for passages relevant to a free-text query. Returns the most relevant passages with their sources.",
		TopK:        index.DefaultTopK,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RetrieveTool{
		name:        opts.Name,
		description: opts.Description,
		backend:     backend,
		scopeID:     scopeID,
		topK:        opts.TopK,
		logger:      logging.NewFlowLogger(opts.Logger, "tool.retrieve"),
	}
}

// Name returns the tool name declared to the model.
func (t *RetrieveTool) Name() string { return t.name }

// Description returns the tool's usage contract as seen by the model.
func (t *RetrieveTool) Description() string { return t.description }

// Parameters returns the argument schema: one required query string.
func (t *RetrieveTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Free-text query describing the information needed",
			},
		},
		"required": []string{"query"},
	}
}

// Execute searches the knowledge base and formats the ranked passages.
// Transient retrieval failures are returned as errors for the flow to
// surface in a tool-result message, letting the model decide the next step.
func (t *RetrieveTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, NewToolError(t.name, "missing required string argument 'query'", CodeValidation)
	}

	t.mu.Lock()
	exclude := make([]string, len(t.surfaced))
	copy(exclude, t.surfaced)
	t.mu.Unlock()

	start := time.Now()
	matches, err := t.backend.Search(ctx, t.scopeID, query,
		index.WithTopK(t.topK),
		index.WithExcludeIDs(exclude...),
	)
	t.logger.LogRetrieval(fmt.Sprintf("%T", t.backend), t.scopeID, len(matches), time.Since(start), err)
	if err != nil {
		return nil, NewToolError(t.name, fmt.Sprintf("knowledge base search failed: %v", err), CodeExecution)
	}

	passages := t.backend.Process(query, matches)
	if len(passages) == 0 {
		return &Result{Content: "No relevant passages found in the knowledge base."}, nil
	}

	citations := make([]Citation, 0, len(passages))
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, p.Content)
		if p.URL != "" {
			fmt.Fprintf(&b, "\nSource: %s", p.URL)
		}
		citations = append(citations, Citation{
			ID:            p.ID,
			URL:           p.URL,
			Score:         p.Score,
			CorrelationID: p.CorrelationID,
		})
	}

	t.mu.Lock()
	for _, p := range passages {
		t.surfaced = append(t.surfaced, p.ID)
	}
	t.mu.Unlock()

	return &Result{Content: b.String(), Custom: citations}, nil
}
