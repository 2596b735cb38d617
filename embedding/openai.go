package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultTimeout bounds one embedding round trip. Embedding calls are on
// the retrieval hot path; on timeout the call fails and is surfaced to the
// caller, never retried silently.
const DefaultTimeout = 30 * time.Second

// OpenAIOptions configure the OpenAI embedder.
type OpenAIOptions struct {
	Model   string
	APIKey  string
	Timeout time.Duration
}

// OpenAI generates embeddings through the OpenAI Embeddings API.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAI creates an OpenAI embedder using the official client.
func NewOpenAI(optFns ...func(o *OpenAIOptions)) *OpenAI {
	opts := OpenAIOptions{
		Model:   openai.EmbeddingModelTextEmbedding3Small,
		Timeout: DefaultTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)
	return NewOpenAIFromClient(&client, optFns...)
}

// NewOpenAIFromClient creates an OpenAI embedder from an existing client.
func NewOpenAIFromClient(client *openai.Client, optFns ...func(o *OpenAIOptions)) *OpenAI {
	opts := OpenAIOptions{
		Model:   openai.EmbeddingModelTextEmbedding3Small,
		Timeout: DefaultTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &OpenAI{client: client, model: opts.Model, timeout: opts.Timeout}
}

// Embed generates one embedding vector for text, bounded by the configured
// timeout.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: e.model,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding call timed out after %s: %w", e.timeout, err)
		}
		return nil, fmt.Errorf("embedding call failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned for input of %d bytes", len(text))
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
