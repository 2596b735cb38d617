// Package kbflow provides a high-level façade over the model, agent, flow
// and index packages for building retrieval-augmented generation systems.
// Most applications interact with this package by:
//  1. Creating a KBFlow via New() (configuration from env/file, or an
//     explicit config.Config)
//  2. Building agents against the configured model provider, typically
//     with a retrieval tool bound to one of the configured index backends
//  3. Running a Flow until it produces a final answer
//
// The façade wires providers, embedders and index backends from
// configuration while keeping the underlying packages fully usable on
// their own. All defaults are safe for local development; production
// deployments typically run against Postgres/pgvector or a managed vector
// service.
package kbflow

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/kbflow/kbflow/agent"
	"github.com/kbflow/kbflow/config"
	"github.com/kbflow/kbflow/embedding"
	"github.com/kbflow/kbflow/flow"
	"github.com/kbflow/kbflow/index"
	chromemidx "github.com/kbflow/kbflow/index/chromem"
	"github.com/kbflow/kbflow/index/pgvector"
	"github.com/kbflow/kbflow/index/vectorize"
	"github.com/kbflow/kbflow/logging"
	"github.com/kbflow/kbflow/model"
	"github.com/kbflow/kbflow/model/anthropic"
	"github.com/kbflow/kbflow/model/openai"
)

// Backend registry keys for the built-in index backends.
const (
	BackendPgvector  = "pgvector"
	BackendVectorize = "vectorize"
	BackendChromem   = "chromem"
)

// Options configures the KBFlow instance.
type Options struct {
	// Config overrides the configuration loaded from env and file.
	Config *config.Config

	// Provider overrides the model provider built from configuration.
	Provider model.Provider

	// Embedder overrides the embedder built from configuration.
	Embedder embedding.Embedder

	// Logger defaults to a NoOp logger if nil.
	Logger logging.Logger
}

// KBFlow is the high-level façade aggregating the model provider, the
// embedder and the configured index backends.
type KBFlow struct {
	cfg      *config.Config
	provider model.Provider
	embedder embedding.Embedder
	registry *index.Registry
	logger   logging.Logger
}

// New creates a KBFlow instance. Any unset option is built from
// configuration: the model provider from Provider/ModelName, the embedder
// from EmbedderModel, and one registry entry per configured backend.
func New(ctx context.Context, optFns ...func(o *Options)) (*KBFlow, error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.OrNoOp(opts.Logger)

	provider := opts.Provider
	if provider == nil {
		var err error
		provider, err = buildProvider(cfg)
		if err != nil {
			return nil, err
		}
	}

	embedder := opts.Embedder
	if embedder == nil {
		embedder = embedding.NewOpenAI(func(o *embedding.OpenAIOptions) {
			o.Model = cfg.EmbedderModel
		})
	}

	registry, err := buildRegistry(ctx, cfg, embedder, logger)
	if err != nil {
		return nil, err
	}

	return &KBFlow{
		cfg:      cfg,
		provider: provider,
		embedder: embedder,
		registry: registry,
		logger:   logger,
	}, nil
}

func buildProvider(cfg *config.Config) (model.Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.New(func(o *openai.Options) {
			o.Model = cfg.ModelName
		}), nil
	case config.ProviderAnthropic:
		return anthropic.New(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.ModelName)
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.Provider)
	}
}

func buildRegistry(ctx context.Context, cfg *config.Config, embedder embedding.Embedder, logger logging.Logger) (*index.Registry, error) {
	registry := index.NewRegistry()

	if cfg.HasPostgres() {
		pool, err := pgvector.NewPool(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		store := pgvector.New(pool, cfg.PostgresURL, embedder, func(o *pgvector.Options) {
			o.TopN = cfg.TopN
			o.Logger = logger
		})
		registry.Register(BackendPgvector, store)
	}

	if cfg.HasVectorize() {
		client := vectorize.New(cfg.VectorizeURL, cfg.VectorizeToken, embedder, func(o *vectorize.Options) {
			o.TopN = cfg.TopN
			o.Logger = logger
		})
		registry.Register(BackendVectorize, client)
	}

	if cfg.HasChromem() {
		store, err := chromemidx.New(embedder, func(o *chromemidx.Options) {
			o.Path = cfg.ChromemDir()
			o.TopN = cfg.TopN
			o.Logger = logger
		})
		if err != nil {
			return nil, fmt.Errorf("opening chromem store: %w", err)
		}
		registry.Register(BackendChromem, store)
	}

	if len(registry.Keys()) == 0 {
		return nil, config.ErrNoBackend
	}
	return registry, nil
}

// Config returns the effective configuration.
func (k *KBFlow) Config() *config.Config { return k.cfg }

// Provider returns the configured model provider.
func (k *KBFlow) Provider() model.Provider { return k.provider }

// Embedder returns the configured embedder.
func (k *KBFlow) Embedder() embedding.Embedder { return k.embedder }

// Registry returns the index backend registry.
func (k *KBFlow) Registry() *index.Registry { return k.registry }

// Index returns the backend registered under key, e.g. BackendChromem.
func (k *KBFlow) Index(key string) (index.Indexer, error) {
	return k.registry.Get(key)
}

// NewAgent builds an agent against the configured model provider. The
// configured MaxTokens applies unless overridden.
func (k *KBFlow) NewAgent(id string, optFns ...func(o *agent.Options)) *agent.Agent {
	fns := append([]func(o *agent.Options){func(o *agent.Options) {
		o.MaxTokens = int64(k.cfg.MaxTokens)
	}}, optFns...)
	return agent.New(id, k.provider, fns...)
}

// NewFlow builds a flow over the given agents using the façade's logger.
func (k *KBFlow) NewFlow(agents []*agent.Agent, optFns ...func(o *flow.Options)) (*flow.Flow, error) {
	fns := append([]func(o *flow.Options){func(o *flow.Options) {
		o.Logger = k.logger
	}}, optFns...)
	return flow.New(agents, fns...)
}
