// Package openai adapts the OpenAI Chat Completions API (streaming, tool
// calling, structured output) to the generic model.Provider interface. It
// converts conversation messages into the SDK's message format and
// normalizes streamed chunks into model.Chunk events.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/kbflow/kbflow/core"
	"github.com/kbflow/kbflow/model"
)

// Options configure the OpenAI provider adapter. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal; extend via
// functional options without breaking callers.
type Options struct {
	Model       string
	Temperature float64
	APIKey      string
}

// Provider wraps the OpenAI Chat Completions API behind model.Provider.
type Provider struct {
	client *openai.Client
	opts   Options
}

// New creates a new OpenAI provider using the official client.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:       openai.ChatModelGPT4oMini,
		Temperature: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := openai.NewClient(clientOpts...)
	return &Provider{client: &client, opts: opts}
}

// NewFromClient creates a new OpenAI provider from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:       openai.ChatModelGPT4oMini,
		Temperature: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// Stream issues one streaming completion call and returns the normalized
// chunk stream.
func (p *Provider) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	raw := p.client.Chat.Completions.NewStreaming(ctx, params)
	return &chunkStream{raw: raw}, nil
}

// Info returns metadata describing this OpenAI provider implementation.
func (p *Provider) Info() model.Info {
	return model.Info{Name: p.opts.Model, Provider: "openai", SupportsTools: true}
}

// buildParams assembles the outbound request including tool declarations
// and the optional structured-output schema.
func (p *Provider) buildParams(req model.Request) (openai.ChatCompletionNewParams, error) {
	messages, err := buildMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	modelID := req.Model
	if modelID == "" {
		modelID = p.opts.Model
	}

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       modelID,
		Temperature: openai.Float(p.opts.Temperature),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxTokens)
	}
	if req.User != "" {
		params.User = openai.String(req.User)
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, tdef := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tdef.Name,
					Description: openai.String(tdef.Description),
					Parameters:  tdef.Parameters,
				},
			}
		}
		params.Tools = tools
	}

	if req.OutputSchema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.OutputSchema.Name,
					Schema: req.OutputSchema.Schema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	return params, nil
}

// buildMessages converts conversation messages into OpenAI chat messages.
// The flow keeps tool results in log order, so no reordering is needed here.
func buildMessages(msgs []core.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case core.RoleDeveloper:
			out = append(out, openai.DeveloperMessage(m.Content))
		case core.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case core.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{
				ToolCalls: make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls)),
			}
			if m.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(m.Content),
				}
			}
			for i, tc := range m.ToolCalls {
				assistant.ToolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case core.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

// chunkStream normalizes the SDK's chunk stream into model.Chunk events.
type chunkStream struct {
	raw *ssestream.Stream[openai.ChatCompletionChunk]
	cur model.Chunk
}

func (s *chunkStream) Next() bool {
	if !s.raw.Next() {
		return false
	}
	ck := s.raw.Current()

	out := model.Chunk{}
	if len(ck.Choices) > 0 {
		delta := ck.Choices[0].Delta
		if delta.Role != "" {
			out.Role = core.Role(delta.Role)
		}
		out.Content = delta.Content
		for _, tc := range delta.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, model.ToolCallDelta{
				Index:     int(tc.Index),
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	// Usage arrives in a trailing chunk when stream_options.include_usage
	// is set.
	if ck.Usage.TotalTokens > 0 || ck.Usage.PromptTokens > 0 {
		out.Usage = &core.Usage{
			PromptTokens:     int(ck.Usage.PromptTokens),
			CompletionTokens: int(ck.Usage.CompletionTokens),
			TotalTokens:      int(ck.Usage.TotalTokens),
		}
	}

	s.cur = out
	return true
}

func (s *chunkStream) Current() model.Chunk { return s.cur }

func (s *chunkStream) Err() error {
	if err := s.raw.Err(); err != nil {
		return fmt.Errorf("openai streaming error: %w", err)
	}
	return nil
}

func (s *chunkStream) Close() error { return s.raw.Close() }
