// Package anthropic adapts the Anthropic Messages API to the generic
// model.Provider interface, normalizing its event stream (message_start,
// content_block_start/delta, message_delta) into model.Chunk events.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/kbflow/kbflow/core"
	"github.com/kbflow/kbflow/model"
)

const defaultMaxTokens = 4096

// Options configure the Anthropic provider adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	APIKey      string
}

// Provider wraps the Anthropic Messages API behind model.Provider.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

// New creates a new Anthropic provider using the official client.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Provider{client: &client, opts: opts}
}

// NewFromClient creates a new Anthropic provider from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// Stream issues one streaming Messages call and returns the normalized
// chunk stream. Structured-output schemas are not supported by the Messages
// API and are ignored here; callers needing strict JSON output should pick
// a provider that enforces it.
func (p *Provider) Stream(ctx context.Context, req model.Request) (model.Stream, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	raw := p.client.Messages.NewStreaming(ctx, params)
	return &chunkStream{raw: raw}, nil
}

// Info returns metadata describing this Anthropic provider implementation.
func (p *Provider) Info() model.Info {
	return model.Info{Name: string(p.opts.Model), Provider: "anthropic", SupportsTools: true}
}

func (p *Provider) buildParams(req model.Request) (anthropic.MessageNewParams, error) {
	modelID := p.opts.Model
	if req.Model != "" {
		modelID = anthropic.Model(req.Model)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	messages, system, err := buildMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:       modelID,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	return params, nil
}

// buildMessages converts conversation messages into Anthropic messages.
// System and developer turns become system blocks (the Messages API has no
// developer role); tool results become tool_result blocks in user messages.
func buildMessages(msgs []core.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam, error) {
	var messages []anthropic.MessageParam
	var system []anthropic.TextBlockParam

	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem, core.RoleDeveloper:
			if m.Content != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case core.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						input = tc.Arguments // keep the raw string for the model to see
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
		case core.RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		default:
			return nil, nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return messages, system, nil
}

func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, tdef := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if tdef.Parameters != nil {
			if properties, exists := tdef.Parameters["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := tdef.Parameters["required"]; exists {
				switch req := required.(type) {
				case []string:
					inputSchema.Required = req
				case []any:
					for _, r := range req {
						if s, ok := r.(string); ok {
							inputSchema.Required = append(inputSchema.Required, s)
						}
					}
				}
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(inputSchema, tdef.Name)
	}
	return out
}

// chunkStream normalizes Anthropic stream events into model.Chunk events.
// Content block indices key the decoder's per-call accumulators just like
// OpenAI chunk indices do.
type chunkStream struct {
	raw         *ssestream.Stream[anthropic.MessageStreamEventUnion]
	cur         model.Chunk
	inputTokens int64
}

func (s *chunkStream) Next() bool {
	for s.raw.Next() {
		event := s.raw.Current()

		out := model.Chunk{}
		emit := false
		switch ev := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			out.Role = core.RoleAssistant
			s.inputTokens = ev.Message.Usage.InputTokens
			emit = true
		case anthropic.ContentBlockStartEvent:
			if block, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				out.ToolCalls = []model.ToolCallDelta{{
					Index: int(ev.Index),
					ID:    block.ID,
					Name:  block.Name,
				}}
				emit = true
			}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				out.Content = delta.Text
				emit = true
			case anthropic.InputJSONDelta:
				out.ToolCalls = []model.ToolCallDelta{{
					Index:     int(ev.Index),
					Arguments: delta.PartialJSON,
				}}
				emit = true
			}
		case anthropic.MessageDeltaEvent:
			// Cumulative output tokens; combined with the stored input count
			// this forms the latest usage report.
			out.Usage = &core.Usage{
				PromptTokens:     int(s.inputTokens),
				CompletionTokens: int(ev.Usage.OutputTokens),
				TotalTokens:      int(s.inputTokens + ev.Usage.OutputTokens),
			}
			emit = true
		}
		if !emit {
			continue
		}
		s.cur = out
		return true
	}
	return false
}

func (s *chunkStream) Current() model.Chunk { return s.cur }

func (s *chunkStream) Err() error {
	if err := s.raw.Err(); err != nil {
		return fmt.Errorf("anthropic streaming error: %w", err)
	}
	return nil
}

func (s *chunkStream) Close() error { return s.raw.Close() }
