// Package agent defines the Agent: a named, configured binding to one model
// role (system prompt, tool set, provider and model settings). An agent is a
// pure request-construction-and-dispatch unit; it never executes tools,
// decodes streams or mutates flow state, so definitions are safely shared
// read-only across concurrently running flows.
package agent

import (
	"context"
	"sort"

	"github.com/kbflow/kbflow/core"
	"github.com/kbflow/kbflow/model"
	"github.com/kbflow/kbflow/tool"
)

// Options configure an Agent instance.
type Options struct {
	// SystemPrompt is the agent's fixed role instruction.
	SystemPrompt string

	// Model overrides the provider's default model identifier.
	Model string

	// MaxTokens caps the completion when > 0.
	MaxTokens int64

	// OutputSchema constrains the agent to structured JSON output.
	OutputSchema *model.OutputSchema

	// DeveloperDirective, when non-empty, is prepended as a developer-role
	// message for models that require a formatting directive.
	DeveloperDirective string

	// User is the end-user identifier forwarded to the provider.
	User string

	// Tools the model may call, keyed by name.
	Tools []tool.Tool
}

// Agent is immutable after construction.
type Agent struct {
	id                 string
	systemPrompt       string
	provider           model.Provider
	modelID            string
	maxTokens          int64
	outputSchema       *model.OutputSchema
	developerDirective string
	user               string
	tools              map[string]tool.Tool
}

// New creates an Agent bound to the given provider.
func New(id string, provider model.Provider, optFns ...func(o *Options)) *Agent {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	tools := make(map[string]tool.Tool, len(opts.Tools))
	for _, t := range opts.Tools {
		tools[t.Name()] = t
	}

	return &Agent{
		id:                 id,
		systemPrompt:       opts.SystemPrompt,
		provider:           provider,
		modelID:            opts.Model,
		maxTokens:          opts.MaxTokens,
		outputSchema:       opts.OutputSchema,
		developerDirective: opts.DeveloperDirective,
		user:               opts.User,
		tools:              tools,
	}
}

// ID returns the agent's identifier used by the flow run queue.
func (a *Agent) ID() string { return a.id }

// SystemPrompt returns the agent's fixed role instruction.
func (a *Agent) SystemPrompt() string { return a.systemPrompt }

// Model returns the provider metadata for this agent's binding.
func (a *Agent) Model() model.Info { return a.provider.Info() }

// Tool returns the named tool, if this agent owns it.
func (a *Agent) Tool(name string) (tool.Tool, bool) {
	t, ok := a.tools[name]
	return t, ok
}

// ToolNames returns the names of the agent's tools in sorted order.
func (a *Agent) ToolNames() []string {
	names := make([]string, 0, len(a.tools))
	for name := range a.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stream issues one streaming completion call over the given conversation.
//
// The outbound message list is assembled as: optional developer directive,
// then the conversation history, then the system prompt appended last. The
// trailing position keeps per-turn instructions adjacent to the end of the
// model's attention window; it is deliberate and never varies.
func (a *Agent) Stream(ctx context.Context, messages []core.Message) (model.Stream, error) {
	outbound := make([]core.Message, 0, len(messages)+2)
	if a.developerDirective != "" {
		outbound = append(outbound, core.Message{Role: core.RoleDeveloper, Content: a.developerDirective})
	}
	outbound = append(outbound, messages...)
	if a.systemPrompt != "" {
		outbound = append(outbound, core.NewSystemMessage(a.systemPrompt))
	}

	req := model.Request{
		Model:        a.modelID,
		Messages:     outbound,
		Tools:        a.toolDefinitions(),
		OutputSchema: a.outputSchema,
		MaxTokens:    a.maxTokens,
		User:         a.user,
	}
	return a.provider.Stream(ctx, req)
}

// toolDefinitions declares each tool to the provider in deterministic
// (sorted) order.
func (a *Agent) toolDefinitions() []model.ToolDefinition {
	if len(a.tools) == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, len(a.tools))
	for _, name := range a.ToolNames() {
		t := a.tools[name]
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}
