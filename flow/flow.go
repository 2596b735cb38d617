// Package flow implements the conversation orchestrator: it owns the
// ordered message log and a FIFO schedule of which agent runs next, executes
// model-requested tool calls through their owning agents, and enforces that
// no new agent turn is scheduled while a tool call is outstanding.
//
// The orchestrator is single-threaded cooperative from the caller's point of
// view: each Stream call is one logical step and the caller controls the
// loop, calling Stream until it returns nil. A Flow is scoped to one
// in-flight conversation exchange and is not designed for concurrent access.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kbflow/kbflow/agent"
	"github.com/kbflow/kbflow/core"
	"github.com/kbflow/kbflow/logging"
	"github.com/kbflow/kbflow/model"
	"github.com/kbflow/kbflow/tool"
)

var (
	// ErrToolCallPending is returned by ScheduleAgents while a tool call is
	// outstanding. Scheduling must never interleave with an unresolved tool
	// obligation: providers require tool results before any further
	// assistant turn on the same call chain.
	ErrToolCallPending = errors.New("tool call pending")

	// ErrUnknownAgent is returned when an agent id is not registered with
	// the flow.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrUnknownTool is returned when a model-requested tool name is not
	// present on any registered agent.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrDuplicateTool is returned at construction when two agents declare
	// the same tool name; dispatch is by name, so names must be unique
	// across the whole flow.
	ErrDuplicateTool = errors.New("duplicate tool name")

	// ErrDuplicateAgent is returned at construction when two agents share
	// an id.
	ErrDuplicateAgent = errors.New("duplicate agent id")
)

// Options configure a Flow.
type Options struct {
	// RepeatToolAgent guarantees an agent one extra turn after a batch of
	// tool calls fully resolves, by queueing it twice when the calls are
	// first emitted. Without it, a turn that requests a single tool call
	// ends right after the tool result is appended and the model never
	// gets to phrase an answer; enable it when the agent should always
	// speak after its tools run.
	RepeatToolAgent bool

	Logger logging.Logger
}

// StepResult is the outcome of one Stream step: the messages appended in
// this step and the id of the agent that produced them.
type StepResult struct {
	AgentID  string
	Messages []core.FlowMessage
	Usage    *core.Usage
}

// Flow owns one orchestrated conversation exchange.
type Flow struct {
	id        string
	agents    map[string]*agent.Agent
	toolOwner map[string]string // tool name -> owning agent id, built once
	messages  []core.FlowMessage
	queue     []string
	started   time.Time
	repeat    bool
	logger    *logging.FlowLogger
}

// New creates a Flow over the given agent definitions. The tool dispatch
// table is built here so duplicate tool names fail fast instead of at the
// first model call.
func New(agents []*agent.Agent, optFns ...func(o *Options)) (*Flow, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	id := uuid.NewString()
	byID := make(map[string]*agent.Agent, len(agents))
	toolOwner := make(map[string]string)
	for _, a := range agents {
		if _, exists := byID[a.ID()]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAgent, a.ID())
		}
		byID[a.ID()] = a
		for _, name := range a.ToolNames() {
			if owner, exists := toolOwner[name]; exists {
				return nil, fmt.Errorf("%w: %q declared by agents %q and %q", ErrDuplicateTool, name, owner, a.ID())
			}
			toolOwner[name] = a.ID()
		}
	}

	return &Flow{
		id:        id,
		agents:    byID,
		toolOwner: toolOwner,
		repeat:    opts.RepeatToolAgent,
		logger:    logging.NewFlowLogger(opts.Logger, "flow").WithFlow(id),
	}, nil
}

// ID returns the flow's unique identifier.
func (f *Flow) ID() string { return f.id }

// Started returns the timestamp of the first Stream step, zero before it.
func (f *Flow) Started() time.Time { return f.started }

// Messages returns a copy of the message log.
func (f *Flow) Messages() []core.FlowMessage {
	out := make([]core.FlowMessage, len(f.messages))
	copy(out, f.messages)
	return out
}

// AddMessage appends a caller-injected message (typically the user's
// question) directly to the log.
func (f *Flow) AddMessage(msg core.Message) {
	f.messages = append(f.messages, core.FlowMessage{Message: msg})
}

// ScheduleAgents appends agent ids to the back of the run queue.
//
// It fails with ErrToolCallPending while any tool call is outstanding:
// scheduling must never interleave with an unresolved tool obligation.
func (f *Flow) ScheduleAgents(ids ...string) error {
	for _, id := range ids {
		if _, ok := f.agents[id]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownAgent, id)
		}
	}
	if pending := f.pendingToolCalls(); len(pending) > 0 {
		return fmt.Errorf("%w: %q must be answered before scheduling", ErrToolCallPending, pending[0].Name)
	}
	f.queue = append(f.queue, ids...)
	return nil
}

// Stream performs one orchestration step: either resolve one pending tool
// call or run the next queued agent's completion. It returns nil when the
// queue is empty; the nil return is the terminal signal, there is no
// separate done flag.
func (f *Flow) Stream(ctx context.Context, onDelta model.DeltaFunc) (*StepResult, error) {
	if len(f.queue) == 0 {
		return nil, nil
	}
	agentID := f.queue[0]
	f.queue = f.queue[1:]

	if f.started.IsZero() {
		f.started = time.Now()
	}

	// The pending set is recomputed from the full log on every step rather
	// than counted incrementally: results for parallel calls can land out
	// of declaration order, and the log is the source of truth.
	if pending := f.pendingToolCalls(); len(pending) > 0 {
		return f.resolveToolCall(ctx, agentID, pending)
	}
	return f.runAgentTurn(ctx, agentID, onDelta)
}

// resolveToolCall executes the first pending call (FIFO by scan order) and
// appends its tool-result message. When more calls remain the popped agent
// id is re-pushed to the front so tool resolution stays ahead of any queued
// hand-offs.
func (f *Flow) resolveToolCall(ctx context.Context, agentID string, pending []core.ToolCall) (*StepResult, error) {
	fc := pending[0]

	ownerID, ok := f.toolOwner[fc.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q requested by model", ErrUnknownTool, fc.Name)
	}
	impl, _ := f.agents[ownerID].Tool(fc.Name)

	start := time.Now()
	content, custom, execErr := executeTool(ctx, impl, fc.Arguments)
	f.logger.LogToolCall(fc.Name, fc.ID, time.Since(start), execErr)
	if execErr != nil {
		// I/O and validation failures become tool-result messages so the
		// model can see and react to them; only configuration errors abort
		// the flow.
		content = fmt.Sprintf("tool %q failed: %v", fc.Name, execErr)
		custom = nil
	}

	fm := core.FlowMessage{
		Message: core.NewToolMessage(fc.ID, content),
		AgentID: ownerID,
		Custom:  custom,
	}
	f.messages = append(f.messages, fm)

	if len(pending) > 1 {
		f.queue = append([]string{agentID}, f.queue...)
	}

	return &StepResult{AgentID: ownerID, Messages: []core.FlowMessage{fm}}, nil
}

// runAgentTurn issues the agent's completion call and appends the decoded
// assistant message. If the model asked for tool calls the agent is pushed
// to the front of the queue (twice under the repeat policy) so the calls
// are resolved before any unrelated hand-off runs.
func (f *Flow) runAgentTurn(ctx context.Context, agentID string, onDelta model.DeltaFunc) (*StepResult, error) {
	a, ok := f.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, agentID)
	}

	start := time.Now()
	stream, err := a.Stream(ctx, f.conversation())
	if err != nil {
		return nil, fmt.Errorf("agent %q completion call failed: %w", agentID, err)
	}
	res, err := model.Decode(stream, onDelta)

	totalTokens := 0
	if res != nil && res.Usage != nil {
		totalTokens = res.Usage.TotalTokens
	}
	f.logger.LogModelCall(a.Model().Name, totalTokens, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("agent %q stream decode failed: %w", agentID, err)
	}

	fm := core.FlowMessage{Message: res.Message, AgentID: agentID}
	f.messages = append(f.messages, fm)

	if len(res.Message.ToolCalls) > 0 {
		if f.repeat {
			f.queue = append([]string{agentID, agentID}, f.queue...)
		} else {
			f.queue = append([]string{agentID}, f.queue...)
		}
	}

	return &StepResult{AgentID: agentID, Messages: []core.FlowMessage{fm}, Usage: res.Usage}, nil
}

// pendingToolCalls scans the full message log: every tool call emitted by
// an assistant message, minus those answered by a tool-result message,
// preserving declaration order.
func (f *Flow) pendingToolCalls() []core.ToolCall {
	answered := make(map[string]bool)
	for _, m := range f.messages {
		if m.Role == core.RoleTool && m.ToolCallID != "" {
			answered[m.ToolCallID] = true
		}
	}

	var pending []core.ToolCall
	for _, m := range f.messages {
		if m.Role != core.RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			if !answered[tc.ID] {
				pending = append(pending, tc)
			}
		}
	}
	return pending
}

// conversation projects the flow log into the plain message list sent to
// providers.
func (f *Flow) conversation() []core.Message {
	out := make([]core.Message, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.Message
	}
	return out
}

// executeTool parses the accumulated argument JSON and runs the tool. A
// malformed argument string is an execution failure, not a crash: the
// decoder never validates argument JSON, so the parse happens here where
// the failure can be surfaced back to the model.
func executeTool(ctx context.Context, impl tool.Tool, rawArgs string) (string, any, error) {
	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", nil, fmt.Errorf("malformed tool arguments: %w", err)
		}
	}

	res, err := impl.Execute(ctx, args)
	if err != nil {
		return "", nil, err
	}
	if res == nil {
		return "", nil, nil
	}
	return res.Content, res.Custom, nil
}
