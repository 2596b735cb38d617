package core

// Role identifies the author of a conversation message.
type Role string

// Conversation roles understood by the model providers.
const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a function invocation requested by an assistant message.
// Arguments holds the accumulated JSON argument string exactly as it arrived
// from the provider's byte stream; it is parsed only at execution time.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one turn in a conversation. Content may be empty while a tool
// call is outstanding. A tool-role message answers a previously emitted tool
// call and carries its id in ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// NewUserMessage builds a user-authored text message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewSystemMessage builds a system prompt message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewToolMessage builds a tool-result message answering the call with the
// given id.
func NewToolMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// Usage captures token accounting reported by a model provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// FlowMessage wraps a Message with orchestration metadata: the id of the
// agent that produced it (empty for caller-injected messages) and an opaque
// payload attached by a tool's execution result (e.g. citation links).
//
// FlowMessages are owned by their Flow and are appended, never mutated.
type FlowMessage struct {
	Message
	AgentID string `json:"agent_id,omitempty"`
	Custom  any    `json:"custom,omitempty"`
}
