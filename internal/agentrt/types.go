// Package agentrt implements the provider-agnostic tool-use driver: a
// multi-round loop over a ToolCapableProvider with
// correct message round-tripping via opaque native assistant messages,
// per-round size guards, a process-local capability cache, and
// read-restricted tool authorization (ROWYS).
package agentrt

import (
	"context"
	"encoding/json"
)

// StopReason is the normalized tagged variant every provider adapter maps
// its native finish/stop signal onto.
type StopReason string

const (
	StopToolUse   StopReason = "tool_use"
	StopEndTurn   StopReason = "end_turn"
	StopMaxTokens StopReason = "max_tokens"
)

// ToolCall is a single provider-requested tool invocation.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// ToolSchema describes one tool offered to the model.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Role tags a Transcript entry's position in the discriminated union.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Transcript is one entry of the per-turn message history. Only the fields
// relevant to Role are populated:
//
//   - user:      Content
//   - assistant: RawMessage (authoritative, opaque, provider-native) and
//                DerivedText (parsing/UI only; never used to rebuild the
//                round trip) and ToolCalls (the calls that must each be
//                followed by exactly one tool entry)
//   - tool:      ToolCallID, ToolName, Content
type Transcript struct {
	Role        Role
	Content     string
	RawMessage  any
	DerivedText string
	ToolCalls   []ToolCall
	ToolCallID  string
	ToolName    string
}

// ToolUseRequest is the input to CreateToolUseMessage.
type ToolUseRequest struct {
	Messages     []Transcript
	SystemPrompt string
	Tools        []ToolSchema
}

// ToolUseResponse normalizes a provider's tool-capable response.
type ToolUseResponse struct {
	StopReason          StopReason
	TextContent         string
	ToolCalls           []ToolCall
	RawAssistantMessage any
}

// Provider is the minimal streaming/complete chat interface every adapter
// implements.
type Provider interface {
	// Chat streams text deltas for the given messages/system prompt.
	Chat(ctx context.Context, messages []Transcript, systemPrompt string) (<-chan string, error)
	// ChatComplete returns the full text response, non-streaming. Used both
	// directly and as the tools-not-supported fallback surface.
	ChatComplete(ctx context.Context, messages []Transcript, systemPrompt string) (string, error)
}

// ToolCapableProvider additionally supports a structured tool-use round.
type ToolCapableProvider interface {
	Provider
	CreateToolUseMessage(ctx context.Context, req ToolUseRequest) (ToolUseResponse, error)
}
