package anthropic

import (
	"context"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/quiet-coder-io/domainos/internal/agentrt"
	"github.com/quiet-coder-io/domainos/internal/llm"
)

// toLLMMessages converts the agentrt discriminated-union transcript into
// the flattened llm.Message shape that adaptMessages round-trips into
// native Anthropic content blocks.
func toLLMMessages(systemPrompt string, messages []agentrt.Transcript) []llm.Message {
	out := make([]llm.Message, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, llm.Message{Role: "system", Content: systemPrompt})
	}
	for _, m := range messages {
		switch m.Role {
		case agentrt.RoleUser:
			out = append(out, llm.Message{Role: "user", Content: m.Content})
		case agentrt.RoleAssistant:
			calls := make([]llm.ToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				calls[i] = llm.ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Args}
			}
			out = append(out, llm.Message{Role: "assistant", Content: m.DerivedText, ToolCalls: calls})
		case agentrt.RoleTool:
			out = append(out, llm.Message{Role: "tool", ToolID: m.ToolCallID, Content: m.Content})
		}
	}
	return out
}

func toAgentrtToolCalls(calls []llm.ToolCall) []agentrt.ToolCall {
	out := make([]agentrt.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = agentrt.ToolCall{ID: c.ID, Name: c.Name, Args: c.Args}
	}
	return out
}

func toLLMTools(tools []agentrt.ToolSchema) []llm.ToolSchema {
	out := make([]llm.ToolSchema, len(tools))
	for i, t := range tools {
		out[i] = llm.ToolSchema{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
	}
	return out
}

func mapStopReason(sr string) agentrt.StopReason {
	switch sr {
	case "tool_use":
		return agentrt.StopToolUse
	case "max_tokens":
		return agentrt.StopMaxTokens
	default: // "end_turn", "stop_sequence", ""
		return agentrt.StopEndTurn
	}
}

// ToolAdapter wraps Client to implement agentrt.ToolCapableProvider. It is
// a separate type (rather than methods directly on *Client) because
// Client.Chat keeps its four-argument signature; NewToolAdapter returns
// this wrapper for callers that drive the tool-use loop.
type ToolAdapter struct {
	*Client
}

// NewToolAdapter wraps an existing Client for use with internal/agentrt.
func NewToolAdapter(c *Client) *ToolAdapter { return &ToolAdapter{Client: c} }

// ChatComplete implements agentrt.Provider: a flattened, non-streaming call,
// used directly by bypassed turns and as the tools-not-supported fallback.
func (a *ToolAdapter) ChatComplete(ctx context.Context, messages []agentrt.Transcript, systemPrompt string) (string, error) {
	out, err := a.Client.Chat(ctx, toLLMMessages(systemPrompt, messages), nil, "")
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

// Chat implements agentrt.Provider's streaming surface.
func (a *ToolAdapter) Chat(ctx context.Context, messages []agentrt.Transcript, systemPrompt string) (<-chan string, error) {
	ch := make(chan string)
	h := &transcriptStreamHandler{ch: ch}
	go func() {
		defer close(ch)
		_ = a.Client.ChatStream(ctx, toLLMMessages(systemPrompt, messages), nil, "", h)
	}()
	return ch, nil
}

type transcriptStreamHandler struct {
	ch chan string
}

func (h *transcriptStreamHandler) OnDelta(content string)          { h.ch <- content }
func (h *transcriptStreamHandler) OnToolCall(tc llm.ToolCall)       {}
func (h *transcriptStreamHandler) OnImage(img llm.GeneratedImage)   {}
func (h *transcriptStreamHandler) OnThoughtSummary(summary string)  {}
func (h *transcriptStreamHandler) OnThoughtSignature(encoded string) {}

// CreateToolUseMessage implements agentrt.ToolCapableProvider: one native
// Anthropic /v1/messages round, with the SDK's own stop_reason/content
// blocks mapped to the normalized shape. The RawAssistantMessage carries
// the flattened llm.Message; adaptMessages reconstructs the native
// content-block array from it losslessly for tool-calls/text, so it is
// sufficient as the authoritative round-trip value for this adapter.
func (a *ToolAdapter) CreateToolUseMessage(ctx context.Context, req agentrt.ToolUseRequest) (agentrt.ToolUseResponse, error) {
	c := a.Client
	msgs := toLLMMessages(req.SystemPrompt, req.Messages)
	sys, converted, err := adaptMessages(msgs, c.cacheCfg)
	if err != nil {
		return agentrt.ToolUseResponse{}, err
	}
	toolDefs, err := adaptTools(toLLMTools(req.Tools), c.cacheCfg)
	if err != nil {
		return agentrt.ToolUseResponse{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.pickModel("")),
		Messages:  converted,
		System:    sys,
		Tools:     toolDefs,
		MaxTokens: c.maxTokens,
	}
	if len(c.extra) > 0 {
		params.SetExtraFields(c.extra)
	}
	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return agentrt.ToolUseResponse{}, fmt.Errorf("anthropic tool-use round: %w", err)
	}

	out := messageFromResponse(resp)
	flattened := llm.Message{Role: "assistant", Content: out.Content, ToolCalls: out.ToolCalls}
	return agentrt.ToolUseResponse{
		StopReason:          mapStopReason(string(resp.StopReason)),
		TextContent:         out.Content,
		ToolCalls:           toAgentrtToolCalls(out.ToolCalls),
		RawAssistantMessage: flattened,
	}, nil
}
