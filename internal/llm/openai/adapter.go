package openai

import (
	"context"
	"fmt"

	sdk "github.com/openai/openai-go/v2"

	"github.com/quiet-coder-io/domainos/internal/agentrt"
	"github.com/quiet-coder-io/domainos/internal/llm"
)

// ToolAdapter wraps Client to implement agentrt.ToolCapableProvider. Also
// used, unmodified, as the Ollama adapter:
// New(cfg) with cfg.BaseURL pointed at a local Ollama server is the entire
// difference.
type ToolAdapter struct {
	*Client
}

// NewToolAdapter wraps an existing Client for use with internal/agentrt.
func NewToolAdapter(c *Client) *ToolAdapter { return &ToolAdapter{Client: c} }

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

// mapFinishReason maps the OpenAI-style finish_reason onto the normalized
// StopReason: tool_calls -> tool_use, stop -> end_turn,
// length -> max_tokens. Ollama reuses this mapping unchanged.
func mapFinishReason(fr string) agentrt.StopReason {
	switch fr {
	case "tool_calls":
		return agentrt.StopToolUse
	case "length":
		return agentrt.StopMaxTokens
	default: // "stop", ""
		return agentrt.StopEndTurn
	}
}

// ChatComplete implements agentrt.Provider.
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
// /v1/chat/completions round; the entire ChatCompletionMessage is carried
// as RawAssistantMessage, though toLLMMessages rebuilds later rounds from
// DerivedText and ToolCalls rather than from it. A
// malformed tool_calls payload is classified by the loop's
// tools-not-supported heuristic via the returned error text.
func (a *ToolAdapter) CreateToolUseMessage(ctx context.Context, req agentrt.ToolUseRequest) (agentrt.ToolUseResponse, error) {
	c := a.Client
	msgs := toLLMMessages(req.SystemPrompt, req.Messages)
	tools := make([]llm.ToolSchema, len(req.Tools))
	for i, t := range req.Tools {
		tools[i] = llm.ToolSchema{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
	}

	effectiveModel := firstNonEmpty("", c.model)
	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(effectiveModel)}
	params.Messages = AdaptMessages(string(params.Model), msgs)
	if len(tools) > 0 {
		if c.isSelfHosted() {
			params.Tools = AdaptSchemas(sanitizeToolSchemas(tools))
		} else {
			params.Tools = AdaptSchemas(tools)
		}
	}
	if len(c.extra) > 0 {
		params.SetExtraFields(c.extra)
	}

	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return agentrt.ToolUseResponse{}, fmt.Errorf("openai tool-use round: %w", err)
	}
	if len(comp.Choices) == 0 {
		return agentrt.ToolUseResponse{}, fmt.Errorf("openai tool-use round: no choices returned")
	}

	choice := comp.Choices[0]
	msg := choice.Message
	var calls []llm.ToolCall
	for _, tc := range msg.ToolCalls {
		switch v := tc.AsAny().(type) {
		case sdk.ChatCompletionMessageFunctionToolCall:
			calls = append(calls, llm.ToolCall{ID: v.ID, Name: v.Function.Name, Args: []byte(v.Function.Arguments)})
		}
	}

	return agentrt.ToolUseResponse{
		StopReason:          mapFinishReason(string(choice.FinishReason)),
		TextContent:         msg.Content,
		ToolCalls:           toAgentrtToolCalls(calls),
		RawAssistantMessage: msg,
	}, nil
}
