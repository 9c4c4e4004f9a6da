package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/quiet-coder-io/domainos/internal/agentrt"
	"github.com/quiet-coder-io/domainos/internal/config"
	"github.com/quiet-coder-io/domainos/internal/llm"
)

// fakeMessagesServer serves a canned /v1/messages response and records every
// request body, standing in for the Anthropic API in adapter tests.
func fakeMessagesServer(t *testing.T, content []sdk.ContentBlockUnion, stopReason sdk.StopReason) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)

		w.Header().Set("Content-Type", "application/json")
		resp := sdk.Message{
			ID:         fmt.Sprintf("msg_%d", len(bodies)),
			Type:       constant.Message("message"),
			Role:       constant.Assistant("assistant"),
			Model:      sdk.ModelClaude3_7SonnetLatest,
			StopReason: stopReason,
			Content:    content,
			Usage:      fakeUsage(),
		}
		b, _ := json.Marshal(resp)
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)
	return srv, &bodies
}

func newAdapter(srv *httptest.Server) *ToolAdapter {
	return NewToolAdapter(New(config.AnthropicConfig{APIKey: "k", Model: "claude-sonnet-4-5", BaseURL: srv.URL}, srv.Client()))
}

func TestCreateToolUseMessageEndTurn(t *testing.T) {
	srv, bodies := fakeMessagesServer(t,
		[]sdk.ContentBlockUnion{{Type: "text", Text: "all done"}}, sdk.StopReasonEndTurn)
	a := newAdapter(srv)

	resp, err := a.CreateToolUseMessage(context.Background(), agentrt.ToolUseRequest{
		Messages:     []agentrt.Transcript{{Role: agentrt.RoleUser, Content: "hi"}},
		SystemPrompt: "you are the ops domain agent",
		Tools:        []agentrt.ToolSchema{{Name: "gmail_search", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("CreateToolUseMessage: %v", err)
	}
	if resp.StopReason != agentrt.StopEndTurn {
		t.Fatalf("stop reason = %q, want end_turn", resp.StopReason)
	}
	if resp.TextContent != "all done" {
		t.Fatalf("text = %q", resp.TextContent)
	}

	body := (*bodies)[0]
	if _, ok := body["tools"]; !ok {
		t.Fatalf("expected tools in request, got %#v", body)
	}
	sys, ok := body["system"].([]any)
	if !ok || len(sys) == 0 {
		t.Fatalf("expected system prompt extracted to system blocks, got %#v", body["system"])
	}
}

func TestCreateToolUseMessageToolUse(t *testing.T) {
	srv, _ := fakeMessagesServer(t,
		[]sdk.ContentBlockUnion{{Type: "tool_use", Name: "gmail_search", ID: "toolu_1", Input: json.RawMessage(`{"query":"renewal"}`)}},
		sdk.StopReasonToolUse)
	a := newAdapter(srv)

	resp, err := a.CreateToolUseMessage(context.Background(), agentrt.ToolUseRequest{
		Messages: []agentrt.Transcript{{Role: agentrt.RoleUser, Content: "find the renewal thread"}},
		Tools:    []agentrt.ToolSchema{{Name: "gmail_search", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("CreateToolUseMessage: %v", err)
	}
	if resp.StopReason != agentrt.StopToolUse {
		t.Fatalf("stop reason = %q, want tool_use", resp.StopReason)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "gmail_search" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	raw, ok := resp.RawAssistantMessage.(llm.Message)
	if !ok {
		t.Fatalf("RawAssistantMessage has type %T, want llm.Message", resp.RawAssistantMessage)
	}
	if len(raw.ToolCalls) != 1 || raw.ToolCalls[0].Name != "gmail_search" {
		t.Fatalf("raw message lost the tool call: %+v", raw)
	}
}

// A tool-use round followed by its tool result must round-trip: the next
// request's messages carry a tool_use block on the assistant turn and a
// tool_result block echoing the same id.
func TestCreateToolUseMessageRoundTripsToolResults(t *testing.T) {
	srv, bodies := fakeMessagesServer(t,
		[]sdk.ContentBlockUnion{{Type: "text", Text: "the renewal is due friday"}}, sdk.StopReasonEndTurn)
	a := newAdapter(srv)

	_, err := a.CreateToolUseMessage(context.Background(), agentrt.ToolUseRequest{
		Messages: []agentrt.Transcript{
			{Role: agentrt.RoleUser, Content: "find the renewal thread"},
			{
				Role:        agentrt.RoleAssistant,
				DerivedText: "",
				ToolCalls:   []agentrt.ToolCall{{ID: "toolu_1", Name: "gmail_search", Args: []byte(`{"query":"renewal"}`)}},
			},
			{Role: agentrt.RoleTool, ToolCallID: "toolu_1", ToolName: "gmail_search", Content: `{"results":[{"messageId":"m1"}]}`},
		},
		Tools: []agentrt.ToolSchema{{Name: "gmail_search", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("CreateToolUseMessage: %v", err)
	}

	payload, _ := json.Marshal((*bodies)[0]["messages"])
	wire := string(payload)
	if !strings.Contains(wire, `"tool_use"`) {
		t.Fatalf("expected assistant tool_use block on the wire: %s", wire)
	}
	if !strings.Contains(wire, `"tool_result"`) {
		t.Fatalf("expected tool_result block on the wire: %s", wire)
	}
	if strings.Count(wire, `"toolu_1"`) < 2 {
		t.Fatalf("expected tool_result to echo the tool_use id: %s", wire)
	}
}

func TestChatCompleteReturnsText(t *testing.T) {
	srv, bodies := fakeMessagesServer(t,
		[]sdk.ContentBlockUnion{{Type: "text", Text: "plain reply"}}, sdk.StopReasonEndTurn)
	a := newAdapter(srv)

	text, err := a.ChatComplete(context.Background(),
		[]agentrt.Transcript{{Role: agentrt.RoleUser, Content: "hello"}}, "system prompt")
	if err != nil {
		t.Fatalf("ChatComplete: %v", err)
	}
	if text != "plain reply" {
		t.Fatalf("text = %q", text)
	}
	if _, ok := (*bodies)[0]["tools"]; ok {
		t.Fatal("ChatComplete must not offer tools")
	}
}

func TestChatPromptCacheDefaultsToSystemAndTools(t *testing.T) {
	srv, bodies := fakeMessagesServer(t,
		[]sdk.ContentBlockUnion{{Type: "text", Text: "ok"}}, sdk.StopReasonEndTurn)

	cfg := config.AnthropicConfig{
		APIKey:  "k",
		BaseURL: srv.URL,
		// Enabled with no explicit scopes: system+tools caching is the default.
		PromptCache: config.AnthropicPromptCacheConfig{Enabled: true},
	}
	client := New(cfg, srv.Client())
	_, err := client.Chat(context.Background(),
		[]llm.Message{{Role: "system", Content: "static system"}, {Role: "user", Content: "hi"}},
		[]llm.ToolSchema{{Name: "gmail_search", Parameters: map[string]any{"type": "object"}}}, "")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	body := (*bodies)[0]
	for _, section := range []string{"system", "tools"} {
		list, ok := body[section].([]any)
		if !ok || len(list) == 0 {
			t.Fatalf("expected %s blocks in request, got %#v", section, body[section])
		}
		first, _ := list[0].(map[string]any)
		if _, ok := first["cache_control"]; !ok {
			t.Fatalf("expected cache_control on first %s block, got %#v", section, first)
		}
	}
}

func TestChatStreamDeltasAndToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		sse := func(eventType string, payload map[string]any) {
			payload["type"] = eventType
			b, _ := json.Marshal(payload)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, b)
			if flusher != nil {
				flusher.Flush()
			}
		}

		sse("message_start", map[string]any{"message": emptyWireMessage()})
		sse("content_block_start", map[string]any{
			"index": 0, "content_block": map[string]any{"type": "text", "text": ""},
		})
		sse("content_block_delta", map[string]any{
			"index": 0, "delta": map[string]any{"type": "text_delta", "text": "checking "},
		})
		sse("content_block_delta", map[string]any{
			"index": 0, "delta": map[string]any{"type": "text_delta", "text": "mail"},
		})
		sse("content_block_start", map[string]any{
			"index": 1, "content_block": map[string]any{
				"type": "tool_use", "id": "toolu_9", "name": "gmail_search", "input": map[string]any{},
			},
		})
		sse("content_block_delta", map[string]any{
			"index": 1, "delta": map[string]any{"type": "input_json_delta", "partial_json": `{"query":"invoices"}`},
		})
		sse("message_delta", map[string]any{
			"delta": map[string]any{"stop_reason": "tool_use", "stop_sequence": ""},
			"usage": map[string]any{"input_tokens": 0, "output_tokens": 0},
		})
	}))
	t.Cleanup(srv.Close)

	client := New(config.AnthropicConfig{APIKey: "k", Model: "claude-sonnet-4-5", BaseURL: srv.URL}, srv.Client())
	rec := &streamRecorder{}
	err := client.ChatStream(context.Background(),
		[]llm.Message{{Role: "user", Content: "any invoices?"}},
		[]llm.ToolSchema{{Name: "gmail_search", Parameters: map[string]any{"type": "object"}}}, "", rec)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if got := strings.Join(rec.deltas, ""); got != "checking mail" {
		t.Fatalf("deltas = %q", got)
	}
	if len(rec.calls) != 1 || rec.calls[0].ID != "toolu_9" || string(rec.calls[0].Args) != `{"query":"invoices"}` {
		t.Fatalf("tool calls = %+v", rec.calls)
	}
}

// Thinking blocks returned by the model must be replayed at the front of the
// assistant turn on the next request, signature intact.
func TestThinkingSignatureReplay(t *testing.T) {
	srv, bodies := fakeMessagesServer(t, []sdk.ContentBlockUnion{
		{Type: "thinking", Thinking: "weighing the options", Signature: "sig_42"},
		{Type: "text", Text: "here is my take"},
	}, sdk.StopReasonEndTurn)
	client := New(config.AnthropicConfig{APIKey: "k", Model: "claude-sonnet-4-5", BaseURL: srv.URL}, srv.Client())

	first, err := client.Chat(context.Background(), []llm.Message{{Role: "user", Content: "thoughts?"}}, nil, "")
	if err != nil {
		t.Fatalf("first Chat: %v", err)
	}
	if first.ThoughtSignature == "" {
		t.Fatal("expected ThoughtSignature captured from the thinking block")
	}

	_, err = client.Chat(context.Background(), []llm.Message{
		{Role: "user", Content: "thoughts?"},
		{Role: "assistant", Content: first.Content, ThoughtSignature: first.ThoughtSignature},
		{Role: "user", Content: "go on"},
	}, nil, "")
	if err != nil {
		t.Fatalf("second Chat: %v", err)
	}

	payload, _ := json.Marshal((*bodies)[1]["messages"])
	wire := string(payload)
	if !strings.Contains(wire, `"thinking"`) || !strings.Contains(wire, `"sig_42"`) {
		t.Fatalf("expected replayed thinking block with signature: %s", wire)
	}
}

func TestAdaptMessagesRejectsUnknownRole(t *testing.T) {
	_, _, err := adaptMessages([]llm.Message{{Role: "narrator", Content: "x"}}, config.AnthropicPromptCacheConfig{})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}

type streamRecorder struct {
	deltas     []string
	calls      []llm.ToolCall
	summaries  []string
	signatures []string
}

func (s *streamRecorder) OnDelta(content string)     { s.deltas = append(s.deltas, content) }
func (s *streamRecorder) OnToolCall(tc llm.ToolCall) { s.calls = append(s.calls, tc) }
func (s *streamRecorder) OnImage(llm.GeneratedImage) {}
func (s *streamRecorder) OnThoughtSummary(summary string) {
	s.summaries = append(s.summaries, summary)
}
func (s *streamRecorder) OnThoughtSignature(sig string) {
	s.signatures = append(s.signatures, sig)
}

func fakeUsage() sdk.Usage {
	return sdk.Usage{
		ServerToolUse: sdk.ServerToolUsage{WebSearchRequests: 0},
		ServiceTier:   sdk.UsageServiceTierStandard,
	}
}

func emptyWireMessage() map[string]any {
	return map[string]any{
		"id":      "msg_stream",
		"type":    "message",
		"role":    "assistant",
		"model":   "claude-sonnet-4-5",
		"content": []any{},
		"usage":   map[string]any{"input_tokens": 0, "output_tokens": 0},
	}
}
