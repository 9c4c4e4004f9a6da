package agentrt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeToolProvider struct {
	rounds    []ToolUseResponse
	errs      []error
	completed string
	calls     int
}

func (f *fakeToolProvider) Chat(ctx context.Context, messages []Transcript, systemPrompt string) (<-chan string, error) {
	return nil, errors.New("unused")
}

func (f *fakeToolProvider) ChatComplete(ctx context.Context, messages []Transcript, systemPrompt string) (string, error) {
	return f.completed, nil
}

func (f *fakeToolProvider) CreateToolUseMessage(ctx context.Context, req ToolUseRequest) (ToolUseResponse, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return ToolUseResponse{}, f.errs[idx]
	}
	return f.rounds[idx], nil
}

// ROWYS guard: gmail_read without a prior gmail_search in this turn is
// rejected with a fixed error string and no executor call.
func TestLoop_ROWYSGuardDeniesUnsearchedRead(t *testing.T) {
	readCalled := false
	provider := &fakeToolProvider{
		rounds: []ToolUseResponse{
			{
				StopReason: StopToolUse,
				ToolCalls:  []ToolCall{{ID: "1", Name: "gmail_read", Args: []byte(`{"messageId":"abc"}`)}},
			},
			{StopReason: StopEndTurn, TextContent: "done"},
		},
	}
	registry := &Registry{Gmail: ToolExecutorFunc(func(ctx context.Context, call ToolCall) (string, error) {
		readCalled = true
		return "should not be reached", nil
	})}
	loop := NewLoop(provider, NewCapabilityCache(), registry)

	result, err := loop.Run(context.Background(), TurnInput{
		ProviderName: "anthropic", Model: "m",
		UserText: "read abc", Tools: []ToolSchema{{Name: "gmail_read"}},
	})
	require.NoError(t, err)
	require.False(t, readCalled, "gmail executor must not run for an unauthorized read")

	var toolMsg *Transcript
	for i := range result.Transcript {
		if result.Transcript[i].Role == RoleTool {
			toolMsg = &result.Transcript[i]
		}
	}
	require.NotNil(t, toolMsg)
	require.Equal(t, rowysDeniedResult, toolMsg.Content)
}

func TestLoop_ROWYSGuardAllowsReadAfterSearch(t *testing.T) {
	provider := &fakeToolProvider{
		rounds: []ToolUseResponse{
			{
				StopReason: StopToolUse,
				ToolCalls:  []ToolCall{{ID: "1", Name: "gmail_search", Args: []byte(`{}`)}},
			},
			{
				StopReason: StopToolUse,
				ToolCalls:  []ToolCall{{ID: "2", Name: "gmail_read", Args: []byte(`{"messageId":"abc"}`)}},
			},
			{StopReason: StopEndTurn, TextContent: "done"},
		},
	}
	registry := &Registry{Gmail: ToolExecutorFunc(func(ctx context.Context, call ToolCall) (string, error) {
		if call.Name == "gmail_search" {
			return `{"results":[{"messageId":"abc"}]}`, nil
		}
		return "message body", nil
	})}
	loop := NewLoop(provider, NewCapabilityCache(), registry)

	result, err := loop.Run(context.Background(), TurnInput{ProviderName: "anthropic", Model: "m", UserText: "x", Tools: []ToolSchema{{Name: "gmail_read"}}})
	require.NoError(t, err)
	require.Equal(t, "done", result.FinalText)

	found := false
	for _, m := range result.Transcript {
		if m.Role == RoleTool && m.ToolCallID == "2" {
			require.Equal(t, "message body", m.Content)
			found = true
		}
	}
	require.True(t, found)
}

// S6: tools-not-supported fallback flips capability and flattens messages.
func TestLoop_ToolsNotSupportedFallback(t *testing.T) {
	provider := &fakeToolProvider{
		errs:      []error{errors.New("model does not support tools")},
		completed: "flattened response",
	}
	caps := NewCapabilityCache()
	loop := NewLoop(provider, caps, &Registry{})

	result, err := loop.Run(context.Background(), TurnInput{ProviderName: "openai", Model: "gpt-x", UserText: "hi", Tools: []ToolSchema{{Name: "foo"}}})
	require.NoError(t, err)
	require.Equal(t, "flattened response", result.FinalText)
	require.Equal(t, CapNotSupported, caps.Get(CapabilityKey{Provider: "openai", Model: "gpt-x"}))

	// Subsequent turn on the same (provider, model) skips the loop entirely.
	provider2 := &fakeToolProvider{completed: "bypassed"}
	loop2 := NewLoop(provider2, caps, &Registry{})
	result2, err := loop2.Run(context.Background(), TurnInput{ProviderName: "openai", Model: "gpt-x", UserText: "again"})
	require.NoError(t, err)
	require.Equal(t, "bypassed", result2.FinalText)
	require.Equal(t, 0, provider2.calls, "bypass must never call CreateToolUseMessage")
}

func TestLoop_EndTurnMarksCapabilitySupportedAfterToolUse(t *testing.T) {
	provider := &fakeToolProvider{
		rounds: []ToolUseResponse{
			{StopReason: StopToolUse, ToolCalls: []ToolCall{{ID: "1", Name: "gtasks_create"}}},
			{StopReason: StopEndTurn, TextContent: "finished"},
		},
	}
	registry := &Registry{GTasks: ToolExecutorFunc(func(ctx context.Context, call ToolCall) (string, error) {
		return "ok", nil
	})}
	caps := NewCapabilityCache()
	loop := NewLoop(provider, caps, registry)

	result, err := loop.Run(context.Background(), TurnInput{ProviderName: "anthropic", Model: "m", UserText: "x", Tools: []ToolSchema{{Name: "gtasks_create"}}})
	require.NoError(t, err)
	require.True(t, result.ToolRan)
	require.Equal(t, CapSupported, caps.Get(CapabilityKey{Provider: "anthropic", Model: "m"}))
}
