package agentrt

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

const (
	// DefaultMaxRounds is the default MAX_ROUNDS.
	DefaultMaxRounds = 8
	// MaxToolResultBytes caps a single tool result.
	MaxToolResultBytes = 75 * 1024
	// MaxTranscriptBytes caps the cumulative transcript.
	MaxTranscriptBytes = 400 * 1024
)

// TurnInput is everything one chat turn needs to drive the tool-use loop.
type TurnInput struct {
	DomainID         string
	ProviderName     string
	Model            string
	BaseURL          string // Ollama-style adapters only; included in the capability key
	ForceToolAttempt bool
	History          []Transcript
	UserText         string
	SystemPrompt     string
	Tools            []ToolSchema
}

// TurnResult is the outcome of one Loop.Run call.
type TurnResult struct {
	FinalText  string
	Transcript []Transcript
	ToolRan    bool
	Capability Capability
}

// Loop drives the provider-agnostic tool-use round algorithm, bounded by
// MaxRounds and the size guards above.
type Loop struct {
	Provider        Provider
	Caps            *CapabilityCache
	Registry        *Registry
	MaxRounds       int
	MaxToolParallel int
}

// NewLoop constructs a Loop with the default bounds.
func NewLoop(provider Provider, caps *CapabilityCache, registry *Registry) *Loop {
	return &Loop{Provider: provider, Caps: caps, Registry: registry, MaxRounds: DefaultMaxRounds}
}

// Run executes one chat turn end to end.
func (l *Loop) Run(ctx context.Context, in TurnInput) (TurnResult, error) {
	key := CapabilityKey{Provider: in.ProviderName, Model: in.Model, BaseURL: in.BaseURL}
	messages := append(append([]Transcript{}, in.History...), Transcript{Role: RoleUser, Content: in.UserText})

	tcp, isToolCapable := l.Provider.(ToolCapableProvider)
	cap := l.Caps.Get(key)

	bypass := !isToolCapable || cap == CapNotSupported || (cap == CapNotObserved && !in.ForceToolAttempt)
	if bypass {
		text, err := l.Provider.ChatComplete(ctx, messages, in.SystemPrompt)
		if err != nil {
			return TurnResult{}, fmt.Errorf("chatComplete: %w", err)
		}
		messages = append(messages, Transcript{Role: RoleAssistant, RawMessage: text, DerivedText: text})
		return TurnResult{FinalText: text, Transcript: messages, Capability: l.Caps.Get(key)}, nil
	}

	rowys := newRowysState()
	toolRan := false
	maxRounds := l.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	var finalText string
	for round := 0; round < maxRounds; round++ {
		resp, err := tcp.CreateToolUseMessage(ctx, ToolUseRequest{Messages: messages, SystemPrompt: in.SystemPrompt, Tools: in.Tools})
		if err != nil {
			if tnse, ok := asToolsNotSupported(classifyToolError(err)); ok {
				l.Caps.Set(key, CapNotSupported)
				text, ferr := l.Provider.ChatComplete(ctx, flatten(messages), in.SystemPrompt)
				if ferr != nil {
					return TurnResult{}, fmt.Errorf("fallback chatComplete after %v: %w", tnse, ferr)
				}
				messages = append(messages, Transcript{Role: RoleAssistant, RawMessage: text, DerivedText: text})
				return TurnResult{FinalText: text, Transcript: messages, Capability: CapNotSupported}, nil
			}
			return TurnResult{}, fmt.Errorf("createToolUseMessage: %w", err)
		}

		messages = append(messages, Transcript{
			Role:        RoleAssistant,
			RawMessage:  resp.RawAssistantMessage,
			DerivedText: resp.TextContent,
			ToolCalls:   resp.ToolCalls,
		})

		if resp.StopReason == StopEndTurn || resp.StopReason == StopMaxTokens {
			finalText = resp.TextContent
			if toolRan {
				l.Caps.NoteToolCallsObserved(key)
			} else if len(in.Tools) > 0 {
				l.Caps.NoteNoToolCallsRound(key)
			}
			break
		}

		// StopToolUse: authorize and dispatch, then continue the loop.
		toolRan = true
		toolMessages, stop := l.dispatchTools(ctx, resp.ToolCalls, rowys)
		messages = append(messages, toolMessages...)
		if stop {
			finalText = resp.TextContent
			break
		}
		if round == maxRounds-1 {
			finalText = resp.TextContent
		}
	}

	return TurnResult{FinalText: finalText, Transcript: messages, ToolRan: toolRan, Capability: l.Caps.Get(key)}, nil
}

func asToolsNotSupported(err error) (*ToolsNotSupportedError, bool) {
	var tnse *ToolsNotSupportedError
	ok := errors.As(err, &tnse)
	return tnse, ok
}

// dispatchTools executes calls with bounded parallelism, applying the
// ROWYS guard and output sanitization, then enforces the per-result and
// cumulative size guards. It returns one Transcript entry per
// call, in order, and whether the loop must stop after this round.
func (l *Loop) dispatchTools(ctx context.Context, calls []ToolCall, rowys *rowysState) ([]Transcript, bool) {
	if len(calls) == 0 {
		return nil, false
	}
	maxParallel := l.MaxToolParallel
	if maxParallel <= 0 || maxParallel > len(calls) {
		maxParallel = len(calls)
	}
	results := make([]string, len(calls))
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for i, call := range calls {
		i, call := i, call
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = l.executeOne(ctx, call, rowys)
		}()
	}
	wg.Wait()

	cumulative := 0
	stop := false
	out := make([]Transcript, len(calls))
	for i, call := range calls {
		content := results[i]
		if len(content) > MaxToolResultBytes {
			content = fmt.Sprintf("error: tool result truncated (%d bytes exceeds %d byte limit)", len(content), MaxToolResultBytes)
			stop = true
		}
		cumulative += len(content)
		if cumulative > MaxTranscriptBytes {
			content = "error: transcript size budget exceeded, result omitted"
			stop = true
		}
		out[i] = Transcript{Role: RoleTool, ToolCallID: call.ID, ToolName: call.Name, Content: content}
	}
	return out, stop
}

func (l *Loop) executeOne(ctx context.Context, call ToolCall, rowys *rowysState) string {
	if isGmailRead(call.Name) {
		id, ok := messageIDFromArgs(call.Args)
		if !ok || !rowys.allows(id) {
			return rowysDeniedResult
		}
	}

	executor := l.Registry.resolve(call.Name)
	if executor == nil {
		return fmt.Sprintf("error: %v: %s", errNoExecutor, call.Name)
	}
	result, err := executor.Execute(ctx, call)
	if err != nil {
		return "error: " + err.Error()
	}
	if isGmailSearch(call.Name) {
		rowys.observeSearchResult(result)
	}
	return sanitizeToolOutput(result)
}

func isGmailRead(name string) bool   { return name == "gmail_read" }
func isGmailSearch(name string) bool { return name == "gmail_search" }

// flatten converts a transcript into plain user/assistant messages for the
// ChatComplete fallback surface: tool results
// become one user message per result, never merged.
func flatten(messages []Transcript) []Transcript {
	out := make([]Transcript, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			out = append(out, Transcript{Role: RoleUser, Content: m.Content})
		case RoleAssistant:
			out = append(out, Transcript{Role: RoleAssistant, Content: m.DerivedText})
		case RoleTool:
			out = append(out, Transcript{Role: RoleUser, Content: fmt.Sprintf("Tool result (%s): %s", m.ToolName, m.Content)})
		}
	}
	return out
}
