// Package promptrunner adapts an agentrt.Provider into the single-shot
// interfaces internal/automation and internal/mission depend on, so neither
// package needs to know about the tool-use loop or provider selection.
package promptrunner

import (
	"context"

	"github.com/quiet-coder-io/domainos/internal/agentrt"
)

// Runner turns a provider into automation.PromptRunner and
// mission.StreamFunc: a plain, non-streaming ChatComplete call with no tool
// offers. Background jobs never hand the model tools.
type Runner struct {
	Provider agentrt.Provider
}

// Run implements automation.PromptRunner.
func (r Runner) Run(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return r.Provider.ChatComplete(ctx, []agentrt.Transcript{{Role: agentrt.RoleUser, Content: userPrompt}}, systemPrompt)
}

// Stream implements mission.StreamFunc's signature. onChunk is invoked once
// with the full text: the underlying providers expose ChatComplete here
// rather than a token-delta channel, since mission rounds are judged on
// their final text, not rendered live.
func (r Runner) Stream(ctx context.Context, systemPrompt, userMessage string, onChunk func(string)) (string, error) {
	text, err := r.Provider.ChatComplete(ctx, []agentrt.Transcript{{Role: agentrt.RoleUser, Content: userMessage}}, systemPrompt)
	if err != nil {
		return "", err
	}
	if onChunk != nil {
		onChunk(text)
	}
	return text, nil
}
