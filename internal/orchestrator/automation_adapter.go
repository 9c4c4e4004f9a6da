package orchestrator

import (
	"context"
	"fmt"
)

// EventHandler is the subset of internal/automation.Engine this adapter
// depends on, kept as an interface so this package never imports
// internal/automation directly (mirrors internal/automation.PromptRunner's
// own interface-behind-package split).
type EventHandler interface {
	HandleEvent(ctx context.Context, eventName string, eventData map[string]interface{}) error
}

// EventRunner adapts an EventHandler (internal/automation.Engine in
// production) to the orchestrator.Runner interface HandleCommandMessage
// expects, so a Kafka CommandEnvelope becomes a DomainOS automation event:
// the envelope's Workflow field names the event, Attrs is the event
// payload. This reaches the event-driven dispatch path over the wire
// instead of only from in-process callers.
type EventRunner struct {
	Handler EventHandler
}

// Execute implements Runner by forwarding to Handler.HandleEvent. The
// publish callback is invoked once with a best-effort acknowledgement
// since automation runs have no intermediate per-step results to stream.
func (r EventRunner) Execute(ctx context.Context, workflow string, attrs map[string]any, publish func(ctx context.Context, stepID string, payload []byte) error) (map[string]any, error) {
	if err := r.Handler.HandleEvent(ctx, workflow, attrs); err != nil {
		return nil, fmt.Errorf("automation event %q: %w", workflow, err)
	}
	if publish != nil {
		_ = publish(ctx, "dispatched", []byte(fmt.Sprintf("event %q dispatched to automation engine", workflow)))
	}
	return map[string]any{"event": workflow, "dispatched": true}, nil
}
