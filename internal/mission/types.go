// Package mission implements the mission runner's 10-step lifecycle: a
// declarative, possibly multi-step operation (portfolio briefing,
// loan-review, or any future mission type) with an inputs
// schema, a context builder, a prompt builder, an optional approval gate,
// and a set of side-effect actions (create_deadline, draft_email,
// notification). The lifecycle is a staged pipeline: validate, parallel
// context assembly via errgroup, gate, fulfill. It borrows
// internal/automation.Engine's PromptRunner/Dispatcher
// interface-behind-package idiom for keeping this package ignorant of
// internal/agentrt/internal/llm specifics.
package mission

import (
	"context"
	"errors"
	"time"

	"github.com/quiet-coder-io/domainos/internal/store"
)

// ErrGateRequired is returned by (*Runner).Start when the mission's gate
// predicate demands human approval before any action executes; the run is
// left in status=gated and Decide must be called to resume it.
var ErrGateRequired = errors.New("mission: gate required, awaiting decision")

// ErrNotGated is returned by Decide when the target run is not currently
// awaiting a gate decision.
var ErrNotGated = errors.New("mission: run is not gated")

// ErrUnknownMission is returned when Start names a mission type that has
// not been registered.
var ErrUnknownMission = errors.New("mission: unknown mission type")

// ErrUnknownAction is returned at gate time when a parsed action references
// an actionId/actionType the mission definition never declared.
var ErrUnknownAction = errors.New("mission: action not declared by mission definition")

// ParsedItem is one output item a mission-type-registered parser extracts
// from the raw LLM response. The raw output is always persisted first,
// then each parsed item.
type ParsedItem struct {
	ActionID      string
	ActionType    string
	ActionPayload string
}

// Definition is a registered mission type: its inputs schema/defaults,
// context builder, prompt builder, output parser, and declared action
// types.
type Definition struct {
	Type string

	// ValidateInputs checks raw inputs against the mission's parameter
	// schema and returns the input set with defaults applied (step 1).
	ValidateInputs func(inputs map[string]any) (map[string]any, error)

	// RequiresGate reports whether a parsed item needs an approval gate
	// before action execution (step 8). Missions with no side-effect
	// actions (e.g. a read-only briefing) return false unconditionally.
	RequiresGate func(items []ParsedItem) bool

	// BuildContext assembles mission-specific (or default
	// portfolio-briefing) context for prompt construction (step 3).
	BuildContext func(ctx context.Context, domain store.Domain, inputs map[string]any) (map[string]any, error)

	// BuildPrompt renders the system and user prompts from the assembled
	// context (step 4).
	BuildPrompt func(domain store.Domain, inputs, missionContext map[string]any) (systemPrompt, userPrompt string, err error)

	// ParseOutput extracts ParsedItems from the raw LLM response (step 7).
	ParseOutput func(rawOutput string) ([]ParsedItem, error)

	// Actions maps a declared actionType to its executor (step 9).
	Actions map[string]ActionExecutor
}

// ActionExecutor performs one mission action's side effect (create_deadline,
// draft_email, notification, ...) once a gated action is approved.
type ActionExecutor interface {
	Execute(ctx context.Context, domain store.Domain, action store.MissionAction) (result string, err error)
}

// ActionExecutorFunc adapts a function to ActionExecutor.
type ActionExecutorFunc func(ctx context.Context, domain store.Domain, action store.MissionAction) (string, error)

func (f ActionExecutorFunc) Execute(ctx context.Context, domain store.Domain, action store.MissionAction) (string, error) {
	return f(ctx, domain, action)
}

// StreamFunc is the Runner's only dependency on the LLM layer: streaming a
// single completion with cooperative cancellation.
type StreamFunc func(ctx context.Context, systemPrompt, userMessage string, onChunk func(string)) (string, error)

// Registry holds mission definitions by type.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry builds an empty mission registry.
func NewRegistry() *Registry {
	return &Registry{defs: map[string]Definition{}}
}

// Register adds or replaces a mission definition.
func (r *Registry) Register(d Definition) {
	if r.defs == nil {
		r.defs = map[string]Definition{}
	}
	r.defs[d.Type] = d
}

// Get returns the definition for missionType, or false if unregistered.
func (r *Registry) Get(missionType string) (Definition, bool) {
	d, ok := r.defs[missionType]
	return d, ok
}

var timeNow = time.Now
