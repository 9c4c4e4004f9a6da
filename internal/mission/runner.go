package mission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/quiet-coder-io/domainos/internal/normalize"
	"github.com/quiet-coder-io/domainos/internal/store"
)

// DefaultRoundTimeout bounds one LLM round.
const DefaultRoundTimeout = 120 * time.Second

// Runner drives the mission lifecycle against a Registry of
// mission Definitions, a Store for persistence, and a StreamFunc for the
// actual LLM call; the Runner itself never talks to a provider directly,
// mirroring internal/automation.Engine's PromptRunner-interface split.
type Runner struct {
	Store    *store.Store
	Registry *Registry
	Stream   StreamFunc

	// RoundTimeout overrides DefaultRoundTimeout when set.
	RoundTimeout time.Duration
	Now          func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now().UTC()
}

func (r *Runner) roundTimeout() time.Duration {
	if r.RoundTimeout > 0 {
		return r.RoundTimeout
	}
	return DefaultRoundTimeout
}

func promptHash(system, user string) string {
	sum := sha256.Sum256([]byte(system + "\n---\n" + user))
	return hex.EncodeToString(sum[:])
}

func (r *Runner) audit(ctx context.Context, domainID, eventType, description, dedupeSuffix string) error {
	sum := sha256.Sum256([]byte(eventType + "|" + dedupeSuffix))
	_, _, err := r.Store.InsertAuditEntry(ctx, store.AuditEntry{
		DomainID:          domainID,
		AgentName:         "mission-runner",
		ChangeDescription: description,
		ContentHash:       hex.EncodeToString(sum[:]),
		EventType:         eventType,
		Source:            "mission",
		CreatedAt:         r.now(),
	})
	return err
}

// Start runs steps 1-9 of the mission lifecycle for missionType against
// domain with the given raw inputs. When the mission gates on the parsed
// output it returns the run in status=gated and ErrGateRequired; the
// caller resumes with Decide. A fully-automatic mission (no actions, or a
// gate predicate that never triggers) returns the run already finalized.
func (r *Runner) Start(ctx context.Context, domain store.Domain, missionType string, rawInputs map[string]any) (store.MissionRun, error) {
	def, ok := r.Registry.Get(missionType)
	if !ok {
		return store.MissionRun{}, fmt.Errorf("%w: %q", ErrUnknownMission, missionType)
	}

	// Step 1: validate inputs, apply defaults.
	inputs := rawInputs
	if def.ValidateInputs != nil {
		validated, err := def.ValidateInputs(rawInputs)
		if err != nil {
			return store.MissionRun{}, fmt.Errorf("mission: invalid inputs: %w", err)
		}
		inputs = validated
	}

	// Step 2: domain-association permission. A mission input that names an
	// explicit domainId must match the domain it's being run against.
	if id, ok := inputs["domainId"].(string); ok && id != "" && id != domain.ID {
		return store.MissionRun{}, fmt.Errorf("mission: inputs.domainId %q does not match domain %q", id, domain.ID)
	}

	// Step 3: assemble context; compute inputsHash/contextHash.
	buildContext := def.BuildContext
	if buildContext == nil {
		buildContext = DefaultPortfolioBriefingContext(r.Store)
	}
	missionContext, err := buildContext(ctx, domain, inputs)
	if err != nil {
		return store.MissionRun{}, fmt.Errorf("mission: build context: %w", err)
	}
	inputsHash := normalize.StableHash(inputs)
	contextHash := normalize.StableHash(missionContext)

	// Step 4: build prompts; compute promptHash.
	if def.BuildPrompt == nil {
		return store.MissionRun{}, errors.New("mission: definition has no BuildPrompt")
	}
	systemPrompt, userPrompt, err := def.BuildPrompt(domain, inputs, missionContext)
	if err != nil {
		return store.MissionRun{}, fmt.Errorf("mission: build prompt: %w", err)
	}
	pHash := promptHash(systemPrompt, userPrompt)

	// Step 5: create run row, status=pending; audit mission_run_started.
	run, err := r.Store.CreateMissionRun(ctx, store.MissionRun{
		MissionType: missionType,
		DomainID:    domain.ID,
		InputsHash:  inputsHash,
		ContextHash: contextHash,
		PromptHash:  pHash,
		Status:      "pending",
	})
	if err != nil {
		return store.MissionRun{}, fmt.Errorf("mission: create run: %w", err)
	}
	if err := r.audit(ctx, domain.ID, "mission_run_started", fmt.Sprintf("mission %s started", missionType), run.ID); err != nil {
		return run, fmt.Errorf("mission: audit run started: %w", err)
	}

	// Step 6: stream the LLM; cancellation flips status to cancelled.
	roundCtx, cancel := context.WithTimeout(ctx, r.roundTimeout())
	defer cancel()

	if r.Stream == nil {
		return run, errors.New("mission: runner has no Stream function configured")
	}
	raw, streamErr := r.Stream(roundCtx, systemPrompt, userPrompt, func(string) {})
	if streamErr != nil {
		if errors.Is(roundCtx.Err(), context.Canceled) {
			_ = r.Store.UpdateMissionRunStatus(ctx, run.ID, "cancelled")
			run.Status = "cancelled"
			return run, streamErr
		}
		status := "failed"
		if errors.Is(roundCtx.Err(), context.DeadlineExceeded) {
			streamErr = fmt.Errorf("timeout: %w", streamErr)
		}
		_ = r.Store.FinalizeMissionRun(ctx, run.ID, status, "", streamErr)
		run.Status = status
		run.Error = streamErr.Error()
		return run, streamErr
	}

	// Step 7: persist raw output first, then each parsed item.
	if err := r.Store.SetMissionRunRawOutput(ctx, run.ID, raw); err != nil {
		return run, fmt.Errorf("mission: persist raw output: %w", err)
	}
	run.RawOutput = raw

	var items []ParsedItem
	if def.ParseOutput != nil {
		items, err = def.ParseOutput(raw)
		if err != nil {
			_ = r.Store.FinalizeMissionRun(ctx, run.ID, "failed", raw, err)
			run.Status, run.Error = "failed", err.Error()
			return run, fmt.Errorf("mission: parse output: %w", err)
		}
	}

	for i, item := range items {
		if _, err := r.Store.InsertMissionAction(ctx, store.MissionAction{
			RunID:         run.ID,
			ActionID:      item.ActionID,
			ActionType:    item.ActionType,
			ActionPayload: item.ActionPayload,
			Status:        "pending",
			SortOrder:     i,
		}); err != nil {
			return run, fmt.Errorf("mission: insert action %s: %w", item.ActionID, err)
		}
	}

	// Step 8: gate evaluation.
	gated := len(items) > 0 && def.RequiresGate != nil && def.RequiresGate(items)
	if gated {
		for _, item := range items {
			if _, ok := def.Actions[item.ActionType]; !ok {
				failErr := fmt.Errorf("%w: actionType %q (action %q)", ErrUnknownAction, item.ActionType, item.ActionID)
				_ = r.Store.FinalizeMissionRun(ctx, run.ID, "failed", raw, failErr)
				run.Status, run.Error = "failed", failErr.Error()
				return run, failErr
			}
		}
		if err := r.Store.UpdateMissionRunStatus(ctx, run.ID, "gated"); err != nil {
			return run, fmt.Errorf("mission: set gated: %w", err)
		}
		run.Status = "gated"
		if err := r.audit(ctx, domain.ID, "gate_triggered", fmt.Sprintf("mission %s gated with %d pending action(s)", missionType, len(items)), run.ID); err != nil {
			return run, fmt.Errorf("mission: audit gate triggered: %w", err)
		}
		return run, ErrGateRequired
	}

	// No gate: auto-execute any actions, then finalize.
	if len(items) > 0 {
		if err := r.executeActions(ctx, domain, def, run.ID); err != nil {
			return run, err
		}
	}
	if err := r.finalizeSuccess(ctx, domain.ID, run.ID, missionType); err != nil {
		return run, err
	}
	run.Status = "success"
	return run, nil
}

// Decide resumes a gated run (step 9-10): reject skips all pending actions,
// approve executes them in order, then the run is finalized either way.
func (r *Runner) Decide(ctx context.Context, domain store.Domain, runID string, approve bool) (store.MissionRun, error) {
	run, err := r.Store.GetMissionRun(ctx, runID)
	if err != nil {
		return store.MissionRun{}, fmt.Errorf("mission: get run: %w", err)
	}
	if run.Status != "gated" {
		return run, ErrNotGated
	}

	def, ok := r.Registry.Get(run.MissionType)
	if !ok {
		return run, fmt.Errorf("%w: %q", ErrUnknownMission, run.MissionType)
	}

	if !approve {
		actions, err := r.Store.MissionActionsForRun(ctx, runID)
		if err != nil {
			return run, fmt.Errorf("mission: list actions: %w", err)
		}
		for _, a := range actions {
			if a.Status != "pending" {
				continue
			}
			if err := r.Store.UpdateMissionActionResult(ctx, a.ID, "skipped", ""); err != nil {
				return run, fmt.Errorf("mission: skip action %s: %w", a.ActionID, err)
			}
		}
	} else {
		if err := r.executeActions(ctx, domain, def, runID); err != nil {
			return run, err
		}
	}

	if err := r.finalizeSuccess(ctx, domain.ID, runID, run.MissionType); err != nil {
		return run, err
	}
	run.Status = "success"
	return run, nil
}

// executeActions runs every pending action for runID in sort_order,
// updating each action's status to success/failed as it completes and
// auditing each execution.
func (r *Runner) executeActions(ctx context.Context, domain store.Domain, def Definition, runID string) error {
	actions, err := r.Store.MissionActionsForRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("mission: list actions: %w", err)
	}
	for _, a := range actions {
		if a.Status != "pending" {
			continue
		}
		executor, ok := def.Actions[a.ActionType]
		if !ok {
			_ = r.Store.UpdateMissionActionResult(ctx, a.ID, "failed", fmt.Sprintf("no executor for actionType %q", a.ActionType))
			continue
		}
		result, execErr := executor.Execute(ctx, domain, a)
		status := "success"
		if execErr != nil {
			status = "failed"
			result = execErr.Error()
		}
		if err := r.Store.UpdateMissionActionResult(ctx, a.ID, status, result); err != nil {
			return fmt.Errorf("mission: record action %s result: %w", a.ActionID, err)
		}
		if err := r.audit(ctx, domain.ID, "mission_action_executed", fmt.Sprintf("action %s (%s) %s", a.ActionID, a.ActionType, status), a.ID); err != nil {
			return fmt.Errorf("mission: audit action executed: %w", err)
		}
	}
	return nil
}

func (r *Runner) finalizeSuccess(ctx context.Context, domainID, runID, missionType string) error {
	if err := r.Store.UpdateMissionRunStatus(ctx, runID, "success"); err != nil {
		return fmt.Errorf("mission: finalize: %w", err)
	}
	return r.audit(ctx, domainID, "run_complete", fmt.Sprintf("mission %s completed", missionType), runID)
}
