package automation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/quiet-coder-io/domainos/internal/config"
	"github.com/quiet-coder-io/domainos/internal/store"
)

// PromptRunner executes a rendered automation prompt against an LLM
// provider; it is the automation engine's only dependency on
// internal/agentrt/internal/llm, kept behind an interface so this package
// does not need to know about providers or tool-use rounds.
type PromptRunner interface {
	Run(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ActionDispatcher executes the side effect named by an Automation's
// actionType once the
// LLM response is in hand, returning a human-readable result and an
// optional external id (e.g. the created Gtask id).
type ActionDispatcher interface {
	Dispatch(ctx context.Context, actionType, actionConfig, llmResponse string) (result, externalID string, err error)
}

// Engine runs the tick-driven + event-driven automation scheduler.
type Engine struct {
	Store      *store.Store
	Runner     PromptRunner
	Dispatcher ActionDispatcher
	Config     config.AutomationConfig
	Now        func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// Tick performs one scheduler pass, expected once per minute from the
// host: collect due cron automations, gate duplicates, run each, and
// advance its next_run_at.
func (e *Engine) Tick(ctx context.Context) error {
	now := e.now()
	due, err := e.Store.DueCronAutomations(ctx, now)
	if err != nil {
		return fmt.Errorf("automation: list due automations: %w", err)
	}
	for _, a := range due {
		dedupeKey := ScheduleDedupeKey(a.ID, now)
		if err := e.fire(ctx, a, "cron", "", "", dedupeKey, now); err != nil {
			continue // a single automation's failure never stops the tick
		}
		if spec, perr := ParseCron(a.TriggerCron); perr == nil {
			if next, ok := NextCronMatch(spec, now); ok {
				_ = e.Store.AdvanceNextRun(ctx, a.ID, next)
			}
		}
	}
	return nil
}

// HandleEvent dispatches eventName to every enabled automation subscribed
// to it.
func (e *Engine) HandleEvent(ctx context.Context, eventName string, eventData map[string]interface{}) error {
	now := e.now()
	autos, err := e.Store.EventAutomations(ctx, eventName)
	if err != nil {
		return fmt.Errorf("automation: list event automations: %w", err)
	}
	triggerData, _ := json.Marshal(eventData)
	for _, a := range autos {
		dedupeKey := EventDedupeKey(a.ID, eventName, eventData, now)
		_ = e.fire(ctx, a, "event", eventName, string(triggerData), dedupeKey, now)
	}
	return nil
}

// fire implements tryInsertRun's atomic dedup gate, followed by execution
// and finalization.
func (e *Engine) fire(ctx context.Context, a store.Automation, triggerType, triggerEvent, triggerData, dedupeKey string, now time.Time) error {
	run, inserted, err := e.Store.TryInsertRun(ctx, store.AutomationRun{
		AutomationID: a.ID, DomainID: a.DomainID, TriggerType: triggerType,
		TriggerEvent: triggerEvent, TriggerData: triggerData, DedupeKey: dedupeKey,
		ActionType: a.ActionType,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return e.Store.RecordDuplicateSkip(ctx, a.ID)
	}
	e.execute(ctx, a, run, now)
	return nil
}

// execute runs the run's prompt and action outside any DB transaction, then
// finalizes inside the single FinalizeRun/RecordRunOutcome call pair.
func (e *Engine) execute(ctx context.Context, a store.Automation, run store.AutomationRun, now time.Time) {
	if err := e.Store.MarkRunRunning(ctx, run.ID); err != nil {
		return
	}
	start := time.Now()

	prompt := renderTemplate(a.PromptTemplate, map[string]string{
		"domainId":     a.DomainID,
		"automationId": a.ID,
		"triggerType":  run.TriggerType,
		"triggerEvent": run.TriggerEvent,
	})
	promptHash := sha256Hex(prompt)

	runCtx := ctx
	if e.Config.RunTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(e.Config.RunTimeoutSeconds)*time.Second)
		defer cancel()
	}

	var llmResponse, responseHash, actionResult, actionExternalID string
	runErr := func() error {
		resp, err := e.Runner.Run(runCtx, "", prompt)
		if err != nil {
			return err
		}
		llmResponse = resp
		responseHash = sha256Hex(resp)
		result, externalID, err := e.Dispatcher.Dispatch(runCtx, a.ActionType, a.ActionConfig, resp)
		if err != nil {
			return err
		}
		actionResult, actionExternalID = result, externalID
		return nil
	}()

	status := "success"
	errorCode := ""
	if runErr != nil {
		status = "failed"
		errorCode = "provider"
		if errors.Is(runErr, context.DeadlineExceeded) {
			errorCode = "timeout"
		}
	}
	duration := time.Since(start).Milliseconds()
	_ = e.Store.FinalizeRun(ctx, run.ID, status, prompt, promptHash, llmResponse, responseHash,
		actionResult, actionExternalID, runErr, errorCode, duration, a.StorePayloads)

	var cooldownUntil *time.Time
	if runErr != nil {
		c := now.Add(backoffCooldown(a.FailureStreak + 1))
		cooldownUntil = &c
	}
	_ = e.Store.RecordRunOutcome(ctx, a.ID, runErr, cooldownUntil)
}

// backoffCooldown is min(5min * 2^(streak-1), 24h).
func backoffCooldown(failureStreak int) time.Duration {
	if failureStreak < 1 {
		return 0
	}
	d := 5 * time.Minute
	for i := 1; i < failureStreak && d < 24*time.Hour; i++ {
		d *= 2
	}
	if d > 24*time.Hour {
		d = 24 * time.Hour
	}
	return d
}

// CleanupStaleRuns marks pending/running rows stuck past
// Config.StaleRunAfterMinutes as failed with
// error_code='crash_recovery'.
func (e *Engine) CleanupStaleRuns(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-time.Duration(e.Config.StaleRunAfterMinutes) * time.Minute)
	stale, err := e.Store.StaleRunningRuns(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, r := range stale {
		_ = e.Store.FinalizeRun(ctx, r.ID, "failed", "", r.PromptHash, "", r.ResponseHash,
			"", "", crashRecoveryError{}, "crash_recovery", 0, false)
	}
	return len(stale), nil
}

// RetentionCleanup deletes automation_runs rows beyond Config.RetentionDays
// and Config.RetentionPerRun.
func (e *Engine) RetentionCleanup(ctx context.Context) (int64, error) {
	return e.Store.PruneRuns(ctx, e.Config.RetentionDays, e.Config.RetentionPerRun)
}

type crashRecoveryError struct{}

func (crashRecoveryError) Error() string { return "crash_recovery" }

var templateVar = regexp.MustCompile(`\{\{(\w+)\}\}`)

// renderTemplate substitutes {{key}} placeholders; it is a deliberately
// minimal substitution, not a templating engine.
func renderTemplate(tmpl string, vars map[string]string) string {
	return templateVar.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := templateVar.FindStringSubmatch(m)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return m
	})
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
