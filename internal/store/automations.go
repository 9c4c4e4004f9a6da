package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Automation is a cron- or event-triggered prompt template bound to an
// action.
type Automation struct {
	ID                 string
	DomainID           string
	Name               string
	TriggerType        string // "cron" | "event"
	TriggerCron        string
	TriggerEvent       string
	PromptTemplate     string
	ActionType         string
	ActionConfig       string // opaque JSON, interpreted by the action dispatcher
	Enabled            bool
	CatchUpEnabled     bool
	StorePayloads      bool
	DeadlineWindowDays *int
	NextRunAt          *time.Time
	FailureStreak      int
	CooldownUntil      *time.Time
	RunCount           int
	DuplicateSkipCount int
	LastDuplicateAt    *time.Time
	LastError          string
	LastRunAt          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (s *Store) CreateAutomation(ctx context.Context, a Automation) (Automation, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO automations (id, domain_id, name, trigger_type, trigger_cron, trigger_event, prompt_template,
			action_type, action_config, enabled, catch_up_enabled, store_payloads, deadline_window_days, next_run_at,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DomainID, a.Name, a.TriggerType, nullIfEmpty(a.TriggerCron), nullIfEmpty(a.TriggerEvent), a.PromptTemplate,
		a.ActionType, a.ActionConfig, a.Enabled, a.CatchUpEnabled, a.StorePayloads, nullableInt(a.DeadlineWindowDays), nullableTime(a.NextRunAt),
		fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt))
	if err != nil {
		return Automation{}, err
	}
	return a, nil
}

// DueCronAutomations returns enabled, cron-triggered automations whose
// next_run_at has passed and whose cooldown
// has elapsed.
func (s *Store) DueCronAutomations(ctx context.Context, now time.Time) ([]Automation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, name, trigger_type, trigger_cron, trigger_event, prompt_template, action_type, action_config,
			enabled, catch_up_enabled, store_payloads, deadline_window_days, next_run_at, failure_streak, cooldown_until,
			run_count, duplicate_skip_count, last_duplicate_at, last_error, last_run_at, created_at, updated_at
		FROM automations
		WHERE enabled=1 AND trigger_type='cron' AND next_run_at IS NOT NULL AND next_run_at <= ?
			AND (cooldown_until IS NULL OR cooldown_until <= ?)
		ORDER BY next_run_at`, fmtTime(now), fmtTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAutomations(rows)
}

// EventAutomations returns enabled, event-triggered automations matching
// eventName, for the automation engine's event bus subscriber.
func (s *Store) EventAutomations(ctx context.Context, eventName string) ([]Automation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, name, trigger_type, trigger_cron, trigger_event, prompt_template, action_type, action_config,
			enabled, catch_up_enabled, store_payloads, deadline_window_days, next_run_at, failure_streak, cooldown_until,
			run_count, duplicate_skip_count, last_duplicate_at, last_error, last_run_at, created_at, updated_at
		FROM automations
		WHERE enabled=1 AND trigger_type='event' AND trigger_event=?
			AND (cooldown_until IS NULL OR cooldown_until <= ?)`, eventName, fmtTime(time.Now().UTC()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAutomations(rows)
}

func (s *Store) GetAutomation(ctx context.Context, id string) (Automation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, domain_id, name, trigger_type, trigger_cron, trigger_event, prompt_template, action_type, action_config,
			enabled, catch_up_enabled, store_payloads, deadline_window_days, next_run_at, failure_streak, cooldown_until,
			run_count, duplicate_skip_count, last_duplicate_at, last_error, last_run_at, created_at, updated_at
		FROM automations WHERE id=?`, id)
	return scanAutomation(row)
}

// AdvanceNextRun sets next_run_at after a cron automation fires.
func (s *Store) AdvanceNextRun(ctx context.Context, id string, next time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE automations SET next_run_at=?, updated_at=? WHERE id=?`,
		fmtTime(next), fmtTime(time.Now().UTC()), id)
	return err
}

// RecordRunOutcome updates the bookkeeping fields after one run completes:
// run_count/last_run_at always advance; failure_streak and cooldown_until
// implement the failure backoff (consecutive failures push the
// automation into a cooldown window before it is attempted again).
func (s *Store) RecordRunOutcome(ctx context.Context, id string, runErr error, cooldownUntil *time.Time) error {
	now := time.Now().UTC()
	if runErr != nil {
		_, err := s.db.ExecContext(ctx, `
			UPDATE automations SET run_count=run_count+1, last_run_at=?, failure_streak=failure_streak+1,
				cooldown_until=?, last_error=?, updated_at=? WHERE id=?`,
			fmtTime(now), nullableTime(cooldownUntil), runErr.Error(), fmtTime(now), id)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE automations SET run_count=run_count+1, last_run_at=?, failure_streak=0, cooldown_until=NULL,
			last_error=NULL, updated_at=? WHERE id=?`, fmtTime(now), fmtTime(now), id)
	return err
}

// RecordDuplicateSkip bumps duplicate_skip_count when tryInsertRun rejects a
// run for an existing dedupe_key.
func (s *Store) RecordDuplicateSkip(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE automations SET duplicate_skip_count=duplicate_skip_count+1, last_duplicate_at=?, updated_at=? WHERE id=?`,
		fmtTime(now), fmtTime(now), id)
	return err
}

func (s *Store) SetAutomationEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE automations SET enabled=?, updated_at=? WHERE id=?`, enabled, fmtTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func scanAutomations(rows *sql.Rows) ([]Automation, error) {
	var out []Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAutomation(row rowScanner) (Automation, error) {
	var a Automation
	var triggerCron, triggerEvent, lastError sql.NullString
	var deadlineWindowDays sql.NullInt64
	var nextRunAt, cooldownUntil, lastDuplicateAt, lastRunAt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&a.ID, &a.DomainID, &a.Name, &a.TriggerType, &triggerCron, &triggerEvent, &a.PromptTemplate,
		&a.ActionType, &a.ActionConfig, &a.Enabled, &a.CatchUpEnabled, &a.StorePayloads, &deadlineWindowDays, &nextRunAt,
		&a.FailureStreak, &cooldownUntil, &a.RunCount, &a.DuplicateSkipCount, &lastDuplicateAt, &lastError, &lastRunAt,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Automation{}, ErrNotFound
	}
	if err != nil {
		return Automation{}, err
	}
	a.TriggerCron, a.TriggerEvent, a.LastError = triggerCron.String, triggerEvent.String, lastError.String
	if deadlineWindowDays.Valid {
		v := int(deadlineWindowDays.Int64)
		a.DeadlineWindowDays = &v
	}
	a.NextRunAt = parseNullTime(nextRunAt)
	a.CooldownUntil = parseNullTime(cooldownUntil)
	a.LastDuplicateAt = parseNullTime(lastDuplicateAt)
	a.LastRunAt = parseNullTime(lastRunAt)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return a, nil
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
