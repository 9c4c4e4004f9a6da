package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AutomationRun is one row per
// fired automation, carrying the prompt/response hashes used for
// observability without necessarily retaining the full payloads (governed
// by Automation.StorePayloads).
type AutomationRun struct {
	ID               string
	AutomationID     string
	DomainID         string
	TriggerType      string
	TriggerEvent     string
	TriggerData      string
	DedupeKey        string
	PromptHash       string
	PromptRendered   string
	ResponseHash     string
	LLMResponse      string
	ActionType       string
	ActionResult     string
	ActionExternalID string
	Status           string // pending | running | success | failed | skipped
	Error            string
	ErrorCode        string
	DurationMS       *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TryInsertRun inserts a pending run, enforcing the unique
// idx_automation_runs_dedupe index: if dedupeKey already
// has a row, the insert is rejected and (zero value, false, nil) is
// returned so the caller can record a duplicate skip instead of firing the
// automation twice for the same trigger occurrence.
func (s *Store) TryInsertRun(ctx context.Context, r AutomationRun) (AutomationRun, bool, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = "pending"
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO automation_runs (id, automation_id, domain_id, trigger_type, trigger_event, trigger_data, dedupe_key,
			prompt_hash, status, action_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AutomationID, r.DomainID, r.TriggerType, nullIfEmpty(r.TriggerEvent), nullIfEmpty(r.TriggerData), nullIfEmpty(r.DedupeKey),
		nullIfEmpty(r.PromptHash), r.Status, r.ActionType, fmtTime(r.CreatedAt), fmtTime(r.UpdatedAt))
	if isUniqueConstraint(err) {
		return AutomationRun{}, false, nil
	}
	if err != nil {
		return AutomationRun{}, false, err
	}
	return r, true, nil
}

// MarkRunRunning transitions a pending run to running.
func (s *Store) MarkRunRunning(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE automation_runs SET status='running', updated_at=? WHERE id=?`,
		fmtTime(time.Now().UTC()), id)
	return err
}

// FinalizeRun records the prompt/response and terminal status for a run
// started with TryInsertRun. storePayloads controls whether
// promptRendered/llmResponse are persisted verbatim or only their hashes.
// errorCode is the caller-classified error kind (e.g. "timeout",
// "crash_recovery", "provider"); callers with no error pass "".
func (s *Store) FinalizeRun(ctx context.Context, id string, status, promptRendered, promptHash, llmResponse, responseHash string, actionResult, actionExternalID string, runErr error, errorCode string, durationMS int64, storePayloads bool) error {
	now := time.Now().UTC()
	var errText, errCode any
	if runErr != nil {
		errText = runErr.Error()
		errCode = nullIfEmpty(errorCode)
	}
	var renderedCol, responseCol any
	if storePayloads {
		renderedCol, responseCol = nullIfEmpty(promptRendered), nullIfEmpty(llmResponse)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE automation_runs SET status=?, prompt_hash=?, prompt_rendered=?, response_hash=?, llm_response=?,
			action_result=?, action_external_id=?, error=?, error_code=?, duration_ms=?, updated_at=?
		WHERE id=?`,
		status, nullIfEmpty(promptHash), renderedCol, nullIfEmpty(responseHash), responseCol,
		nullIfEmpty(actionResult), nullIfEmpty(actionExternalID), errText, errCode, durationMS, fmtTime(now), id)
	return err
}

func (s *Store) RunsForAutomation(ctx context.Context, automationID string, limit int) ([]AutomationRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, automation_id, domain_id, trigger_type, trigger_event, trigger_data, dedupe_key, prompt_hash,
			prompt_rendered, response_hash, llm_response, action_type, action_result, action_external_id, status,
			error, error_code, duration_ms, created_at, updated_at
		FROM automation_runs WHERE automation_id=? ORDER BY created_at DESC LIMIT ?`, automationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAutomationRuns(rows)
}

// StaleRunningRuns returns runs stuck in status='running' past the staleness
// threshold, for the automation engine's crash-recovery sweep.
func (s *Store) StaleRunningRuns(ctx context.Context, staleBefore time.Time) ([]AutomationRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, automation_id, domain_id, trigger_type, trigger_event, trigger_data, dedupe_key, prompt_hash,
			prompt_rendered, response_hash, llm_response, action_type, action_result, action_external_id, status,
			error, error_code, duration_ms, created_at, updated_at
		FROM automation_runs WHERE status='running' AND updated_at < ?`, fmtTime(staleBefore))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAutomationRuns(rows)
}

// PruneRuns enforces the run-retention policy: delete runs older
// than retentionDays, and cap the number kept per automation at
// retentionPerRun (oldest first).
func (s *Store) PruneRuns(ctx context.Context, retentionDays, retentionPerRun int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM automation_runs WHERE created_at < ?`, fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	byAge, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	res, err = s.db.ExecContext(ctx, `
		DELETE FROM automation_runs
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY automation_id ORDER BY created_at DESC) AS rn
				FROM automation_runs
			) ranked WHERE ranked.rn > ?
		)`, retentionPerRun)
	if err != nil {
		return byAge, err
	}
	byCount, err := res.RowsAffected()
	return byAge + byCount, err
}

func scanAutomationRuns(rows *sql.Rows) ([]AutomationRun, error) {
	var out []AutomationRun
	for rows.Next() {
		r, err := scanAutomationRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanAutomationRun(row rowScanner) (AutomationRun, error) {
	var r AutomationRun
	var triggerEvent, triggerData, dedupeKey, promptHash, promptRendered, responseHash, llmResponse sql.NullString
	var actionResult, actionExternalID, errText, errCode sql.NullString
	var durationMS sql.NullInt64
	var createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.AutomationID, &r.DomainID, &r.TriggerType, &triggerEvent, &triggerData, &dedupeKey,
		&promptHash, &promptRendered, &responseHash, &llmResponse, &r.ActionType, &actionResult, &actionExternalID,
		&r.Status, &errText, &errCode, &durationMS, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AutomationRun{}, ErrNotFound
	}
	if err != nil {
		return AutomationRun{}, err
	}
	r.TriggerEvent, r.TriggerData, r.DedupeKey = triggerEvent.String, triggerData.String, dedupeKey.String
	r.PromptHash, r.PromptRendered, r.ResponseHash, r.LLMResponse = promptHash.String, promptRendered.String, responseHash.String, llmResponse.String
	r.ActionResult, r.ActionExternalID = actionResult.String, actionExternalID.String
	r.Error, r.ErrorCode = errText.String, errCode.String
	if durationMS.Valid {
		r.DurationMS = &durationMS.Int64
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return r, nil
}
