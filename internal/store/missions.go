package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// MissionRun is one mission execution, content-addressed by
// inputs/context/prompt
// hashes so a repeated mission invocation with identical inputs can be
// recognized rather than silently re-run.
type MissionRun struct {
	ID          string
	MissionType string
	DomainID    string
	InputsHash  string
	ContextHash string
	PromptHash  string
	Status      string // pending | running | gated | cancelled | success | failed
	RawOutput   string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MissionAction is the per-action outcome within a mission run (one row
// per item in the mission's action plan).
type MissionAction struct {
	ID            string
	RunID         string
	ActionID      string
	ActionType    string
	ActionPayload string
	Status        string // pending | success | failed | skipped
	Result        string
	SortOrder     int
}

func (s *Store) CreateMissionRun(ctx context.Context, m MissionRun) (MissionRun, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = "pending"
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mission_runs (id, mission_type, domain_id, inputs_hash, context_hash, prompt_hash, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.MissionType, nullIfEmpty(m.DomainID), m.InputsHash, m.ContextHash, m.PromptHash, m.Status, fmtTime(m.CreatedAt), fmtTime(m.UpdatedAt))
	if err != nil {
		return MissionRun{}, err
	}
	return m, nil
}

// SetMissionRunRawOutput persists the raw LLM response for a run before any
// parsed item is written; the raw output always lands first.
func (s *Store) SetMissionRunRawOutput(ctx context.Context, id, rawOutput string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mission_runs SET raw_output=?, updated_at=? WHERE id=?`,
		nullIfEmpty(rawOutput), fmtTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// UpdateMissionRunStatus transitions a run's status without touching its
// raw_output/error columns, used for the gated/cancelled/success
// transitions that don't carry a new error message.
func (s *Store) UpdateMissionRunStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE mission_runs SET status=?, updated_at=? WHERE id=?`,
		status, fmtTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *Store) FinalizeMissionRun(ctx context.Context, id, status, rawOutput string, runErr error) error {
	var errText any
	if runErr != nil {
		errText = runErr.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE mission_runs SET status=?, raw_output=?, error=?, updated_at=? WHERE id=?`,
		status, nullIfEmpty(rawOutput), errText, fmtTime(time.Now().UTC()), id)
	return err
}

func (s *Store) GetMissionRun(ctx context.Context, id string) (MissionRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mission_type, domain_id, inputs_hash, context_hash, prompt_hash, status, raw_output, error, created_at, updated_at
		FROM mission_runs WHERE id=?`, id)
	var m MissionRun
	var domainID, rawOutput, errText sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&m.ID, &m.MissionType, &domainID, &m.InputsHash, &m.ContextHash, &m.PromptHash, &m.Status, &rawOutput, &errText, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return MissionRun{}, ErrNotFound
	}
	if err != nil {
		return MissionRun{}, err
	}
	m.DomainID, m.RawOutput, m.Error = domainID.String, rawOutput.String, errText.String
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return m, nil
}

func (s *Store) InsertMissionAction(ctx context.Context, a MissionAction) (MissionAction, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = "pending"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mission_actions (id, run_id, action_id, action_type, action_payload, status, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RunID, a.ActionID, a.ActionType, a.ActionPayload, a.Status, a.SortOrder)
	if err != nil {
		return MissionAction{}, err
	}
	return a, nil
}

func (s *Store) UpdateMissionActionResult(ctx context.Context, id, status, result string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE mission_actions SET status=?, result=? WHERE id=?`, status, nullIfEmpty(result), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *Store) MissionActionsForRun(ctx context.Context, runID string) ([]MissionAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, action_id, action_type, action_payload, status, result, sort_order
		FROM mission_actions WHERE run_id=? ORDER BY sort_order`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MissionAction
	for rows.Next() {
		var a MissionAction
		var result sql.NullString
		if err := rows.Scan(&a.ID, &a.RunID, &a.ActionID, &a.ActionType, &a.ActionPayload, &a.Status, &result, &a.SortOrder); err != nil {
			return nil, err
		}
		a.Result = result.String
		out = append(out, a)
	}
	return out, rows.Err()
}
