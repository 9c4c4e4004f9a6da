package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Decision is one logged decision record, as parsed from a decision block
// (internal/blocks).
type Decision struct {
	ID                   string
	DomainID             string
	SessionID            string
	DecisionID           string
	Decision             string
	Rationale            string
	Downside             string
	RevisitTrigger       string
	LinkedFiles          []string
	Status               string
	SupersedesDecisionID string
	Confidence           string
	Horizon              string
	ReversibilityClass   string
	Category             string
	Authority            string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (s *Store) InsertDecision(ctx context.Context, d Decision) (Decision, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = "active"
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	linked, err := json.Marshal(d.LinkedFiles)
	if err != nil {
		return Decision{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Decision{}, err
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO decisions (id, domain_id, session_id, decision_id, decision, rationale, downside, revisit_trigger,
			linked_files, status, supersedes_decision_id, confidence, horizon, reversibility_class, category, authority,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.DomainID, nullIfEmpty(d.SessionID), d.DecisionID, d.Decision, d.Rationale, nullIfEmpty(d.Downside), nullIfEmpty(d.RevisitTrigger),
		string(linked), d.Status, nullIfEmpty(d.SupersedesDecisionID), nullIfEmpty(d.Confidence), nullIfEmpty(d.Horizon),
		nullIfEmpty(d.ReversibilityClass), nullIfEmpty(d.Category), nullIfEmpty(d.Authority), fmtTime(d.CreatedAt), fmtTime(d.UpdatedAt))
	if err != nil {
		return Decision{}, err
	}
	// Superseding another decision flips the predecessor in the same
	// transaction so the active log never shows both.
	if d.SupersedesDecisionID != "" {
		if _, err := tx.ExecContext(ctx, `
			UPDATE decisions SET status='superseded', updated_at=? WHERE domain_id=? AND decision_id=? AND status='active'`,
			fmtTime(now), d.DomainID, d.SupersedesDecisionID); err != nil {
			return Decision{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// SupersedeDecision marks the decision status=superseded so the active
// decision log reflects only the latest revision.
func (s *Store) SupersedeDecision(ctx context.Context, domainID, decisionID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE decisions SET status='superseded', updated_at=? WHERE domain_id=? AND decision_id=? AND status='active'`,
		fmtTime(time.Now().UTC()), domainID, decisionID)
	return err
}

func (s *Store) ActiveDecisions(ctx context.Context, domainID string) ([]Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, session_id, decision_id, decision, rationale, downside, revisit_trigger,
			linked_files, status, supersedes_decision_id, confidence, horizon, reversibility_class, category, authority,
			created_at, updated_at
		FROM decisions WHERE domain_id=? AND status='active' ORDER BY created_at DESC`, domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDecision(row rowScanner) (Decision, error) {
	var d Decision
	var sessionID, downside, revisitTrigger, supersedes, confidence, horizon, reversibility, category, authority sql.NullString
	var linked, createdAt, updatedAt string
	err := row.Scan(&d.ID, &d.DomainID, &sessionID, &d.DecisionID, &d.Decision, &d.Rationale, &downside, &revisitTrigger,
		&linked, &d.Status, &supersedes, &confidence, &horizon, &reversibility, &category, &authority, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Decision{}, ErrNotFound
	}
	if err != nil {
		return Decision{}, err
	}
	if err := json.Unmarshal([]byte(linked), &d.LinkedFiles); err != nil {
		return Decision{}, err
	}
	d.SessionID, d.Downside, d.RevisitTrigger = sessionID.String, downside.String, revisitTrigger.String
	d.SupersedesDecisionID, d.Confidence, d.Horizon = supersedes.String, confidence.String, horizon.String
	d.ReversibilityClass, d.Category, d.Authority = reversibility.String, category.String, authority.String
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return d, nil
}

// GapFlag is one logged knowledge gap, as parsed from a gap-flag block.
type GapFlag struct {
	ID            string
	DomainID      string
	SessionID     string
	Category      string
	Description   string
	SourceMessage string
	Status        string
	ResolvedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s *Store) InsertGapFlag(ctx context.Context, g GapFlag) (GapFlag, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Status == "" {
		g.Status = "open"
	}
	now := time.Now().UTC()
	g.CreatedAt, g.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gap_flags (id, domain_id, session_id, category, description, source_message, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.DomainID, nullIfEmpty(g.SessionID), g.Category, g.Description, nullIfEmpty(g.SourceMessage), g.Status, fmtTime(g.CreatedAt), fmtTime(g.UpdatedAt))
	if err != nil {
		return GapFlag{}, err
	}
	return g, nil
}

// AcknowledgeGapFlag transitions an open flag to acknowledged.
func (s *Store) AcknowledgeGapFlag(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE gap_flags SET status='acknowledged', updated_at=? WHERE id=? AND status='open'`,
		fmtTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *Store) ResolveGapFlag(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE gap_flags SET status='resolved', resolved_at=?, updated_at=? WHERE id=? AND status IN ('open', 'acknowledged')`,
		fmtTime(now), fmtTime(now), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// ResolvedGapFlagsSince returns gap flags resolved at or after since, for
// domainstatus's "recently-resolved" section.
func (s *Store) ResolvedGapFlagsSince(ctx context.Context, domainID string, since time.Time) ([]GapFlag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, session_id, category, description, source_message, status, resolved_at, created_at, updated_at
		FROM gap_flags WHERE domain_id=? AND status='resolved' AND resolved_at >= ? ORDER BY resolved_at DESC`, domainID, fmtTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GapFlag
	for rows.Next() {
		g, err := scanGapFlag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) OpenGapFlags(ctx context.Context, domainID string) ([]GapFlag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, session_id, category, description, source_message, status, resolved_at, created_at, updated_at
		FROM gap_flags WHERE domain_id=? AND status='open' ORDER BY created_at`, domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GapFlag
	for rows.Next() {
		g, err := scanGapFlag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGapFlag(row rowScanner) (GapFlag, error) {
	var g GapFlag
	var sessionID, sourceMessage sql.NullString
	var resolvedAt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&g.ID, &g.DomainID, &sessionID, &g.Category, &g.Description, &sourceMessage, &g.Status, &resolvedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return GapFlag{}, ErrNotFound
	}
	if err != nil {
		return GapFlag{}, err
	}
	g.SessionID, g.SourceMessage = sessionID.String, sourceMessage.String
	if resolvedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, resolvedAt.String)
		g.ResolvedAt = &t
	}
	g.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	g.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return g, nil
}
