package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AdvisoryArtifact is one persisted strategic-analysis artifact
// (brainstorm, risk_assessment, scenario, strategic_review), stored with
// the fingerprint used for dedup.
type AdvisoryArtifact struct {
	ID            string
	DomainID      string
	SessionID     string
	Type          string
	Title         string
	SchemaVersion int
	Content       string
	Fingerprint   string
	Source        string
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InsertAdvisoryArtifact inserts the artifact, returning (artifact, true,
// nil) if the (domain_id, fingerprint) pair is new, or the stored artifact
// and false if a duplicate was filtered.
// It dedups against the full history; callers that need the
// dedup-window semantics use FindAdvisoryArtifactByFingerprintWithin plus
// InsertAdvisoryArtifactRaw directly (see internal/advisory.Repository).
func (s *Store) InsertAdvisoryArtifact(ctx context.Context, a AdvisoryArtifact) (AdvisoryArtifact, bool, error) {
	existing, err := s.findAdvisoryByFingerprint(ctx, a.DomainID, a.Fingerprint)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return AdvisoryArtifact{}, false, err
	}
	inserted, err := s.InsertAdvisoryArtifactRaw(ctx, a)
	if err != nil {
		return AdvisoryArtifact{}, false, err
	}
	return inserted, true, nil
}

// InsertAdvisoryArtifactRaw inserts the artifact unconditionally (no dedup
// check); it is the building block for repositories that perform their own
// dedup-window lookup first.
func (s *Store) InsertAdvisoryArtifactRaw(ctx context.Context, a AdvisoryArtifact) (AdvisoryArtifact, error) {
	return insertAdvisoryArtifact(ctx, s.db, a)
}

func insertAdvisoryArtifact(ctx context.Context, x execer, a AdvisoryArtifact) (AdvisoryArtifact, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = "active"
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	_, err := x.ExecContext(ctx, `
		INSERT INTO advisory_artifacts (id, domain_id, session_id, type, title, schema_version, content, fingerprint, source, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DomainID, nullIfEmpty(a.SessionID), a.Type, a.Title, a.SchemaVersion, a.Content, a.Fingerprint, a.Source, a.Status, fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt))
	if err != nil {
		return AdvisoryArtifact{}, err
	}
	return a, nil
}

// AdvisoryInsertOutcome is the result of InsertAdvisoryArtifactLimited: at
// most one of Created, Idempotent, or LimitHit is set.
type AdvisoryInsertOutcome struct {
	Artifact   AdvisoryArtifact
	Created    bool
	Idempotent bool
	LimitHit   string // "" | "hour" | "day"
}

// InsertAdvisoryArtifactLimited runs the hourly/daily COUNT(*) rate-limit
// checks, the dedup-window fingerprint lookup, and the insert inside one
// transaction, so the counts cannot go stale between check and insert.
func (s *Store) InsertAdvisoryArtifactLimited(ctx context.Context, a AdvisoryArtifact, hourSince, daySince time.Time, kHour, kDay int, dedupSince time.Time) (AdvisoryInsertOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AdvisoryInsertOutcome{}, err
	}
	defer tx.Rollback()

	count := func(since time.Time) (int, error) {
		var n int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM advisory_artifacts WHERE domain_id=? AND created_at >= ?`,
			a.DomainID, fmtTime(since)).Scan(&n)
		return n, err
	}

	if n, err := count(hourSince); err != nil {
		return AdvisoryInsertOutcome{}, err
	} else if n >= kHour {
		return AdvisoryInsertOutcome{LimitHit: "hour"}, nil
	}
	if n, err := count(daySince); err != nil {
		return AdvisoryInsertOutcome{}, err
	} else if n >= kDay {
		return AdvisoryInsertOutcome{LimitHit: "day"}, nil
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, domain_id, session_id, type, title, schema_version, content, fingerprint, source, status, created_at, updated_at
		FROM advisory_artifacts WHERE domain_id=? AND fingerprint=? AND created_at >= ?
		ORDER BY created_at DESC LIMIT 1`, a.DomainID, a.Fingerprint, fmtTime(dedupSince))
	existing, err := scanAdvisoryArtifact(row)
	if err == nil {
		return AdvisoryInsertOutcome{Artifact: existing, Idempotent: true}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return AdvisoryInsertOutcome{}, err
	}

	inserted, err := insertAdvisoryArtifact(ctx, tx, a)
	if err != nil {
		return AdvisoryInsertOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return AdvisoryInsertOutcome{}, err
	}
	return AdvisoryInsertOutcome{Artifact: inserted, Created: true}, nil
}

func (s *Store) findAdvisoryByFingerprint(ctx context.Context, domainID, fingerprint string) (AdvisoryArtifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, domain_id, session_id, type, title, schema_version, content, fingerprint, source, status, created_at, updated_at
		FROM advisory_artifacts WHERE domain_id=? AND fingerprint=?`, domainID, fingerprint)
	return scanAdvisoryArtifact(row)
}

// CountAdvisoryArtifactsSince supports the hourly/daily advisory rate
// limits.
func (s *Store) CountAdvisoryArtifactsSince(ctx context.Context, domainID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM advisory_artifacts WHERE domain_id=? AND created_at >= ?`, domainID, fmtTime(since)).Scan(&n)
	return n, err
}

func (s *Store) ActiveAdvisoryArtifacts(ctx context.Context, domainID string, limit int) ([]AdvisoryArtifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, session_id, type, title, schema_version, content, fingerprint, source, status, created_at, updated_at
		FROM advisory_artifacts WHERE domain_id=? AND status='active' ORDER BY created_at DESC LIMIT ?`, domainID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AdvisoryArtifact
	for rows.Next() {
		a, err := scanAdvisoryArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAdvisoryArtifact(row rowScanner) (AdvisoryArtifact, error) {
	var a AdvisoryArtifact
	var sessionID sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&a.ID, &a.DomainID, &sessionID, &a.Type, &a.Title, &a.SchemaVersion, &a.Content, &a.Fingerprint, &a.Source, &a.Status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AdvisoryArtifact{}, ErrNotFound
	}
	if err != nil {
		return AdvisoryArtifact{}, err
	}
	a.SessionID = sessionID.String
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return a, nil
}
