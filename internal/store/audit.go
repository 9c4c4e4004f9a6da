package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one row in a domain's audit trail. The unique
// (domain_id, content_hash) index makes InsertAuditEntry
// idempotent: a repeated write of the same change is silently absorbed
// rather than appearing twice in the domain's audit trail.
type AuditEntry struct {
	ID                string
	DomainID          string
	SessionID         string
	AgentName         string
	FilePath          string
	ChangeDescription string
	ContentHash       string
	EventType         string
	Source            string
	CreatedAt         time.Time
}

// InsertAuditEntry inserts the entry, returning (entry, true, nil) if new or
// (existing entry, false, nil) if content_hash already exists for this
// domain.
func (s *Store) InsertAuditEntry(ctx context.Context, e AuditEntry) (AuditEntry, bool, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, domain_id, session_id, agent_name, file_path, change_description, content_hash, event_type, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DomainID, nullIfEmpty(e.SessionID), e.AgentName, e.FilePath, e.ChangeDescription, nullIfEmpty(e.ContentHash), e.EventType, e.Source, fmtTime(e.CreatedAt))
	if isUniqueConstraint(err) {
		existing, getErr := s.findAuditByHash(ctx, e.DomainID, e.ContentHash)
		return existing, false, getErr
	}
	if err != nil {
		return AuditEntry{}, false, err
	}
	return e, true, nil
}

func (s *Store) findAuditByHash(ctx context.Context, domainID, hash string) (AuditEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, domain_id, session_id, agent_name, file_path, change_description, content_hash, event_type, source, created_at
		FROM audit_entries WHERE domain_id=? AND content_hash=?`, domainID, hash)
	return scanAuditEntry(row)
}

func (s *Store) AuditSince(ctx context.Context, domainID string, since time.Time) ([]AuditEntry, error) {
	// A zero since means no lower bound; fmtTime would turn it into now.
	lowerBound := ""
	if !since.IsZero() {
		lowerBound = fmtTime(since)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, session_id, agent_name, file_path, change_description, content_hash, event_type, source, created_at
		FROM audit_entries WHERE domain_id=? AND created_at >= ? ORDER BY created_at DESC`, domainID, lowerBound)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanAuditEntry(row rowScanner) (AuditEntry, error) {
	var e AuditEntry
	var sessionID, contentHash sql.NullString
	var createdAt string
	err := row.Scan(&e.ID, &e.DomainID, &sessionID, &e.AgentName, &e.FilePath, &e.ChangeDescription, &contentHash, &e.EventType, &e.Source, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AuditEntry{}, ErrNotFound
	}
	if err != nil {
		return AuditEntry{}, err
	}
	e.SessionID = sessionID.String
	e.ContentHash = contentHash.String
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return e, nil
}

// isUniqueConstraint detects modernc.org/sqlite's UNIQUE constraint
// violation without importing its internal error type, matching on the
// SQLite error text the driver surfaces.
func isUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
