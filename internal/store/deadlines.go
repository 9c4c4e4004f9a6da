package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Deadline is one tracked due date, surfaced by domainstatus's
// overdue/upcoming windows.
type Deadline struct {
	ID           string
	DomainID     string
	Text         string
	DueDate      time.Time
	Priority     int
	Status       string
	Source       string
	SourceRef    string
	SnoozedUntil *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s *Store) InsertDeadline(ctx context.Context, d Deadline) (Deadline, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = "active"
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deadlines (id, domain_id, text, due_date, priority, status, source, source_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.DomainID, d.Text, fmtTime(d.DueDate), d.Priority, d.Status, d.Source, nullIfEmpty(d.SourceRef), fmtTime(d.CreatedAt), fmtTime(d.UpdatedAt))
	if err != nil {
		return Deadline{}, err
	}
	return d, nil
}

func (s *Store) SnoozeDeadline(ctx context.Context, id string, until time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deadlines SET status='snoozed', snoozed_until=?, updated_at=? WHERE id=? AND status='active'`,
		fmtTime(until), fmtTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *Store) CompleteDeadline(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE deadlines SET status='completed', completed_at=?, updated_at=? WHERE id=? AND status='active'`,
		fmtTime(now), fmtTime(now), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *Store) CancelDeadline(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE deadlines SET status='cancelled', cancelled_at=?, updated_at=? WHERE id=? AND status='active'`,
		fmtTime(now), fmtTime(now), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// ActiveDeadlines returns deadlines with status 'active', ordered by due
// date, for domainstatus's overdue/upcoming classification; snoozed,
// completed and cancelled deadlines are excluded.
func (s *Store) ActiveDeadlines(ctx context.Context, domainID string) ([]Deadline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, text, due_date, priority, status, source, source_ref, snoozed_until, completed_at, cancelled_at, created_at, updated_at
		FROM deadlines WHERE domain_id=? AND status='active' ORDER BY due_date`, domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Deadline
	for rows.Next() {
		d, err := scanDeadline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDeadline(row rowScanner) (Deadline, error) {
	var d Deadline
	var sourceRef, snoozedUntil, completedAt, cancelledAt sql.NullString
	var dueDate, createdAt, updatedAt string
	err := row.Scan(&d.ID, &d.DomainID, &d.Text, &dueDate, &d.Priority, &d.Status, &d.Source, &sourceRef, &snoozedUntil, &completedAt, &cancelledAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Deadline{}, ErrNotFound
	}
	if err != nil {
		return Deadline{}, err
	}
	d.SourceRef = sourceRef.String
	d.DueDate, _ = time.Parse(time.RFC3339Nano, dueDate)
	if snoozedUntil.Valid {
		t, _ := time.Parse(time.RFC3339Nano, snoozedUntil.String)
		d.SnoozedUntil = &t
	}
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
		d.CompletedAt = &t
	}
	if cancelledAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, cancelledAt.String)
		d.CancelledAt = &t
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return d, nil
}

// DomainRelationship is a directed sibling-domain edge, used by
// portfolio's cross-domain alerts.
type DomainRelationship struct {
	ID               string
	DomainID         string
	SiblingDomainID  string
	RelationshipType string
	DependencyType   string
	Description      string
}

func (s *Store) InsertDomainRelationship(ctx context.Context, r DomainRelationship) (DomainRelationship, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domain_relationships (id, domain_id, sibling_domain_id, relationship_type, dependency_type, description)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.DomainID, r.SiblingDomainID, r.RelationshipType, r.DependencyType, nullIfEmpty(r.Description))
	if err != nil {
		return DomainRelationship{}, err
	}
	return r, nil
}

func (s *Store) DomainRelationships(ctx context.Context, domainID string) ([]DomainRelationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, sibling_domain_id, relationship_type, dependency_type, description
		FROM domain_relationships WHERE domain_id=?`, domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DomainRelationship
	for rows.Next() {
		var r DomainRelationship
		var desc sql.NullString
		if err := rows.Scan(&r.ID, &r.DomainID, &r.SiblingDomainID, &r.RelationshipType, &r.DependencyType, &desc); err != nil {
			return nil, err
		}
		r.Description = desc.String
		out = append(out, r)
	}
	return out, rows.Err()
}
