package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookup methods when the requested row is absent.
var ErrNotFound = errors.New("store: not found")

// Domain is one knowledge-base domain and its agent settings.
type Domain struct {
	ID                 string
	Name               string
	KBPath             string
	Identity           string
	EscalationTriggers []string
	AllowGmail         bool
	ModelProvider      string
	ModelName          string
	ForceToolAttempt   bool
	SortOrder          int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (s *Store) CreateDomain(ctx context.Context, d Domain) (Domain, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	triggers, err := json.Marshal(d.EscalationTriggers)
	if err != nil {
		return Domain{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO domains (id, name, kb_path, identity, escalation_triggers, allow_gmail, model_provider, model_name, force_tool_attempt, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.KBPath, d.Identity, string(triggers), d.AllowGmail, nullIfEmpty(d.ModelProvider), nullIfEmpty(d.ModelName), d.ForceToolAttempt, d.SortOrder, fmtTime(d.CreatedAt), fmtTime(d.UpdatedAt))
	if err != nil {
		return Domain{}, err
	}
	return d, nil
}

func (s *Store) GetDomain(ctx context.Context, id string) (Domain, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, kb_path, identity, escalation_triggers, allow_gmail, model_provider, model_name, force_tool_attempt, sort_order, created_at, updated_at
		FROM domains WHERE id = ?`, id)
	return scanDomain(row)
}

func (s *Store) ListDomains(ctx context.Context) ([]Domain, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kb_path, identity, escalation_triggers, allow_gmail, model_provider, model_name, force_tool_attempt, sort_order, created_at, updated_at
		FROM domains ORDER BY sort_order, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) UpdateDomain(ctx context.Context, d Domain) error {
	triggers, err := json.Marshal(d.EscalationTriggers)
	if err != nil {
		return err
	}
	d.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE domains SET name=?, kb_path=?, identity=?, escalation_triggers=?, allow_gmail=?, model_provider=?, model_name=?, force_tool_attempt=?, sort_order=?, updated_at=?
		WHERE id=?`,
		d.Name, d.KBPath, d.Identity, string(triggers), d.AllowGmail, nullIfEmpty(d.ModelProvider), nullIfEmpty(d.ModelName), d.ForceToolAttempt, d.SortOrder, fmtTime(d.UpdatedAt), d.ID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *Store) DeleteDomain(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM domains WHERE id=?`, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// execer is the INSERT/UPDATE surface shared by *sql.DB and *sql.Tx, so a
// write helper can run standalone or inside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func scanDomain(row rowScanner) (Domain, error) {
	var d Domain
	var triggers string
	var modelProvider, modelName sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&d.ID, &d.Name, &d.KBPath, &d.Identity, &triggers, &d.AllowGmail, &modelProvider, &modelName, &d.ForceToolAttempt, &d.SortOrder, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Domain{}, ErrNotFound
	}
	if err != nil {
		return Domain{}, err
	}
	if err := json.Unmarshal([]byte(triggers), &d.EscalationTriggers); err != nil {
		return Domain{}, err
	}
	d.ModelProvider = modelProvider.String
	d.ModelName = modelName.String
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return d, nil
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
