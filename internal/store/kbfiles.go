package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// KBFile is one tracked file inside a domain's knowledge base directory.
type KBFile struct {
	ID           string
	DomainID     string
	RelativePath string
	ContentHash  string
	SizeBytes    int64
	LastSyncedAt time.Time
	Tier         string
	TierSource   string
}

func (s *Store) UpsertKBFile(ctx context.Context, f KBFile) (KBFile, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.LastSyncedAt.IsZero() {
		f.LastSyncedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kb_files (id, domain_id, relative_path, content_hash, size_bytes, last_synced_at, tier, tier_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain_id, relative_path) DO UPDATE SET
			content_hash=excluded.content_hash, size_bytes=excluded.size_bytes,
			last_synced_at=excluded.last_synced_at, tier=excluded.tier, tier_source=excluded.tier_source`,
		f.ID, f.DomainID, f.RelativePath, f.ContentHash, f.SizeBytes, fmtTime(f.LastSyncedAt), f.Tier, f.TierSource)
	if err != nil {
		return KBFile{}, err
	}
	return f, nil
}

func (s *Store) ListKBFiles(ctx context.Context, domainID string) ([]KBFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, relative_path, content_hash, size_bytes, last_synced_at, tier, tier_source
		FROM kb_files WHERE domain_id = ? ORDER BY relative_path`, domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KBFile
	for rows.Next() {
		var f KBFile
		var lastSynced string
		if err := rows.Scan(&f.ID, &f.DomainID, &f.RelativePath, &f.ContentHash, &f.SizeBytes, &lastSynced, &f.Tier, &f.TierSource); err != nil {
			return nil, err
		}
		f.LastSyncedAt, _ = time.Parse(time.RFC3339Nano, lastSynced)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) DeleteKBFile(ctx context.Context, domainID, relativePath string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kb_files WHERE domain_id=? AND relative_path=?`, domainID, relativePath)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// Protocol is a per-domain reusable prompt fragment.
type Protocol struct {
	ID        string
	DomainID  string
	Name      string
	Content   string
	SortOrder int
}

func (s *Store) UpsertProtocol(ctx context.Context, p Protocol) (Protocol, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO protocols (id, domain_id, name, content, sort_order)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(domain_id, name) DO UPDATE SET content=excluded.content, sort_order=excluded.sort_order`,
		p.ID, p.DomainID, p.Name, p.Content, p.SortOrder)
	if err != nil {
		return Protocol{}, err
	}
	return p, nil
}

func (s *Store) ListProtocols(ctx context.Context, domainID string) ([]Protocol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, name, content, sort_order FROM protocols WHERE domain_id=? ORDER BY sort_order, name`, domainID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Protocol
	for rows.Next() {
		var p Protocol
		if err := rows.Scan(&p.ID, &p.DomainID, &p.Name, &p.Content, &p.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SharedProtocol is a cross-domain reusable prompt fragment.
type SharedProtocol struct {
	ID        string
	Name      string
	Content   string
	SortOrder int
	Priority  int
	IsEnabled bool
	Scope     string
}

func (s *Store) UpsertSharedProtocol(ctx context.Context, p SharedProtocol) (SharedProtocol, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Scope == "" {
		p.Scope = "global"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shared_protocols (id, name, content, sort_order, priority, is_enabled, scope)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, name) DO UPDATE SET content=excluded.content, sort_order=excluded.sort_order,
			priority=excluded.priority, is_enabled=excluded.is_enabled`,
		p.ID, p.Name, p.Content, p.SortOrder, p.Priority, p.IsEnabled, p.Scope)
	if err != nil {
		return SharedProtocol{}, err
	}
	return p, nil
}

func (s *Store) ListSharedProtocols(ctx context.Context, scope string) ([]SharedProtocol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, content, sort_order, priority, is_enabled, scope
		FROM shared_protocols WHERE scope=? AND is_enabled=1 ORDER BY priority DESC, sort_order`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SharedProtocol
	for rows.Next() {
		var p SharedProtocol
		if err := rows.Scan(&p.ID, &p.Name, &p.Content, &p.SortOrder, &p.Priority, &p.IsEnabled, &p.Scope); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
