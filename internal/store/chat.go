package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/quiet-coder-io/domainos/internal/normalize"
)

// ChatMessage is one persisted chat transcript row.
type ChatMessage struct {
	ID        string
	DomainID  string
	Role      string
	Content   string
	Status    string
	Metadata  map[string]any
	CreatedAt time.Time
}

func (s *Store) AppendChatMessage(ctx context.Context, m ChatMessage) (ChatMessage, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return ChatMessage{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO chat_messages (id, domain_id, role, content, status, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.DomainID, m.Role, m.Content, nullIfEmpty(m.Status), string(meta), fmtTime(m.CreatedAt))
	if err != nil {
		return ChatMessage{}, err
	}
	return m, nil
}

// RecentChatMessages returns up to limit messages for domainID, newest first
// per the idx_chat_messages_domain_created index, then reverses
// to chronological order for prompt assembly.
func (s *Store) RecentChatMessages(ctx context.Context, domainID string, limit int) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, role, content, status, metadata, created_at
		FROM chat_messages WHERE domain_id=? ORDER BY created_at DESC, id DESC LIMIT ?`, domainID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var status sql.NullString
		var meta, createdAt string
		if err := rows.Scan(&m.ID, &m.DomainID, &m.Role, &m.Content, &status, &meta, &createdAt); err != nil {
			return nil, err
		}
		m.Status = status.String
		if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// MessagesSince returns messages created strictly after ts, chronological.
func (s *Store) MessagesSince(ctx context.Context, domainID string, ts time.Time) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, role, content, status, metadata, created_at
		FROM chat_messages WHERE domain_id=? AND created_at > ? ORDER BY created_at, id`, domainID, fmtTime(ts))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var status sql.NullString
		var meta, createdAt string
		if err := rows.Scan(&m.ID, &m.DomainID, &m.Role, &m.Content, &status, &meta, &createdAt); err != nil {
			return nil, err
		}
		m.Status = status.String
		if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
			return nil, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ClearChatMessages removes a domain's entire chat history.
func (s *Store) ClearChatMessages(ctx context.Context, domainID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE domain_id=?`, domainID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ConversationSummary is the rolling chat summary, one row per domain.
type ConversationSummary struct {
	DomainID                string
	SummaryText             string
	SummaryVersion          int
	LastSummarizedCreatedAt *time.Time
	SummaryHash             string
	UpdatedAt               time.Time
}

func (s *Store) GetConversationSummary(ctx context.Context, domainID string) (ConversationSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT domain_id, summary_text, summary_version, last_summarized_created_at, summary_hash, updated_at
		FROM conversation_summaries WHERE domain_id=?`, domainID)
	var cs ConversationSummary
	var lastSummarized sql.NullString
	var updatedAt string
	err := row.Scan(&cs.DomainID, &cs.SummaryText, &cs.SummaryVersion, &lastSummarized, &cs.SummaryHash, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ConversationSummary{}, ErrNotFound
	}
	if err != nil {
		return ConversationSummary{}, err
	}
	if lastSummarized.Valid {
		t, _ := time.Parse(time.RFC3339Nano, lastSummarized.String)
		cs.LastSummarizedCreatedAt = &t
	}
	cs.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return cs, nil
}

// UpsertConversationSummary writes the rolling summary for cs.DomainID. The
// summary hash is the first 16 hex of sha256 over SummaryText; when it
// matches the stored row the write is skipped entirely, otherwise the stored
// version is incremented.
func (s *Store) UpsertConversationSummary(ctx context.Context, cs ConversationSummary) error {
	hash := normalize.ShortHash(cs.SummaryText, 16)
	existing, err := s.GetConversationSummary(ctx, cs.DomainID)
	switch {
	case err == nil:
		if existing.SummaryHash == hash {
			return nil
		}
		cs.SummaryVersion = existing.SummaryVersion + 1
	case errors.Is(err, ErrNotFound):
		if cs.SummaryVersion <= 0 {
			cs.SummaryVersion = 1
		}
	default:
		return err
	}
	cs.SummaryHash = hash
	cs.UpdatedAt = time.Now().UTC()
	var lastSummarized any
	if cs.LastSummarizedCreatedAt != nil {
		lastSummarized = fmtTime(*cs.LastSummarizedCreatedAt)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_summaries (domain_id, summary_text, summary_version, last_summarized_created_at, summary_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain_id) DO UPDATE SET summary_text=excluded.summary_text, summary_version=excluded.summary_version,
			last_summarized_created_at=excluded.last_summarized_created_at, summary_hash=excluded.summary_hash, updated_at=excluded.updated_at`,
		cs.DomainID, cs.SummaryText, cs.SummaryVersion, lastSummarized, cs.SummaryHash, fmtTime(cs.UpdatedAt))
	return err
}
