// Package kb applies accepted blocks.KBUpdateProposal values to a domain's
// knowledge base directory on disk and keeps internal/store's KBFile rows
// and audit trail in sync: an applied create or update proposal always leaves a KBFile row
// whose contentHash is sha256 of the new content, so a later scan observes
// no drift. It shares internal/tools/patchtool's
// sandbox.SanitizeArg path-safety idiom, reused here for the same reason:
// a proposal's file path must stay inside the domain's KB root even though
// blocks.ParseKBUpdates already rejected literal ".."/absolute paths.
package kb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quiet-coder-io/domainos/internal/blocks"
	"github.com/quiet-coder-io/domainos/internal/sandbox"
	"github.com/quiet-coder-io/domainos/internal/store"
)

// Applier writes accepted kb-update proposals to disk and mirrors the
// change into the store (KBFile row + audit entry).
type Applier struct {
	Store *store.Store
	Now   func() time.Time
}

func (a *Applier) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

// AppliedFile is the outcome of applying one proposal.
type AppliedFile struct {
	KBFile store.KBFile
	Audit  store.AuditEntry
}

// Apply applies a single accepted proposal against domain's KB root
// (domain.KBPath), writing/deleting the file, then upserting the KBFile and
// audit rows. agentName/source/eventType/sessionID describe the audit
// attribution.
func (a *Applier) Apply(ctx context.Context, domain store.Domain, p blocks.KBUpdateProposal, agentName, source, eventType, sessionID string) (AppliedFile, error) {
	rel, err := sandbox.SanitizeArg(domain.KBPath, p.File)
	if err != nil {
		return AppliedFile{}, fmt.Errorf("kb: unsafe path %q: %w", p.File, err)
	}
	abs := filepath.Join(domain.KBPath, rel)

	var contentHash string
	var sizeBytes int64

	switch p.Action {
	case "delete":
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return AppliedFile{}, fmt.Errorf("kb: delete %q: %w", rel, err)
		}
		if err := a.Store.DeleteKBFile(ctx, domain.ID, rel); err != nil {
			return AppliedFile{}, fmt.Errorf("kb: delete kb_file row: %w", err)
		}
	case "create", "update":
		content := p.Content
		if p.Mode == "append" {
			existing, _ := os.ReadFile(abs)
			content = string(existing) + content
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return AppliedFile{}, fmt.Errorf("kb: mkdir for %q: %w", rel, err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			return AppliedFile{}, fmt.Errorf("kb: write %q: %w", rel, err)
		}
		sum := sha256.Sum256([]byte(content))
		contentHash = hex.EncodeToString(sum[:])
		sizeBytes = int64(len(content))
	default:
		return AppliedFile{}, fmt.Errorf("kb: unknown action %q", p.Action)
	}

	tier := p.Tier
	if tier == "" {
		tier = blocks.TierGeneral
	}
	tierSource := "declared"
	if p.Tier == "" {
		tierSource = "inferred"
	}

	var kf store.KBFile
	if p.Action != "delete" {
		kf, err = a.Store.UpsertKBFile(ctx, store.KBFile{
			DomainID:     domain.ID,
			RelativePath: rel,
			ContentHash:  contentHash,
			SizeBytes:    sizeBytes,
			LastSyncedAt: a.now(),
			Tier:         tier,
			TierSource:   tierSource,
		})
		if err != nil {
			return AppliedFile{}, fmt.Errorf("kb: upsert kb_file row: %w", err)
		}
	}

	entry, _, err := a.Store.InsertAuditEntry(ctx, store.AuditEntry{
		DomainID:          domain.ID,
		SessionID:         sessionID,
		AgentName:         agentName,
		FilePath:          rel,
		ChangeDescription: p.Reasoning,
		ContentHash:       contentHash,
		EventType:         eventType,
		Source:            source,
		CreatedAt:         a.now(),
	})
	if err != nil {
		return AppliedFile{}, fmt.Errorf("kb: insert audit entry: %w", err)
	}

	return AppliedFile{KBFile: kf, Audit: entry}, nil
}

// ApplyAll applies every proposal in order, stopping at (and returning) the
// first error so the caller can report which proposal failed; parsing
// already guaranteed source order, so callers that want
// best-effort application over the whole set should call Apply directly
// per proposal instead.
func (a *Applier) ApplyAll(ctx context.Context, domain store.Domain, proposals []blocks.KBUpdateProposal, agentName, source, eventType, sessionID string) ([]AppliedFile, error) {
	out := make([]AppliedFile, 0, len(proposals))
	for _, p := range proposals {
		applied, err := a.Apply(ctx, domain, p, agentName, source, eventType, sessionID)
		if err != nil {
			return out, err
		}
		out = append(out, applied)
	}
	return out, nil
}
