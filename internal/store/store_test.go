package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAndSchema(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	if _, err := s.CreateDomain(ctx, Domain{Name: "test", KBPath: "/kb/test"}); err != nil {
		t.Fatalf("CreateDomain failed: %v", err)
	}
}

func TestDomainCRUD(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	d, err := s.CreateDomain(ctx, Domain{Name: "Acme", KBPath: "/kb/acme", EscalationTriggers: []string{"overdue"}})
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.GetDomain(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Acme" || len(got.EscalationTriggers) != 1 {
		t.Fatalf("unexpected domain: %+v", got)
	}

	got.Name = "Acme Corp"
	if err := s.UpdateDomain(ctx, got); err != nil {
		t.Fatal(err)
	}
	got2, err := s.GetDomain(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got2.Name != "Acme Corp" {
		t.Fatalf("update did not persist: %+v", got2)
	}

	if err := s.DeleteDomain(ctx, d.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetDomain(ctx, d.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestAuditEntryDedup(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	d, _ := s.CreateDomain(ctx, Domain{Name: "d", KBPath: "/kb/d"})

	e1, inserted, err := s.InsertAuditEntry(ctx, AuditEntry{
		DomainID: d.ID, AgentName: "agent", FilePath: "file.md",
		ChangeDescription: "updated", ContentHash: "hash1", EventType: "kb_update", Source: "chat",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("expected first insert to report inserted=true")
	}

	e2, inserted2, err := s.InsertAuditEntry(ctx, AuditEntry{
		DomainID: d.ID, AgentName: "agent", FilePath: "file.md",
		ChangeDescription: "updated again", ContentHash: "hash1", EventType: "kb_update", Source: "chat",
	})
	if err != nil {
		t.Fatal(err)
	}
	if inserted2 {
		t.Fatal("expected duplicate content_hash to report inserted=false")
	}
	if e2.ID != e1.ID {
		t.Fatalf("expected duplicate lookup to return original entry, got different ID")
	}
}

func TestAdvisoryArtifactFingerprintDedup(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	d, _ := s.CreateDomain(ctx, Domain{Name: "d", KBPath: "/kb/d"})

	_, inserted, err := s.InsertAdvisoryArtifact(ctx, AdvisoryArtifact{
		DomainID: d.ID, Type: "advisory", Title: "t", SchemaVersion: 1,
		Content: "{}", Fingerprint: "fp1", Source: "automation",
	})
	if err != nil || !inserted {
		t.Fatalf("expected first insert: inserted=%v err=%v", inserted, err)
	}

	_, inserted2, err := s.InsertAdvisoryArtifact(ctx, AdvisoryArtifact{
		DomainID: d.ID, Type: "advisory", Title: "t2", SchemaVersion: 1,
		Content: "{}", Fingerprint: "fp1", Source: "automation",
	})
	if err != nil {
		t.Fatal(err)
	}
	if inserted2 {
		t.Fatal("expected duplicate fingerprint to be filtered")
	}

	n, err := s.CountAdvisoryArtifactsSince(ctx, d.ID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 artifact counted, got %d", n)
	}
}

func TestAutomationRunDedupeKey(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	d, _ := s.CreateDomain(ctx, Domain{Name: "d", KBPath: "/kb/d"})
	a, err := s.CreateAutomation(ctx, Automation{
		DomainID: d.ID, Name: "daily-digest", TriggerType: "cron", TriggerCron: "0 9 * * *",
		PromptTemplate: "summarize", ActionType: "chat_message", ActionConfig: "{}",
		Enabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	run1, ok1, err := s.TryInsertRun(ctx, AutomationRun{
		AutomationID: a.ID, DomainID: d.ID, TriggerType: "cron",
		DedupeKey: "daily-digest:2026-07-31", PromptHash: "ph1", ActionType: "chat_message",
	})
	if err != nil || !ok1 {
		t.Fatalf("expected first run insert to succeed: ok=%v err=%v", ok1, err)
	}

	_, ok2, err := s.TryInsertRun(ctx, AutomationRun{
		AutomationID: a.ID, DomainID: d.ID, TriggerType: "cron",
		DedupeKey: "daily-digest:2026-07-31", PromptHash: "ph2", ActionType: "chat_message",
	})
	if err != nil {
		t.Fatal(err)
	}
	if ok2 {
		t.Fatal("expected second run with same dedupe_key to be rejected")
	}

	if err := s.FinalizeRun(ctx, run1.ID, "success", "rendered prompt", "ph1", "response", "rh1", "", "", nil, "", 120, true); err != nil {
		t.Fatal(err)
	}
	runs, err := s.RunsForAutomation(ctx, a.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != "success" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestChatMessagesChronologicalOrder(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	d, _ := s.CreateDomain(ctx, Domain{Name: "d", KBPath: "/kb/d"})

	base := time.Now().UTC().Add(-time.Hour)
	for i, content := range []string{"first", "second", "third"} {
		if _, err := s.AppendChatMessage(ctx, ChatMessage{
			DomainID: d.ID, Role: "user", Content: content,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := s.RecentChatMessages(ctx, d.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "first" || msgs[2].Content != "third" {
		t.Fatalf("expected chronological order, got %v, %v, %v", msgs[0].Content, msgs[1].Content, msgs[2].Content)
	}
}

func TestAppendChatMessageIdempotentByID(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	d, _ := s.CreateDomain(ctx, Domain{Name: "d", KBPath: "/kb/d"})

	m := ChatMessage{ID: "msg-1", DomainID: d.ID, Role: "user", Content: "hello"}
	if _, err := s.AppendChatMessage(ctx, m); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendChatMessage(ctx, m); err != nil {
		t.Fatalf("repeated append with the same id must be absorbed: %v", err)
	}
	msgs, err := s.RecentChatMessages(ctx, d.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message after duplicate append, got %d", len(msgs))
	}
}

func TestConversationSummaryHashSkipAndVersion(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	d, _ := s.CreateDomain(ctx, Domain{Name: "d", KBPath: "/kb/d"})

	if err := s.UpsertConversationSummary(ctx, ConversationSummary{DomainID: d.ID, SummaryText: "v1 text"}); err != nil {
		t.Fatal(err)
	}
	first, err := s.GetConversationSummary(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.SummaryVersion != 1 || len(first.SummaryHash) != 16 {
		t.Fatalf("unexpected first summary: %+v", first)
	}

	// Same text: write skipped, version unchanged.
	if err := s.UpsertConversationSummary(ctx, ConversationSummary{DomainID: d.ID, SummaryText: "v1 text"}); err != nil {
		t.Fatal(err)
	}
	same, _ := s.GetConversationSummary(ctx, d.ID)
	if same.SummaryVersion != 1 || !same.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("expected unchanged summary to be skipped: %+v", same)
	}

	// New text: version increments, hash changes.
	if err := s.UpsertConversationSummary(ctx, ConversationSummary{DomainID: d.ID, SummaryText: "v2 text"}); err != nil {
		t.Fatal(err)
	}
	next, _ := s.GetConversationSummary(ctx, d.ID)
	if next.SummaryVersion != 2 || next.SummaryHash == first.SummaryHash {
		t.Fatalf("expected version bump on changed text: %+v", next)
	}
}

func TestInsertAdvisoryArtifactLimited(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	d, _ := s.CreateDomain(ctx, Domain{Name: "d", KBPath: "/kb/d"})
	now := time.Now().UTC()
	hourSince, daySince := now.Add(-time.Hour), now.Add(-24*time.Hour)
	dedupSince := now.Add(-24 * time.Hour)

	base := AdvisoryArtifact{
		DomainID: d.ID, Type: "brainstorm", Title: "pricing ideas",
		SchemaVersion: 1, Content: "{}", Fingerprint: "fp-a", Source: "llm",
	}

	first, err := s.InsertAdvisoryArtifactLimited(ctx, base, hourSince, daySince, 2, 10, dedupSince)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Created || first.LimitHit != "" {
		t.Fatalf("expected a fresh insert, got %+v", first)
	}

	// Same fingerprint within the window: idempotent, returns the prior row.
	again, err := s.InsertAdvisoryArtifactLimited(ctx, base, hourSince, daySince, 2, 10, dedupSince)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Idempotent || again.Artifact.ID != first.Artifact.ID {
		t.Fatalf("expected idempotent hit on the prior artifact, got %+v", again)
	}

	// A second distinct artifact fills the hourly allowance of 2...
	second := base
	second.Fingerprint, second.Title = "fp-b", "different ideas"
	if out, err := s.InsertAdvisoryArtifactLimited(ctx, second, hourSince, daySince, 2, 10, dedupSince); err != nil || !out.Created {
		t.Fatalf("expected second insert to land: out=%+v err=%v", out, err)
	}

	// ...so a third distinct one hits the hourly limit before any insert.
	third := base
	third.Fingerprint, third.Title = "fp-c", "yet more ideas"
	out, err := s.InsertAdvisoryArtifactLimited(ctx, third, hourSince, daySince, 2, 10, dedupSince)
	if err != nil {
		t.Fatal(err)
	}
	if out.LimitHit != "hour" || out.Created {
		t.Fatalf("expected hourly limit hit, got %+v", out)
	}
	if n, _ := s.CountAdvisoryArtifactsSince(ctx, d.ID, hourSince); n != 2 {
		t.Fatalf("limit hit must not insert: count=%d", n)
	}
}
