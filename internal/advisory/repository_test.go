package advisory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/quiet-coder-io/domainos/internal/blocks"
	"github.com/quiet-coder-io/domainos/internal/config"
	"github.com/quiet-coder-io/domainos/internal/store"
)

func tempRepo(t *testing.T, cfg config.AdvisoryConfig) (*Repository, *store.Store, string) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	d, err := s.CreateDomain(ctx, store.Domain{Name: "Acme", KBPath: "/kb/acme"})
	if err != nil {
		t.Fatal(err)
	}
	return NewRepository(s, cfg), s, d.ID
}

func brainstorm(title string) blocks.AdvisoryCandidate {
	return blocks.AdvisoryCandidate{
		Type: "brainstorm", SchemaVersion: 1, Title: title, Persist: "yes",
		Payload: map[string]interface{}{
			"topic": "pricing",
			"options": []interface{}{
				map[string]interface{}{"title": "Raise prices", "action": "Review pricing tiers with finance"},
			},
		},
	}
}

func TestCreateHourlyRateLimit(t *testing.T) {
	repo, _, domainID := tempRepo(t, config.AdvisoryConfig{KHour: 1, KDay: 100, DedupWindowHours: 24})
	ctx := context.Background()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	res, err := repo.Create(ctx, domainID, "", brainstorm("first brainstorm"), now)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Created || res.RateLimited {
		t.Fatalf("expected first create to succeed: %+v", res)
	}

	res2, err := repo.Create(ctx, domainID, "", brainstorm("second brainstorm"), now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !res2.RateLimited {
		t.Fatal("expected second create within the hour to be rate-limited")
	}
	if res2.LimitReason != "rate_limit_hour" {
		t.Fatalf("expected rate_limit_hour, got %q", res2.LimitReason)
	}
	if res2.FailureMessage == "" || res2.FailureMessage[:len("hourly save limit")] != "hourly save limit" {
		t.Fatalf("expected failure message to begin 'hourly save limit', got %q", res2.FailureMessage)
	}
}

func TestCreateDailyRateLimit(t *testing.T) {
	repo, _, domainID := tempRepo(t, config.AdvisoryConfig{KHour: 100, KDay: 1, DedupWindowHours: 24})
	ctx := context.Background()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	if _, err := repo.Create(ctx, domainID, "", brainstorm("first"), now); err != nil {
		t.Fatal(err)
	}
	res, err := repo.Create(ctx, domainID, "", brainstorm("second"), now.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !res.RateLimited || res.LimitReason != "rate_limit_day" || len(res.FailureMessage) < len("daily save limit") || res.FailureMessage[:len("daily save limit")] != "daily save limit" {
		t.Fatalf("expected daily rate limit failure, got %+v", res)
	}
}

func TestCreateDedupWithinWindow(t *testing.T) {
	repo, _, domainID := tempRepo(t, config.AdvisoryConfig{KHour: 100, KDay: 100, DedupWindowHours: 24})
	ctx := context.Background()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	c := brainstorm("repeated idea")
	first, err := repo.Create(ctx, domainID, "", c, now)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Created {
		t.Fatalf("expected first create: %+v", first)
	}

	second, err := repo.Create(ctx, domainID, "", c, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !second.Idempotent {
		t.Fatal("expected identical candidate within dedup window to be idempotent")
	}
	if second.Artifact.ID != first.Artifact.ID {
		t.Fatal("expected idempotent result to return the prior artifact's ID")
	}
}

func TestCreateDedupExpiresOutsideWindow(t *testing.T) {
	repo, _, domainID := tempRepo(t, config.AdvisoryConfig{KHour: 100, KDay: 100, DedupWindowHours: 1})
	ctx := context.Background()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	c := brainstorm("repeated idea")
	if _, err := repo.Create(ctx, domainID, "", c, now); err != nil {
		t.Fatal(err)
	}

	res, err := repo.Create(ctx, domainID, "", c, now.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if res.Idempotent || !res.Created {
		t.Fatalf("expected a fresh insert once the dedup window elapsed, got %+v", res)
	}
}

func TestCreateArchivePersistSetsArchivedStatus(t *testing.T) {
	repo, _, domainID := tempRepo(t, config.AdvisoryConfig{KHour: 100, KDay: 100, DedupWindowHours: 24})
	ctx := context.Background()
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	c := brainstorm("archived idea")
	c.Persist = "archive"
	res, err := repo.Create(ctx, domainID, "", c, now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Artifact.Status != "archived" {
		t.Fatalf("expected archived status, got %q", res.Artifact.Status)
	}
}

func TestFingerprintDedupesCaseAndWhitespaceInCoreFields(t *testing.T) {
	a := brainstorm("Pricing Brainstorm")
	b := brainstorm("Pricing Brainstorm")
	b.Payload = map[string]interface{}{
		"topic": "  PRICING  ",
		"options": []interface{}{
			map[string]interface{}{"title": "raise   prices", "action": "Review pricing tiers with finance"},
		},
	}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("expected case/whitespace-only edits to core fields to produce the same fingerprint")
	}
}

func TestFingerprintChangesOnCoreFieldEdit(t *testing.T) {
	a := brainstorm("Pricing Brainstorm")
	b := brainstorm("Pricing Brainstorm")
	b.Payload = map[string]interface{}{
		"topic": "pricing",
		"options": []interface{}{
			map[string]interface{}{"title": "Cut prices", "action": "Review pricing tiers with finance"},
		},
	}
	if Fingerprint(a) == Fingerprint(b) {
		t.Fatal("expected a substantive core-field edit to produce a different fingerprint")
	}
}

func TestFingerprintChangesOnSchemaVersion(t *testing.T) {
	a := brainstorm("Pricing Brainstorm")
	b := brainstorm("Pricing Brainstorm")
	b.SchemaVersion = 2
	if Fingerprint(a) == Fingerprint(b) {
		t.Fatal("expected schemaVersion to participate in the fingerprint")
	}
}

func TestFingerprintIgnoresNonCoreFieldEdits(t *testing.T) {
	a := brainstorm("Pricing Brainstorm")
	b := brainstorm("Pricing Brainstorm")
	b.Payload = map[string]interface{}{
		"topic": "pricing",
		"options": []interface{}{
			map[string]interface{}{"title": "Raise prices", "action": "Completely different action text"},
		},
	}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("expected an edit outside the selected core fields (action) to still dedupe")
	}
}
