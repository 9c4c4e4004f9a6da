package automation

import (
	"testing"
	"time"
)

func TestScheduleDedupeKeyFormat(t *testing.T) {
	key := ScheduleDedupeKey("auto1", time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC))
	want := "auto1|2025-06-15T09:00"
	if key != want {
		t.Fatalf("expected %q, got %q", want, key)
	}
}

func TestManualDedupeKeyDefaultsToNone(t *testing.T) {
	if got := ManualDedupeKey("auto1", ""); got != "auto1|manual|none" {
		t.Fatalf("unexpected key: %q", got)
	}
	if got := ManualDedupeKey("auto1", "req1"); got != "auto1|manual|req1" {
		t.Fatalf("unexpected key: %q", got)
	}
}

func TestEventDedupeKeyIgnoresUnwhitelistedFields(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	k1 := EventDedupeKey("auto1", "intake_created", map[string]interface{}{
		"entityId": "e1", "entityType": "lead", "noise": "a",
	}, now)
	k2 := EventDedupeKey("auto1", "intake_created", map[string]interface{}{
		"entityId": "e1", "entityType": "lead", "noise": "b",
	}, now)
	if k1 != k2 {
		t.Fatalf("expected unwhitelisted field to not perturb the dedup key: %q vs %q", k1, k2)
	}
}

func TestEventDedupeKeySortsChangedPaths(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	k1 := EventDedupeKey("auto1", "kb_changed", map[string]interface{}{
		"entityId": "e1", "entityType": "domain", "changedPaths": []interface{}{"b.md", "a.md"},
	}, now)
	k2 := EventDedupeKey("auto1", "kb_changed", map[string]interface{}{
		"entityId": "e1", "entityType": "domain", "changedPaths": []interface{}{"a.md", "b.md"},
	}, now)
	if k1 != k2 {
		t.Fatalf("expected changedPaths order to not matter: %q vs %q", k1, k2)
	}
}

func TestEventDedupeKeyDeadlineApproachingFallsBackToEntityID(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	key := EventDedupeKey("auto1", "deadline_approaching", map[string]interface{}{
		"entityId": "fallback-id", "dueDate": "2025-07-01",
	}, now)
	if key == "" {
		t.Fatal("expected a non-empty key")
	}
}
