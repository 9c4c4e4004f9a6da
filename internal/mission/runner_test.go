package mission

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/quiet-coder-io/domainos/internal/store"
)

func tempRunner(t *testing.T, reg *Registry, stream StreamFunc) (*Runner, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	return &Runner{Store: s, Registry: reg, Stream: stream, Now: func() time.Time { return now }}, s
}

func ungatedDefinition() Definition {
	return Definition{
		Type: "echo",
		BuildContext: func(ctx context.Context, domain store.Domain, inputs map[string]any) (map[string]any, error) {
			return map[string]any{"domain": domain.Name}, nil
		},
		BuildPrompt: func(domain store.Domain, inputs, missionContext map[string]any) (string, string, error) {
			return "system", "user", nil
		},
	}
}

func TestStartFinalizesUngatedMissionWithNoActions(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ungatedDefinition())
	r, s := tempRunner(t, reg, func(ctx context.Context, system, user string, onChunk func(string)) (string, error) {
		return "raw output", nil
	})
	ctx := context.Background()
	d, _ := s.CreateDomain(ctx, store.Domain{Name: "acme", KBPath: "/kb/acme"})

	run, err := r.Start(ctx, d, "echo", map[string]any{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if run.Status != "success" {
		t.Fatalf("status = %q, want success", run.Status)
	}
	if run.InputsHash == "" || run.ContextHash == "" || run.PromptHash == "" {
		t.Fatalf("expected hashes to be populated: %+v", run)
	}

	got, err := s.GetMissionRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetMissionRun: %v", err)
	}
	if got.RawOutput != "raw output" {
		t.Fatalf("raw output = %q", got.RawOutput)
	}

	entries, err := s.AuditSince(ctx, d.ID, time.Time{})
	if err != nil {
		t.Fatalf("AuditSince: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries (started, complete), got %d", len(entries))
	}
}

func TestStartUnknownMissionType(t *testing.T) {
	r, s := tempRunner(t, NewRegistry(), nil)
	ctx := context.Background()
	d, _ := s.CreateDomain(ctx, store.Domain{Name: "acme", KBPath: "/kb/acme"})

	if _, err := r.Start(ctx, d, "nope", nil); !errors.Is(err, ErrUnknownMission) {
		t.Fatalf("err = %v, want ErrUnknownMission", err)
	}
}

func gatedDefinition(executed *[]string) Definition {
	return Definition{
		Type: "briefing",
		BuildContext: func(ctx context.Context, domain store.Domain, inputs map[string]any) (map[string]any, error) {
			return map[string]any{}, nil
		},
		BuildPrompt: func(domain store.Domain, inputs, missionContext map[string]any) (string, string, error) {
			return "system", "user", nil
		},
		ParseOutput: func(raw string) ([]ParsedItem, error) {
			return []ParsedItem{{ActionID: "a1", ActionType: "notification", ActionPayload: raw}}, nil
		},
		RequiresGate: func(items []ParsedItem) bool { return len(items) > 0 },
		Actions: map[string]ActionExecutor{
			"notification": ActionExecutorFunc(func(ctx context.Context, domain store.Domain, action store.MissionAction) (string, error) {
				*executed = append(*executed, action.ActionID)
				return "sent", nil
			}),
		},
	}
}

func TestStartGatesThenDecideApprove(t *testing.T) {
	var executed []string
	reg := NewRegistry()
	reg.Register(gatedDefinition(&executed))
	r, s := tempRunner(t, reg, func(ctx context.Context, system, user string, onChunk func(string)) (string, error) {
		return "draft notification text", nil
	})
	ctx := context.Background()
	d, _ := s.CreateDomain(ctx, store.Domain{Name: "acme", KBPath: "/kb/acme"})

	run, err := r.Start(ctx, d, "briefing", nil)
	if !errors.Is(err, ErrGateRequired) {
		t.Fatalf("err = %v, want ErrGateRequired", err)
	}
	if run.Status != "gated" {
		t.Fatalf("status = %q, want gated", run.Status)
	}

	actions, err := s.MissionActionsForRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("MissionActionsForRun: %v", err)
	}
	if len(actions) != 1 || actions[0].Status != "pending" {
		t.Fatalf("unexpected actions: %+v", actions)
	}

	final, err := r.Decide(ctx, d, run.ID, true)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if final.Status != "success" {
		t.Fatalf("status = %q, want success", final.Status)
	}
	if len(executed) != 1 || executed[0] != "a1" {
		t.Fatalf("executed = %v", executed)
	}

	actions, _ = s.MissionActionsForRun(ctx, run.ID)
	if actions[0].Status != "success" || actions[0].Result != "sent" {
		t.Fatalf("action not recorded: %+v", actions[0])
	}
}

func TestDecideRejectSkipsActions(t *testing.T) {
	var executed []string
	reg := NewRegistry()
	reg.Register(gatedDefinition(&executed))
	r, s := tempRunner(t, reg, func(ctx context.Context, system, user string, onChunk func(string)) (string, error) {
		return "draft", nil
	})
	ctx := context.Background()
	d, _ := s.CreateDomain(ctx, store.Domain{Name: "acme", KBPath: "/kb/acme"})

	run, _ := r.Start(ctx, d, "briefing", nil)

	final, err := r.Decide(ctx, d, run.ID, false)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if final.Status != "success" {
		t.Fatalf("status = %q, want success", final.Status)
	}
	if len(executed) != 0 {
		t.Fatalf("expected no actions executed on reject, got %v", executed)
	}

	actions, _ := s.MissionActionsForRun(ctx, run.ID)
	if actions[0].Status != "skipped" {
		t.Fatalf("action status = %q, want skipped", actions[0].Status)
	}
}

func TestDecideNotGatedReturnsError(t *testing.T) {
	reg := NewRegistry()
	reg.Register(ungatedDefinition())
	r, s := tempRunner(t, reg, func(ctx context.Context, system, user string, onChunk func(string)) (string, error) {
		return "raw", nil
	})
	ctx := context.Background()
	d, _ := s.CreateDomain(ctx, store.Domain{Name: "acme", KBPath: "/kb/acme"})
	run, err := r.Start(ctx, d, "echo", nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := r.Decide(ctx, d, run.ID, true); !errors.Is(err, ErrNotGated) {
		t.Fatalf("err = %v, want ErrNotGated", err)
	}
}

func TestStartUnknownActionTypeFailsRun(t *testing.T) {
	def := Definition{
		Type: "bad",
		BuildContext: func(ctx context.Context, domain store.Domain, inputs map[string]any) (map[string]any, error) {
			return map[string]any{}, nil
		},
		BuildPrompt: func(domain store.Domain, inputs, missionContext map[string]any) (string, string, error) {
			return "system", "user", nil
		},
		ParseOutput: func(raw string) ([]ParsedItem, error) {
			return []ParsedItem{{ActionID: "a1", ActionType: "undeclared"}}, nil
		},
		RequiresGate: func(items []ParsedItem) bool { return true },
		Actions:      map[string]ActionExecutor{},
	}
	reg := NewRegistry()
	reg.Register(def)
	r, s := tempRunner(t, reg, func(ctx context.Context, system, user string, onChunk func(string)) (string, error) {
		return "raw", nil
	})
	ctx := context.Background()
	d, _ := s.CreateDomain(ctx, store.Domain{Name: "acme", KBPath: "/kb/acme"})

	run, err := r.Start(ctx, d, "bad", nil)
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("err = %v, want ErrUnknownAction", err)
	}
	if run.Status != "failed" {
		t.Fatalf("status = %q, want failed", run.Status)
	}
}
