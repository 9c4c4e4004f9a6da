package turn

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quiet-coder-io/domainos/internal/advisory"
	"github.com/quiet-coder-io/domainos/internal/agentrt"
	"github.com/quiet-coder-io/domainos/internal/config"
	"github.com/quiet-coder-io/domainos/internal/domainstatus"
	"github.com/quiet-coder-io/domainos/internal/kb"
	"github.com/quiet-coder-io/domainos/internal/store"
)

// fakeProvider is not tool-capable: Loop.Run always falls back to
// ChatComplete, matching a plain chat turn with no tools offered.
type fakeProvider struct {
	reply string
}

func (f fakeProvider) Chat(ctx context.Context, messages []agentrt.Transcript, systemPrompt string) (<-chan string, error) {
	return nil, errors.New("unused")
}

func (f fakeProvider) ChatComplete(ctx context.Context, messages []agentrt.Transcript, systemPrompt string) (string, error) {
	return f.reply, nil
}

func newTestService(t *testing.T, reply string) (*Service, *store.Store, store.Domain) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	domain, err := s.CreateDomain(context.Background(), store.Domain{
		Name:   "ops",
		KBPath: filepath.Join(t.TempDir(), "kb"),
	})
	require.NoError(t, err)

	svc := &Service{
		Store:    s,
		Loop:     agentrt.NewLoop(fakeProvider{reply: reply}, agentrt.NewCapabilityCache(), &agentrt.Registry{}),
		KBApply:  &kb.Applier{Store: s},
		Advisory: advisory.NewRepository(s, config.AdvisoryConfig{KHour: 10, KDay: 30, DedupWindowHours: 24}),
		Status:   domainstatus.NewBuilder(s),
		Now:      func() time.Time { return time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC) },
	}
	return svc, s, domain
}

func TestRunPersistsUserAndAssistantMessages(t *testing.T) {
	svc, s, domain := newTestService(t, "just chatting, nothing structured here")

	res, err := svc.Run(context.Background(), Input{Domain: domain, SessionID: "sess-1", UserText: "how's it going?"})
	require.NoError(t, err)
	require.Equal(t, "just chatting, nothing structured here", res.AssistantText)

	history, err := s.RecentChatMessages(context.Background(), domain.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "user", history[0].Role)
	require.Equal(t, "how's it going?", history[0].Content)
	require.Equal(t, "assistant", history[1].Role)
}

func TestRunAppliesKBUpdateAndRecordsAudit(t *testing.T) {
	reply := "```kb-update\n" +
		"file: notes.md\n" +
		"action: create\n" +
		"reasoning: capture a fact\n" +
		"---\n" +
		"# Notes\nremember this\n" +
		"```\n"
	svc, s, domain := newTestService(t, reply)

	res, err := svc.Run(context.Background(), Input{Domain: domain, SessionID: "sess-1", UserText: "note this down"})
	require.NoError(t, err)
	require.Len(t, res.AppliedKBFiles, 1)
	require.Equal(t, "notes.md", res.AppliedKBFiles[0].KBFile.RelativePath)

	files, err := s.ListKBFiles(context.Background(), domain.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestRunInsertsDecisionAndGapFlag(t *testing.T) {
	reply := "```decision\n" +
		"decisionId: adopt-foo\n" +
		"decision: use foo as the default\n" +
		"rationale: it is already battle tested\n" +
		"---\n" +
		"```\n" +
		"```gap-flag\n" +
		"category: missing_data\n" +
		"description: don't know the rollout date\n" +
		"---\n" +
		"```\n"
	svc, s, domain := newTestService(t, reply)

	res, err := svc.Run(context.Background(), Input{Domain: domain, SessionID: "sess-2", UserText: "plan the rollout"})
	require.NoError(t, err)
	require.Len(t, res.Decisions, 1)
	require.Equal(t, "adopt-foo", res.Decisions[0].DecisionID)
	require.Len(t, res.GapFlags, 1)
	require.Equal(t, "missing_data", res.GapFlags[0].Category)

	entries, err := s.AuditSince(context.Background(), domain.ID, time.Unix(0, 0))
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestRunDetectsStop(t *testing.T) {
	reply := "```stop\n" +
		"reason: waiting on user input\n" +
		"actionNeeded: confirm budget\n" +
		"---\n" +
		"```\n"
	svc, _, domain := newTestService(t, reply)

	res, err := svc.Run(context.Background(), Input{Domain: domain, SessionID: "sess-3", UserText: "continue"})
	require.NoError(t, err)
	require.True(t, res.Stopped)
	require.Equal(t, "waiting on user input", res.StopReason)
}

func TestRunPersistsOnlyPersistableAdvisoryBlocks(t *testing.T) {
	reply := "```advisory-brainstorm\n" +
		`{"schemaVersion":1,"type":"brainstorm","title":"expansion ideas","persist":"yes",` +
		`"topic":"growth options","options":[{"title":"partner with a reseller"}]}` +
		"\n```\n"
	svc, _, domain := newTestService(t, reply)

	res, err := svc.Run(context.Background(), Input{Domain: domain, SessionID: "sess-4", UserText: "brainstorm with me"})
	require.NoError(t, err)
	require.Len(t, res.AdvisoryResults, 1)
	require.True(t, res.AdvisoryResults[0].Created)
}

// Hourly rate-limit edge: two artifacts already saved this hour with an
// hourly limit of 2 means a new persist:"yes" block is rejected with
// rate_limit_hour and a system note beginning "hourly save limit".
func TestRunAdvisoryHourlyRateLimitRejects(t *testing.T) {
	reply := "```advisory-brainstorm\n" +
		`{"schemaVersion":1,"type":"brainstorm","title":"expansion ideas","persist":"yes",` +
		`"topic":"growth options","options":[{"title":"partner with a reseller"}]}` +
		"\n```\n"
	svc, s, domain := newTestService(t, reply)
	svc.Advisory = advisory.NewRepository(s, config.AdvisoryConfig{KHour: 2, KDay: 30, DedupWindowHours: 24})

	ctx := context.Background()
	for _, fp := range []string{"fp-one", "fp-two"} {
		if _, err := s.InsertAdvisoryArtifactRaw(ctx, store.AdvisoryArtifact{
			DomainID: domain.ID, Type: "brainstorm", Title: "prior " + fp,
			SchemaVersion: 1, Content: "{}", Fingerprint: fp, Source: "llm",
		}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := svc.Run(ctx, Input{Domain: domain, SessionID: "sess-5", UserText: "one more idea"})
	require.NoError(t, err)
	require.Empty(t, res.AdvisoryResults)
	require.Len(t, res.RejectedAdvisories, 1)
	require.Equal(t, "rate_limit_hour", res.RejectedAdvisories[0].RejectionReason)
	require.NotEmpty(t, res.SystemNotes)
	require.True(t, strings.HasPrefix(res.SystemNotes[0], "hourly save limit"))
}
