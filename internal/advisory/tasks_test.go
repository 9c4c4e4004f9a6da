package advisory

import (
	"testing"

	"github.com/quiet-coder-io/domainos/internal/store"
)

func artifact(advisoryType, content string) store.AdvisoryArtifact {
	return store.AdvisoryArtifact{ID: "art1", Title: "Q3 pricing review", Type: advisoryType, Content: content}
}

func TestExtractBrainstormPrefersAction(t *testing.T) {
	res, err := ExtractTasksFromArtifact(artifact("brainstorm", `{
		"topic": "pricing",
		"options": [{"title": "Raise prices", "action": "Review pricing tiers with finance"}],
		"recommendation": "Do something else"
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tasks) != 1 || res.Tasks[0].Title != "Review pricing tiers with finance" {
		t.Fatalf("expected action field to win, got %+v", res.Tasks)
	}
}

func TestExtractBrainstormFallsBackToRecommendation(t *testing.T) {
	res, err := ExtractTasksFromArtifact(artifact("brainstorm", `{
		"topic": "pricing",
		"options": [{"title": "Raise prices"}],
		"recommendation": "Draft a pricing memo for leadership"
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tasks) != 1 || res.Tasks[0].Title != "Draft a pricing memo for leadership" {
		t.Fatalf("expected recommendation fallback, got %+v", res.Tasks)
	}
}

func TestExtractBrainstormFallsBackToTitleWithEvaluatePrefix(t *testing.T) {
	res, err := ExtractTasksFromArtifact(artifact("brainstorm", `{
		"topic": "pricing",
		"options": [{"title": "Raise prices"}]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tasks) != 1 || res.Tasks[0].Title != "Evaluate: Raise prices" {
		t.Fatalf("expected title fallback prefixed Evaluate:, got %+v", res.Tasks)
	}
}

func TestExtractRiskAssessmentMitigationsArePriorityHigh(t *testing.T) {
	res, err := ExtractTasksFromArtifact(artifact("risk_assessment", `{
		"risks": [{"name": "vendor lock-in", "mitigation": "Negotiate a multi-year exit clause"}]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tasks) != 1 || res.Tasks[0].Priority != "high" {
		t.Fatalf("expected one high-priority task, got %+v", res.Tasks)
	}
}

func TestExtractScenarioTriggersPrefixedMonitor(t *testing.T) {
	res, err := ExtractTasksFromArtifact(artifact("scenario", `{
		"name": "demand spike",
		"triggers": ["Weekly signups exceed capacity"]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tasks) != 1 || res.Tasks[0].Title != "Monitor: Weekly signups exceed capacity" || res.Tasks[0].Priority != "low" {
		t.Fatalf("unexpected scenario extraction: %+v", res.Tasks)
	}
}

func TestExtractStrategicReviewActionAndAssumptions(t *testing.T) {
	res, err := ExtractTasksFromArtifact(artifact("strategic_review", `{
		"highest_leverage_action": "Escalate the renewal negotiation to legal",
		"assumptions_to_check": ["Renewal discount still applies next quarter"]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tasks) != 2 {
		t.Fatalf("expected action + assumption tasks, got %+v", res.Tasks)
	}
	if res.Tasks[0].Priority != "high" {
		t.Fatalf("expected highest_leverage_action to be priority=high, got %+v", res.Tasks[0])
	}
	if res.Tasks[1].Title != "Verify: Renewal discount still applies next quarter" {
		t.Fatalf("expected assumption prefixed Verify:, got %+v", res.Tasks[1])
	}
}

func TestExtractTaskTooShortGoesToNeedsEditing(t *testing.T) {
	res, err := ExtractTasksFromArtifact(artifact("scenario", `{"name": "x", "triggers": ["Fix"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tasks) != 0 || len(res.NeedsEditing) != 1 || res.NeedsEditing[0].Reason != "too_short" {
		t.Fatalf("expected a too_short needsEditing entry, got tasks=%+v needsEditing=%+v", res.Tasks, res.NeedsEditing)
	}
}

func TestExtractTaskMissingActionIndicatorGoesToNeedsEditing(t *testing.T) {
	res, err := ExtractTasksFromArtifact(artifact("risk_assessment", `{
		"risks": [{"name": "x", "mitigation": "The vendor contract renewal date"}]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tasks) != 0 || len(res.NeedsEditing) != 1 || res.NeedsEditing[0].Reason != "missing_action_indicator" {
		t.Fatalf("expected missing_action_indicator, got tasks=%+v needsEditing=%+v", res.Tasks, res.NeedsEditing)
	}
}

func TestExtractTaskTooLongIsSuggestedAt120Chars(t *testing.T) {
	long := "Review "
	for len(long) <= 120 {
		long += "very "
	}
	res, err := ExtractTasksFromArtifact(artifact("risk_assessment", `{"risks": [{"name": "x", "mitigation": "`+long+`"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.NeedsEditing) != 1 || res.NeedsEditing[0].Reason != "too_long" || len(res.NeedsEditing[0].SuggestedFix) != 120 {
		t.Fatalf("expected too_long with a 120-char suggestion, got %+v", res.NeedsEditing)
	}
}

func TestExtractTaskDedupesByNormalizedTitle(t *testing.T) {
	res, err := ExtractTasksFromArtifact(artifact("scenario", `{
		"name": "x",
		"triggers": ["Review the budget  overrun", "review the   budget overrun"]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tasks) != 1 {
		t.Fatalf("expected duplicate-normalized titles to collapse to one task, got %+v", res.Tasks)
	}
}
