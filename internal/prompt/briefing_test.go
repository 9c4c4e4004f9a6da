package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/quiet-coder-io/domainos/internal/portfolio"
)

func TestBuildBriefingPromptIncludesAlertsAndRelationships(t *testing.T) {
	domains := []portfolio.DomainHealth{
		{DomainID: "a", DomainName: "Alpha", Status: portfolio.StatusBlocked,
			OutgoingDeps: []portfolio.OutgoingDep{{SiblingDomainID: "b", DependencyType: "blocks", RelationshipType: "delivery"}}},
		{DomainID: "b", DomainName: "Beta", Status: portfolio.StatusActive},
	}
	alerts := []portfolio.CrossDomainAlert{
		{SourceDomainID: "a", DependentDomainID: "b", Severity: portfolio.AlertCritical,
			Trace: portfolio.AlertTrace{DependencyType: "blocks", TriggerFile: "claude.md", BaseSeverity: 9, Escalated: true}},
	}
	out := BuildBriefingPrompt(BriefingPromptInput{
		Now: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		Domains: domains, Alerts: alerts,
		Digests: []portfolio.DomainDigest{{DomainID: "a", Text: "digest a"}, {DomainID: "b", Text: "digest b"}},
		DescribeFunc: func(d portfolio.DomainHealth) string { return d.DomainName },
	})

	if !strings.Contains(out, "2026-07-31") {
		t.Fatal("expected current date section")
	}
	if !strings.Contains(out, "a -> b") {
		t.Fatalf("expected alert line referencing a -> b, got: %s", out)
	}
	if !strings.Contains(out, "| a | b | blocks | delivery |") {
		t.Fatalf("expected relationships table row, got: %s", out)
	}
	if !strings.Contains(out, "digest a") || !strings.Contains(out, "digest b") {
		t.Fatal("expected both domain digests present")
	}
}

func TestBuildBriefingPromptNoAlertsSection(t *testing.T) {
	out := BuildBriefingPrompt(BriefingPromptInput{
		Now:          time.Now(),
		DescribeFunc: func(portfolio.DomainHealth) string { return "" },
	})
	if !strings.Contains(out, "(none)") {
		t.Fatal("expected '(none)' placeholder when there are no alerts")
	}
}
