package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/quiet-coder-io/domainos/internal/portfolio"
)

// BriefingPromptInput is everything BuildBriefingPrompt needs.
type BriefingPromptInput struct {
	Now          time.Time
	Domains      []portfolio.DomainHealth
	Alerts       []portfolio.CrossDomainAlert
	Digests      []portfolio.DomainDigest
	TokenBudget  int
	DescribeFunc func(portfolio.DomainHealth) string
}

// BuildBriefingPrompt assembles the static sections, ground-truth JSON,
// computed alerts, relationships table, output-format examples, and the
// compressed digests, in that fixed order.
func BuildBriefingPrompt(in BriefingPromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Current date: %s\n\n", in.Now.UTC().Format("2006-01-02"))

	projected := portfolio.ProjectHealthV1(in.Domains, in.DescribeFunc)
	groundTruth, _ := json.MarshalIndent(projected, "", "  ")
	b.WriteString("## Ground truth (authoritative — do not contradict)\n```json\n")
	b.Write(groundTruth)
	b.WriteString("\n```\n\n")

	b.WriteString("## Computed alerts (do not dismiss or downgrade)\n")
	if len(in.Alerts) == 0 {
		b.WriteString("(none)\n\n")
	} else {
		for _, a := range in.Alerts {
			fmt.Fprintf(&b, "- [%s] %s -> %s (%s, trigger: %s, severity %.1f%s)\n",
				a.Severity, a.SourceDomainID, a.DependentDomainID, a.Trace.DependencyType, a.Trace.TriggerFile,
				a.Trace.BaseSeverity, escalatedSuffix(a.Trace.Escalated))
		}
		b.WriteString("\n")
	}

	b.WriteString(relationshipsTable(in.Domains))
	b.WriteString("\n")
	b.WriteString(outputFormatExamples)
	b.WriteString("\n")
	b.WriteString(briefingConstraints)
	b.WriteString("\n")

	budget := in.TokenBudget
	if budget <= 0 {
		budget = portfolio.DefaultTokenBudget
	}
	compressed := portfolio.CompressDigests(in.Digests, budget)
	b.WriteString("## Domain digests\n")
	for _, d := range compressed {
		fmt.Fprintf(&b, "### %s\n%s\n\n", d.DomainID, d.Text)
	}

	return b.String()
}

func escalatedSuffix(escalated bool) string {
	if escalated {
		return ", escalated"
	}
	return ""
}

// relationshipsTable renders the authoritative relationships table so the
// model's analysis can cite dependency edges without re-deriving them.
func relationshipsTable(domains []portfolio.DomainHealth) string {
	var b strings.Builder
	b.WriteString("## Domain relationships\n| source | dependent | type | relationship |\n|---|---|---|---|\n")
	any := false
	for _, d := range portfolio.SortedByDomainID(domains) {
		for _, dep := range d.OutgoingDeps {
			any = true
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", d.DomainID, dep.SiblingDomainID, dep.DependencyType, dep.RelationshipType)
		}
	}
	if !any {
		b.WriteString("| (none) | | | |\n")
	}
	return b.String()
}

const outputFormatExamples = `## Output format
Emit briefing blocks at the end of your reply, one fenced block per item:

` + "```briefing-alert" + `
domain: <domainId>
severity: critical|warning|monitor
text: <one-line summary>
evidence: <ground-truth citation>
` + "```" + `

` + "```briefing-action" + `
domain: <domainId>
priority: 1-7
deadline: YYYY-MM-DD
text: <action text>
` + "```" + `

` + "```briefing-monitor" + `
domain: <domainId>
text: <what to watch>
` + "```"

const briefingConstraints = `## Constraints
- Use only the domainIds present in the ground-truth JSON.
- Do not invent deadlines, gap flags, or relationships not present above.
- The computed alerts are authoritative; explain them, do not override them.
- Prefer the fewest actions that address the highest-severity domains first.`
