// Package prompt builds the two LLM-facing prompts DomainOS renders: the
// per-domain chat system prompt (identity, protocols, shared protocols) and
// the portfolio briefing prompt (ground-truth JSON plus static sections),
// as plain string composition with one builder per domain-facing section.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quiet-coder-io/domainos/internal/domainstatus"
	"github.com/quiet-coder-io/domainos/internal/store"
)

// KBExcerpt is one tiered knowledge-base file folded into the system
// prompt. Structural files are included
// in full; other tiers may be pre-trimmed by the caller before assembly.
type KBExcerpt struct {
	RelativePath string
	Tier         string
	Content      string
}

// SiblingDigest is a read-only `kb_digest.md` pulled from a related
// domain.
type SiblingDigest struct {
	DomainName string
	Digest     string
}

// SystemPromptInput is everything BuildSystemPrompt needs for one domain.
type SystemPromptInput struct {
	Domain              store.Domain
	Protocols           []store.Protocol
	SharedProtocols     []store.SharedProtocol
	ConversationSummary string

	// KBExcerpts are the domain's own tiered KB files, structural tier
	// first.
	KBExcerpts []KBExcerpt
	// SiblingDigests are sibling domains' kb_digest.md files, read-only.
	SiblingDigests []SiblingDigest
	// Status is the domain's own status briefing, folded in
	// as a section so the agent sees overdue work without re-deriving it.
	Status *domainstatus.Snapshot
	// AdvisoryProtocol is the fixed instructions for emitting
	// advisory-<type> blocks; nil/empty omits the section.
	AdvisoryProtocol string
}

// Manifest records what BuildSystemPrompt actually included (sections,
// files, token estimates) for telemetry and for callers enforcing their
// own outer token budget.
type Manifest struct {
	Sections        []string
	IncludedFiles   []string
	EstimatedTokens int
}

// BuildManifest reports the sections and files BuildSystemPrompt's in
// produced, plus an estimated token count for the rendered prompt
// (chars/4).
func BuildManifest(in SystemPromptInput, rendered string) Manifest {
	m := Manifest{Sections: []string{"identity"}}
	if len(in.Domain.EscalationTriggers) > 0 {
		m.Sections = append(m.Sections, "escalation_triggers")
	}
	if len(in.SharedProtocols) > 0 {
		m.Sections = append(m.Sections, "shared_protocols")
	}
	if len(in.Protocols) > 0 {
		m.Sections = append(m.Sections, "protocols")
	}
	if len(in.KBExcerpts) > 0 {
		m.Sections = append(m.Sections, "kb_excerpts")
		for _, e := range in.KBExcerpts {
			m.IncludedFiles = append(m.IncludedFiles, e.RelativePath)
		}
	}
	if len(in.SiblingDigests) > 0 {
		m.Sections = append(m.Sections, "sibling_digests")
	}
	if in.Status != nil {
		m.Sections = append(m.Sections, "status_briefing")
	}
	if in.ConversationSummary != "" {
		m.Sections = append(m.Sections, "conversation_summary")
	}
	if in.AdvisoryProtocol != "" {
		m.Sections = append(m.Sections, "advisory_protocol")
	}
	m.Sections = append(m.Sections, "block_format_guide")
	m.EstimatedTokens = len(rendered) / 4
	return m
}

// BuildSystemPrompt composes the chat system prompt: domain identity, then
// shared protocols (highest priority first), then domain-specific
// protocols, then the rolling conversation summary if present.
func BuildSystemPrompt(in SystemPromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are the DomainOS agent for the \"%s\" domain.\n\n", in.Domain.Name)
	if in.Domain.Identity != "" {
		b.WriteString(in.Domain.Identity)
		b.WriteString("\n\n")
	}

	if len(in.Domain.EscalationTriggers) > 0 {
		b.WriteString("Escalate to the user immediately if you observe any of:\n")
		for _, t := range in.Domain.EscalationTriggers {
			fmt.Fprintf(&b, "- %s\n", t)
		}
		b.WriteString("\n")
	}

	if len(in.KBExcerpts) > 0 {
		excerpts := make([]KBExcerpt, len(in.KBExcerpts))
		copy(excerpts, in.KBExcerpts)
		sort.SliceStable(excerpts, func(i, j int) bool {
			return tierRank(excerpts[i].Tier) < tierRank(excerpts[j].Tier)
		})
		b.WriteString("## Knowledge base\n")
		for _, e := range excerpts {
			fmt.Fprintf(&b, "### %s (%s)\n%s\n\n", e.RelativePath, e.Tier, e.Content)
		}
	}

	shared := make([]store.SharedProtocol, len(in.SharedProtocols))
	copy(shared, in.SharedProtocols)
	sort.SliceStable(shared, func(i, j int) bool { return shared[i].Priority > shared[j].Priority })
	for _, p := range shared {
		if !p.IsEnabled {
			continue
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", p.Name, p.Content)
	}

	protocols := make([]store.Protocol, len(in.Protocols))
	copy(protocols, in.Protocols)
	sort.SliceStable(protocols, func(i, j int) bool { return protocols[i].SortOrder < protocols[j].SortOrder })
	for _, p := range protocols {
		fmt.Fprintf(&b, "## %s\n%s\n\n", p.Name, p.Content)
	}

	if len(in.SiblingDigests) > 0 {
		b.WriteString("## Sibling domain digests (read-only)\n")
		for _, d := range in.SiblingDigests {
			fmt.Fprintf(&b, "### %s\n%s\n\n", d.DomainName, d.Digest)
		}
	}

	if in.Status != nil {
		b.WriteString(renderStatusBriefing(*in.Status))
	}

	if in.ConversationSummary != "" {
		fmt.Fprintf(&b, "## Prior conversation summary\n%s\n\n", in.ConversationSummary)
	}

	if in.AdvisoryProtocol != "" {
		fmt.Fprintf(&b, "## Advisory protocol\n%s\n\n", in.AdvisoryProtocol)
	}

	b.WriteString(blockFormatGuide)
	return b.String()
}

// tierRank orders KB excerpts structural-first, matching the precedence a
// reader would expect: the root claude.md before status/intelligence/general
// files.
func tierRank(tier string) int {
	switch tier {
	case "structural":
		return 0
	case "status":
		return 1
	case "intelligence":
		return 2
	default:
		return 3
	}
}

// renderStatusBriefing folds a domainstatus.Snapshot into a prompt
// section.
func renderStatusBriefing(s domainstatus.Snapshot) string {
	var b strings.Builder
	b.WriteString("## Status briefing\n")
	if len(s.OverdueDeadlines) > 0 {
		fmt.Fprintf(&b, "Overdue deadlines (%d):\n", len(s.OverdueDeadlines))
		for _, d := range s.OverdueDeadlines {
			fmt.Fprintf(&b, "- %s (%d days overdue, priority %d)\n", d.Text, d.DaysOverdue, d.Priority)
		}
	}
	if len(s.UpcomingDeadlines) > 0 {
		fmt.Fprintf(&b, "Upcoming deadlines (%d):\n", len(s.UpcomingDeadlines))
		for _, d := range s.UpcomingDeadlines {
			fmt.Fprintf(&b, "- %s (due %s)\n", d.Text, d.DueDate.Format("2006-01-02"))
		}
	}
	if len(s.OpenGapFlags) > 0 {
		fmt.Fprintf(&b, "Open gap flags (%d):\n", len(s.OpenGapFlags))
		for _, g := range s.OpenGapFlags {
			fmt.Fprintf(&b, "- [%s] %s\n", g.Category, g.Description)
		}
	}
	if len(s.TopActions) > 0 {
		b.WriteString("Top actions:\n")
		for _, a := range s.TopActions {
			fmt.Fprintf(&b, "- (%s, score %.1f) %s\n", a.Kind, a.Score, a.Text)
		}
	}
	if len(s.SearchHints.Keywords) > 0 {
		fmt.Fprintf(&b, "Search keywords: %s\n", strings.Join(s.SearchHints.Keywords, ", "))
	}
	b.WriteString("\n")
	return b.String()
}

// blockFormatGuide documents the fenced output grammars internal/blocks
// parses from the final assistant message, so the model
// knows the exact shape to emit.
const blockFormatGuide = `## Structured output

When you update the knowledge base, log a decision, flag a gap, or want to
end the turn, emit a fenced block using one of these types: kb-update,
decision, gap-flag, stop. Use "key: value" lines, optionally followed by a
"---" line and a free-form body. Each block is processed in the order it
appears in your reply.
`
