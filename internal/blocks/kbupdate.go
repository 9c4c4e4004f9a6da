package blocks

import (
	"path"
	"strings"
)

var kbUpdateFence = fenceRegex(`kb-update`)

// KBTier values, per the GLOSSARY.
const (
	TierStructural   = "structural"
	TierStatus       = "status"
	TierIntelligence = "intelligence"
	TierGeneral      = "general"
)

// KBUpdateProposal is an accepted kb-update block.
type KBUpdateProposal struct {
	File      string
	Action    string // create|update|delete
	Tier      string
	Mode      string // full|append|patch
	Basis     string // primary|sibling|external|user
	Reasoning string
	Content   string
}

// RejectedKBUpdate is a rejected kb-update block, order-stable with source.
type RejectedKBUpdate struct {
	ID              string
	File            string
	Action          string
	Reasoning       string
	RejectionReason string
	SuggestedFix    string
	RawExcerpt      string
}

// KBUpdateParseResult is the output of ParseKBUpdates.
type KBUpdateParseResult struct {
	Proposals         []KBUpdateProposal
	RejectedProposals []RejectedKBUpdate
}

// ParseKBUpdates implements the kb-update grammar and validation chain.
// Blocks lacking a "file:" field entirely are silently
// ignored (not rejected); every other failure produces a named rejection in
// source order.
func ParseKBUpdates(text string) KBUpdateParseResult {
	var result KBUpdateParseResult
	for _, m := range findFences(text, kbUpdateFence) {
		kv := parseKV(m.Body)
		file, hasFile := kv.Fields["file"]
		if !hasFile {
			continue // rule 1: not considered, not rejected
		}

		reject := func(reason, suggestedFix string) {
			result.RejectedProposals = append(result.RejectedProposals, RejectedKBUpdate{
				ID:              ContentID(m.Body),
				File:            file,
				Action:          kv.Fields["action"],
				Reasoning:       kv.Fields["reasoning"],
				RejectionReason: reason,
				SuggestedFix:    suggestedFix,
				RawExcerpt:      Excerpt(m.Body),
			})
		}

		action, hasAction := kv.Fields["action"]
		reasoning, hasReasoning := kv.Fields["reasoning"]
		if !hasAction || !hasReasoning || !kv.HasBody {
			reject("MISSING_FIELDS", "provide file, action, reasoning, and a --- separator before content")
			continue
		}

		if action != "create" && action != "update" && action != "delete" {
			reject("INVALID_ACTION", "action must be one of create, update, delete")
			continue
		}

		if strings.Contains(file, "..") || path.IsAbs(file) {
			reject("PATH_TRAVERSAL", "file must be a relative path inside the domain KB root")
			continue
		}

		tier, hasTier := kv.Fields["tier"]
		if !hasTier || tier == "" {
			tier = inferTier(file)
		}

		mode := kv.Fields["mode"]

		if tier == TierStructural && mode != "patch" {
			reject("STRUCTURAL_REQUIRES_PATCH", "structural-tier files may only be edited with mode: patch")
			continue
		}
		if tier == TierStatus && mode == "patch" {
			reject("STATUS_NO_PATCH", "status-tier files disallow mode: patch; use full or append")
			continue
		}

		if action == "delete" {
			confirm, ok := kv.Fields["confirm"]
			expected := "DELETE " + file
			if !ok || confirm != expected {
				reject("DELETE_NEEDS_CONFIRM", "add 'confirm: "+expected+"' to confirm deletion")
				continue
			}
		}

		result.Proposals = append(result.Proposals, KBUpdateProposal{
			File:      file,
			Action:    action,
			Tier:      tier,
			Mode:      mode,
			Basis:     kv.Fields["basis"],
			Reasoning: reasoning,
			Content:   kv.Body,
		})
	}
	return result
}

// inferTier implements the filename-based tier inference rule: root
// claude.md -> structural, kb_digest.md -> status, kb_intel.md ->
// intelligence, else general. A nested claude.md (i.e. not at the KB root)
// is forcibly downgraded to general.
func inferTier(file string) string {
	base := path.Base(file)
	isRoot := !strings.Contains(path.Clean(file), "/")
	switch {
	case base == "claude.md" && isRoot:
		return TierStructural
	case base == "claude.md":
		return TierGeneral // nested claude.md downgraded
	case base == "kb_digest.md":
		return TierStatus
	case base == "kb_intel.md":
		return TierIntelligence
	default:
		return TierGeneral
	}
}
