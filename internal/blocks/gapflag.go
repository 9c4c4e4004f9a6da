package blocks

import "github.com/quiet-coder-io/domainos/internal/normalize"

var gapFlagFence = fenceRegex(`gap-flag`)
var stopFence = fenceRegex(`stop`)

// GapFlagBlock is a parsed gap-flag block.
type GapFlagBlock struct {
	Category    string
	Description string
}

// StopBlock is a parsed stop block.
type StopBlock struct {
	Reason       string
	ActionNeeded string
}

// RejectedMinimalBlock is shared by gap-flag and stop rejections.
type RejectedMinimalBlock struct {
	ID              string
	RejectionReason string
	RawExcerpt      string
}

// GapFlagParseResult is the output of ParseGapFlags.
type GapFlagParseResult struct {
	GapFlags []GapFlagBlock
	Rejected []RejectedMinimalBlock
}

// ParseGapFlags implements the gap-flag grammar: requires category and
// description; category is normalized through the shared enum aliases.
func ParseGapFlags(text string) GapFlagParseResult {
	var result GapFlagParseResult
	for _, m := range findFences(text, gapFlagFence) {
		kv := parseKV(m.Body)
		category := kv.Fields["category"]
		description := kv.Fields["description"]
		if category == "" || description == "" {
			result.Rejected = append(result.Rejected, RejectedMinimalBlock{
				ID:              ContentID(m.Body),
				RejectionReason: "MISSING_FIELDS",
				RawExcerpt:      Excerpt(m.Body),
			})
			continue
		}
		result.GapFlags = append(result.GapFlags, GapFlagBlock{
			Category:    normalize.ResolveAlias(category),
			Description: description,
		})
	}
	return result
}

// StopParseResult is the output of ParseStops.
type StopParseResult struct {
	Stops    []StopBlock
	Rejected []RejectedMinimalBlock
}

// ParseStops implements the stop grammar: requires reason and actionNeeded.
func ParseStops(text string) StopParseResult {
	var result StopParseResult
	for _, m := range findFences(text, stopFence) {
		kv := parseKV(m.Body)
		reason := kv.Fields["reason"]
		actionNeeded := kv.Fields["actionNeeded"]
		if reason == "" || actionNeeded == "" {
			result.Rejected = append(result.Rejected, RejectedMinimalBlock{
				ID:              ContentID(m.Body),
				RejectionReason: "MISSING_FIELDS",
				RawExcerpt:      Excerpt(m.Body),
			})
			continue
		}
		result.Stops = append(result.Stops, StopBlock{Reason: reason, ActionNeeded: actionNeeded})
	}
	return result
}
