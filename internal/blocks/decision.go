package blocks

import (
	"regexp"
	"strings"

	"github.com/quiet-coder-io/domainos/internal/normalize"
)

var decisionFence = fenceRegex(`decision`)
var kebabPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// DecisionBlock is a parsed decision block. Invalid optional enums degrade
// to empty string with a warning rather than rejecting the block.
type DecisionBlock struct {
	DecisionID         string
	Decision           string
	Rationale          string
	Downside           string
	RevisitTrigger     string
	LinkedFiles        []string
	Confidence         string
	Horizon            string
	ReversibilityClass string
	Category           string
	Authority          string
	Warnings           []normalize.ValidationWarning
}

// RejectedDecision mirrors RejectedKBUpdate's shape for decision blocks
// missing required fields.
type RejectedDecision struct {
	ID              string
	RejectionReason string
	RawExcerpt      string
}

// DecisionParseResult is the output of ParseDecisions.
type DecisionParseResult struct {
	Decisions []DecisionBlock
	Rejected  []RejectedDecision
}

// ParseDecisions implements the decision block grammar.
func ParseDecisions(text string) DecisionParseResult {
	var result DecisionParseResult
	for _, m := range findFences(text, decisionFence) {
		kv := parseKV(m.Body)
		id := kv.Fields["decisionId"]
		decision := kv.Fields["decision"]
		rationale := kv.Fields["rationale"]

		if id == "" || decision == "" || rationale == "" {
			result.Rejected = append(result.Rejected, RejectedDecision{
				ID:              ContentID(m.Body),
				RejectionReason: "MISSING_FIELDS",
				RawExcerpt:      Excerpt(m.Body),
			})
			continue
		}
		if len(id) < 3 || len(id) > 64 || !kebabPattern.MatchString(id) {
			result.Rejected = append(result.Rejected, RejectedDecision{
				ID:              ContentID(m.Body),
				RejectionReason: "INVALID_DECISION_ID",
				RawExcerpt:      Excerpt(m.Body),
			})
			continue
		}

		block := DecisionBlock{
			DecisionID:     id,
			Decision:       decision,
			Rationale:      rationale,
			Downside:       kv.Fields["downside"],
			RevisitTrigger: kv.Fields["revisitTrigger"],
		}
		if lf, ok := kv.Fields["linkedFiles"]; ok && lf != "" {
			for _, f := range strings.Split(lf, ",") {
				if trimmed := strings.TrimSpace(f); trimmed != "" {
					block.LinkedFiles = append(block.LinkedFiles, trimmed)
				}
			}
		}

		applyOptionalEnum(&block.Confidence, &block.Warnings, "confidence", kv.Fields["confidence"],
			[]string{"high", "medium", "low"})
		applyOptionalEnum(&block.Horizon, &block.Warnings, "horizon", kv.Fields["horizon"],
			[]string{"immediate", "near_term", "strategic"})
		applyOptionalEnum(&block.ReversibilityClass, &block.Warnings, "reversibilityClass", kv.Fields["reversibilityClass"],
			[]string{"reversible", "irreversible"})
		applyOptionalEnum(&block.Category, &block.Warnings, "category", kv.Fields["category"],
			[]string{"strategic", "tactical", "operational"})
		block.Authority = kv.Fields["authority"]

		result.Decisions = append(result.Decisions, block)
	}
	return result
}

// applyOptionalEnum validates an optional enum field, writing the resolved
// value into dst on success or appending a warning (leaving dst empty) on
// failure. A blank raw value is simply skipped.
func applyOptionalEnum(dst *string, warnings *[]normalize.ValidationWarning, field, raw string, allowed []string) {
	if raw == "" {
		return
	}
	val, ok, warn := normalize.ValidateEnum(field, raw, allowed)
	if ok {
		*dst = val
		return
	}
	if warn != nil {
		*warnings = append(*warnings, *warn)
	}
}
