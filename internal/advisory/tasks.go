package advisory

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/quiet-coder-io/domainos/internal/store"
)

const (
	taskTitleMin = 6
	taskTitleMax = 120
)

// Task is one actionable item extracted from an advisory artifact.
type Task struct {
	Title    string
	Priority string // "high", "low", or "" (unspecified)
}

// NeedsEditing is a candidate task whose title failed validation.
type NeedsEditing struct {
	Title        string
	Reason       string // "too_long" | "too_short" | "missing_action_indicator"
	SuggestedFix string
}

// ExtractResult is extractTasksFromArtifact's output.
type ExtractResult struct {
	Tasks         []Task
	NeedsEditing  []NeedsEditing
	ArtifactID    string
	ArtifactTitle string
}

type candidateTask struct {
	Title    string
	Priority string
}

// ExtractTasksFromArtifact parses a's content JSON and applies the
// type-specific extraction rules, then validates and deduplicates the
// resulting candidate titles.
func ExtractTasksFromArtifact(a store.AdvisoryArtifact) (ExtractResult, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(a.Content), &payload); err != nil {
		return ExtractResult{}, err
	}

	var candidates []candidateTask
	switch a.Type {
	case "brainstorm":
		candidates = extractBrainstorm(payload)
	case "risk_assessment":
		candidates = extractRiskAssessment(payload)
	case "scenario":
		candidates = extractScenario(payload)
	case "strategic_review":
		candidates = extractStrategicReview(payload)
	}

	result := ExtractResult{ArtifactID: a.ID, ArtifactTitle: a.Title}
	seen := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		title := strings.TrimSpace(cand.Title)
		if v := validateTaskTitle(title); v != nil {
			result.NeedsEditing = append(result.NeedsEditing, NeedsEditing{
				Title: title, Reason: v.reason, SuggestedFix: v.suggestion,
			})
			continue
		}
		key := dedupeKey(title)
		if seen[key] {
			continue
		}
		seen[key] = true
		result.Tasks = append(result.Tasks, Task{Title: title, Priority: cand.Priority})
	}
	return result, nil
}

func extractBrainstorm(payload map[string]interface{}) []candidateTask {
	options := asObjectSlice(payload["options"])

	var fromAction []candidateTask
	for _, opt := range options {
		if action, ok := asString(opt["action"]); ok && action != "" {
			fromAction = append(fromAction, candidateTask{Title: action})
		}
	}
	if len(fromAction) > 0 {
		return fromAction
	}

	if rec, ok := asString(payload["recommendation"]); ok && rec != "" {
		return []candidateTask{{Title: rec}}
	}

	var fromTitle []candidateTask
	for _, opt := range options {
		if title, ok := asString(opt["title"]); ok && title != "" {
			fromTitle = append(fromTitle, candidateTask{Title: "Evaluate: " + title})
		}
	}
	return fromTitle
}

func extractRiskAssessment(payload map[string]interface{}) []candidateTask {
	var out []candidateTask
	for _, risk := range asObjectSlice(payload["risks"]) {
		if mitigation, ok := asString(risk["mitigation"]); ok && mitigation != "" {
			out = append(out, candidateTask{Title: mitigation, Priority: "high"})
		}
	}
	return out
}

func extractScenario(payload map[string]interface{}) []candidateTask {
	var out []candidateTask
	for _, trigger := range asStringSlice(payload["triggers"]) {
		out = append(out, candidateTask{Title: "Monitor: " + trigger, Priority: "low"})
	}
	return out
}

func extractStrategicReview(payload map[string]interface{}) []candidateTask {
	var out []candidateTask
	if action, ok := asString(payload["highest_leverage_action"]); ok && action != "" {
		out = append(out, candidateTask{Title: action, Priority: "high"})
	}
	for _, assumption := range asStringSlice(payload["assumptions_to_check"]) {
		out = append(out, candidateTask{Title: "Verify: " + assumption})
	}
	return out
}

func asObjectSlice(v interface{}) []map[string]interface{} {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(arr))
	for _, e := range arr {
		if obj, ok := e.(map[string]interface{}); ok {
			out = append(out, obj)
		}
	}
	return out
}

func asStringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

type titleViolation struct {
	reason     string
	suggestion string
}

// validateTaskTitle requires length in [6,120] and an action indicator
// among the first four tokens.
func validateTaskTitle(title string) *titleViolation {
	if len(title) < taskTitleMin {
		return &titleViolation{reason: "too_short", suggestion: title}
	}
	if len(title) > taskTitleMax {
		return &titleViolation{reason: "too_long", suggestion: title[:taskTitleMax]}
	}
	if !hasActionIndicator(title) {
		return &titleViolation{reason: "missing_action_indicator", suggestion: "Review: " + title}
	}
	return nil
}

// actionVerbs is the verb set candidate titles are validated against.
// hasActionIndicator checks the first four tokens, which covers both a
// leading verb and the [Noun] + action-verb form.
var actionVerbs = map[string]bool{
	"review": true, "verify": true, "evaluate": true, "monitor": true,
	"draft": true, "schedule": true, "escalate": true, "create": true,
	"update": true, "fix": true, "investigate": true, "confirm": true,
	"assign": true, "notify": true, "resolve": true, "check": true,
	"decide": true, "clarify": true, "prepare": true, "submit": true,
	"finalize": true, "implement": true, "follow": true, "reach": true,
	"document": true, "audit": true, "migrate": true, "archive": true,
	"mitigate": true, "address": true, "validate": true, "reassign": true,
	"negotiate": true,
}

var titleTokenTrim = regexp.MustCompile(`^[^\w]+|[^\w]+$`)

// hasActionIndicator reports whether any of title's first four tokens is a
// known action verb (case-insensitive).
func hasActionIndicator(title string) bool {
	tokens := strings.Fields(title)
	n := len(tokens)
	if n > 4 {
		n = 4
	}
	for i := 0; i < n; i++ {
		word := strings.ToLower(titleTokenTrim.ReplaceAllString(tokens[i], ""))
		if actionVerbs[word] {
			return true
		}
	}
	return false
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// dedupeKey is the task dedup key: trim, lowercase, collapse whitespace.
// It doubles as the canonicalization applied to the fingerprint's title
// and canonicalCore fields, so Fingerprint (repository.go) reuses it
// rather than duplicating the transform.
func dedupeKey(title string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), " ")
}

// fingerprintCore selects the per-advisory-type subset of payload fields
// that participate in Fingerprint's canonicalCore (no raw, uncanonicalized
// copy of the core is hashed): for
// brainstorm, {topic, options[].title|label}; the other three types mirror
// the field choices ExtractTasksFromArtifact already makes above: a
// payload edit that changes a task-bearing field is a genuine edit and
// should mint a new artifact.
func fingerprintCore(advisoryType string, payload map[string]interface{}) map[string]interface{} {
	switch advisoryType {
	case "brainstorm":
		topic, _ := asString(payload["topic"])
		titles := make([]interface{}, 0)
		for _, opt := range asObjectSlice(payload["options"]) {
			title, ok := asString(opt["title"])
			if !ok || title == "" {
				title, _ = asString(opt["label"])
			}
			titles = append(titles, title)
		}
		return map[string]interface{}{"topic": topic, "options": titles}
	case "risk_assessment":
		mitigations := make([]interface{}, 0)
		for _, risk := range asObjectSlice(payload["risks"]) {
			mitigation, _ := asString(risk["mitigation"])
			mitigations = append(mitigations, mitigation)
		}
		return map[string]interface{}{"risks": mitigations}
	case "scenario":
		triggers := make([]interface{}, 0)
		for _, t := range asStringSlice(payload["triggers"]) {
			triggers = append(triggers, t)
		}
		return map[string]interface{}{"triggers": triggers}
	case "strategic_review":
		action, _ := asString(payload["highest_leverage_action"])
		assumptions := make([]interface{}, 0)
		for _, a := range asStringSlice(payload["assumptions_to_check"]) {
			assumptions = append(assumptions, a)
		}
		return map[string]interface{}{"highest_leverage_action": action, "assumptions_to_check": assumptions}
	default:
		return map[string]interface{}{}
	}
}

// canonicalizeCore applies dedupeKey's trim+lowercase+whitespace-collapse to
// every string leaf of core (recursing into []interface{} produced by
// fingerprintCore), producing the canonicalCore half of the fingerprint.
func canonicalizeCore(core map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(core))
	for k, v := range core {
		out[k] = canonicalizeLeaf(v)
	}
	return out
}

func canonicalizeLeaf(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return dedupeKey(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = canonicalizeLeaf(e)
		}
		return out
	default:
		return v
	}
}
