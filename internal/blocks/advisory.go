package blocks

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/quiet-coder-io/domainos/internal/normalize"
)

// advisoryFence matches only lines opening a fence with "advisory-<word>",
// case-sensitive, so an advisory and a briefing block in one response stay
// unambiguous.
var advisoryFence = regexp.MustCompile("(?m)^```(advisory-\\w+)[^\n]*\n")

const (
	maxRawBytes     = 32 * 1024
	maxPayloadBytes = 32 * 1024
	maxPersistable  = 2
	maxDraft        = 2
)

var advisoryTypes = map[string]struct{}{
	"brainstorm": {}, "risk_assessment": {}, "scenario": {}, "strategic_review": {},
}

const currentSchemaVersion = 1

var advisoryModeComment = regexp.MustCompile(`<!--\s*advisory_mode:\s*(\w+)\s*-->`)

// controlFieldNames are the fields extracted out of the advisory JSON
// object before the remainder is treated as payload; a payload schema may
// not reuse these names.
var controlFieldNames = map[string]struct{}{
	"schemaVersion": {}, "type": {}, "title": {}, "persist": {},
}

// AdvisoryCandidate is a successfully-validated advisory-<type> block,
// prior to repository-level rate-limit/dedup handling (internal/advisory).
type AdvisoryCandidate struct {
	Type          string
	SchemaVersion int
	Title         string
	Persist       string // yes|no|archive
	Payload       map[string]interface{}
	RawBody       string
}

// RejectedAdvisory is a rejected advisory-<type> block.
type RejectedAdvisory struct {
	RejectionReason string
	Detail          string
	RawExcerpt      string
}

// AdvisoryParseResult is the output of ParseAdvisoryBlocks (the pure-parse
// half; see internal/advisory for the repository-backed half).
type AdvisoryParseResult struct {
	Selected     []AdvisoryCandidate // persistable, then non-persistable, capped at maxPersistable
	DraftBlocks  []AdvisoryCandidate // first maxDraft of the non-persistable selected
	Rejected     []RejectedAdvisory
	AdvisoryMode string
	CapExceeded  int // count of blocks dropped by response_block_cap_exceeded
}

// ParseAdvisoryBlocks applies the advisory-<type> grammar and selection
// rules.
func ParseAdvisoryBlocks(text string) AdvisoryParseResult {
	result := AdvisoryParseResult{AdvisoryMode: "general"}
	if m := advisoryModeComment.FindStringSubmatch(text); m != nil {
		mode := strings.ToLower(m[1])
		switch mode {
		case "brainstorm", "challenge", "review", "scenario", "general":
			result.AdvisoryMode = mode
		}
	}

	var persistable, nonPersistable []AdvisoryCandidate

	for _, m := range findFences(text, advisoryFence) {
		suffix := strings.TrimPrefix(m.Type, "advisory-")
		normalizedType := normalize.NormalizeEnum(suffix)
		body := m.Body
		sizeBytes := len(body)

		reject := func(reason, detail string) {
			result.Rejected = append(result.Rejected, RejectedAdvisory{
				RejectionReason: reason, Detail: detail, RawExcerpt: Excerpt(body),
			})
		}

		if _, ok := advisoryTypes[normalizedType]; !ok {
			reject("invalid_fence_type", suffix)
			continue
		}
		if sizeBytes > maxRawBytes {
			reject("raw_size_exceeded", "")
			continue
		}

		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(body), &obj); err != nil {
			reject("invalid_json", err.Error())
			continue
		}

		schemaVersion, ok := extractSchemaVersion(obj)
		if !ok {
			reject("invalid_schema_version", "")
			continue
		}
		typeField, _ := obj["type"].(string)
		if typeField == "" || normalize.NormalizeEnum(typeField) != normalizedType {
			reject("type_mismatch", typeField)
			continue
		}
		title, ok := obj["title"].(string)
		if !ok || !validTitle(title) {
			reject("invalid_title", "")
			continue
		}
		persistRaw, _ := obj["persist"].(string)
		persist, ok, _ := normalize.ValidateEnum("persist", persistRaw, []string{"yes", "no", "archive"})
		if !ok {
			reject("invalid_persist", persistRaw)
			continue
		}

		payload := map[string]interface{}{}
		for k, v := range obj {
			if _, isControl := controlFieldNames[k]; isControl {
				continue
			}
			payload[k] = v
		}
		payloadJSON, _ := json.Marshal(payload)
		if len(payloadJSON) > maxPayloadBytes {
			reject("payload_size_exceeded", "")
			continue
		}

		if violation := validatePayload(normalizedType, payload); violation != nil {
			reject(violation.Reason, violation.Detail)
			continue
		}

		softNormalizePayloadEnums(payload)

		candidate := AdvisoryCandidate{
			Type:          normalizedType,
			SchemaVersion: schemaVersion,
			Title:         title,
			Persist:       persist,
			Payload:       payload,
			RawBody:       body,
		}

		if persist == "yes" || persist == "archive" {
			persistable = append(persistable, candidate)
		} else {
			nonPersistable = append(nonPersistable, candidate)
		}
	}

	all := append(append([]AdvisoryCandidate{}, persistable...), nonPersistable...)
	if len(all) > maxPersistable {
		for _, dropped := range all[maxPersistable:] {
			result.Rejected = append(result.Rejected, RejectedAdvisory{
				RejectionReason: "response_block_cap_exceeded",
				Detail:          dropped.Title,
				RawExcerpt:      Excerpt(dropped.RawBody),
			})
		}
		result.CapExceeded = len(all) - maxPersistable
		all = all[:maxPersistable]
	}
	result.Selected = all

	draftCount := 0
	for _, c := range all {
		if c.Persist == "no" && draftCount < maxDraft {
			result.DraftBlocks = append(result.DraftBlocks, c)
			draftCount++
		}
	}

	return result
}

func extractSchemaVersion(obj map[string]interface{}) (int, bool) {
	raw, ok := obj["schemaVersion"]
	if !ok {
		return 0, false
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, false
	}
	v := int(f)
	if v < 1 || v > currentSchemaVersion {
		return 0, false
	}
	return v, true
}

var controlCharPattern = regexp.MustCompile(`[\x00-\x1F]`)

func validTitle(title string) bool {
	if len(title) < 4 || len(title) > 120 {
		return false
	}
	if controlCharPattern.MatchString(title) {
		return false
	}
	if strings.ContainsAny(title, "<>") {
		return false
	}
	return true
}

// softNormalizePayloadEnums normalizes optional trend/trendConfidence
// fields in place via the shared enum normalization, leaving other fields
// untouched.
func softNormalizePayloadEnums(payload map[string]interface{}) {
	for _, field := range []string{"trend", "trendConfidence"} {
		if raw, ok := payload[field].(string); ok && raw != "" {
			payload[field] = normalize.ResolveAlias(raw)
		}
	}
}
