package blocks

import (
	"regexp"
	"strconv"
	"strings"
)

// briefingFence matches any casing/separator variant of briefing-alert,
// briefing-action, briefing-monitor (e.g. briefing_alert, Briefing-Alert).
var briefingFence = regexp.MustCompile(`(?mi)^\x60\x60\x60(briefing[-_](alert|action|monitor))[^\n]*\n`)

// BriefingAlert, BriefingAction, BriefingMonitor are the three fenced
// families parsed tolerantly from briefing output.
type BriefingAlert struct {
	Domain   string
	Severity string // critical|warning|monitor
	Text     string
	Evidence string
}

type BriefingAction struct {
	Domain   string
	Text     string
	Priority int
	Deadline string // YYYY-MM-DD or "none"
}

type BriefingMonitor struct {
	Domain string
	Text   string
}

// BriefingParseResult aggregates all three families plus diagnostics and
// a count of blocks skipped because a required field was missing or invalid.
type BriefingParseResult struct {
	Alerts        []BriefingAlert
	Actions       []BriefingAction
	Monitors      []BriefingMonitor
	Diagnostics   []string
	SkippedBlocks int
}

var knownFieldNames = map[string]struct{}{
	"domain": {}, "severity": {}, "text": {}, "evidence": {},
	"priority": {}, "deadline": {},
}

// parseTolerantFields implements the tolerant multiline field parser shared
// by the three briefing- families: a "key: value" line starts a new field;
// a blank or >=2-space-indented line continues the current field (joined
// with a space); a bare known field name with no colon starts that field
// with the rest of the line as its value, plus a diagnostic; any other
// unrecognized line is appended to the current field and adds a diagnostic.
// Diagnostics are capped at 5 per block.
func parseTolerantFields(body string, diags *[]string) map[string]string {
	fields := map[string]string{}
	lines := strings.Split(body, "\n")
	current := ""

	appendDiag := func(msg string) {
		if len(*diags) < 5 {
			*diags = append(*diags, msg)
		}
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if current != "" {
				continue // blank line, field continuation no-op
			}
			continue
		}
		indented := strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t")
		trimmed := strings.TrimSpace(line)

		if idx := strings.Index(trimmed, ":"); idx > 0 && !indented {
			key := strings.ToLower(strings.TrimSpace(trimmed[:idx]))
			val := strings.TrimSpace(trimmed[idx+1:])
			if _, known := knownFieldNames[key]; known {
				current = key
				if existing, ok := fields[key]; ok && existing != "" {
					fields[key] = existing + " " + val
				} else {
					fields[key] = val
				}
				continue
			}
			// Unknown key: token itself isn't recognized; treat as
			// continuation/unrecognized content.
			appendDiag("unrecognized field '" + key + "'")
			if current != "" {
				fields[current] = strings.TrimSpace(fields[current] + " " + trimmed)
			}
			continue
		}

		if indented && current != "" {
			fields[current] = strings.TrimSpace(fields[current] + " " + trimmed)
			continue
		}

		// No colon and not a continuation: check for a bare known field name token.
		firstToken := strings.ToLower(strings.Fields(trimmed)[0])
		firstToken = strings.TrimSuffix(firstToken, ":")
		if _, known := knownFieldNames[firstToken]; known {
			current = firstToken
			rest := strings.TrimSpace(strings.TrimPrefix(trimmed, strings.Fields(trimmed)[0]))
			fields[current] = rest
			appendDiag("field '" + firstToken + "' given without colon")
			continue
		}

		appendDiag("unrecognized line ignored: " + Excerpt(trimmed))
		if current != "" {
			fields[current] = strings.TrimSpace(fields[current] + " " + trimmed)
		}
	}
	return fields
}

// ParseBriefingBlocks implements the briefing-alert/action/monitor
// grammar.
func ParseBriefingBlocks(text string) BriefingParseResult {
	var result BriefingParseResult
	for _, m := range findFences(text, briefingFence) {
		kind := strings.ToLower(strings.ReplaceAll(m.Type, "_", "-"))
		var diags []string
		fields := parseTolerantFields(m.Body, &diags)
		result.Diagnostics = append(result.Diagnostics, diags...)

		switch {
		case strings.HasSuffix(kind, "alert"):
			domain, severityRaw, txt, evidence := fields["domain"], fields["severity"], fields["text"], fields["evidence"]
			severity := strings.ToLower(severityRaw)
			if domain == "" || txt == "" || evidence == "" || !isValidSeverity(severity) {
				result.SkippedBlocks++
				continue
			}
			result.Alerts = append(result.Alerts, BriefingAlert{
				Domain: domain, Severity: severity, Text: txt, Evidence: evidence,
			})
		case strings.HasSuffix(kind, "action"):
			domain, txt, priorityRaw, deadline := fields["domain"], fields["text"], fields["priority"], fields["deadline"]
			priority, err := strconv.Atoi(strings.TrimSpace(priorityRaw))
			if domain == "" || txt == "" || err != nil || priority < 1 || priority > 7 {
				result.SkippedBlocks++
				continue
			}
			if deadline == "" {
				deadline = "none"
			}
			result.Actions = append(result.Actions, BriefingAction{
				Domain: domain, Text: txt, Priority: priority, Deadline: deadline,
			})
		case strings.HasSuffix(kind, "monitor"):
			domain, txt := fields["domain"], fields["text"]
			if domain == "" || txt == "" {
				result.SkippedBlocks++
				continue
			}
			result.Monitors = append(result.Monitors, BriefingMonitor{Domain: domain, Text: txt})
		}
	}
	return result
}

func isValidSeverity(s string) bool {
	return s == "critical" || s == "warning" || s == "monitor"
}
