package normalize

import (
	"regexp"
	"strings"
)

var enumCollapse = regexp.MustCompile(`[\s-]+`)

// NormalizeEnum lowercases, trims, and collapses whitespace/hyphen runs to a
// single underscore: "Risk Assessment" -> "risk_assessment".
func NormalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return enumCollapse.ReplaceAllString(s, "_")
}

// aliases maps common synonyms onto their canonical enum value. Lookups are
// case/whitespace-insensitive: the input is normalized before consulting the
// table.
var aliases = map[string]string{
	"riskassessment":    "risk_assessment",
	"risk-assessment":   "risk_assessment",
	"y":                 "yes",
	"true":              "yes",
	"n":                 "no",
	"false":             "no",
	"docs":              "documentation",
	"doc":               "documentation",
	"finance":           "financial",
	"financials":        "financial",
	"security_incident": "security",
	"securityincident":  "security",
}

// ResolveAlias normalizes s and then resolves any known alias onto its
// canonical form. If no alias applies, the normalized value is returned
// unchanged.
func ResolveAlias(s string) string {
	norm := NormalizeEnum(s)
	if canonical, ok := aliases[norm]; ok {
		return canonical
	}
	return norm
}

// ValidationWarning is a soft-failure record produced when a field
// normalizes but does not land in an allowed set, or collides with an alias
// table ambiguity. Parsers attach these as diagnostics rather than
// rejecting the surrounding block.
type ValidationWarning struct {
	Field   string
	Raw     string
	Message string
}

// ValidateEnum resolves raw via ResolveAlias and, if the result is in
// allowed, returns (value, true, nil). Otherwise it returns ("", false, a
// warning); callers decide whether the warning is fatal to the block.
func ValidateEnum(field, raw string, allowed []string) (string, bool, *ValidationWarning) {
	resolved := ResolveAlias(raw)
	for _, a := range allowed {
		if resolved == a {
			return resolved, true, nil
		}
	}
	return "", false, &ValidationWarning{
		Field:   field,
		Raw:     raw,
		Message: "value '" + raw + "' did not normalize to an allowed value for " + field,
	}
}
