// Package blocks implements the fenced structured-block parsers: kb-update,
// decision, gap-flag, stop, the tolerant briefing-* family, and the strict
// JSON advisory-<type> family. Every parser here runs on final assistant
// text only and never throws; rejections are accumulated and returned
// alongside whatever did parse.
package blocks

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

const excerptCap = 200

var controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)

// Excerpt strips control characters other than tab, newline and carriage
// return from s and caps it at excerptCap bytes,
// for diagnostic display of rejected block content.
func Excerpt(s string) string {
	clean := controlChars.ReplaceAllString(s, "")
	if len(clean) > excerptCap {
		clean = clean[:excerptCap]
	}
	return clean
}

// ContentID returns the first 8 hex characters of sha256(content),
// used as the deterministic id for rejected proposals.
func ContentID(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:8]
}

// KVBlock is a parsed key: value region with an optional free-form body
// following a "---" separator line, shared by the kb-update/decision/
// gap-flag/stop grammars.
type KVBlock struct {
	Fields map[string]string
	// FieldOrder preserves first-seen field order (diagnostics only).
	FieldOrder []string
	Body       string
	HasBody    bool
	Raw        string
}

// parseKV splits a fenced block's inner text into key: value lines followed
// by an optional "---\n" separator and free-form body. Lines before the
// first separator that don't match "key: value" are ignored (not fatal);
// callers validate required fields themselves.
func parseKV(inner string) KVBlock {
	lines := strings.Split(inner, "\n")
	kv := KVBlock{Fields: map[string]string{}, Raw: inner}
	sepIdx := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "---" {
			sepIdx = i
			break
		}
	}
	fieldLines := lines
	if sepIdx >= 0 {
		fieldLines = lines[:sepIdx]
		kv.HasBody = true
		kv.Body = strings.TrimSpace(strings.Join(lines[sepIdx+1:], "\n"))
	}
	for _, line := range fieldLines {
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		if _, exists := kv.Fields[key]; !exists {
			kv.FieldOrder = append(kv.FieldOrder, key)
		}
		kv.Fields[key] = val
	}
	return kv
}

// fenceRegex builds a regex matching an opened fence for the given literal
// type names (alternation), anchored at line start, tolerating a trailing
// language-ish suffix on the same line.
func fenceRegex(types string) *regexp.Regexp {
	return regexp.MustCompile("(?m)^```(" + types + ")[^\n]*\n")
}

// findFences returns, for every fenced region whose opening line matches re,
// the matched type-group text and the raw inner body (everything up to the
// next line that begins with "```").
func findFences(text string, re *regexp.Regexp) []fenceMatch {
	var out []fenceMatch
	locs := re.FindAllStringSubmatchIndex(text, -1)
	for _, loc := range locs {
		typeStart, typeEnd := loc[2], loc[3]
		bodyStart := loc[1]
		closeIdx := strings.Index(text[bodyStart:], "\n```")
		var body string
		var end int
		if closeIdx < 0 {
			body = text[bodyStart:]
			end = len(text)
		} else {
			body = text[bodyStart : bodyStart+closeIdx]
			end = bodyStart + closeIdx + len("\n```")
		}
		out = append(out, fenceMatch{
			Type:  text[typeStart:typeEnd],
			Body:  body,
			Start: loc[0],
			End:   end,
		})
	}
	return out
}

type fenceMatch struct {
	Type  string
	Body  string
	Start int
	End   int
}
