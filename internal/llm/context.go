package llm

import "os"

// ContextSize returns an approximate context window (in tokens) for the
// given model name.
//
// It consults environment-variable overrides first, then a small built-in
// table of the model families DomainOS drives (Anthropic, OpenAI-style,
// local Ollama). The bool reports whether the value came from an override or
// a known mapping (true) versus the conservative default fallback (false).
func ContextSize(model string) (tokens int, known bool) {
	if model == "" {
		return 0, false
	}

	if v, ok := lookupContextOverride(model); ok && v > 0 {
		return v, true
	}

	if size, ok := knownContextWindows[model]; ok {
		return size, true
	}
	best, bestSize := "", 0
	for prefix, size := range knownContextWindows {
		if hasModelPrefix(model, prefix) && len(prefix) > len(best) {
			best, bestSize = prefix, size
		}
	}
	if best != "" {
		return bestSize, true
	}

	if v, ok := lookupContextOverride("*"); ok && v > 0 {
		return v, true
	}

	// Conservative default when nothing matched.
	return 32_000, false
}

// knownContextWindows holds approximate context sizes for the model families
// the provider adapters target. Values are used only for history budgeting,
// never for provider feature gating, so approximate is fine.
var knownContextWindows = map[string]int{
	// OpenAI GPT-5 family
	"gpt-5":      400_000,
	"gpt-5-mini": 400_000,
	"gpt-5-nano": 400_000,

	// OpenAI GPT-4o / GPT-4.x
	"gpt-4o":      128_000,
	"gpt-4o-mini": 128_000,

	"gpt-4.1":      1_047_576,
	"gpt-4.1-mini": 1_047_576,
	"gpt-4.1-nano": 1_047_576,

	"gpt-4-turbo":   128_000,
	"gpt-4":         8_192,
	"gpt-3.5-turbo": 16_385,

	// Anthropic Claude 4.5 (Sonnet can do 1M with a beta header; default 200K)
	"claude-sonnet-4-5": 200_000,
	"claude-haiku-4-5":  200_000,
	"claude-opus-4-5":   200_000,

	// Anthropic snapshot IDs
	"claude-sonnet-4-5-20250929": 200_000,
	"claude-haiku-4-5-20251001":  200_000,
	"claude-opus-4-5-20251101":   200_000,

	// Anthropic Claude 3.x (kept for compatibility)
	"claude-3.5":        200_000,
	"claude-3-opus":     200_000,
	"claude-3-sonnet":   200_000,
	"claude-3-haiku":    200_000,
	"claude-3.5-sonnet": 200_000,

	// Common local Ollama models
	"llama3.1": 128_000,
	"llama3":   8_192,
	"qwen2.5":  32_768,
	"mistral":  32_768,
}

// lookupContextOverride checks for environment overrides.
//
// Precedence:
//  1. DOMAINOS_MODEL_<SANITIZED_NAME>_CONTEXT_TOKENS
//  2. DOMAINOS_CONTEXT_WINDOW_TOKENS (global catch-all)
//
// When model == "*", only the global override is consulted.
func lookupContextOverride(model string) (int, bool) {
	if model == "*" {
		if n, ok := parseIntEnv(os.Getenv("DOMAINOS_CONTEXT_WINDOW_TOKENS")); ok {
			return n, true
		}
		return 0, false
	}

	key := "DOMAINOS_MODEL_" + sanitizeModelForEnv(model) + "_CONTEXT_TOKENS"
	if n, ok := parseIntEnv(os.Getenv(key)); ok {
		return n, true
	}
	if n, ok := parseIntEnv(os.Getenv("DOMAINOS_CONTEXT_WINDOW_TOKENS")); ok {
		return n, true
	}
	return 0, false
}

// sanitizeModelForEnv converts a model name into an env-var-friendly token.
func sanitizeModelForEnv(model string) string {
	out := make([]rune, 0, len(model))
	for _, r := range model {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

// hasModelPrefix treats prefix matches as sufficient to select a context
// size, so e.g. "gpt-4o-mini-2024-07-18" matches "gpt-4o-mini".
func hasModelPrefix(model, prefix string) bool {
	if len(model) < len(prefix) {
		return false
	}
	return model[:len(prefix)] == prefix
}

// parseIntEnv parses a non-negative int from an environment variable string,
// ignoring separators.
func parseIntEnv(v string) (int, bool) {
	n := 0
	found := false
	for _, r := range v {
		if r < '0' || r > '9' {
			continue
		}
		found = true
		n = n*10 + int(r-'0')
	}
	return n, found
}
