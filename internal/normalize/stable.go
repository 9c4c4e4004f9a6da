// Package normalize implements the stable-serialization, fingerprinting,
// and enum/keyword canonicalization primitives shared across the rest of
// DomainOS: fingerprint dedup, token-budget compression inputs, and
// normalized enums all route through here.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// StableStringify renders v as a canonical string: object keys sorted
// ascending, array order preserved, numbers via strconv, null for
// nil/unrepresentable values. The result is suitable for hashing but is not
// meant to be unmarshaled back.
func StableStringify(v interface{}) string {
	var b strings.Builder
	writeStable(&b, v)
	return b.String()
}

func writeStable(b *strings.Builder, v interface{}) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		enc, _ := json.Marshal(t)
		b.Write(enc)
	case float64:
		b.WriteString(formatNumber(t))
	case int:
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case json.Number:
		b.WriteString(t.String())
	case []interface{}:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeStable(b, e)
		}
		b.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			enc, _ := json.Marshal(k)
			b.Write(enc)
			b.WriteByte(':')
			writeStable(b, t[k])
		}
		b.WriteByte('}')
	default:
		// Fall back through JSON round-trip so structs/slices of structs
		// serialize using their json tags, then re-normalize the generic form.
		raw, err := json.Marshal(t)
		if err != nil {
			b.WriteString("null")
			return
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			b.WriteString("null")
			return
		}
		if _, ok := generic.(map[string]interface{}); ok {
			writeStable(b, generic)
			return
		}
		if _, ok := generic.([]interface{}); ok {
			writeStable(b, generic)
			return
		}
		// Primitive after round-trip (e.g. a named string/int type).
		writeStable(b, generic)
	}
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// StableHash returns the lowercase hex sha256 of StableStringify(v).
func StableHash(v interface{}) string {
	sum := sha256.Sum256([]byte(StableStringify(v)))
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first n hex characters of sha256(content). Used for
// deterministic short ids (e.g. rejected kb-update proposal ids, first 8 hex).
func ShortHash(content string, n int) string {
	sum := sha256.Sum256([]byte(content))
	h := hex.EncodeToString(sum[:])
	if n > len(h) {
		n = len(h)
	}
	return h[:n]
}
