package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStableStringifyKeyOrderIndependent(t *testing.T) {
	a := map[string]interface{}{"a": 1, "b": 2}
	b := map[string]interface{}{"b": 2, "a": 1}
	require.Equal(t, StableStringify(a), StableStringify(b))
}

func TestStableStringifyNested(t *testing.T) {
	a := map[string]interface{}{
		"outer": map[string]interface{}{"z": 1, "y": 2},
		"list":  []interface{}{3, 1, 2},
	}
	b := map[string]interface{}{
		"list":  []interface{}{3, 1, 2},
		"outer": map[string]interface{}{"y": 2, "z": 1},
	}
	require.Equal(t, StableStringify(a), StableStringify(b))
}

func TestStableHashDeterministic(t *testing.T) {
	v := map[string]interface{}{"x": "hello"}
	require.Equal(t, StableHash(v), StableHash(v))
}

func TestShortHashLength(t *testing.T) {
	h := ShortHash("some content", 8)
	require.Len(t, h, 8)
}

func TestNormalizeEnum(t *testing.T) {
	require.Equal(t, "risk_assessment", NormalizeEnum("Risk Assessment"))
	require.Equal(t, "strategic_review", NormalizeEnum("strategic-review"))
}

func TestResolveAlias(t *testing.T) {
	require.Equal(t, "risk_assessment", ResolveAlias("riskassessment"))
	require.Equal(t, "yes", ResolveAlias("Y"))
	require.Equal(t, "documentation", ResolveAlias("docs"))
	require.Equal(t, "financial", ResolveAlias("Finance"))
}

func TestValidateEnum(t *testing.T) {
	val, ok, warn := ValidateEnum("confidence", "HIGH", []string{"high", "medium", "low"})
	require.True(t, ok)
	require.Nil(t, warn)
	require.Equal(t, "high", val)

	_, ok, warn = ValidateEnum("confidence", "extreme", []string{"high", "medium", "low"})
	require.False(t, ok)
	require.NotNil(t, warn)
}

func TestExtractKeywordsFromText(t *testing.T) {
	kws := ExtractKeywordsFromText("The quarterly budget review needs urgent escalation for the finance team", 5)
	require.NotContains(t, kws, "the")
	require.Contains(t, kws, "quarterly")
	require.LessOrEqual(t, len(kws), 5)
}

func TestDaysOverdue(t *testing.T) {
	due, _ := ParseISODate("2026-07-01")
	today, _ := ParseISODate("2026-07-10")
	require.Equal(t, 9, DaysOverdue(due, today))
	require.True(t, IsOverdue(due, today))
}
