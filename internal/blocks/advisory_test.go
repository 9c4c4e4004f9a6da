package blocks

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdvisoryValidBrainstormSelected(t *testing.T) {
	text := "```advisory-brainstorm\n" +
		`{"schemaVersion":1,"type":"brainstorm","title":"Expand into APAC","persist":"yes","topic":"growth","options":[{"title":"Open Singapore office"}]}` +
		"\n```\n"
	result := ParseAdvisoryBlocks(text)
	require.Len(t, result.Selected, 1)
	require.Equal(t, "brainstorm", result.Selected[0].Type)
	require.Empty(t, result.Rejected)
}

func TestAdvisoryUnknownKeyRejected(t *testing.T) {
	text := "```advisory-brainstorm\n" +
		`{"schemaVersion":1,"type":"brainstorm","title":"Expand into APAC","persist":"yes","topic":"growth","options":[{"title":"x"}],"bogus":"field"}` +
		"\n```\n"
	result := ParseAdvisoryBlocks(text)
	require.Empty(t, result.Selected)
	require.Len(t, result.Rejected, 1)
	require.Equal(t, "unknown_key_top_level", result.Rejected[0].RejectionReason)
}

func TestAdvisoryInvalidFenceType(t *testing.T) {
	text := "```advisory-nonsense\n{}\n```\n"
	result := ParseAdvisoryBlocks(text)
	require.Len(t, result.Rejected, 1)
	require.Equal(t, "invalid_fence_type", result.Rejected[0].RejectionReason)
}

func TestAdvisoryResponseBlockCap(t *testing.T) {
	one := func(title string) string {
		return "```advisory-brainstorm\n" +
			`{"schemaVersion":1,"type":"brainstorm","title":"` + title + `","persist":"yes","topic":"growth","options":[{"title":"x"}]}` +
			"\n```\n"
	}
	text := one("Plan A expansion") + one("Plan B expansion") + one("Plan C expansion")
	result := ParseAdvisoryBlocks(text)
	require.Len(t, result.Selected, 2)
	require.Equal(t, 1, result.CapExceeded)
	require.Len(t, result.Rejected, 1)
	require.Equal(t, "response_block_cap_exceeded", result.Rejected[0].RejectionReason)
}

func TestAdvisoryModeComment(t *testing.T) {
	text := "<!-- advisory_mode: challenge -->\n```advisory-scenario\n" +
		`{"schemaVersion":1,"type":"scenario","title":"Supply shock scenario","persist":"no","name":"supply shock"}` +
		"\n```\n"
	result := ParseAdvisoryBlocks(text)
	require.Equal(t, "challenge", result.AdvisoryMode)
	require.Len(t, result.DraftBlocks, 1)
}
