package blocks

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestKBUpdateOrderStability: a valid create followed by two invalid
// blocks, preserved in source order.
func TestKBUpdateOrderStability(t *testing.T) {
	text := "```kb-update\n" +
		"file: notes.md\n" +
		"action: create\n" +
		"reasoning: capture meeting notes\n" +
		"---\n" +
		"# Notes\n" +
		"```\n" +
		"```kb-update\n" +
		"file: claude.md\n" +
		"action: update\n" +
		"mode: full\n" +
		"reasoning: rewrite identity\n" +
		"---\n" +
		"content\n" +
		"```\n" +
		"```kb-update\n" +
		"file: kb_digest.md\n" +
		"action: update\n" +
		"mode: patch\n" +
		"reasoning: patch status\n" +
		"---\n" +
		"content\n" +
		"```\n"

	result := ParseKBUpdates(text)
	require.Len(t, result.Proposals, 1)
	require.Equal(t, "notes.md", result.Proposals[0].File)

	require.Len(t, result.RejectedProposals, 2)
	require.Equal(t, "claude.md", result.RejectedProposals[0].File)
	require.Equal(t, "STRUCTURAL_REQUIRES_PATCH", result.RejectedProposals[0].RejectionReason)
	require.Equal(t, "kb_digest.md", result.RejectedProposals[1].File)
	require.Equal(t, "STATUS_NO_PATCH", result.RejectedProposals[1].RejectionReason)
	require.Len(t, result.RejectedProposals[0].ID, 8)
}

func TestKBUpdateIgnoresBlockWithoutFile(t *testing.T) {
	text := "```kb-update\naction: create\nreasoning: x\n---\nbody\n```\n"
	result := ParseKBUpdates(text)
	require.Empty(t, result.Proposals)
	require.Empty(t, result.RejectedProposals)
}

func TestKBUpdatePathTraversalRejected(t *testing.T) {
	text := "```kb-update\nfile: ../secrets.md\naction: create\nreasoning: x\n---\nbody\n```\n"
	result := ParseKBUpdates(text)
	require.Len(t, result.RejectedProposals, 1)
	require.Equal(t, "PATH_TRAVERSAL", result.RejectedProposals[0].RejectionReason)
}

func TestKBUpdateDeleteRequiresConfirm(t *testing.T) {
	text := "```kb-update\nfile: old.md\naction: delete\nreasoning: obsolete\n---\n\n```\n"
	result := ParseKBUpdates(text)
	require.Len(t, result.RejectedProposals, 1)
	require.Equal(t, "DELETE_NEEDS_CONFIRM", result.RejectedProposals[0].RejectionReason)

	confirmed := "```kb-update\nfile: old.md\naction: delete\nreasoning: obsolete\nconfirm: DELETE old.md\n---\n\n```\n"
	result2 := ParseKBUpdates(confirmed)
	require.Len(t, result2.Proposals, 1)
}
