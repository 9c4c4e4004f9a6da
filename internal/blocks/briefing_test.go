package blocks

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBriefingAlertParsesMultiline(t *testing.T) {
	text := "```briefing-alert\n" +
		"domain: acme-launch\n" +
		"severity: critical\n" +
		"text: Domain has gone stale\n" +
		"  with no owner activity\n" +
		"evidence: last touched 21 days ago\n" +
		"```\n"
	result := ParseBriefingBlocks(text)
	require.Len(t, result.Alerts, 1)
	require.Equal(t, "acme-launch", result.Alerts[0].Domain)
	require.Equal(t, "critical", result.Alerts[0].Severity)
	require.Contains(t, result.Alerts[0].Text, "with no owner activity")
}

func TestBriefingActionRequiresPriority(t *testing.T) {
	text := "```briefing-action\ndomain: acme\ntext: follow up\npriority: 2\ndeadline: 2026-08-01\n```\n"
	result := ParseBriefingBlocks(text)
	require.Len(t, result.Actions, 1)
	require.Equal(t, 2, result.Actions[0].Priority)
}

func TestBriefingMonitorMinimal(t *testing.T) {
	text := "```briefing-monitor\ndomain: acme\ntext: watch renewal date\n```\n"
	result := ParseBriefingBlocks(text)
	require.Len(t, result.Monitors, 1)
}

func TestBriefingSkipsInvalidSeverity(t *testing.T) {
	text := "```briefing-alert\ndomain: acme\nseverity: unknown\ntext: x\nevidence: y\n```\n"
	result := ParseBriefingBlocks(text)
	require.Empty(t, result.Alerts)
	require.Equal(t, 1, result.SkippedBlocks)
}
