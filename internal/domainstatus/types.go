// Package domainstatus builds the per-domain status snapshot:
// since-window classification, capped overdue/upcoming deadlines,
// gap flags, decisions, audit events, a scored+diversified topActions list,
// and Gmail-query search hints. It is read-only over internal/store and
// produces no side effects of its own.
package domainstatus

import "time"

// SinceWindowKind classifies where the "since" boundary for audit-event
// reporting comes from.
type SinceWindowKind string

const (
	SinceWrappedSession SinceWindowKind = "wrapped_session"
	SinceRecentSession  SinceWindowKind = "recent_session"
	SinceNone           SinceWindowKind = "none"
)

// SinceWindow anchors audit/resolved lookups to the latest session.
type SinceWindow struct {
	Kind  SinceWindowKind
	Since *time.Time
}

// StatusCaps bounds each snapshot section, configurable for tests.
type StatusCaps struct {
	OverdueDeadlines  int
	UpcomingDeadlines int
	OpenGapFlags      int
	ResolvedGapFlags  int
	ActiveDecisions   int
	AdvisoryArtifacts int
	AuditEvents       int
	TopActions        int
}

// DefaultStatusCaps are the caps a single-screen snapshot renders
// comfortably.
func DefaultStatusCaps() StatusCaps {
	return StatusCaps{
		OverdueDeadlines:  6,
		UpcomingDeadlines: 6,
		OpenGapFlags:      6,
		ResolvedGapFlags:  6,
		ActiveDecisions:   5,
		AdvisoryArtifacts: 4,
		AuditEvents:       10,
		TopActions:        8,
	}
}

// Deadline is the subset of store.Deadline the scoring/sorting logic needs.
type Deadline struct {
	ID          string
	Text        string
	DueDate     time.Time
	Priority    int
	DaysOverdue int
}

// GapFlag is the subset of store.GapFlag the scoring logic needs.
type GapFlag struct {
	ID          string
	Category    string
	Description string
	AgeDays     int
	ResolvedAt  *time.Time
}

// TopAction is a merged, scored deadline-or-gap entry.
type TopAction struct {
	Kind  string // "deadline" | "gap_flag"
	ID    string
	Text  string
	Score float64
}

// SearchHints feeds the Gmail search shortcuts in the snapshot UI.
type SearchHints struct {
	Keywords     []string
	GmailQueries []string
}

// Snapshot is the full per-domain status result.
type Snapshot struct {
	DomainID             string
	DomainName           string
	SinceWindow          SinceWindow
	OverdueDeadlines     []Deadline
	UpcomingDeadlines    []Deadline
	OpenGapFlags         []GapFlag
	RecentlyResolvedGaps []GapFlag
	ActiveDecisionIDs    []string
	RecentAdvisoryIDs    []string
	AuditEventCount      int
	TopActions           []TopAction
	SearchHints          SearchHints
}
