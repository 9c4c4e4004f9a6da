package domainstatus

import (
	"context"
	"fmt"
	"time"

	"github.com/quiet-coder-io/domainos/internal/normalize"
	"github.com/quiet-coder-io/domainos/internal/store"
)

// Session is the minimal session-lifecycle view the since-window
// computation needs; session bookkeeping lives alongside chat_messages and
// only its boundary timestamps matter here.
type Session struct {
	Status    string // "wrapped_up" | "active"
	StartedAt time.Time
	EndedAt   time.Time
}

// Builder assembles Snapshot from the store, given the current time and an
// optional latest session (nil if the domain has none).
type Builder struct {
	Store *store.Store
	Caps  StatusCaps
}

func NewBuilder(s *store.Store) *Builder {
	return &Builder{Store: s, Caps: DefaultStatusCaps()}
}

// Build assembles the full status snapshot for one domain.
func (b *Builder) Build(ctx context.Context, domainID string, now time.Time, latestSession *Session) (Snapshot, error) {
	dom, err := b.Store.GetDomain(ctx, domainID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("domainstatus: domain %s: %w", domainID, err)
	}

	since := computeSinceWindow(latestSession)

	allDeadlines, err := b.Store.ActiveDeadlines(ctx, domainID)
	if err != nil {
		return Snapshot{}, err
	}
	overdue, upcoming := classifyDeadlines(allDeadlines, now)
	overdue = capDeadlines(overdue, b.Caps.OverdueDeadlines)
	upcoming = capDeadlines(upcoming, b.Caps.UpcomingDeadlines)

	storeGaps, err := b.Store.OpenGapFlags(ctx, domainID)
	if err != nil {
		return Snapshot{}, err
	}
	openGaps := toDomainGapFlags(storeGaps, now)
	cappedOpenGaps := capGapFlags(openGaps, b.Caps.OpenGapFlags)

	var resolvedGaps []GapFlag
	if since.Kind != SinceNone && since.Since != nil {
		storeResolved, err := b.Store.ResolvedGapFlagsSince(ctx, domainID, *since.Since)
		if err != nil {
			return Snapshot{}, err
		}
		resolvedGaps = capGapFlags(toDomainGapFlags(storeResolved, now), b.Caps.ResolvedGapFlags)
	}

	decisions, err := b.Store.ActiveDecisions(ctx, domainID)
	if err != nil {
		return Snapshot{}, err
	}
	decisionIDs := make([]string, 0, len(decisions))
	for i, d := range decisions {
		if i >= b.Caps.ActiveDecisions {
			break
		}
		decisionIDs = append(decisionIDs, d.DecisionID)
	}

	artifacts, err := b.Store.ActiveAdvisoryArtifacts(ctx, domainID, b.Caps.AdvisoryArtifacts)
	if err != nil {
		return Snapshot{}, err
	}
	artifactIDs := make([]string, len(artifacts))
	for i, a := range artifacts {
		artifactIDs[i] = a.ID
	}

	auditCount := 0
	if since.Kind != SinceNone && since.Since != nil {
		events, err := b.Store.AuditSince(ctx, domainID, *since.Since)
		if err != nil {
			return Snapshot{}, err
		}
		auditCount = len(events)
		if auditCount > b.Caps.AuditEvents {
			auditCount = b.Caps.AuditEvents
		}
	}

	topActions := BuildTopActions(overdue, openGaps, b.Caps.TopActions)
	hints := BuildSearchHints(dom.Name, topActions)

	return Snapshot{
		DomainID:             domainID,
		DomainName:           dom.Name,
		SinceWindow:          since,
		OverdueDeadlines:     overdue,
		UpcomingDeadlines:    upcoming,
		OpenGapFlags:         cappedOpenGaps,
		RecentlyResolvedGaps: resolvedGaps,
		ActiveDecisionIDs:    decisionIDs,
		RecentAdvisoryIDs:    artifactIDs,
		AuditEventCount:      auditCount,
		TopActions:           topActions,
		SearchHints:          hints,
	}, nil
}

func computeSinceWindow(s *Session) SinceWindow {
	if s == nil {
		return SinceWindow{Kind: SinceNone}
	}
	if s.Status == "wrapped_up" {
		t := s.EndedAt
		return SinceWindow{Kind: SinceWrappedSession, Since: &t}
	}
	t := s.StartedAt
	return SinceWindow{Kind: SinceRecentSession, Since: &t}
}

func classifyDeadlines(all []store.Deadline, now time.Time) (overdue, upcoming []Deadline) {
	today := now.UTC().Truncate(24 * time.Hour)
	horizon := today.AddDate(0, 0, 14)
	for _, sd := range all {
		due := sd.DueDate.UTC().Truncate(24 * time.Hour)
		d := Deadline{ID: sd.ID, Text: sd.Text, DueDate: sd.DueDate, Priority: sd.Priority}
		if normalize.IsOverdue(due, today) {
			d.DaysOverdue = normalize.DaysOverdue(due, today)
			overdue = append(overdue, d)
		} else if !due.After(horizon) {
			upcoming = append(upcoming, d)
		}
	}
	sortDeadlinesOverdue(overdue)
	sortDeadlinesUpcoming(upcoming)
	return overdue, upcoming
}

func sortDeadlinesOverdue(ds []Deadline) {
	for i := 1; i < len(ds); i++ {
		for j := i; j > 0; j-- {
			if less := overdueLess(ds[j], ds[j-1]); less {
				ds[j], ds[j-1] = ds[j-1], ds[j]
			} else {
				break
			}
		}
	}
}

// overdueLess orders by daysOverdue desc then priority asc.
func overdueLess(a, b Deadline) bool {
	if a.DaysOverdue != b.DaysOverdue {
		return a.DaysOverdue > b.DaysOverdue
	}
	return a.Priority < b.Priority
}

func sortDeadlinesUpcoming(ds []Deadline) {
	for i := 1; i < len(ds); i++ {
		for j := i; j > 0; j-- {
			if ds[j].DueDate.Before(ds[j-1].DueDate) {
				ds[j], ds[j-1] = ds[j-1], ds[j]
			} else {
				break
			}
		}
	}
}

func capDeadlines(ds []Deadline, cap int) []Deadline {
	if cap <= 0 || len(ds) <= cap {
		return ds
	}
	return ds[:cap]
}

func toDomainGapFlags(sg []store.GapFlag, now time.Time) []GapFlag {
	out := make([]GapFlag, len(sg))
	for i, g := range sg {
		out[i] = GapFlag{
			ID:          g.ID,
			Category:    g.Category,
			Description: g.Description,
			AgeDays:     int(now.UTC().Sub(g.CreatedAt.UTC()).Hours() / 24),
			ResolvedAt:  g.ResolvedAt,
		}
	}
	return out
}

func capGapFlags(gs []GapFlag, cap int) []GapFlag {
	if cap <= 0 || len(gs) <= cap {
		return gs
	}
	return gs[:cap]
}
