package portfolio

import (
	"context"
	"sort"
	"time"

	"github.com/quiet-coder-io/domainos/internal/normalize"
	"github.com/quiet-coder-io/domainos/internal/store"
)

// Builder assembles a portfolio-wide Snapshot from the store.
type Builder struct {
	Store *store.Store
}

func NewBuilder(s *store.Store) *Builder { return &Builder{Store: s} }

// Build computes DomainHealth for every domain, then cross-domain alerts
// and the snapshotHash.
func (b *Builder) Build(ctx context.Context, now time.Time) (Snapshot, error) {
	domains, err := b.Store.ListDomains(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	healths := make([]DomainHealth, 0, len(domains))
	for _, d := range domains {
		h, err := b.buildOne(ctx, d, now)
		if err != nil {
			return Snapshot{}, err
		}
		healths = append(healths, h)
	}

	healths = FillIncomingDeps(healths)
	alerts := BuildCrossDomainAlerts(healths)
	hash := normalize.StableHash(map[string]any{"domains": healths, "alerts": alerts})

	return Snapshot{Domains: healths, Alerts: alerts, SnapshotHash: hash}, nil
}

func (b *Builder) buildOne(ctx context.Context, d store.Domain, now time.Time) (DomainHealth, error) {
	files, err := b.Store.ListKBFiles(ctx, d.ID)
	if err != nil {
		return DomainHealth{}, err
	}
	fileInputs := make([]FileInput, len(files))
	var lastTouched *time.Time
	for i, f := range files {
		fileInputs[i] = FileInput{RelativePath: f.RelativePath, Tier: f.Tier, LastSyncedAt: f.LastSyncedAt}
		if lastTouched == nil || f.LastSyncedAt.After(*lastTouched) {
			t := f.LastSyncedAt
			lastTouched = &t
		}
	}

	deadlines, err := b.Store.ActiveDeadlines(ctx, d.ID)
	if err != nil {
		return DomainHealth{}, err
	}
	deadlineInputs := make([]DeadlineInput, len(deadlines))
	overdueCount := 0
	today := now.UTC().Truncate(24 * time.Hour)
	for i, dl := range deadlines {
		overdue := normalize.IsOverdue(dl.DueDate.UTC().Truncate(24*time.Hour), today)
		snoozed := dl.SnoozedUntil != nil && dl.SnoozedUntil.After(now)
		deadlineInputs[i] = DeadlineInput{Priority: dl.Priority, Overdue: overdue, Snoozed: snoozed}
		if overdue && !snoozed {
			overdueCount++
		}
	}

	gaps, err := b.Store.OpenGapFlags(ctx, d.ID)
	if err != nil {
		return DomainHealth{}, err
	}

	rels, err := b.Store.DomainRelationships(ctx, d.ID)
	if err != nil {
		return DomainHealth{}, err
	}
	outgoing := make([]OutgoingDep, len(rels))
	for i, r := range rels {
		outgoing[i] = OutgoingDep{SiblingDomainID: r.SiblingDomainID, DependencyType: r.DependencyType, RelationshipType: r.RelationshipType}
	}

	staleSummary := ComputeStaleSummary(fileInputs, now)
	severity := ComputeSeverityScore(fileInputs, deadlineInputs, now)
	status := ClassifyStatus(staleSummary, len(gaps), overdueCount, lastTouched, now)

	return DomainHealth{
		DomainID:             d.ID,
		DomainName:           d.Name,
		Status:               status,
		FileCountTotal:       len(files),
		FileCountStatChecked: len(fileInputs),
		StaleSummary:         staleSummary,
		OpenGapFlags:         len(gaps),
		OverdueDeadlines:     overdueCount,
		SeverityScore:        severity,
		LastTouchedAt:        lastTouched,
		OutgoingDeps:         outgoing,
	}, nil
}

// FillIncomingDeps populates each domain's IncomingDeps from the full set of
// OutgoingDeps, a second pass since relationships are stored directed.
func FillIncomingDeps(domains []DomainHealth) []DomainHealth {
	byID := make(map[string]int, len(domains))
	for i, d := range domains {
		byID[d.DomainID] = i
	}
	for _, src := range domains {
		for _, dep := range src.OutgoingDeps {
			if idx, ok := byID[dep.SiblingDomainID]; ok {
				domains[idx].IncomingDeps = append(domains[idx].IncomingDeps, IncomingDep{
					SourceDomainID:   src.DomainID,
					DependencyType:   dep.DependencyType,
					RelationshipType: dep.RelationshipType,
				})
			}
		}
	}
	return domains
}

// SortedByDomainID returns a copy of domains sorted by DomainID, the
// deterministic ordering digest compression depends on.
func SortedByDomainID(domains []DomainHealth) []DomainHealth {
	out := make([]DomainHealth, len(domains))
	copy(out, domains)
	sort.Slice(out, func(i, j int) bool { return out[i].DomainID < out[j].DomainID })
	return out
}
