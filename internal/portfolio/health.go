package portfolio

import "time"

// tierWeight is the per-KBFile-tier multiplier in the staleness score.
// structural > status > intelligence > general reflects how quickly a stale
// copy of each tier misleads the agent.
var tierWeight = map[string]float64{
	"structural":   3,
	"status":       2,
	"intelligence": 1.5,
	"general":      1,
}

func weightForTier(tier string) float64 {
	if w, ok := tierWeight[tier]; ok {
		return w
	}
	return tierWeight["general"]
}

// stalenessMultiplier: fresh files don't contribute to severity; stale and
// critical files do, critical twice as much as stale.
func stalenessMultiplier(class StalenessClass) float64 {
	switch class {
	case StalenessCritical:
		return 2
	case StalenessStale:
		return 1
	default:
		return 0
	}
}

// ClassifyStaleness buckets age-since-sync per the FreshWithinDays/
// StaleWithinDays thresholds (DESIGN.md open-question decision).
func ClassifyStaleness(lastSyncedAt, now time.Time) StalenessClass {
	days := now.UTC().Sub(lastSyncedAt.UTC()).Hours() / 24
	switch {
	case days <= FreshWithinDays:
		return StalenessFresh
	case days <= StaleWithinDays:
		return StalenessStale
	default:
		return StalenessCritical
	}
}

// deadlineSeverityWeight: overdue P1/P2 ->
// 4, P3/P4 -> 2, P5+ -> 1, non-overdue/snoozed -> 0.
func deadlineSeverityWeight(d DeadlineInput) float64 {
	if d.Snoozed || !d.Overdue {
		return 0
	}
	switch {
	case d.Priority <= 2:
		return 4
	case d.Priority <= 4:
		return 2
	default:
		return 1
	}
}

const severityScoreCap = 12

// ComputeStaleSummary buckets files by tier and staleness class, and
// identifies the single stalest file.
func ComputeStaleSummary(files []FileInput, now time.Time) StaleSummary {
	sum := StaleSummary{
		FreshByTier:    TierCounts{},
		StaleByTier:    TierCounts{},
		CriticalByTier: TierCounts{},
	}
	var worstAge time.Duration
	for _, f := range files {
		class := ClassifyStaleness(f.LastSyncedAt, now)
		switch class {
		case StalenessFresh:
			sum.Fresh++
			sum.FreshByTier[f.Tier]++
		case StalenessStale:
			sum.Stale++
			sum.StaleByTier[f.Tier]++
		case StalenessCritical:
			sum.Critical++
			sum.CriticalByTier[f.Tier]++
		}
		age := now.Sub(f.LastSyncedAt)
		if age > worstAge {
			worstAge = age
			sum.WorstFile = f.RelativePath
			sum.WorstFileTier = f.Tier
			sum.WorstClass = class
		}
	}
	return sum
}

// ComputeSeverityScore sums tier-weighted file staleness and deadline
// severity, capped at severityScoreCap.
func ComputeSeverityScore(files []FileInput, deadlines []DeadlineInput, now time.Time) float64 {
	var score float64
	for _, f := range files {
		score += weightForTier(f.Tier) * stalenessMultiplier(ClassifyStaleness(f.LastSyncedAt, now))
	}
	for _, d := range deadlines {
		score += deadlineSeverityWeight(d)
	}
	if score > severityScoreCap {
		score = severityScoreCap
	}
	return score
}

const (
	quietAfterDays     = 14
	staleRiskAfterDays = 30
)

// ClassifyStatus assigns DomainHealth.status deterministically from
// criticals, open gaps, and days since last touch.
func ClassifyStatus(staleSummary StaleSummary, openGapFlags, overdueDeadlines int, lastTouchedAt *time.Time, now time.Time) DomainStatusValue {
	daysSinceTouch := -1
	if lastTouchedAt != nil {
		daysSinceTouch = int(now.UTC().Sub(lastTouchedAt.UTC()).Hours() / 24)
	}

	if staleSummary.Critical > 0 && openGapFlags > 0 {
		return StatusBlocked
	}
	if staleSummary.Critical > 0 || overdueDeadlines > 0 || daysSinceTouch > staleRiskAfterDays {
		return StatusStaleRisk
	}
	if daysSinceTouch > quietAfterDays || (daysSinceTouch < 0 && openGapFlags == 0) {
		return StatusQuiet
	}
	return StatusActive
}

// BuildCrossDomainAlerts emits cross-domain alerts: for every
// stale-risk|blocked source domain, an outgoing
// dependency of type blocks/depends_on escalates to critical, informs to
// warning, monitor_only to monitor.
func BuildCrossDomainAlerts(domains []DomainHealth) []CrossDomainAlert {
	byID := make(map[string]DomainHealth, len(domains))
	for _, d := range domains {
		byID[d.DomainID] = d
	}

	var alerts []CrossDomainAlert
	for _, src := range domains {
		if src.Status != StatusStaleRisk && src.Status != StatusBlocked {
			continue
		}
		for _, dep := range src.OutgoingDeps {
			severity, ok := severityForDependencyType(dep.DependencyType)
			if !ok {
				continue
			}
			alerts = append(alerts, CrossDomainAlert{
				SourceDomainID:    src.DomainID,
				DependentDomainID: dep.SiblingDomainID,
				Severity:          severity,
				Trace: AlertTrace{
					TriggerFile:      src.StaleSummary.WorstFile,
					TriggerTier:      src.StaleSummary.WorstFileTier,
					TriggerStaleness: src.StaleSummary.WorstClass,
					DependencyType:   dep.DependencyType,
					RelationshipType: dep.RelationshipType,
					BaseSeverity:     src.SeverityScore,
					Escalated:        src.Status == StatusBlocked,
				},
			})
		}
	}
	return alerts
}

func severityForDependencyType(depType string) (AlertSeverity, bool) {
	switch depType {
	case "blocks", "depends_on":
		return AlertCritical, true
	case "informs":
		return AlertWarning, true
	case "monitor_only":
		return AlertMonitor, true
	default:
		return "", false
	}
}
