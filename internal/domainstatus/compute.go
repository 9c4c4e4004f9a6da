package domainstatus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quiet-coder-io/domainos/internal/normalize"
)

// Scoring constants for the topActions merge.
const (
	deadlineBase         = 50.0
	deadlinePerDay       = 3.0
	deadlinePerPriority  = 5.0
	priorityMax          = 7.0
	gapBase              = 30.0
	gapAgeBonusThreshold = 14
	gapAgeBonus          = 10.0
)

// gapCategoryWeights is keyed on the normalized (internal/normalize)
// category string.
var gapCategoryWeights = map[string]float64{
	"missing_info":     15,
	"ambiguous_scope":  12,
	"blocked_decision": 20,
	"stale_assumption": 10,
	"unassigned_owner": 8,
	"other":            5,
}

func gapCategoryWeight(category string) float64 {
	if w, ok := gapCategoryWeights[strings.ToLower(category)]; ok {
		return w
	}
	return gapCategoryWeights["other"]
}

func deadlineScore(d Deadline) float64 {
	return deadlineBase + float64(d.DaysOverdue)*deadlinePerDay + (priorityMax-float64(d.Priority))*deadlinePerPriority
}

func gapScore(g GapFlag) float64 {
	score := gapBase + gapCategoryWeight(g.Category)
	if g.AgeDays >= gapAgeBonusThreshold {
		score += gapAgeBonus
	}
	return score
}

// BuildTopActions merges overdue deadlines and open gap flags by score,
// applying the diversification rule: if any gap flags exist, at least one
// must survive the cap even if every deadline outscores it.
func BuildTopActions(deadlines []Deadline, gaps []GapFlag, cap int) []TopAction {
	actions := make([]TopAction, 0, len(deadlines)+len(gaps))
	for _, d := range deadlines {
		actions = append(actions, TopAction{Kind: "deadline", ID: d.ID, Text: d.Text, Score: deadlineScore(d)})
	}
	for _, g := range gaps {
		actions = append(actions, TopAction{Kind: "gap_flag", ID: g.ID, Text: g.Description, Score: gapScore(g)})
	}
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Score > actions[j].Score })

	if cap <= 0 || len(actions) <= cap {
		return actions
	}
	top := actions[:cap]
	if len(gaps) == 0 {
		return top
	}
	for _, a := range top {
		if a.Kind == "gap_flag" {
			return top
		}
	}
	// No gap survived the cut: replace the lowest-scored slot with the
	// best-scoring gap that was cut.
	var bestCutGap *TopAction
	for i := cap; i < len(actions); i++ {
		if actions[i].Kind == "gap_flag" {
			bestCutGap = &actions[i]
			break
		}
	}
	if bestCutGap == nil {
		return top
	}
	out := make([]TopAction, cap)
	copy(out, top)
	out[cap-1] = *bestCutGap
	return out
}

const keywordCharLimit = 40

// BuildSearchHints produces the domain name plus up to 5 keywords extracted from the combined top-actions text, deduped
// case-insensitively, stopword/numeric-only/short tokens removed, each
// truncated to keywordCharLimit. Multi-word domain names are
// quoted in the Gmail-query variants. Fewer than 2 non-domain keywords
// falls back to a minimal hint set.
func BuildSearchHints(domainName string, topActions []TopAction) SearchHints {
	var combined strings.Builder
	for _, a := range topActions {
		combined.WriteString(a.Text)
		combined.WriteString(" ")
	}
	extracted := normalize.ExtractKeywordsFromText(combined.String(), 5)
	extracted = normalize.DedupeKeywordsCaseInsensitive(extracted, keywordCharLimit)

	keywords := normalize.DedupeKeywordsCaseInsensitive(append([]string{domainName}, extracted...), keywordCharLimit)

	if len(extracted) < 2 {
		return SearchHints{
			Keywords:     []string{domainName},
			GmailQueries: []string{gmailQuery(domainName)},
		}
	}

	queries := make([]string, 0, len(keywords))
	queries = append(queries, gmailQuery(domainName))
	for _, k := range extracted {
		queries = append(queries, fmt.Sprintf("%s %s", gmailQuery(domainName), k))
	}
	return SearchHints{Keywords: keywords, GmailQueries: queries}
}

func gmailQuery(domainName string) string {
	if strings.Contains(domainName, " ") {
		return fmt.Sprintf("%q", domainName)
	}
	return domainName
}
