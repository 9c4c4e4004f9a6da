package portfolio

import "sort"

// DefaultTokenBudget / CharsPerToken define the 48,000-token default digest
// budget and estimateTokens(chars) = chars/4. Callers pass their own token
// budget to CompressDigests (the daemon takes it from internal/config);
// CharsPerToken is fixed.
const (
	DefaultTokenBudget = 48000
	CharsPerToken      = 4

	digestInitialCap = 6000
	digestFloor      = 500
	digestHardFloor  = 2000
)

const missingDigestPlaceholder = "(kb_digest.md missing)"
const quietDigestPlaceholder = "(quiet domain — digest omitted for token budget)"

// DomainDigest is one domain's raw kb_digest.md content (or the missing
// placeholder) paired with its health status, the only field the
// compression pipeline's quiet-domain step needs.
type DomainDigest struct {
	DomainID string
	Status   DomainStatusValue
	Text     string
	Missing  bool
}

func estimateTokens(chars int) int { return chars / CharsPerToken }

func totalChars(digests []DomainDigest) int {
	total := 0
	for _, d := range digests {
		total += len(d.Text)
	}
	return total
}

// CompressDigests runs the digest-compression pipeline: sort by
// domainId, then apply steps in order, stopping at the first step whose
// result fits tokenBudget. Missing digests pass through untouched at every
// step.
func CompressDigests(digests []DomainDigest, tokenBudget int) []DomainDigest {
	sorted := make([]DomainDigest, len(digests))
	copy(sorted, digests)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DomainID < sorted[j].DomainID })

	fits := func(ds []DomainDigest) bool { return estimateTokens(totalChars(ds)) <= tokenBudget }

	if fits(sorted) {
		return sorted
	}

	step1 := capEach(sorted, digestInitialCap)
	if fits(step1) {
		return step1
	}

	step2 := proportionalTruncate(step1, tokenBudget*CharsPerToken, digestFloor)
	if fits(step2) {
		return step2
	}

	step3 := quietOmit(step2)
	if fits(step3) {
		return step3
	}

	return capEach(step3, digestHardFloor)
}

func capEach(digests []DomainDigest, limit int) []DomainDigest {
	out := make([]DomainDigest, len(digests))
	for i, d := range digests {
		out[i] = d
		if !d.Missing && len(d.Text) > limit {
			out[i].Text = d.Text[:limit]
		}
	}
	return out
}

// proportionalTruncate distributes the available character budget across
// non-missing digests proportionally to their current length, with a floor
// per domain, remainder distributed in domainId-sorted order
// deterministically.
func proportionalTruncate(digests []DomainDigest, charBudget, floor int) []DomainDigest {
	out := make([]DomainDigest, len(digests))
	copy(out, digests)

	var eligible []int
	currentTotal := 0
	for i, d := range out {
		if d.Missing {
			continue
		}
		eligible = append(eligible, i)
		currentTotal += len(d.Text)
	}
	if currentTotal == 0 || len(eligible) == 0 {
		return out
	}

	n := len(eligible)
	floorTotal := floor * n
	remaining := charBudget - floorTotal
	if remaining < 0 {
		remaining = 0
	}

	allocated := make([]int, n)
	used := 0
	for i, idx := range eligible {
		share := floor + int(float64(remaining)*float64(len(out[idx].Text))/float64(currentTotal))
		allocated[i] = share
		used += share
	}
	// Distribute any leftover one char at a time, in domainId-sorted
	// (i.e. eligible-index) order, for determinism. A deficit (floors
	// exceeding the budget) is not taken back.
	leftover := charBudget - used
	i := 0
	for leftover > 0 && n > 0 {
		allocated[i%n]++
		leftover--
		i++
	}

	for i, idx := range eligible {
		limit := allocated[i]
		if limit < floor {
			limit = floor
		}
		if len(out[idx].Text) > limit {
			out[idx].Text = out[idx].Text[:limit]
		}
	}
	return out
}

func quietOmit(digests []DomainDigest) []DomainDigest {
	out := make([]DomainDigest, len(digests))
	for i, d := range digests {
		out[i] = d
		if !d.Missing && d.Status == StatusQuiet {
			out[i].Text = quietDigestPlaceholder
		}
	}
	return out
}

// ResolveDigestText returns the placeholder for a missing digest, or text
// unchanged otherwise; the single entry point callers should use when
// assembling DomainDigest from a KB scan result.
func ResolveDigestText(text string, missing bool) string {
	if missing {
		return missingDigestPlaceholder
	}
	return text
}

// ProjectedDomainHealthV1 is the whitelisted, size-bounded
// projection of DomainHealth for the briefing prompt's ground-truth JSON.
type ProjectedDomainHealthV1 struct {
	DomainID         string  `json:"domainId"`
	DomainName       string  `json:"domainName"`
	Status           string  `json:"status"`
	OpenGapFlags     int     `json:"openGapFlags"`
	OverdueDeadlines int     `json:"overdueDeadlines"`
	SeverityScore    float64 `json:"severityScore"`
	WorstFile        string  `json:"worstFile,omitempty"`
	Description      string  `json:"description"`
}

const descriptionCharCap = 80

// ProjectHealthV1 whitelists DomainHealth fields, caps description at 80
// chars, and sorts by domainId.
func ProjectHealthV1(domains []DomainHealth, describe func(DomainHealth) string) []ProjectedDomainHealthV1 {
	sorted := SortedByDomainID(domains)
	out := make([]ProjectedDomainHealthV1, len(sorted))
	for i, d := range sorted {
		desc := describe(d)
		if len(desc) > descriptionCharCap {
			desc = desc[:descriptionCharCap]
		}
		out[i] = ProjectedDomainHealthV1{
			DomainID:         d.DomainID,
			DomainName:       d.DomainName,
			Status:           string(d.Status),
			OpenGapFlags:     d.OpenGapFlags,
			OverdueDeadlines: d.OverdueDeadlines,
			SeverityScore:    d.SeverityScore,
			WorstFile:        d.StaleSummary.WorstFile,
			Description:      desc,
		}
	}
	return out
}
