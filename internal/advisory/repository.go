// Package advisory implements the repository-backed half of the advisory
// pipeline: rate-limited, dedup-windowed persistence of parsed
// advisory-<type> blocks
// (internal/blocks holds the pure-parse half), and extraction of actionable
// tasks out of a stored artifact's payload.
package advisory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/quiet-coder-io/domainos/internal/blocks"
	"github.com/quiet-coder-io/domainos/internal/config"
	"github.com/quiet-coder-io/domainos/internal/normalize"
	"github.com/quiet-coder-io/domainos/internal/store"
)

// CreateResult is the outcome of Repository.Create.
type CreateResult struct {
	Artifact       store.AdvisoryArtifact
	Created        bool   // a new row was inserted
	Idempotent     bool   // an existing row within the dedup window was returned
	RateLimited    bool
	LimitReason    string // set when RateLimited: "rate_limit_hour" | "rate_limit_day"
	FailureMessage string // set when RateLimited; begins "hourly save limit" / "daily save limit"
}

// Repository persists advisory candidates behind the rate-limit and dedup
// checks.
type Repository struct {
	Store  *store.Store
	Config config.AdvisoryConfig
}

// NewRepository builds a Repository over s using cfg's rate-limit/dedup
// tuning.
func NewRepository(s *store.Store, cfg config.AdvisoryConfig) *Repository {
	return &Repository{Store: s, Config: cfg}
}

// Create persists one selected persistable candidate. The hourly/daily
// COUNT(*) checks, the dedup-window lookup, and the insert all run inside a
// single store transaction so the counts cannot go stale between check and
// insert.
func (r *Repository) Create(ctx context.Context, domainID, sessionID string, c blocks.AdvisoryCandidate, now time.Time) (CreateResult, error) {
	contentJSON, err := json.Marshal(c.Payload)
	if err != nil {
		return CreateResult{}, err
	}
	status := "active"
	if c.Persist == "archive" {
		status = "archived"
	}

	outcome, err := r.Store.InsertAdvisoryArtifactLimited(ctx, store.AdvisoryArtifact{
		DomainID:      domainID,
		SessionID:     sessionID,
		Type:          c.Type,
		Title:         c.Title,
		SchemaVersion: c.SchemaVersion,
		Content:       string(contentJSON),
		Fingerprint:   Fingerprint(c),
		Source:        "llm",
		Status:        status,
	},
		now.Add(-time.Hour), startOfDay(now), r.Config.KHour, r.Config.KDay,
		now.Add(-time.Duration(r.Config.DedupWindowHours)*time.Hour))
	if err != nil {
		return CreateResult{}, err
	}

	switch outcome.LimitHit {
	case "hour":
		return CreateResult{
			RateLimited:    true,
			LimitReason:    "rate_limit_hour",
			FailureMessage: fmt.Sprintf("hourly save limit of %d artifacts reached for this domain", r.Config.KHour),
		}, nil
	case "day":
		return CreateResult{
			RateLimited:    true,
			LimitReason:    "rate_limit_day",
			FailureMessage: fmt.Sprintf("daily save limit of %d artifacts reached for this domain", r.Config.KDay),
		}, nil
	}
	return CreateResult{Artifact: outcome.Artifact, Created: outcome.Created, Idempotent: outcome.Idempotent}, nil
}

// Fingerprint derives the dedup fingerprint for a candidate:
// sha256(schemaVersion | type | canonicalize(title) |
// stableStringify(canonicalCore)), where canonicalCore is the per-type
// payload field subset (fingerprintCore, tasks.go) with every string leaf
// trim+lowercase+whitespace-collapsed. A resubmission that only differs by
// case/whitespace within a core field still dedupes, while an edit to a
// core field's substance produces a new fingerprint; edits outside the
// selected subset never perturb it.
func Fingerprint(c blocks.AdvisoryCandidate) string {
	core := fingerprintCore(c.Type, c.Payload)
	canonicalCore := canonicalizeCore(core)
	input := strconv.Itoa(c.SchemaVersion) + "|" +
		c.Type + "|" +
		dedupeKey(c.Title) + "|" +
		normalize.StableStringify(canonicalCore)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
