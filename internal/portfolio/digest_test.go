package portfolio

import (
	"strings"
	"testing"
)

func TestCompressDigestsPassesThroughWhenUnderBudget(t *testing.T) {
	digests := []DomainDigest{{DomainID: "a", Text: "short digest"}}
	out := CompressDigests(digests, DefaultTokenBudget)
	if out[0].Text != "short digest" {
		t.Fatalf("expected no compression under budget, got %q", out[0].Text)
	}
}

func TestCompressDigestsCapsAt6000First(t *testing.T) {
	long := strings.Repeat("x", 10000)
	digests := []DomainDigest{{DomainID: "a", Text: long}}
	out := CompressDigests(digests, 100) // tiny budget to force compression
	if len(out[0].Text) > digestInitialCap {
		t.Fatalf("expected first step to cap at %d, got %d", digestInitialCap, len(out[0].Text))
	}
}

func TestCompressDigestsMissingDigestNeverTruncated(t *testing.T) {
	digests := []DomainDigest{
		{DomainID: "a", Missing: true, Text: missingDigestPlaceholder},
		{DomainID: "b", Text: strings.Repeat("y", 20000)},
	}
	out := CompressDigests(digests, 1) // force every step
	for _, d := range out {
		if d.DomainID == "a" && d.Text != missingDigestPlaceholder {
			t.Fatalf("missing digest must pass through unchanged, got %q", d.Text)
		}
	}
}

func TestCompressDigestsQuietOmittedBeforeHardFloor(t *testing.T) {
	digests := []DomainDigest{
		{DomainID: "a", Status: StatusQuiet, Text: strings.Repeat("q", digestInitialCap)},
		{DomainID: "b", Status: StatusActive, Text: strings.Repeat("z", digestInitialCap)},
	}
	out := CompressDigests(digests, 10) // forces all the way through
	foundQuietPlaceholder := false
	for _, d := range out {
		if d.DomainID == "a" && d.Text == quietDigestPlaceholder {
			foundQuietPlaceholder = true
		}
	}
	if !foundQuietPlaceholder {
		t.Fatal("expected quiet domain digest to be replaced with placeholder before hard-floor truncation")
	}
}

func TestCompressDigestsSortsByDomainID(t *testing.T) {
	digests := []DomainDigest{{DomainID: "z"}, {DomainID: "a"}}
	out := CompressDigests(digests, DefaultTokenBudget)
	if out[0].DomainID != "a" || out[1].DomainID != "z" {
		t.Fatalf("expected sorted order, got %v, %v", out[0].DomainID, out[1].DomainID)
	}
}

func TestProjectHealthV1CapsDescriptionAt80Chars(t *testing.T) {
	domains := []DomainHealth{{DomainID: "a", DomainName: "A"}}
	longDesc := strings.Repeat("d", 200)
	out := ProjectHealthV1(domains, func(DomainHealth) string { return longDesc })
	if len(out[0].Description) != descriptionCharCap {
		t.Fatalf("expected description capped at %d chars, got %d", descriptionCharCap, len(out[0].Description))
	}
}
