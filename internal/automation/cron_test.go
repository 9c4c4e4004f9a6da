package automation

import (
	"testing"
	"time"
)

func TestValidateCronRejectsWrongFieldCount(t *testing.T) {
	if err := ValidateCron("0 9 * *"); err == nil {
		t.Fatal("expected an error for a 4-field expression")
	}
	if err := ValidateCron("0 9 * * *"); err != nil {
		t.Fatalf("expected a valid 5-field expression to parse, got %v", err)
	}
}

func TestMatchesCronWildcardAndStep(t *testing.T) {
	spec, err := ParseCron("*/15 9 * * 1-5")
	if err != nil {
		t.Fatal(err)
	}
	// Monday 2026-07-27 is a weekday.
	match := time.Date(2026, 7, 27, 9, 30, 0, 0, time.UTC)
	if !MatchesCron(spec, match) {
		t.Fatalf("expected %v to match */15 9 * * 1-5", match)
	}
	noMatch := time.Date(2026, 7, 27, 9, 31, 0, 0, time.UTC)
	if MatchesCron(spec, noMatch) {
		t.Fatalf("expected %v not to match (not a 15-min step)", noMatch)
	}
	weekend := time.Date(2026, 7, 25, 9, 30, 0, 0, time.UTC) // Saturday
	if MatchesCron(spec, weekend) {
		t.Fatalf("expected %v not to match (weekend)", weekend)
	}
}

func TestLastCronMatchFindsMostRecentMinute(t *testing.T) {
	spec, err := ParseCron("0 9 * * *")
	if err != nil {
		t.Fatal(err)
	}
	before := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	got, ok := LastCronMatch(spec, before)
	if !ok {
		t.Fatal("expected a match")
	}
	want := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNextCronMatchAdvancesToFutureMinute(t *testing.T) {
	spec, err := ParseCron("0 9 * * *")
	if err != nil {
		t.Fatal(err)
	}
	after := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	got, ok := NextCronMatch(spec, after)
	if !ok {
		t.Fatal("expected a match")
	}
	want := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
