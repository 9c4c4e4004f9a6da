// Package automation implements the tick- and event-driven scheduler
// lifecycle: a 5-field cron subset, dedup-key builders, the
// tryInsertRun/finalizeRun run lifecycle, and retention/crash-recovery
// cleanup. Cron matching is plain stdlib time arithmetic,
// since no scheduling dependency exposes the backward-enumeration
// (lastCronMatch-style) API this engine needs.
package automation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronField is one of the 5 cron positions, with its valid integer range.
type cronField struct {
	min, max int
}

var cronFields = [5]cronField{
	{0, 59}, // minute
	{0, 23}, // hour
	{1, 31}, // day of month
	{1, 12}, // month
	{0, 6},  // day of week (0=Sunday)
}

// CronSpec is a parsed 5-field cron expression; each field holds the set of
// matching integer values.
type CronSpec struct {
	minute, hour, dom, month, dow map[int]bool
	raw                           string
}

// ValidateCron parses expr and returns a descriptive error if it is not a
// valid 5-field cron subset (*, integers, a-b ranges, a,b,c lists, */n
// steps), or nil if it parses.
func ValidateCron(expr string) error {
	_, err := ParseCron(expr)
	return err
}

// ParseCron parses a 5-field cron expression.
func ParseCron(expr string) (CronSpec, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return CronSpec{}, fmt.Errorf("cron: expected 5 fields, got %d", len(fields))
	}
	sets := make([]map[int]bool, 5)
	for i, f := range fields {
		set, err := parseCronField(f, cronFields[i])
		if err != nil {
			return CronSpec{}, fmt.Errorf("cron field %d (%q): %w", i, f, err)
		}
		sets[i] = set
	}
	return CronSpec{minute: sets[0], hour: sets[1], dom: sets[2], month: sets[3], dow: sets[4], raw: expr}, nil
}

func parseCronField(f string, limits cronField) (map[int]bool, error) {
	set := make(map[int]bool)
	for _, part := range strings.Split(f, ",") {
		if part == "" {
			return nil, fmt.Errorf("empty list element")
		}
		step := 1
		base := part
		if idx := strings.IndexByte(part, '/'); idx >= 0 {
			base = part[:idx]
			s, err := strconv.Atoi(part[idx+1:])
			if err != nil || s <= 0 {
				return nil, fmt.Errorf("invalid step %q", part[idx+1:])
			}
			step = s
		}

		var lo, hi int
		switch {
		case base == "*":
			lo, hi = limits.min, limits.max
		case strings.Contains(base, "-"):
			bounds := strings.SplitN(base, "-", 2)
			if len(bounds) != 2 {
				return nil, fmt.Errorf("invalid range %q", base)
			}
			var err error
			lo, err = strconv.Atoi(bounds[0])
			if err != nil {
				return nil, err
			}
			hi, err = strconv.Atoi(bounds[1])
			if err != nil {
				return nil, err
			}
		default:
			v, err := strconv.Atoi(base)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q", base)
			}
			lo, hi = v, v
		}
		if lo < limits.min || hi > limits.max || lo > hi {
			return nil, fmt.Errorf("value out of range [%d,%d]", limits.min, limits.max)
		}
		for v := lo; v <= hi; v += step {
			set[v] = true
		}
	}
	return set, nil
}

// MatchesCron reports whether t (interpreted in its own location, i.e.
// local time) matches spec at minute granularity.
func MatchesCron(spec CronSpec, t time.Time) bool {
	return spec.minute[t.Minute()] && spec.hour[t.Hour()] && spec.dom[t.Day()] &&
		spec.month[int(t.Month())] && spec.dow[int(t.Weekday())]
}

// maxCronScanMinutes bounds the backward/forward scan so a pathological
// expression (e.g. Feb 30, which never matches) cannot loop forever.
const maxCronScanMinutes = 366 * 24 * 60

// LastCronMatch returns the most recent minute strictly before 'before'
// that matches spec, or ok=false if none is found within one scan year.
func LastCronMatch(spec CronSpec, before time.Time) (t time.Time, ok bool) {
	cursor := before.Truncate(time.Minute).Add(-time.Minute)
	for i := 0; i < maxCronScanMinutes; i++ {
		if MatchesCron(spec, cursor) {
			return cursor, true
		}
		cursor = cursor.Add(-time.Minute)
	}
	return time.Time{}, false
}

// NextCronMatch returns the earliest minute strictly after 'after' that
// matches spec, or ok=false if none is found within one scan year.
func NextCronMatch(spec CronSpec, after time.Time) (t time.Time, ok bool) {
	cursor := after.Truncate(time.Minute).Add(time.Minute)
	for i := 0; i < maxCronScanMinutes; i++ {
		if MatchesCron(spec, cursor) {
			return cursor, true
		}
		cursor = cursor.Add(time.Minute)
	}
	return time.Time{}, false
}
