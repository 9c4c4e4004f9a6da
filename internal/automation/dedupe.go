package automation

import (
	"fmt"
	"sort"
	"time"

	"github.com/quiet-coder-io/domainos/internal/normalize"
)

const minuteKeyLayout = "2006-01-02T15:04"

func minuteKey(t time.Time) string {
	return t.Format(minuteKeyLayout)
}

// ScheduleDedupeKey builds the schedule dedup key:
// {automationId}|{minuteKeyISO}.
func ScheduleDedupeKey(automationID string, firedAt time.Time) string {
	return fmt.Sprintf("%s|%s", automationID, minuteKey(firedAt))
}

// ManualDedupeKey builds the manual dedup key:
// {automationId}|manual|{requestId ?? 'none'}.
func ManualDedupeKey(automationID, requestID string) string {
	if requestID == "" {
		requestID = "none"
	}
	return fmt.Sprintf("%s|manual|%s", automationID, requestID)
}

// EventDedupeKey builds the event dedup key:
// {automationId}|{eventType}|{payloadHash}|{minuteKey}, where payloadHash is
// stableHash(materializeDedupePayload(eventType, eventData)).
func EventDedupeKey(automationID, eventType string, eventData map[string]interface{}, firedAt time.Time) string {
	payload := materializeDedupePayload(eventType, eventData)
	hash := normalize.StableHash(payload)
	return fmt.Sprintf("%s|%s|%s|%s", automationID, eventType, hash, minuteKey(firedAt))
}

// materializeDedupePayload whitelists a fixed field set per event type, so
// unrelated event-data noise never perturbs the dedup hash.
func materializeDedupePayload(eventType string, eventData map[string]interface{}) map[string]interface{} {
	get := func(key string) interface{} { return eventData[key] }

	switch eventType {
	case "intake_created":
		return map[string]interface{}{
			"entityId":   get("entityId"),
			"entityType": get("entityType"),
		}
	case "kb_changed":
		return map[string]interface{}{
			"entityId":     get("entityId"),
			"entityType":   get("entityType"),
			"changedPaths": sortedStringSlice(eventData["changedPaths"]),
		}
	case "gap_flag_raised":
		return map[string]interface{}{
			"entityId":   get("entityId"),
			"entityType": get("entityType"),
			"severity":   get("severity"),
		}
	case "deadline_approaching":
		entityID := get("deadlineId")
		if entityID == nil {
			entityID = get("entityId")
		}
		return map[string]interface{}{
			"entityId":   entityID,
			"entityType": "deadline",
			"dueDate":    get("dueDate"),
		}
	default:
		return eventData
	}
}

func sortedStringSlice(v interface{}) []string {
	var out []string
	switch t := v.(type) {
	case []string:
		out = append(out, t...)
	case []interface{}:
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}
