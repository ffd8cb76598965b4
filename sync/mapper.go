// ABOUTME: Maps Google Calendar events into the local event representation
// ABOUTME: Handles all-day boundaries, status normalization, recurrence rules, and exception instances
package sync

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"
	"google.golang.org/api/calendar/v3"

	"github.com/harperreed/dayplan/models"
)

const (
	rrulePrefix   = "RRULE:"
	allDayLayout  = "2006-01-02"
	untitledEvent = "(No title)"
)

// MapEvent translates one Google event into a draft. It never fails: missing
// or unparseable optional fields come back as nil or zero values.
func MapEvent(event *calendar.Event) models.EventDraft {
	draft := models.EventDraft{}
	if event == nil {
		draft.Status = models.EventStatusConfirmed
		return draft
	}

	draft.ExternalEventID = event.Id
	draft.Title = event.Summary
	if draft.Title == "" {
		draft.Title = untitledEvent
	}
	if event.Description != "" {
		draft.Description = stringPtr(event.Description)
	}

	draft.IsAllDay = isAllDay(event)
	draft.StartUTC, draft.TimeZone = eventTime(event.Start)
	draft.EndUTC, _ = eventTime(event.End)
	if draft.IsAllDay {
		draft.TimeZone = nil
	}

	draft.Status = mapStatus(event.Status)
	draft.RecurrenceRule = extractRecurrenceRule(event.Recurrence)

	if event.RecurringEventId != "" {
		draft.RecurringEventID = stringPtr(event.RecurringEventId)
		if start, ok := originalStart(event.OriginalStartTime); ok {
			draft.OriginalStartUTC = &start
		}
	}

	return draft
}

// isAllDay reports whether the event uses date-only boundaries.
func isAllDay(event *calendar.Event) bool {
	return event.Start != nil && event.Start.Date != "" && event.Start.DateTime == ""
}

// eventTime returns the UTC instant of a boundary and the zone Google
// attached to it. Date-only boundaries become midnight UTC.
func eventTime(t *calendar.EventDateTime) (time.Time, *string) {
	if t == nil {
		return time.Time{}, nil
	}

	var zone *string
	if t.TimeZone != "" {
		zone = stringPtr(t.TimeZone)
	}

	if t.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return parsed.UTC(), zone
		}
	}
	if t.Date != "" {
		if parsed, err := time.Parse(allDayLayout, t.Date); err == nil {
			return parsed.UTC(), zone
		}
	}
	return time.Time{}, zone
}

// originalStart prefers the precise date-time form of a recurring
// instance's original start and falls back to its date.
func originalStart(t *calendar.EventDateTime) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return parsed.UTC(), true
		}
	}
	if t.Date != "" {
		if parsed, err := time.Parse(allDayLayout, t.Date); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

func mapStatus(status string) models.EventStatus {
	switch models.EventStatus(status) {
	case models.EventStatusConfirmed, models.EventStatusTentative, models.EventStatusCancelled:
		return models.EventStatus(status)
	default:
		return models.EventStatusConfirmed
	}
}

// extractRecurrenceRule returns the first RRULE line with its prefix stripped.
// EXDATE and RDATE lines are ignored.
func extractRecurrenceRule(lines []string) *string {
	for _, line := range lines {
		if strings.HasPrefix(line, rrulePrefix) {
			rule := strings.TrimPrefix(line, rrulePrefix)
			return &rule
		}
	}
	return nil
}

// ValidateRecurrenceRule parses an extracted rule. Invalid rules are still
// imported verbatim; callers only log the error.
func ValidateRecurrenceRule(rule string) error {
	_, err := rrule.StrToROption(rule)
	return err
}

func stringPtr(s string) *string {
	return &s
}
