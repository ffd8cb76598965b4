// ABOUTME: Tests for mapping Google events to local drafts
// ABOUTME: Covers all-day boundaries, zones, status defaults, recurrence masters, and exceptions
package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"

	"github.com/harperreed/dayplan/models"
)

func TestMapEventAllDay(t *testing.T) {
	draft := MapEvent(&calendar.Event{
		Id:      "g1",
		Summary: "Holiday",
		Start:   &calendar.EventDateTime{Date: "2025-03-01"},
		End:     &calendar.EventDateTime{Date: "2025-03-02"},
	})

	assert.True(t, draft.IsAllDay)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), draft.StartUTC)
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), draft.EndUTC)
	assert.Nil(t, draft.TimeZone)
	assert.Equal(t, "g1", draft.ExternalEventID)
}

func TestMapEventTimedKeepsZone(t *testing.T) {
	draft := MapEvent(&calendar.Event{
		Summary: "Standup",
		Start:   &calendar.EventDateTime{DateTime: "2025-03-10T09:00:00-05:00", TimeZone: "America/Chicago"},
		End:     &calendar.EventDateTime{DateTime: "2025-03-10T09:15:00-05:00", TimeZone: "America/Chicago"},
	})

	assert.False(t, draft.IsAllDay)
	assert.Equal(t, time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC), draft.StartUTC)
	assert.Equal(t, time.Date(2025, 3, 10, 14, 15, 0, 0, time.UTC), draft.EndUTC)
	require.NotNil(t, draft.TimeZone)
	assert.Equal(t, "America/Chicago", *draft.TimeZone)
	assert.Equal(t, time.UTC, draft.StartUTC.Location())
}

func TestMapEventDefaults(t *testing.T) {
	draft := MapEvent(&calendar.Event{
		Start: &calendar.EventDateTime{DateTime: "2025-03-10T09:00:00Z"},
		End:   &calendar.EventDateTime{DateTime: "2025-03-10T10:00:00Z"},
	})

	assert.Equal(t, "(No title)", draft.Title)
	assert.Nil(t, draft.Description)
	assert.Nil(t, draft.TimeZone)
	assert.Equal(t, models.EventStatusConfirmed, draft.Status)
	assert.Nil(t, draft.RecurrenceRule)
	assert.Nil(t, draft.RecurringEventID)
}

func TestMapEventStatus(t *testing.T) {
	tests := []struct {
		in   string
		want models.EventStatus
	}{
		{"confirmed", models.EventStatusConfirmed},
		{"tentative", models.EventStatusTentative},
		{"cancelled", models.EventStatusCancelled},
		{"", models.EventStatusConfirmed},
		{"bogus", models.EventStatusConfirmed},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MapEvent(&calendar.Event{Status: tt.in}).Status)
		})
	}
}

func TestMapEventRecurrenceMaster(t *testing.T) {
	draft := MapEvent(&calendar.Event{
		Summary:     "Weekly",
		Description: "team sync",
		Recurrence: []string{
			"EXDATE;TZID=America/Chicago:20250317T090000",
			"RRULE:FREQ=WEEKLY;BYDAY=MO",
			"RRULE:FREQ=DAILY",
		},
		Start: &calendar.EventDateTime{DateTime: "2025-03-10T09:00:00-05:00", TimeZone: "America/Chicago"},
		End:   &calendar.EventDateTime{DateTime: "2025-03-10T10:00:00-05:00", TimeZone: "America/Chicago"},
	})

	require.NotNil(t, draft.RecurrenceRule)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO", *draft.RecurrenceRule)
	require.NotNil(t, draft.Description)
	assert.Equal(t, "team sync", *draft.Description)
	assert.True(t, draft.IsRecurrenceMaster())
	assert.NoError(t, ValidateRecurrenceRule(*draft.RecurrenceRule))
}

func TestMapEventException(t *testing.T) {
	draft := MapEvent(&calendar.Event{
		Summary:           "Weekly (moved)",
		RecurringEventId:  "master-1",
		OriginalStartTime: &calendar.EventDateTime{DateTime: "2025-03-17T09:00:00-05:00"},
		Start:             &calendar.EventDateTime{DateTime: "2025-03-18T09:00:00-05:00"},
		End:               &calendar.EventDateTime{DateTime: "2025-03-18T10:00:00-05:00"},
	})

	require.NotNil(t, draft.RecurringEventID)
	assert.Equal(t, "master-1", *draft.RecurringEventID)
	require.NotNil(t, draft.OriginalStartUTC)
	assert.Equal(t, time.Date(2025, 3, 17, 14, 0, 0, 0, time.UTC), *draft.OriginalStartUTC)
	assert.True(t, draft.IsRecurrenceException())
}

func TestMapEventAllDayExceptionOriginalStart(t *testing.T) {
	draft := MapEvent(&calendar.Event{
		RecurringEventId:  "master-1",
		OriginalStartTime: &calendar.EventDateTime{Date: "2025-03-17"},
		Start:             &calendar.EventDateTime{Date: "2025-03-18"},
		End:               &calendar.EventDateTime{Date: "2025-03-19"},
	})

	require.NotNil(t, draft.OriginalStartUTC)
	assert.Equal(t, time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC), *draft.OriginalStartUTC)
}

func TestMapEventMalformedTimes(t *testing.T) {
	draft := MapEvent(&calendar.Event{
		Start: &calendar.EventDateTime{DateTime: "not-a-time"},
	})

	assert.True(t, draft.StartUTC.IsZero())
	assert.True(t, draft.EndUTC.IsZero())
}

func TestMapEventNil(t *testing.T) {
	draft := MapEvent(nil)
	assert.Equal(t, models.EventStatusConfirmed, draft.Status)
}

func TestValidateRecurrenceRuleRejectsGarbage(t *testing.T) {
	assert.Error(t, ValidateRecurrenceRule("FREQ=SOMETIMES"))
}
