// ABOUTME: Event repository for the local calendar
// ABOUTME: Creates, lists, and version-checked updates of events linked to Google Calendar
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/dayplan/models"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrInvalidEvent    = errors.New("invalid event")
	ErrVersionConflict = errors.New("event version changed")
)

const eventColumns = `id, user_id, title, description, start_utc, end_utc, time_zone, is_all_day,
	status, color, recurrence_rule, recurring_event_id, original_start_utc, version,
	external_event_id, external_calendar_id, external_revision_tag, external_synced_at,
	created_at, updated_at`

// EventRepository stores calendar events in SQLite.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateEvent inserts an event at version 1. created_at and updated_at both
// take input.CreatedAt (now when zero).
func (r *EventRepository) CreateEvent(ctx context.Context, input models.CreateEventInput) (*models.Event, error) {
	if input.UserID == "" || strings.TrimSpace(input.Title) == "" {
		return nil, ErrInvalidEvent
	}

	created := input.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	created = created.UTC()

	color := input.Color
	if color == "" {
		color = models.DefaultEventColor
	}

	event := &models.Event{
		ID:                  uuid.New(),
		UserID:              input.UserID,
		EventContent:        input.EventContent,
		Color:               color,
		Version:             1,
		CreatedAt:           created,
		UpdatedAt:           created,
		ExternalEventID:     input.ExternalEventID,
		ExternalCalendarID:  input.ExternalCalendarID,
		ExternalRevisionTag: input.ExternalRevisionTag,
		ExternalSyncedAt:    input.ExternalSyncedAt,
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID.String(),
		event.UserID,
		event.Title,
		nullString(event.Description),
		event.StartUTC.UTC(),
		event.EndUTC.UTC(),
		nullString(event.TimeZone),
		event.IsAllDay,
		string(event.Status),
		event.Color,
		nullString(event.RecurrenceRule),
		nullString(event.RecurringEventID),
		nullTime(event.OriginalStartUTC),
		event.Version,
		nullString(event.ExternalEventID),
		nullString(event.ExternalCalendarID),
		nullString(event.ExternalRevisionTag),
		nullTime(event.ExternalSyncedAt),
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}

	return event, nil
}

// UpdateEvent overwrites the event's content and sync metadata and bumps
// its version, but only if the stored version equals expectedVersion.
func (r *EventRepository) UpdateEvent(ctx context.Context, userID, eventID string, patch models.EventPatch, expectedVersion int64) error {
	updated := patch.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE events SET
			title = ?, description = ?, start_utc = ?, end_utc = ?, time_zone = ?, is_all_day = ?,
			status = ?, recurrence_rule = ?, recurring_event_id = ?, original_start_utc = ?,
			external_revision_tag = ?, external_synced_at = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND user_id = ? AND version = ?
	`,
		patch.Title,
		nullString(patch.Description),
		patch.StartUTC.UTC(),
		patch.EndUTC.UTC(),
		nullString(patch.TimeZone),
		patch.IsAllDay,
		string(patch.Status),
		nullString(patch.RecurrenceRule),
		nullString(patch.RecurringEventID),
		nullTime(patch.OriginalStartUTC),
		nullString(patch.ExternalRevisionTag),
		nullTime(patch.ExternalSyncedAt),
		updated.UTC(),
		eventID,
		userID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 1 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE id = ? AND user_id = ?`, eventID, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if exists == 0 {
		return ErrEventNotFound
	}
	return ErrVersionConflict
}

// TouchEvent records a local edit of the title, bumping version and
// updated_at. Used by local tooling; imports never call it.
func (r *EventRepository) TouchEvent(ctx context.Context, userID, eventID, title string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE events SET title = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND user_id = ?
	`, title, at.UTC(), eventID, userID)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrEventNotFound
	}
	return nil
}

// FindLinkedEvents returns the sync view of every event the user has linked
// to Google.
func (r *EventRepository) FindLinkedEvents(ctx context.Context, userID string) ([]models.EventSyncInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, external_event_id, external_revision_tag, external_synced_at, updated_at, version
		FROM events
		WHERE user_id = ? AND external_event_id IS NOT NULL
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query linked events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []models.EventSyncInfo
	for rows.Next() {
		var info models.EventSyncInfo
		var id string
		var tag sql.NullString
		var syncedAt sql.NullTime

		if err := rows.Scan(&id, &info.Title, &info.ExternalEventID, &tag, &syncedAt, &info.UpdatedAt, &info.Version); err != nil {
			return nil, fmt.Errorf("failed to scan linked event: %w", err)
		}
		if info.EventID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid event id %q: %w", id, err)
		}
		info.ExternalRevisionTag = stringPtr(tag)
		info.ExternalSyncedAt = timePtr(syncedAt)
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating linked events: %w", err)
	}

	return infos, nil
}

// GetEvent retrieves one of the user's events by id.
func (r *EventRepository) GetEvent(ctx context.Context, userID, eventID string) (*models.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ? AND user_id = ?`, eventID, userID)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// EventFilter narrows ListEvents. Zero values mean no bound.
type EventFilter struct {
	From       time.Time
	To         time.Time
	LinkedOnly bool
	Limit      int
}

// ListEvents returns the user's events ordered by start time.
func (r *EventRepository) ListEvents(ctx context.Context, userID string, filter EventFilter) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE user_id = ?`
	args := []interface{}{userID}

	if !filter.From.IsZero() {
		query += ` AND end_utc >= ?`
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		query += ` AND start_utc < ?`
		args = append(args, filter.To.UTC())
	}
	if filter.LinkedOnly {
		query += ` AND external_event_id IS NOT NULL`
	}
	query += ` ORDER BY start_utc, title`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var event models.Event
	var id, status string
	var description, timeZone, rrule, recurringID sql.NullString
	var externalID, calendarID, tag sql.NullString
	var originalStart, syncedAt sql.NullTime

	err := row.Scan(
		&id,
		&event.UserID,
		&event.Title,
		&description,
		&event.StartUTC,
		&event.EndUTC,
		&timeZone,
		&event.IsAllDay,
		&status,
		&event.Color,
		&rrule,
		&recurringID,
		&originalStart,
		&event.Version,
		&externalID,
		&calendarID,
		&tag,
		&syncedAt,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	if event.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid event id %q: %w", id, err)
	}
	event.Status = models.EventStatus(status)
	event.Description = stringPtr(description)
	event.TimeZone = stringPtr(timeZone)
	event.RecurrenceRule = stringPtr(rrule)
	event.RecurringEventID = stringPtr(recurringID)
	event.OriginalStartUTC = timePtr(originalStart)
	event.ExternalEventID = stringPtr(externalID)
	event.ExternalCalendarID = stringPtr(calendarID)
	event.ExternalRevisionTag = stringPtr(tag)
	event.ExternalSyncedAt = timePtr(syncedAt)

	return &event, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}
