// ABOUTME: Data models for calendar events, Google credentials, and import results
// ABOUTME: Defines Event, EventSyncInfo, EventPatch, OAuthCredential, SyncCursor, and ImportResult
package models

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is the three-valued event status shared with Google Calendar.
type EventStatus string

const (
	EventStatusConfirmed EventStatus = "confirmed"
	EventStatusTentative EventStatus = "tentative"
	EventStatusCancelled EventStatus = "cancelled"
)

// DefaultEventColor is assigned to events created by the Google import.
const DefaultEventColor = "blue"

// ExternalProviderGoogle is stored as the source of externally linked events.
const ExternalProviderGoogle = "google"

// EventContent holds the fields an import is allowed to overwrite.
type EventContent struct {
	Title            string      `json:"title"`
	Description      *string     `json:"description,omitempty"`
	StartUTC         time.Time   `json:"start_utc"`
	EndUTC           time.Time   `json:"end_utc"`
	TimeZone         *string     `json:"time_zone,omitempty"`
	IsAllDay         bool        `json:"is_all_day"`
	Status           EventStatus `json:"status"`
	RecurrenceRule   *string     `json:"recurrence_rule,omitempty"`
	RecurringEventID *string     `json:"recurring_event_id,omitempty"`
	OriginalStartUTC *time.Time  `json:"original_start_utc,omitempty"`
}

// IsRecurrenceMaster reports whether the event carries its own recurrence rule.
func (c EventContent) IsRecurrenceMaster() bool {
	return c.RecurrenceRule != nil && *c.RecurrenceRule != ""
}

// IsRecurrenceException reports whether the event overrides one instance of a series.
func (c EventContent) IsRecurrenceException() bool {
	return c.RecurringEventID != nil && *c.RecurringEventID != ""
}

// Event is a calendar event owned by one user. Events with no external
// linkage are purely local.
type Event struct {
	ID     uuid.UUID `json:"id"`
	UserID string    `json:"user_id"`
	EventContent
	Color     string    `json:"color"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ExternalEventID     *string    `json:"external_event_id,omitempty"`
	ExternalCalendarID  *string    `json:"external_calendar_id,omitempty"`
	ExternalRevisionTag *string    `json:"external_revision_tag,omitempty"`
	ExternalSyncedAt    *time.Time `json:"external_synced_at,omitempty"`
}

// IsLinked reports whether the event mirrors a Google Calendar event.
func (e *Event) IsLinked() bool {
	return e.ExternalEventID != nil && *e.ExternalEventID != ""
}

// EventDraft is the mapped form of one Google event before it is written.
type EventDraft struct {
	EventContent
	ExternalEventID string `json:"external_event_id"`
}

// EventSyncInfo is the identity and revision metadata of a linked event,
// enough to decide whether an import should touch it.
type EventSyncInfo struct {
	EventID             uuid.UUID  `json:"event_id"`
	Title               string     `json:"title"`
	ExternalEventID     string     `json:"external_event_id"`
	ExternalRevisionTag *string    `json:"external_revision_tag,omitempty"`
	ExternalSyncedAt    *time.Time `json:"external_synced_at,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
	Version             int64      `json:"version"`
}

// CreateEventInput describes a new event. The store assigns ID and Version.
type CreateEventInput struct {
	UserID string
	EventContent
	Color string

	ExternalEventID     *string
	ExternalCalendarID  *string
	ExternalRevisionTag *string
	ExternalSyncedAt    *time.Time

	// CreatedAt is used for both created_at and updated_at. Zero means now.
	CreatedAt time.Time
}

// EventPatch replaces an event's content and sync metadata in one write.
// Nil external fields leave the stored values untouched.
type EventPatch struct {
	EventContent
	ExternalRevisionTag *string
	ExternalSyncedAt    *time.Time
	UpdatedAt           time.Time
}

// OAuthCredential is the Google authorization held for one user. An empty
// RefreshToken means the credential cannot be renewed once it expires.
type OAuthCredential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	AccountEmail string    `json:"account_email"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// CanRefresh reports whether the credential carries a refresh token.
func (c *OAuthCredential) CanRefresh() bool {
	return c != nil && c.RefreshToken != ""
}

// SyncCursor is the Google change-feed position for one user.
type SyncCursor struct {
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	SyncToken  *string    `json:"sync_token,omitempty"`
}

// HasToken reports whether an incremental fetch is possible.
func (c *SyncCursor) HasToken() bool {
	return c != nil && c.SyncToken != nil && *c.SyncToken != ""
}

// UserMeta bundles the per-user sync records.
type UserMeta struct {
	UserID     string           `json:"user_id"`
	Credential *OAuthCredential `json:"credential,omitempty"`
	Cursor     *SyncCursor      `json:"cursor,omitempty"`
}

// Notification types.
const (
	NotificationTypeGoogleImport = "google_calendar_import"
)

// NotificationInput is a new entry for a user's notification feed.
type NotificationInput struct {
	UserID   string                 `json:"user_id"`
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Notification is a stored feed entry.
type Notification struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Read      bool                   `json:"read"`
	CreatedAt time.Time              `json:"created_at"`
}

// ImportConflict reports an event changed both locally and in Google since
// the last sync. It is not stored; the user reconciles it by hand.
type ImportConflict struct {
	EventID           uuid.UUID `json:"event_id"`
	Title             string    `json:"title"`
	LocalUpdatedAt    time.Time `json:"local_updated_at"`
	ExternalUpdatedAt time.Time `json:"external_updated_at"`
}

// ImportResult summarizes one import run.
type ImportResult struct {
	ImportedCount  int              `json:"imported_count"`
	SkippedCount   int              `json:"skipped_count"`
	Conflicts      []ImportConflict `json:"conflicts"`
	NotificationID string           `json:"notification_id"`
}

// ConnectResult is returned after a successful authorization callback.
type ConnectResult struct {
	Connected   bool      `json:"connected"`
	Email       string    `json:"email"`
	ConnectedAt time.Time `json:"connected_at"`
}

// ConnectionStatus describes a user's Google Calendar connection.
type ConnectionStatus struct {
	Connected     bool       `json:"connected"`
	Email         *string    `json:"email,omitempty"`
	ConnectedAt   *time.Time `json:"connected_at,omitempty"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
	LastRunError  *string    `json:"last_run_error,omitempty"`
}

// Run status values recorded for each user's most recent import.
const (
	RunStatusIdle    = "idle"
	RunStatusSyncing = "syncing"
	RunStatusError   = "error"
)

// ImportRun is the advisory record of a user's most recent import run.
type ImportRun struct {
	UserID        string     `json:"user_id"`
	Status        string     `json:"status"`
	ErrorMessage  *string    `json:"error_message,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	ImportedCount int        `json:"imported_count"`
	SkippedCount  int        `json:"skipped_count"`
	ConflictCount int        `json:"conflict_count"`
}
