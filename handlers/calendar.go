// ABOUTME: Google Calendar MCP tool handlers
// ABOUTME: Implements import_now, sync_status, list_synced_events, list_notifications, and mark_notification_read
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/dayplan/db"
	"github.com/harperreed/dayplan/models"
	"github.com/harperreed/dayplan/sync"
)

// SyncService is the slice of sync.Service the tools call.
type SyncService interface {
	ImportNow(ctx context.Context, userID string) (*models.ImportResult, error)
	Status(ctx context.Context, userID string) (*models.ConnectionStatus, error)
}

type CalendarHandlers struct {
	service       SyncService
	events        *db.EventRepository
	notifications *db.NotificationRepository
	defaultUser   string
}

func NewCalendarHandlers(service SyncService, events *db.EventRepository, notifications *db.NotificationRepository, defaultUser string) *CalendarHandlers {
	return &CalendarHandlers{
		service:       service,
		events:        events,
		notifications: notifications,
		defaultUser:   defaultUser,
	}
}

func (h *CalendarHandlers) user(id string) string {
	if id != "" {
		return id
	}
	return h.defaultUser
}

type ImportNowInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"User to import for (defaults to the configured user)"`
}

type ConflictOutput struct {
	EventID           string `json:"event_id"`
	Title             string `json:"title"`
	LocalUpdatedAt    string `json:"local_updated_at"`
	ExternalUpdatedAt string `json:"external_updated_at"`
}

type ImportNowOutput struct {
	ImportedCount  int              `json:"imported_count"`
	SkippedCount   int              `json:"skipped_count"`
	Conflicts      []ConflictOutput `json:"conflicts"`
	NotificationID string           `json:"notification_id,omitempty"`
}

func (h *CalendarHandlers) ImportNow(ctx context.Context, _ *mcp.CallToolRequest, input ImportNowInput) (*mcp.CallToolResult, ImportNowOutput, error) {
	result, err := h.service.ImportNow(ctx, h.user(input.UserID))
	if err != nil {
		return nil, ImportNowOutput{}, fmt.Errorf("%s: %w", sync.UserMessage(err), err)
	}

	conflicts := make([]ConflictOutput, len(result.Conflicts))
	for i, c := range result.Conflicts {
		conflicts[i] = ConflictOutput{
			EventID:           c.EventID.String(),
			Title:             c.Title,
			LocalUpdatedAt:    c.LocalUpdatedAt.Format(time.RFC3339),
			ExternalUpdatedAt: c.ExternalUpdatedAt.Format(time.RFC3339),
		}
	}

	return nil, ImportNowOutput{
		ImportedCount:  result.ImportedCount,
		SkippedCount:   result.SkippedCount,
		Conflicts:      conflicts,
		NotificationID: result.NotificationID,
	}, nil
}

type SyncStatusInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"User to report on (defaults to the configured user)"`
}

type SyncStatusOutput struct {
	Connected     bool    `json:"connected"`
	Email         *string `json:"email,omitempty"`
	ConnectedAt   *string `json:"connected_at,omitempty"`
	LastSyncAt    *string `json:"last_sync_at,omitempty"`
	LastRunStatus string  `json:"last_run_status,omitempty"`
	LastRunError  *string `json:"last_run_error,omitempty"`
	Message       string  `json:"message,omitempty"`
}

func (h *CalendarHandlers) SyncStatus(ctx context.Context, _ *mcp.CallToolRequest, input SyncStatusInput) (*mcp.CallToolResult, SyncStatusOutput, error) {
	status, err := h.service.Status(ctx, h.user(input.UserID))
	if err != nil {
		return nil, SyncStatusOutput{}, fmt.Errorf("failed to get sync status: %w", err)
	}

	out := SyncStatusOutput{
		Connected:     status.Connected,
		Email:         status.Email,
		ConnectedAt:   formatOptionalTime(status.ConnectedAt),
		LastSyncAt:    formatOptionalTime(status.LastSyncAt),
		LastRunStatus: status.LastRunStatus,
		LastRunError:  status.LastRunError,
	}
	if !status.Connected {
		out.Message = sync.UserMessage(sync.ErrNotConnected)
	}
	return nil, out, nil
}

type ListSyncedEventsInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"User whose events to list (defaults to the configured user)"`
	From   string `json:"from,omitempty" jsonschema:"Only events ending at or after this RFC 3339 time"`
	To     string `json:"to,omitempty" jsonschema:"Only events starting before this RFC 3339 time"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default 50)"`
}

type EventOutput struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Description     *string `json:"description,omitempty"`
	Start           string  `json:"start"`
	End             string  `json:"end"`
	TimeZone        *string `json:"time_zone,omitempty"`
	AllDay          bool    `json:"all_day"`
	Status          string  `json:"status"`
	RecurrenceRule  *string `json:"recurrence_rule,omitempty"`
	ExternalEventID *string `json:"external_event_id,omitempty"`
	SyncedAt        *string `json:"synced_at,omitempty"`
}

type ListSyncedEventsOutput struct {
	Events []EventOutput `json:"events"`
}

func (h *CalendarHandlers) ListSyncedEvents(ctx context.Context, _ *mcp.CallToolRequest, input ListSyncedEventsInput) (*mcp.CallToolResult, ListSyncedEventsOutput, error) {
	filter := db.EventFilter{LinkedOnly: true, Limit: input.Limit}
	if filter.Limit == 0 {
		filter.Limit = 50
	}

	var err error
	if input.From != "" {
		if filter.From, err = time.Parse(time.RFC3339, input.From); err != nil {
			return nil, ListSyncedEventsOutput{}, fmt.Errorf("invalid from: %w", err)
		}
	}
	if input.To != "" {
		if filter.To, err = time.Parse(time.RFC3339, input.To); err != nil {
			return nil, ListSyncedEventsOutput{}, fmt.Errorf("invalid to: %w", err)
		}
	}

	events, err := h.events.ListEvents(ctx, h.user(input.UserID), filter)
	if err != nil {
		return nil, ListSyncedEventsOutput{}, fmt.Errorf("failed to list events: %w", err)
	}

	result := make([]EventOutput, len(events))
	for i := range events {
		result[i] = eventToOutput(&events[i])
	}
	return nil, ListSyncedEventsOutput{Events: result}, nil
}

type ListNotificationsInput struct {
	UserID     string `json:"user_id,omitempty" jsonschema:"User whose notifications to list (defaults to the configured user)"`
	UnreadOnly bool   `json:"unread_only,omitempty" jsonschema:"Only return unread notifications"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default 20)"`
}

type NotificationOutput struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Read      bool                   `json:"read"`
	CreatedAt string                 `json:"created_at"`
}

type ListNotificationsOutput struct {
	Notifications []NotificationOutput `json:"notifications"`
}

func (h *CalendarHandlers) ListNotifications(ctx context.Context, _ *mcp.CallToolRequest, input ListNotificationsInput) (*mcp.CallToolResult, ListNotificationsOutput, error) {
	limit := input.Limit
	if limit == 0 {
		limit = 20
	}

	notifications, err := h.notifications.ListNotifications(ctx, h.user(input.UserID), input.UnreadOnly, limit)
	if err != nil {
		return nil, ListNotificationsOutput{}, fmt.Errorf("failed to list notifications: %w", err)
	}

	result := make([]NotificationOutput, len(notifications))
	for i, n := range notifications {
		result[i] = NotificationOutput{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Metadata:  n.Metadata,
			Read:      n.Read,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		}
	}
	return nil, ListNotificationsOutput{Notifications: result}, nil
}

type MarkNotificationReadInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"Owner of the notification (defaults to the configured user)"`
	ID     string `json:"id" jsonschema:"Notification ID (required)"`
}

type MarkNotificationReadOutput struct {
	ID   string `json:"id"`
	Read bool   `json:"read"`
}

func (h *CalendarHandlers) MarkNotificationRead(ctx context.Context, _ *mcp.CallToolRequest, input MarkNotificationReadInput) (*mcp.CallToolResult, MarkNotificationReadOutput, error) {
	if input.ID == "" {
		return nil, MarkNotificationReadOutput{}, fmt.Errorf("id is required")
	}

	if err := h.notifications.MarkRead(ctx, h.user(input.UserID), input.ID); err != nil {
		return nil, MarkNotificationReadOutput{}, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil, MarkNotificationReadOutput{ID: input.ID, Read: true}, nil
}

// Register adds every calendar tool to server.
func (h *CalendarHandlers) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "import_now",
		Description: "Import the user's Google Calendar now and report imported, skipped, and conflicting events",
	}, h.ImportNow)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Show whether Google Calendar is connected and when it last synced",
	}, h.SyncStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_synced_events",
		Description: "List local events imported from Google Calendar, optionally within a time range",
	}, h.ListSyncedEvents)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_notifications",
		Description: "List import notifications for the user",
	}, h.ListNotifications)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "mark_notification_read",
		Description: "Mark an import notification as read",
	}, h.MarkNotificationRead)
}

func eventToOutput(e *models.Event) EventOutput {
	out := EventOutput{
		ID:              e.ID.String(),
		Title:           e.Title,
		Description:     e.Description,
		Start:           e.StartUTC.Format(time.RFC3339),
		End:             e.EndUTC.Format(time.RFC3339),
		TimeZone:        e.TimeZone,
		AllDay:          e.IsAllDay,
		Status:          string(e.Status),
		RecurrenceRule:  e.RecurrenceRule,
		ExternalEventID: e.ExternalEventID,
		SyncedAt:        formatOptionalTime(e.ExternalSyncedAt),
	}
	return out
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
