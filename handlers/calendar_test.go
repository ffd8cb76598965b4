// ABOUTME: Tests for calendar MCP tool, resource, and prompt handlers
// ABOUTME: Uses an in-memory database and a fake sync service
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/dayplan/db"
	"github.com/harperreed/dayplan/models"
	"github.com/harperreed/dayplan/sync"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	require.NoError(t, db.InitSchema(database))
	t.Cleanup(func() { _ = database.Close() })
	return database
}

type fakeService struct {
	result    *models.ImportResult
	importErr error
	status    *models.ConnectionStatus
	imported  []string
}

func (f *fakeService) ImportNow(_ context.Context, userID string) (*models.ImportResult, error) {
	f.imported = append(f.imported, userID)
	if f.importErr != nil {
		return nil, f.importErr
	}
	return f.result, nil
}

func (f *fakeService) Status(_ context.Context, _ string) (*models.ConnectionStatus, error) {
	if f.status == nil {
		return &models.ConnectionStatus{}, nil
	}
	return f.status, nil
}

func seedLinkedEvent(t *testing.T, events *db.EventRepository, userID, externalID, title string, start time.Time) *models.Event {
	t.Helper()
	synced := start.Add(-time.Hour)
	event, err := events.CreateEvent(context.Background(), models.CreateEventInput{
		UserID: userID,
		EventContent: models.EventContent{
			Title:    title,
			StartUTC: start,
			EndUTC:   start.Add(time.Hour),
			Status:   models.EventStatusConfirmed,
		},
		ExternalEventID:  &externalID,
		ExternalSyncedAt: &synced,
	})
	require.NoError(t, err)
	return event
}

func TestImportNowHandler(t *testing.T) {
	database := setupTestDB(t)
	local := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	service := &fakeService{result: &models.ImportResult{
		ImportedCount: 3,
		SkippedCount:  1,
		Conflicts: []models.ImportConflict{{
			EventID:           uuid.New(),
			Title:             "Standup",
			LocalUpdatedAt:    local,
			ExternalUpdatedAt: local.Add(time.Hour),
		}},
		NotificationID: "n1",
	}}
	h := NewCalendarHandlers(service, db.NewEventRepository(database), db.NewNotificationRepository(database), "local")

	_, out, err := h.ImportNow(context.Background(), nil, ImportNowInput{})
	require.NoError(t, err)

	assert.Equal(t, []string{"local"}, service.imported)
	assert.Equal(t, 3, out.ImportedCount)
	assert.Equal(t, 1, out.SkippedCount)
	assert.Equal(t, "n1", out.NotificationID)
	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, "Standup", out.Conflicts[0].Title)
	assert.Equal(t, "2025-03-01T10:00:00Z", out.Conflicts[0].LocalUpdatedAt)
}

func TestImportNowHandlerExplicitUser(t *testing.T) {
	database := setupTestDB(t)
	service := &fakeService{result: &models.ImportResult{}}
	h := NewCalendarHandlers(service, db.NewEventRepository(database), db.NewNotificationRepository(database), "local")

	_, _, err := h.ImportNow(context.Background(), nil, ImportNowInput{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, service.imported)
}

func TestImportNowHandlerNotConnected(t *testing.T) {
	database := setupTestDB(t)
	service := &fakeService{importErr: sync.ErrNotConnected}
	h := NewCalendarHandlers(service, db.NewEventRepository(database), db.NewNotificationRepository(database), "local")

	_, _, err := h.ImportNow(context.Background(), nil, ImportNowInput{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sync.ErrNotConnected))
	assert.Contains(t, err.Error(), "Connect your Google Calendar")
}

func TestSyncStatusHandler(t *testing.T) {
	database := setupTestDB(t)
	email := "user@example.com"
	connected := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	service := &fakeService{status: &models.ConnectionStatus{
		Connected:     true,
		Email:         &email,
		ConnectedAt:   &connected,
		LastRunStatus: models.RunStatusIdle,
	}}
	h := NewCalendarHandlers(service, db.NewEventRepository(database), db.NewNotificationRepository(database), "local")

	_, out, err := h.SyncStatus(context.Background(), nil, SyncStatusInput{})
	require.NoError(t, err)
	assert.True(t, out.Connected)
	assert.Equal(t, &email, out.Email)
	require.NotNil(t, out.ConnectedAt)
	assert.Equal(t, "2025-02-01T09:00:00Z", *out.ConnectedAt)
	assert.Nil(t, out.LastSyncAt)
	assert.Empty(t, out.Message)
}

func TestSyncStatusHandlerNotConnected(t *testing.T) {
	database := setupTestDB(t)
	h := NewCalendarHandlers(&fakeService{}, db.NewEventRepository(database), db.NewNotificationRepository(database), "local")

	_, out, err := h.SyncStatus(context.Background(), nil, SyncStatusInput{})
	require.NoError(t, err)
	assert.False(t, out.Connected)
	assert.Equal(t, sync.UserMessage(sync.ErrNotConnected), out.Message)
}

func TestListSyncedEventsHandler(t *testing.T) {
	database := setupTestDB(t)
	events := db.NewEventRepository(database)
	h := NewCalendarHandlers(&fakeService{}, events, db.NewNotificationRepository(database), "local")

	march := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	seedLinkedEvent(t, events, "local", "g1", "Planning", march)
	seedLinkedEvent(t, events, "local", "g2", "Review", march.AddDate(0, 1, 0))
	seedLinkedEvent(t, events, "someone-else", "g3", "Private", march)
	_, err := events.CreateEvent(context.Background(), models.CreateEventInput{
		UserID:       "local",
		EventContent: models.EventContent{Title: "Local only", StartUTC: march, EndUTC: march.Add(time.Hour), Status: models.EventStatusConfirmed},
	})
	require.NoError(t, err)

	_, out, err := h.ListSyncedEvents(context.Background(), nil, ListSyncedEventsInput{})
	require.NoError(t, err)
	require.Len(t, out.Events, 2)
	assert.Equal(t, "Planning", out.Events[0].Title)
	assert.Equal(t, "2025-03-01T09:00:00Z", out.Events[0].Start)
	require.NotNil(t, out.Events[0].ExternalEventID)
	assert.Equal(t, "g1", *out.Events[0].ExternalEventID)
	assert.NotNil(t, out.Events[0].SyncedAt)

	_, out, err = h.ListSyncedEvents(context.Background(), nil, ListSyncedEventsInput{From: "2025-03-15T00:00:00Z"})
	require.NoError(t, err)
	require.Len(t, out.Events, 1)
	assert.Equal(t, "Review", out.Events[0].Title)
}

func TestListSyncedEventsHandlerInvalidTime(t *testing.T) {
	database := setupTestDB(t)
	h := NewCalendarHandlers(&fakeService{}, db.NewEventRepository(database), db.NewNotificationRepository(database), "local")

	_, _, err := h.ListSyncedEvents(context.Background(), nil, ListSyncedEventsInput{To: "next tuesday"})
	assert.Error(t, err)
}

func TestNotificationHandlers(t *testing.T) {
	database := setupTestDB(t)
	notifications := db.NewNotificationRepository(database)
	h := NewCalendarHandlers(&fakeService{}, db.NewEventRepository(database), notifications, "local")

	id, err := notifications.CreateNotification(context.Background(), models.NotificationInput{
		UserID:   "local",
		Type:     models.NotificationTypeGoogleImport,
		Title:    "Google Calendar import complete",
		Message:  "Imported 2 events",
		Metadata: map[string]interface{}{"imported_count": 2},
	})
	require.NoError(t, err)

	_, out, err := h.ListNotifications(context.Background(), nil, ListNotificationsInput{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, out.Notifications, 1)
	assert.Equal(t, id, out.Notifications[0].ID)
	assert.Equal(t, float64(2), out.Notifications[0].Metadata["imported_count"])
	assert.False(t, out.Notifications[0].Read)

	_, marked, err := h.MarkNotificationRead(context.Background(), nil, MarkNotificationReadInput{ID: id})
	require.NoError(t, err)
	assert.True(t, marked.Read)

	_, out, err = h.ListNotifications(context.Background(), nil, ListNotificationsInput{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, out.Notifications)

	_, _, err = h.MarkNotificationRead(context.Background(), nil, MarkNotificationReadInput{})
	assert.Error(t, err)
}

func TestReadResource(t *testing.T) {
	database := setupTestDB(t)
	events := db.NewEventRepository(database)
	h := NewResourceHandlers(&fakeService{}, events, db.NewNotificationRepository(database), "local")

	event := seedLinkedEvent(t, events, "local", "g1", "Planning", time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))

	read := func(uri string) (*mcp.ReadResourceResult, error) {
		return h.ReadResource(context.Background(), &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: uri}})
	}

	result, err := read("dayplan://status")
	require.NoError(t, err)
	var status models.ConnectionStatus
	require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &status))
	assert.False(t, status.Connected)

	result, err = read("dayplan://events/" + event.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "application/json", result.Contents[0].MIMEType)
	assert.Contains(t, result.Contents[0].Text, "Planning")

	result, err = read("dayplan://events")
	require.NoError(t, err)
	assert.Contains(t, result.Contents[0].Text, event.ID.String())

	_, err = read("dayplan://events/not-a-uuid")
	assert.Error(t, err)
	_, err = read("other://status")
	assert.Error(t, err)
	_, err = read("dayplan://calendars")
	assert.Error(t, err)
}

func TestImportReviewPrompt(t *testing.T) {
	database := setupTestDB(t)
	notifications := db.NewNotificationRepository(database)
	email := "user@example.com"
	service := &fakeService{status: &models.ConnectionStatus{Connected: true, Email: &email}}
	h := NewPromptHandlers(service, notifications, "local")

	get := func() string {
		result, err := h.GetPrompt(context.Background(), &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{Name: "import-review"}})
		require.NoError(t, err)
		require.Len(t, result.Messages, 1)
		return result.Messages[0].Content.(*mcp.TextContent).Text
	}

	assert.Contains(t, get(), "No import has completed yet")

	_, err := notifications.CreateNotification(context.Background(), models.NotificationInput{
		UserID:  "local",
		Type:    models.NotificationTypeGoogleImport,
		Title:   "Google Calendar import complete",
		Message: "Imported 1 event",
		Metadata: map[string]interface{}{
			"imported_count": 1,
			"skipped_count":  0,
			"conflicts": []models.ImportConflict{{
				EventID:           uuid.New(),
				Title:             "Standup",
				LocalUpdatedAt:    time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
				ExternalUpdatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
			}},
		},
	})
	require.NoError(t, err)

	text := get()
	assert.Contains(t, text, "user@example.com")
	assert.Contains(t, text, "Imported 1 event")
	assert.Contains(t, text, "Standup")

	_, err = h.GetPrompt(context.Background(), &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{Name: "weekly-summary"}})
	assert.Error(t, err)
}
