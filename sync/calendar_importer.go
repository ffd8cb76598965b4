// ABOUTME: Calendar event importer from Google Calendar API
// ABOUTME: Runs one import: token, incremental or full fetch, per-event resolution, cursor, summary notification
package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"

	"github.com/harperreed/dayplan/db"
	"github.com/harperreed/dayplan/models"
)

// FullSyncWindow returns the time range requested when no sync token is
// usable: one year back to two years ahead.
func FullSyncWindow(now time.Time) (time.Time, time.Time) {
	return now.AddDate(-1, 0, 0), now.AddDate(2, 0, 0)
}

// Importer runs Google Calendar imports for one user at a time.
type Importer struct {
	creds         CredentialStore
	events        EventStore
	notifications NotificationStore
	client        CalendarClient
	tokens        *TokenManager
	runs          RunRecorder
	clock         func() time.Time
	logger        *zap.Logger
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithClock sets the importer's clock (for testing).
func WithClock(clock func() time.Time) ImporterOption {
	return func(im *Importer) {
		im.clock = clock
	}
}

// WithRunRecorder records run status for each import.
func WithRunRecorder(runs RunRecorder) ImporterOption {
	return func(im *Importer) {
		im.runs = runs
	}
}

// NewImporter wires the importer to its four collaborators.
func NewImporter(creds CredentialStore, events EventStore, notifications NotificationStore, client CalendarClient, logger *zap.Logger, opts ...ImporterOption) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	im := &Importer{
		creds:         creds,
		events:        events,
		notifications: notifications,
		client:        client,
		clock:         time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(im)
	}
	im.tokens = NewTokenManager(client, creds, logger, im.clock)
	return im
}

// run holds the mutable state of a single import.
type run struct {
	userID string
	linked map[string]*models.EventSyncInfo
	result models.ImportResult
}

// Import performs one import run for userID. Any error aborts the run before
// the cursor is written, so a retry starts from the last completed run.
// ErrCursorInvalid is never returned.
func (im *Importer) Import(ctx context.Context, userID string) (*models.ImportResult, error) {
	started := im.clock()
	logger := im.logger.With(zap.String("user_id", userID))

	meta, err := im.creds.FindUserMeta(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if meta == nil || meta.Credential == nil {
		importRuns.WithLabelValues("not_connected").Inc()
		return nil, ErrNotConnected
	}

	im.markStarted(ctx, userID)

	result, err := im.importWithCredential(ctx, userID, meta, logger)
	importDuration.Observe(im.clock().Sub(started).Seconds())
	if err != nil {
		importRuns.WithLabelValues(outcomeLabel(err)).Inc()
		im.markFailed(ctx, userID, err)
		logger.Error("google calendar import failed", zap.Error(err))
		return nil, err
	}

	importRuns.WithLabelValues("success").Inc()
	im.markSucceeded(ctx, userID, *result)
	logger.Info("google calendar import complete",
		zap.Int("imported", result.ImportedCount),
		zap.Int("skipped", result.SkippedCount),
		zap.Int("conflicts", len(result.Conflicts)))

	return result, nil
}

func (im *Importer) importWithCredential(ctx context.Context, userID string, meta *models.UserMeta, logger *zap.Logger) (*models.ImportResult, error) {
	accessToken, err := im.tokens.AccessToken(ctx, userID, meta.Credential)
	if err != nil {
		if errors.Is(err, ErrTokenExpiredNoRefresh) {
			return nil, fmt.Errorf("%w: %w", ErrReauthRequired, err)
		}
		return nil, err
	}

	page, err := im.fetch(ctx, accessToken, meta.Cursor, logger)
	if err != nil {
		return nil, err
	}

	linked, err := im.events.FindLinkedEvents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load linked events: %w", err)
	}

	r := &run{
		userID: userID,
		linked: make(map[string]*models.EventSyncInfo, len(linked)),
		result: models.ImportResult{Conflicts: []models.ImportConflict{}},
	}
	for i := range linked {
		r.linked[linked[i].ExternalEventID] = &linked[i]
	}

	for _, event := range page.Events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := im.applyEvent(ctx, r, event, logger); err != nil {
			return nil, err
		}
	}

	cursor := models.SyncCursor{}
	syncedAt := im.clock().UTC()
	cursor.LastSyncAt = &syncedAt
	if page.NextSyncToken != "" {
		token := page.NextSyncToken
		cursor.SyncToken = &token
	}
	if err := im.creds.UpdateSyncCursor(ctx, userID, cursor); err != nil {
		return nil, fmt.Errorf("failed to update sync cursor: %w", err)
	}

	r.result.NotificationID = im.notify(ctx, r, logger)

	return &r.result, nil
}

// fetch lists events incrementally when a sync token exists. A rejected
// token falls back to a full windowed fetch in the same run.
func (im *Importer) fetch(ctx context.Context, accessToken string, cursor *models.SyncCursor, logger *zap.Logger) (*EventPage, error) {
	if cursor.HasToken() {
		logger.Debug("incremental google calendar fetch")
		page, err := im.client.ListEvents(ctx, accessToken, ListRequest{SyncToken: *cursor.SyncToken})
		if err == nil {
			return page, nil
		}
		if !errors.Is(err, ErrCursorInvalid) {
			return nil, err
		}
		cursorFallbacks.Inc()
		logger.Info("sync token invalid, falling back to full fetch")
	}

	timeMin, timeMax := FullSyncWindow(im.clock())
	page, err := im.client.ListEvents(ctx, accessToken, ListRequest{TimeMin: timeMin, TimeMax: timeMax})
	if errors.Is(err, ErrCursorInvalid) {
		// A windowed request carries no token, so this is Google misbehaving.
		return nil, &ExternalAPIError{Op: "events.list", StatusCode: http.StatusGone}
	}
	return page, err
}

func (im *Importer) applyEvent(ctx context.Context, r *run, event *calendar.Event, logger *zap.Logger) error {
	if event == nil {
		r.result.SkippedCount++
		return nil
	}
	if event.Status == string(models.EventStatusCancelled) {
		importEvents.WithLabelValues("cancelled").Inc()
		r.result.SkippedCount++
		return nil
	}

	draft := MapEvent(event)
	if draft.RecurrenceRule != nil {
		if err := ValidateRecurrenceRule(*draft.RecurrenceRule); err != nil {
			logger.Warn("importing event with unparseable recurrence rule",
				zap.String("external_event_id", event.Id),
				zap.String("rrule", *draft.RecurrenceRule),
				zap.Error(err))
		}
	}

	existing := r.linked[event.Id]
	resolution := Resolve(existing, event.Etag, parseUpdated(event.Updated))
	importEvents.WithLabelValues(string(resolution.Action)).Inc()

	switch resolution.Action {
	case ActionCreate:
		return im.create(ctx, r, event, draft)
	case ActionApply:
		return im.apply(ctx, r, event, draft, existing, logger)
	case ActionConflict:
		r.result.Conflicts = append(r.result.Conflicts, *resolution.Conflict)
		r.result.SkippedCount++
	default:
		r.result.SkippedCount++
	}
	return nil
}

func (im *Importer) create(ctx context.Context, r *run, event *calendar.Event, draft models.EventDraft) error {
	now := im.clock().UTC()
	externalID := event.Id
	calendarID := im.client.CalendarID()
	etag := event.Etag

	created, err := im.events.CreateEvent(ctx, models.CreateEventInput{
		UserID:              r.userID,
		EventContent:        draft.EventContent,
		Color:               models.DefaultEventColor,
		ExternalEventID:     &externalID,
		ExternalCalendarID:  &calendarID,
		ExternalRevisionTag: &etag,
		ExternalSyncedAt:    &now,
		CreatedAt:           now,
	})
	if err != nil {
		return fmt.Errorf("failed to create event %s: %w", externalID, err)
	}

	// Track the new record so a repeat of the same Google event later in
	// this run resolves against it instead of creating a duplicate.
	r.linked[externalID] = &models.EventSyncInfo{
		EventID:             created.ID,
		Title:               created.Title,
		ExternalEventID:     externalID,
		ExternalRevisionTag: &etag,
		ExternalSyncedAt:    &now,
		UpdatedAt:           now,
		Version:             created.Version,
	}
	r.result.ImportedCount++
	return nil
}

func (im *Importer) apply(ctx context.Context, r *run, event *calendar.Event, draft models.EventDraft, existing *models.EventSyncInfo, logger *zap.Logger) error {
	now := im.clock().UTC()
	etag := event.Etag

	patch := models.EventPatch{
		EventContent:        draft.EventContent,
		ExternalRevisionTag: &etag,
		ExternalSyncedAt:    &now,
		UpdatedAt:           now,
	}

	err := im.events.UpdateEvent(ctx, r.userID, existing.EventID.String(), patch, existing.Version)
	if errors.Is(err, db.ErrVersionConflict) {
		// A local write landed between our read and this update.
		logger.Info("event changed during import, reporting conflict",
			zap.String("event_id", existing.EventID.String()))
		r.result.Conflicts = append(r.result.Conflicts, models.ImportConflict{
			EventID:           existing.EventID,
			Title:             existing.Title,
			LocalUpdatedAt:    existing.UpdatedAt,
			ExternalUpdatedAt: parseUpdated(event.Updated),
		})
		r.result.SkippedCount++
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to update event %s: %w", existing.EventID, err)
	}

	existing.Title = draft.Title
	existing.ExternalRevisionTag = &etag
	existing.ExternalSyncedAt = &now
	existing.UpdatedAt = now
	existing.Version++
	r.result.ImportedCount++
	return nil
}

// notify emits the run summary. A failed notification is logged and leaves
// NotificationID empty; the import itself already completed.
func (im *Importer) notify(ctx context.Context, r *run, logger *zap.Logger) string {
	res := r.result
	message := fmt.Sprintf("Imported %d event%s, skipped %d.", res.ImportedCount, pluralize(res.ImportedCount), res.SkippedCount)
	if n := len(res.Conflicts); n > 0 {
		message += fmt.Sprintf(" %d event%s changed in both places and need review.", n, pluralize(n))
	}

	id, err := im.notifications.CreateNotification(ctx, models.NotificationInput{
		UserID:  r.userID,
		Type:    models.NotificationTypeGoogleImport,
		Title:   "Google Calendar import complete",
		Message: message,
		Metadata: map[string]interface{}{
			"imported_count": res.ImportedCount,
			"skipped_count":  res.SkippedCount,
			"conflicts":      res.Conflicts,
		},
	})
	if err != nil {
		logger.Warn("failed to create import notification", zap.Error(err))
		return ""
	}
	return id
}

func (im *Importer) markStarted(ctx context.Context, userID string) {
	if im.runs == nil {
		return
	}
	if err := im.runs.MarkRunStarted(ctx, userID); err != nil {
		im.logger.Warn("failed to record run start", zap.String("user_id", userID), zap.Error(err))
	}
}

func (im *Importer) markSucceeded(ctx context.Context, userID string, result models.ImportResult) {
	if im.runs == nil {
		return
	}
	if err := im.runs.MarkRunSucceeded(ctx, userID, result); err != nil {
		im.logger.Warn("failed to record run success", zap.String("user_id", userID), zap.Error(err))
	}
}

func (im *Importer) markFailed(ctx context.Context, userID string, runErr error) {
	if im.runs == nil {
		return
	}
	// The run context may already be cancelled; the record still matters.
	if err := im.runs.MarkRunFailed(context.WithoutCancel(ctx), userID, runErr); err != nil {
		im.logger.Warn("failed to record run failure", zap.String("user_id", userID), zap.Error(err))
	}
}

func parseUpdated(updated string) time.Time {
	t, err := time.Parse(time.RFC3339, updated)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrReauthRequired):
		return "reauth_required"
	case errors.Is(err, ErrTokenRefreshFailed):
		return "token_refresh_failed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "cancelled"
	case StatusCode(err) != 0:
		return "external_api_error"
	default:
		return "error"
	}
}

// pluralize returns "s" if count != 1, otherwise ""
func pluralize(count int) string {
	if count == 1 {
		return ""
	}
	return "s"
}
