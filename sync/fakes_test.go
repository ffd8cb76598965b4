// ABOUTME: In-memory collaborators for sync engine tests
// ABOUTME: Fake credential, event, notification, and run stores plus a scripted calendar client
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"

	"github.com/harperreed/dayplan/db"
	"github.com/harperreed/dayplan/models"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type fakeCredentialStore struct {
	mu            gosync.Mutex
	metas         map[string]*models.UserMeta
	cursorWrites  int
	tokenUpdates  int
	failCursor    error
	removedUserID string
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{metas: make(map[string]*models.UserMeta)}
}

func (f *fakeCredentialStore) connect(userID string, cred models.OAuthCredential, cursor *models.SyncCursor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metas[userID] = &models.UserMeta{UserID: userID, Credential: &cred, Cursor: cursor}
}

func (f *fakeCredentialStore) FindUserMeta(_ context.Context, userID string) (*models.UserMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.metas[userID]
	if !ok {
		return &models.UserMeta{UserID: userID}, nil
	}
	clone := *meta
	if meta.Credential != nil {
		cred := *meta.Credential
		clone.Credential = &cred
	}
	if meta.Cursor != nil {
		cursor := *meta.Cursor
		clone.Cursor = &cursor
	}
	return &clone, nil
}

func (f *fakeCredentialStore) SaveCredential(_ context.Context, userID string, cred models.OAuthCredential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.metas[userID]
	if !ok {
		meta = &models.UserMeta{UserID: userID}
		f.metas[userID] = meta
	}
	meta.Credential = &cred
	return nil
}

func (f *fakeCredentialStore) UpdateAccessToken(_ context.Context, userID, accessToken string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta, ok := f.metas[userID]
	if !ok || meta.Credential == nil {
		return fmt.Errorf("no credential for %s", userID)
	}
	meta.Credential.AccessToken = accessToken
	meta.Credential.ExpiresAt = expiresAt
	f.tokenUpdates++
	return nil
}

func (f *fakeCredentialStore) RemoveCredential(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.metas, userID)
	f.removedUserID = userID
	return nil
}

func (f *fakeCredentialStore) UpdateSyncCursor(_ context.Context, userID string, cursor models.SyncCursor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCursor != nil {
		return f.failCursor
	}
	meta, ok := f.metas[userID]
	if !ok {
		meta = &models.UserMeta{UserID: userID}
		f.metas[userID] = meta
	}
	meta.Cursor = &cursor
	f.cursorWrites++
	return nil
}

func (f *fakeCredentialStore) ListConnectedUsers(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var users []string
	for id, meta := range f.metas {
		if meta.Credential != nil {
			users = append(users, id)
		}
	}
	sort.Strings(users)
	return users, nil
}

type fakeEventStore struct {
	mu     gosync.Mutex
	events map[uuid.UUID]*models.Event

	// beforeUpdate runs inside UpdateEvent before the version check.
	beforeUpdate func(e *models.Event)
	failCreate   error
	updates      int
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: make(map[uuid.UUID]*models.Event)}
}

func (f *fakeEventStore) FindLinkedEvents(_ context.Context, userID string) ([]models.EventSyncInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EventSyncInfo
	for _, e := range f.events {
		if e.UserID != userID || e.ExternalEventID == nil {
			continue
		}
		out = append(out, models.EventSyncInfo{
			EventID:             e.ID,
			Title:               e.Title,
			ExternalEventID:     *e.ExternalEventID,
			ExternalRevisionTag: e.ExternalRevisionTag,
			ExternalSyncedAt:    e.ExternalSyncedAt,
			UpdatedAt:           e.UpdatedAt,
			Version:             e.Version,
		})
	}
	return out, nil
}

func (f *fakeEventStore) CreateEvent(_ context.Context, input models.CreateEventInput) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	e := &models.Event{
		ID:                  uuid.New(),
		UserID:              input.UserID,
		EventContent:        input.EventContent,
		Color:               input.Color,
		Version:             1,
		CreatedAt:           input.CreatedAt,
		UpdatedAt:           input.CreatedAt,
		ExternalEventID:     input.ExternalEventID,
		ExternalCalendarID:  input.ExternalCalendarID,
		ExternalRevisionTag: input.ExternalRevisionTag,
		ExternalSyncedAt:    input.ExternalSyncedAt,
	}
	f.events[e.ID] = e
	clone := *e
	return &clone, nil
}

func (f *fakeEventStore) UpdateEvent(_ context.Context, userID, eventID string, patch models.EventPatch, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, err := uuid.Parse(eventID)
	if err != nil {
		return err
	}
	e, ok := f.events[id]
	if !ok || e.UserID != userID {
		return db.ErrEventNotFound
	}
	if f.beforeUpdate != nil {
		f.beforeUpdate(e)
	}
	if e.Version != expectedVersion {
		return db.ErrVersionConflict
	}
	e.EventContent = patch.EventContent
	e.ExternalRevisionTag = patch.ExternalRevisionTag
	e.ExternalSyncedAt = patch.ExternalSyncedAt
	e.UpdatedAt = patch.UpdatedAt
	e.Version++
	f.updates++
	return nil
}

// byExternalID returns the stored event linked to a Google id.
func (f *fakeEventStore) byExternalID(externalID string) *models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ExternalEventID != nil && *e.ExternalEventID == externalID {
			clone := *e
			return &clone
		}
	}
	return nil
}

// editLocally simulates a user edit after the last import.
func (f *fakeEventStore) editLocally(externalID, title string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ExternalEventID != nil && *e.ExternalEventID == externalID {
			e.Title = title
			e.UpdatedAt = at
			e.Version++
		}
	}
}

type fakeNotificationStore struct {
	mu            gosync.Mutex
	notifications []models.NotificationInput
	fail          error
}

func (f *fakeNotificationStore) CreateNotification(_ context.Context, input models.NotificationInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.notifications = append(f.notifications, input)
	return fmt.Sprintf("notification-%d", len(f.notifications)), nil
}

type fakeRunRecorder struct {
	mu   gosync.Mutex
	runs map[string]*models.ImportRun
}

func newFakeRunRecorder() *fakeRunRecorder {
	return &fakeRunRecorder{runs: make(map[string]*models.ImportRun)}
}

func (f *fakeRunRecorder) MarkRunStarted(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[userID] = &models.ImportRun{UserID: userID, Status: models.RunStatusSyncing}
	return nil
}

func (f *fakeRunRecorder) MarkRunSucceeded(_ context.Context, userID string, result models.ImportResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[userID] = &models.ImportRun{
		UserID:        userID,
		Status:        models.RunStatusIdle,
		ImportedCount: result.ImportedCount,
		SkippedCount:  result.SkippedCount,
		ConflictCount: len(result.Conflicts),
	}
	return nil
}

func (f *fakeRunRecorder) MarkRunFailed(_ context.Context, userID string, runErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := runErr.Error()
	f.runs[userID] = &models.ImportRun{UserID: userID, Status: models.RunStatusError, ErrorMessage: &msg}
	return nil
}

func (f *fakeRunRecorder) LastRun(_ context.Context, userID string) (*models.ImportRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[userID]
	if !ok {
		return nil, nil
	}
	clone := *run
	return &clone, nil
}

// fakeCalendarClient serves scripted pages. Incremental requests whose token
// is in staleTokens fail with ErrCursorInvalid.
type fakeCalendarClient struct {
	mu gosync.Mutex

	events        []*calendar.Event
	incremental   map[string][]*calendar.Event
	staleTokens   map[string]bool
	nextSyncToken string
	listErr       error

	refreshGrant *TokenGrant
	refreshErr   error
	exchange     *TokenGrant
	account      *AccountInfo
	revokeErr    error

	requests []ListRequest
	tokens   []string
	revoked  []string
	refreshs int

	// blockList, when set, is closed by the test to let ListEvents return.
	blockList chan struct{}
	listing   chan struct{}
}

func (f *fakeCalendarClient) ExchangeCode(_ context.Context, code, _ string) (*TokenGrant, error) {
	if f.exchange == nil {
		return nil, errors.New("unexpected exchange for " + code)
	}
	return f.exchange, nil
}

func (f *fakeCalendarClient) GetAccountInfo(_ context.Context, _ string) (*AccountInfo, error) {
	if f.account == nil {
		return nil, errors.New("no account configured")
	}
	return f.account, nil
}

func (f *fakeCalendarClient) Refresh(_ context.Context, _ string) (*TokenGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshs++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshGrant, nil
}

func (f *fakeCalendarClient) Revoke(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, token)
	return f.revokeErr
}

func (f *fakeCalendarClient) ListEvents(ctx context.Context, accessToken string, req ListRequest) (*EventPage, error) {
	if f.blockList != nil {
		if f.listing != nil {
			close(f.listing)
		}
		select {
		case <-f.blockList:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.tokens = append(f.tokens, accessToken)

	if f.listErr != nil {
		return nil, f.listErr
	}
	next := f.nextSyncToken
	if next == "" {
		next = "sync-token-next"
	}
	if req.Incremental() {
		if f.staleTokens[req.SyncToken] {
			return nil, ErrCursorInvalid
		}
		if events, ok := f.incremental[req.SyncToken]; ok {
			return &EventPage{Events: events, NextSyncToken: next}, nil
		}
		// Unscripted tokens see the current calendar
		return &EventPage{Events: f.events, NextSyncToken: next}, nil
	}
	return &EventPage{Events: f.events, NextSyncToken: next}, nil
}

func (f *fakeCalendarClient) CalendarID() string {
	return "primary"
}

func validCredential() models.OAuthCredential {
	return models.OAuthCredential{
		AccessToken:  "access-valid",
		RefreshToken: "refresh-1",
		ExpiresAt:    testNow.Add(time.Hour),
		AccountEmail: "user@example.com",
		ConnectedAt:  testNow.Add(-24 * time.Hour),
	}
}

func googleEvent(id, etag, title string, start time.Time) *calendar.Event {
	return &calendar.Event{
		Id:      id,
		Etag:    etag,
		Summary: title,
		Status:  "confirmed",
		Updated: start.Add(-time.Hour).Format(time.RFC3339),
		Start:   &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: "America/Chicago"},
		End:     &calendar.EventDateTime{DateTime: start.Add(time.Hour).Format(time.RFC3339), TimeZone: "America/Chicago"},
	}
}
