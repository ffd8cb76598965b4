// ABOUTME: Storage collaborator interfaces consumed by the sync engine
// ABOUTME: Credential store, event store with version preconditions, and notification feed
package sync

import (
	"context"
	"time"

	"github.com/harperreed/dayplan/models"
)

// CredentialStore persists one Google credential and one sync cursor per user.
type CredentialStore interface {
	// FindUserMeta returns empty meta (nil credential and cursor) for unknown users.
	FindUserMeta(ctx context.Context, userID string) (*models.UserMeta, error)
	SaveCredential(ctx context.Context, userID string, cred models.OAuthCredential) error
	// UpdateAccessToken replaces the access token and expiry, keeping the refresh token.
	UpdateAccessToken(ctx context.Context, userID, accessToken string, expiresAt time.Time) error
	// RemoveCredential deletes the credential and cursor.
	RemoveCredential(ctx context.Context, userID string) error
	UpdateSyncCursor(ctx context.Context, userID string, cursor models.SyncCursor) error
}

// EventStore is the local event store as seen by the importer.
type EventStore interface {
	FindLinkedEvents(ctx context.Context, userID string) ([]models.EventSyncInfo, error)
	CreateEvent(ctx context.Context, input models.CreateEventInput) (*models.Event, error)
	// UpdateEvent applies patch only if the stored version equals
	// expectedVersion, failing with db.ErrVersionConflict otherwise.
	UpdateEvent(ctx context.Context, userID, eventID string, patch models.EventPatch, expectedVersion int64) error
}

// NotificationStore appends to a user's notification feed.
type NotificationStore interface {
	CreateNotification(ctx context.Context, input models.NotificationInput) (string, error)
}

// RunRecorder tracks the advisory status of import runs. Optional.
type RunRecorder interface {
	MarkRunStarted(ctx context.Context, userID string) error
	MarkRunSucceeded(ctx context.Context, userID string, result models.ImportResult) error
	MarkRunFailed(ctx context.Context, userID string, runErr error) error
	// LastRun returns nil when the user has never run an import.
	LastRun(ctx context.Context, userID string) (*models.ImportRun, error)
}
