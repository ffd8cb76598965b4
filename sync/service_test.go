// ABOUTME: Tests for the Google Calendar service entry points
// ABOUTME: Connect, disconnect, single-flight imports, scheduled imports, and status
package sync

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"

	"github.com/harperreed/dayplan/models"
)

type serviceFixture struct {
	*importerFixture
	service *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := newImporterFixture(t, testNow)
	svc, err := NewService(ServiceConfig{
		OAuth:       NewOAuthConfig("client-id", "client-secret", DefaultRedirectURL),
		StateSecret: testSecret,
	}, f.client, f.creds, f.importer, nil, nil)
	require.NoError(t, err)
	return &serviceFixture{importerFixture: f, service: svc}
}

func TestAuthURL(t *testing.T) {
	f := newServiceFixture(t)

	raw, err := f.service.AuthURL("user-1", "http://localhost:9999/cb")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "http://localhost:9999/cb", q.Get("redirect_uri"))
	assert.Contains(t, q.Get("scope"), calendar.CalendarReadonlyScope)

	userID, err := f.service.states.Verify(q.Get("state"))
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestConnectStoresCredential(t *testing.T) {
	f := newServiceFixture(t)
	f.client.exchange = &TokenGrant{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: testNow.Add(time.Hour)}
	f.client.account = &AccountInfo{Email: "user@example.com", EmailVerified: true}

	state, err := f.service.states.Issue("user-1")
	require.NoError(t, err)

	result, err := f.service.Connect(context.Background(), "code-1", state, "")
	require.NoError(t, err)
	assert.True(t, result.Connected)
	assert.Equal(t, "user@example.com", result.Email)
	assert.Equal(t, testNow, result.ConnectedAt)

	meta, err := f.creds.FindUserMeta(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, meta.Credential)
	assert.Equal(t, "a1", meta.Credential.AccessToken)
	assert.Equal(t, "r1", meta.Credential.RefreshToken)
	assert.Equal(t, "user@example.com", meta.Credential.AccountEmail)
}

func TestConnectRejectsBadState(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.Connect(context.Background(), "code-1", "garbage", "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConnectRejectsUnverifiedEmail(t *testing.T) {
	f := newServiceFixture(t)
	f.client.exchange = &TokenGrant{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: testNow.Add(time.Hour)}
	f.client.account = &AccountInfo{Email: "user@example.com"}

	state, err := f.service.states.Issue("user-1")
	require.NoError(t, err)

	_, err = f.service.Connect(context.Background(), "code-1", state, "")
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	meta, err := f.creds.FindUserMeta(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, meta.Credential)
}

func TestReconnectDifferentAccountResetsCursor(t *testing.T) {
	f := newServiceFixture(t)
	token := "sync-old"
	f.creds.connect("user-1", validCredential(), &models.SyncCursor{SyncToken: &token})

	f.client.exchange = &TokenGrant{AccessToken: "a2", RefreshToken: "r2", ExpiresAt: testNow.Add(time.Hour)}
	f.client.account = &AccountInfo{Email: "other@example.com", EmailVerified: true}
	state, err := f.service.states.Issue("user-1")
	require.NoError(t, err)

	_, err = f.service.Connect(context.Background(), "code-2", state, "")
	require.NoError(t, err)

	meta, err := f.creds.FindUserMeta(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, meta.Cursor.HasToken())
}

func TestReconnectSameAccountKeepsCursor(t *testing.T) {
	f := newServiceFixture(t)
	token := "sync-old"
	f.creds.connect("user-1", validCredential(), &models.SyncCursor{SyncToken: &token})

	f.client.exchange = &TokenGrant{AccessToken: "a2", RefreshToken: "r2", ExpiresAt: testNow.Add(time.Hour)}
	f.client.account = &AccountInfo{Email: "user@example.com", EmailVerified: true}
	state, err := f.service.states.Issue("user-1")
	require.NoError(t, err)

	_, err = f.service.Connect(context.Background(), "code-2", state, "")
	require.NoError(t, err)

	meta, err := f.creds.FindUserMeta(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "sync-old", *meta.Cursor.SyncToken)
}

func TestDisconnectRevokesAndRemoves(t *testing.T) {
	f := newServiceFixture(t)
	f.creds.connect("user-1", validCredential(), nil)

	require.NoError(t, f.service.Disconnect(context.Background(), "user-1"))
	assert.Equal(t, []string{"refresh-1"}, f.client.revoked)
	assert.Equal(t, "user-1", f.creds.removedUserID)

	_, err := f.importer.Import(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDisconnectSurvivesRevokeFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.creds.connect("user-1", validCredential(), nil)
	f.client.revokeErr = errors.New("google down")

	require.NoError(t, f.service.Disconnect(context.Background(), "user-1"))
	assert.Equal(t, "user-1", f.creds.removedUserID)
}

func TestImportNowRejectsConcurrentRun(t *testing.T) {
	f := newServiceFixture(t)
	f.creds.connect("user-1", validCredential(), nil)
	f.client.blockList = make(chan struct{})
	f.client.listing = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.service.ImportNow(context.Background(), "user-1")
		done <- err
	}()

	<-f.client.listing
	_, err := f.service.ImportNow(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrImportInProgress)

	close(f.client.blockList)
	require.NoError(t, <-done)

	// The lease is released once the first run finishes
	f.client.blockList = nil
	_, err = f.service.ImportNow(context.Background(), "user-1")
	assert.NoError(t, err)
}

func TestImportAll(t *testing.T) {
	f := newServiceFixture(t)
	f.creds.connect("user-a", validCredential(), nil)
	expired := validCredential()
	expired.RefreshToken = ""
	expired.ExpiresAt = testNow.Add(-time.Hour)
	f.creds.connect("user-b", expired, nil)

	outcomes, err := f.service.ImportAll(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, "user-a", outcomes[0].UserID)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, "user-b", outcomes[1].UserID)
	assert.ErrorIs(t, outcomes[1].Err, ErrReauthRequired)
}

func TestStatus(t *testing.T) {
	f := newServiceFixture(t)

	status, err := f.service.Status(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.Empty(t, status.LastRunStatus)

	f.creds.connect("user-1", validCredential(), nil)
	_, err = f.service.ImportNow(context.Background(), "user-1")
	require.NoError(t, err)

	status, err = f.service.Status(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, "user@example.com", *status.Email)
	require.NotNil(t, status.LastSyncAt)
	assert.Equal(t, testNow, *status.LastSyncAt)
	assert.Equal(t, models.RunStatusIdle, status.LastRunStatus)
}

func TestNewServiceValidates(t *testing.T) {
	f := newImporterFixture(t, testNow)

	_, err := NewService(ServiceConfig{StateSecret: testSecret}, f.client, f.creds, f.importer, nil, nil)
	assert.Error(t, err)

	_, err = NewService(ServiceConfig{OAuth: &oauth2.Config{}, StateSecret: []byte("short")}, f.client, f.creds, f.importer, nil, nil)
	assert.Error(t, err)
}
