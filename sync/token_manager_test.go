// ABOUTME: Tests for access token lifecycle
// ABOUTME: Checks the refresh buffer boundary, refresh persistence, and failure classification
package sync

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/harperreed/dayplan/models"
)

func TestIsUsableBoundary(t *testing.T) {
	m := NewTokenManager(&fakeCalendarClient{}, newFakeCredentialStore(), nil, fixedClock(testNow))

	tests := []struct {
		name      string
		expiresIn time.Duration
		want      bool
	}{
		{"exactly at buffer", 5 * time.Minute, false},
		{"one second past buffer", 5*time.Minute + time.Second, true},
		{"inside buffer", 4 * time.Minute, false},
		{"already expired", -time.Minute, false},
		{"an hour left", time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred := &models.OAuthCredential{AccessToken: "a", ExpiresAt: testNow.Add(tt.expiresIn)}
			assert.Equal(t, tt.want, m.IsUsable(cred))
		})
	}

	assert.False(t, m.IsUsable(nil))
	assert.False(t, m.IsUsable(&models.OAuthCredential{ExpiresAt: testNow.Add(time.Hour)}))
}

func TestAccessTokenUsableSkipsRefresh(t *testing.T) {
	client := &fakeCalendarClient{}
	m := NewTokenManager(client, newFakeCredentialStore(), nil, fixedClock(testNow))
	cred := validCredential()

	token, err := m.AccessToken(context.Background(), "user-1", &cred)
	require.NoError(t, err)
	assert.Equal(t, "access-valid", token)
	assert.Zero(t, client.refreshs)
}

func TestAccessTokenRefreshesAtBoundary(t *testing.T) {
	creds := newFakeCredentialStore()
	cred := validCredential()
	cred.ExpiresAt = testNow.Add(TokenRefreshBuffer)
	creds.connect("user-1", cred, nil)

	newExpiry := testNow.Add(time.Hour)
	client := &fakeCalendarClient{refreshGrant: &TokenGrant{AccessToken: "access-new", ExpiresAt: newExpiry}}
	m := NewTokenManager(client, creds, nil, fixedClock(testNow))

	token, err := m.AccessToken(context.Background(), "user-1", &cred)
	require.NoError(t, err)
	assert.Equal(t, "access-new", token)
	assert.Equal(t, 1, client.refreshs)

	meta, err := creds.FindUserMeta(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "access-new", meta.Credential.AccessToken)
	assert.Equal(t, newExpiry, meta.Credential.ExpiresAt)
	assert.Equal(t, "refresh-1", meta.Credential.RefreshToken)
}

func TestAccessTokenNoRefreshToken(t *testing.T) {
	client := &fakeCalendarClient{}
	m := NewTokenManager(client, newFakeCredentialStore(), nil, fixedClock(testNow))
	cred := validCredential()
	cred.RefreshToken = ""
	cred.ExpiresAt = testNow.Add(-time.Minute)

	_, err := m.AccessToken(context.Background(), "user-1", &cred)
	assert.ErrorIs(t, err, ErrTokenExpiredNoRefresh)
	assert.Zero(t, client.refreshs)
}

func TestAccessTokenNotConnected(t *testing.T) {
	m := NewTokenManager(&fakeCalendarClient{}, newFakeCredentialStore(), nil, fixedClock(testNow))
	_, err := m.AccessToken(context.Background(), "user-1", nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestAccessTokenInvalidGrant(t *testing.T) {
	client := &fakeCalendarClient{refreshErr: &ExternalAPIError{
		Op:         "token refresh",
		StatusCode: http.StatusBadRequest,
		Err:        &oauth2.RetrieveError{ErrorCode: "invalid_grant"},
	}}
	m := NewTokenManager(client, newFakeCredentialStore(), nil, fixedClock(testNow))
	cred := validCredential()
	cred.ExpiresAt = testNow

	_, err := m.AccessToken(context.Background(), "user-1", &cred)
	assert.ErrorIs(t, err, ErrReauthRequired)
	// Still a refresh failure; callers that only check for that keep working
	assert.ErrorIs(t, err, ErrTokenRefreshFailed)
	assert.Contains(t, UserMessage(err), "Reconnect")
}

func TestAccessTokenRefreshFailure(t *testing.T) {
	client := &fakeCalendarClient{refreshErr: &ExternalAPIError{Op: "token refresh", StatusCode: 500, Err: errors.New("boom")}}
	creds := newFakeCredentialStore()
	m := NewTokenManager(client, creds, nil, fixedClock(testNow))
	cred := validCredential()
	cred.ExpiresAt = testNow

	_, err := m.AccessToken(context.Background(), "user-1", &cred)
	assert.ErrorIs(t, err, ErrTokenRefreshFailed)
	assert.Equal(t, 500, StatusCode(err))
	assert.Zero(t, creds.tokenUpdates)
}
