// ABOUTME: Access token lifecycle for the Google connection
// ABOUTME: Checks validity with a safety buffer, refreshes proactively, and classifies failures
package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/dayplan/models"
)

// TokenRefreshBuffer is how long before expiry a token stops being used.
const TokenRefreshBuffer = 5 * time.Minute

// TokenManager hands out usable access tokens, refreshing them when needed.
type TokenManager struct {
	client CalendarClient
	creds  CredentialStore
	clock  func() time.Time
	logger *zap.Logger
}

// NewTokenManager creates a token manager. A nil clock means time.Now.
func NewTokenManager(client CalendarClient, creds CredentialStore, logger *zap.Logger, clock func() time.Time) *TokenManager {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenManager{
		client: client,
		creds:  creds,
		clock:  clock,
		logger: logger,
	}
}

// IsUsable reports whether the access token is outside the refresh buffer.
// A token expiring in exactly TokenRefreshBuffer is not usable.
func (m *TokenManager) IsUsable(cred *models.OAuthCredential) bool {
	if cred == nil || cred.AccessToken == "" {
		return false
	}
	return m.clock().Before(cred.ExpiresAt.Add(-TokenRefreshBuffer))
}

// AccessToken returns a usable access token for the user. A refresh writes
// only the new access token and expiry; the refresh token is never rotated
// here. Concurrent refreshes are harmless: each writes a valid token and the
// last write wins.
func (m *TokenManager) AccessToken(ctx context.Context, userID string, cred *models.OAuthCredential) (string, error) {
	if cred == nil {
		return "", ErrNotConnected
	}
	if m.IsUsable(cred) {
		return cred.AccessToken, nil
	}
	if !cred.CanRefresh() {
		tokenRefreshes.WithLabelValues("no_refresh_token").Inc()
		return "", ErrTokenExpiredNoRefresh
	}

	m.logger.Debug("refreshing google access token",
		zap.String("user_id", userID),
		zap.Time("expires_at", cred.ExpiresAt))

	grant, err := m.client.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if isInvalidGrant(err) {
			tokenRefreshes.WithLabelValues("invalid_grant").Inc()
			m.logger.Warn("google refresh token rejected", zap.String("user_id", userID), zap.Error(err))
			return "", fmt.Errorf("%w: %w: %w", ErrTokenRefreshFailed, ErrReauthRequired, err)
		}
		tokenRefreshes.WithLabelValues("failure").Inc()
		return "", fmt.Errorf("%w: %w", ErrTokenRefreshFailed, err)
	}

	if err := m.creds.UpdateAccessToken(ctx, userID, grant.AccessToken, grant.ExpiresAt); err != nil {
		tokenRefreshes.WithLabelValues("failure").Inc()
		return "", fmt.Errorf("failed to store refreshed token: %w", err)
	}

	tokenRefreshes.WithLabelValues("success").Inc()
	m.logger.Info("refreshed google access token",
		zap.String("user_id", userID),
		zap.Time("expires_at", grant.ExpiresAt))

	return grant.AccessToken, nil
}
