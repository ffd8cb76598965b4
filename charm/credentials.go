// ABOUTME: Google credential and sync cursor storage on Charm KV
// ABOUTME: One JSON record per user for each; synced across devices by charm

package charm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harperreed/dayplan/models"
)

const (
	credentialPrefix = "google/credential/"
	cursorPrefix     = "google/cursor/"
)

// CredentialStore keeps each user's Google credential and sync cursor.
type CredentialStore struct {
	client *Client
}

// NewCredentialStore creates a store on an open client.
func NewCredentialStore(client *Client) *CredentialStore {
	return &CredentialStore{client: client}
}

func credentialKey(userID string) []byte {
	return []byte(credentialPrefix + userID)
}

func cursorKey(userID string) []byte {
	return []byte(cursorPrefix + userID)
}

// FindUserMeta returns the credential and cursor for userID. Either is nil
// when not stored.
func (s *CredentialStore) FindUserMeta(_ context.Context, userID string) (*models.UserMeta, error) {
	meta := &models.UserMeta{UserID: userID}

	var cred models.OAuthCredential
	found, err := s.load(credentialKey(userID), &cred)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if found {
		meta.Credential = &cred
	}

	var cursor models.SyncCursor
	found, err = s.load(cursorKey(userID), &cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync cursor: %w", err)
	}
	if found {
		meta.Cursor = &cursor
	}

	return meta, nil
}

// SaveCredential replaces the user's credential wholesale.
func (s *CredentialStore) SaveCredential(_ context.Context, userID string, cred models.OAuthCredential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	return s.client.Set(credentialKey(userID), data)
}

// UpdateAccessToken rewrites only the access token and expiry.
func (s *CredentialStore) UpdateAccessToken(_ context.Context, userID, accessToken string, expiresAt time.Time) error {
	return s.client.Update(credentialKey(userID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, fmt.Errorf("no credential stored for user %s: %w", userID, ErrNotFound)
		}
		var cred models.OAuthCredential
		if err := json.Unmarshal(current, &cred); err != nil {
			return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
		}
		cred.AccessToken = accessToken
		cred.ExpiresAt = expiresAt.UTC()
		return json.Marshal(cred)
	})
}

// RemoveCredential deletes the credential and the cursor.
func (s *CredentialStore) RemoveCredential(_ context.Context, userID string) error {
	if err := s.client.Delete(credentialKey(userID)); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if err := s.client.Delete(cursorKey(userID)); err != nil {
		return fmt.Errorf("failed to delete sync cursor: %w", err)
	}
	return nil
}

// UpdateSyncCursor stores the cursor from the latest completed run.
func (s *CredentialStore) UpdateSyncCursor(_ context.Context, userID string, cursor models.SyncCursor) error {
	data, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("failed to marshal sync cursor: %w", err)
	}
	return s.client.Set(cursorKey(userID), data)
}

// ListConnectedUsers returns every user id with a stored credential, sorted.
func (s *CredentialStore) ListConnectedUsers(_ context.Context) ([]string, error) {
	keys, err := s.client.KeysWithPrefix(credentialPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	users := make([]string, 0, len(keys))
	for _, k := range keys {
		users = append(users, strings.TrimPrefix(k, credentialPrefix))
	}
	sort.Strings(users)
	return users, nil
}

func (s *CredentialStore) load(key []byte, v interface{}) (bool, error) {
	data, err := s.client.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}
