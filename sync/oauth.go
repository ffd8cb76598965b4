// ABOUTME: OAuth configuration for the Google Calendar connection
// ABOUTME: Builds the oauth2 config and reads legacy token files left by older CLI versions
package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	googleoauth2 "google.golang.org/api/oauth2/v2"
)

// DefaultRedirectURL is used by the CLI's local callback server.
const DefaultRedirectURL = "http://localhost:8080/oauth/callback"

// OAuthScopes are requested on every authorization. Calendar access is
// read-only; local edits are never pushed back.
var OAuthScopes = []string{
	calendar.CalendarReadonlyScope,
	googleoauth2.UserinfoEmailScope,
}

// NewOAuthConfig creates the OAuth2 config for Google APIs.
func NewOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if redirectURL == "" {
		redirectURL = DefaultRedirectURL
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       append([]string(nil), OAuthScopes...),
		Endpoint:     google.Endpoint,
	}
}

// LegacyTokenPath returns the XDG path where the pre-service CLI stored its token.
func LegacyTokenPath() string {
	return filepath.Join(xdg.DataHome, "dayplan", "google-credentials.json")
}

// LoadLegacyToken loads an oauth2 token saved as JSON by the old CLI.
func LoadLegacyToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	return &token, nil
}
