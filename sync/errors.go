// ABOUTME: Error taxonomy for the Google Calendar sync engine
// ABOUTME: Sentinel errors, the ExternalAPIError type, and user-facing message mapping
package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected means the user has no stored Google credential.
	ErrNotConnected = errors.New("google calendar not connected")

	// ErrReauthRequired means a credential exists but cannot be renewed
	// without the user running the authorization flow again.
	ErrReauthRequired = errors.New("google calendar reauthorization required")

	// ErrTokenExpiredNoRefresh is returned by the token manager when the
	// access token is unusable and there is no refresh token.
	ErrTokenExpiredNoRefresh = errors.New("access token expired and no refresh token is stored")

	// ErrTokenRefreshFailed wraps a failed refresh grant. Retrying the whole
	// run later is safe.
	ErrTokenRefreshFailed = errors.New("failed to refresh access token")

	// ErrCursorInvalid is returned by the calendar client when Google rejects
	// a sync token. The importer recovers from it with a full fetch and never
	// returns it.
	ErrCursorInvalid = errors.New("sync token rejected by google")

	// ErrImportInProgress means another import for the same user holds the lease.
	ErrImportInProgress = errors.New("import already running for user")

	// ErrInvalidState means the OAuth state parameter failed verification.
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrEmailNotVerified means Google reported the account email as unverified.
	ErrEmailNotVerified = errors.New("google account email is not verified")
)

// ExternalAPIError is a non-authorization failure from a Google endpoint.
type ExternalAPIError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ExternalAPIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("google api %s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("google api %s failed with status %d", e.Op, e.StatusCode)
}

func (e *ExternalAPIError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the remote status code from an ExternalAPIError in
// err's chain, or 0 if there is none.
func StatusCode(err error) int {
	var apiErr *ExternalAPIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// UserMessage maps an import or connect error to the prompt shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConnected):
		return "Connect your Google Calendar to import events."
	case errors.Is(err, ErrReauthRequired):
		return "Your Google Calendar connection expired. Reconnect to continue importing."
	case errors.Is(err, ErrImportInProgress):
		return "An import is already running. Try again in a moment."
	case errors.Is(err, ErrInvalidState):
		return "The authorization link expired. Start the connection again."
	case errors.Is(err, ErrEmailNotVerified):
		return "Your Google account email must be verified before connecting."
	default:
		return "Something went wrong talking to Google Calendar. Try again later."
	}
}
