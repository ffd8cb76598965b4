// ABOUTME: Google Calendar API client for the sync engine
// ABOUTME: Wraps code exchange, refresh, revocation, user info, and paginated event listing
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const (
	maxResults       = 250 // Google Calendar API max per page
	defaultRevokeURL = "https://oauth2.googleapis.com/revoke"
	defaultCalendar  = "primary"

	// defaultTokenLifetime applies when the token endpoint omits expires_in.
	defaultTokenLifetime = time.Hour
)

// TokenGrant is the result of a code exchange or refresh.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// AccountInfo is the Google account behind an access token.
type AccountInfo struct {
	Email         string
	EmailVerified bool
}

// ListRequest selects incremental (SyncToken set) or windowed full listing.
type ListRequest struct {
	SyncToken string
	TimeMin   time.Time
	TimeMax   time.Time
}

// Incremental reports whether the request continues from a sync token.
func (r ListRequest) Incremental() bool {
	return r.SyncToken != ""
}

// EventPage is every event from a completed pagination walk plus the
// sync token Google issued on the last page.
type EventPage struct {
	Events        []*calendar.Event
	NextSyncToken string
}

// CalendarClient is the Google side of the sync engine.
type CalendarClient interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenGrant, error)
	GetAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error)
	Revoke(ctx context.Context, token string) error
	// ListEvents returns ErrCursorInvalid when Google rejects the sync token.
	ListEvents(ctx context.Context, accessToken string, req ListRequest) (*EventPage, error)
	CalendarID() string
}

// GoogleClient implements CalendarClient against the Google APIs.
type GoogleClient struct {
	oauth            *oauth2.Config
	httpClient       *http.Client
	calendarID       string
	calendarEndpoint string
	userinfoEndpoint string
	revokeURL        string
	clock            func() time.Time
	logger           *zap.Logger
}

// ClientOption configures a GoogleClient.
type ClientOption func(*GoogleClient)

// WithHTTPClient sets the base HTTP client for every Google call.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *GoogleClient) {
		c.httpClient = client
	}
}

// WithCalendarID selects the calendar to import. Defaults to "primary".
func WithCalendarID(id string) ClientOption {
	return func(c *GoogleClient) {
		if id != "" {
			c.calendarID = id
		}
	}
}

// WithCalendarEndpoint overrides the Calendar API base URL.
func WithCalendarEndpoint(endpoint string) ClientOption {
	return func(c *GoogleClient) {
		c.calendarEndpoint = endpoint
	}
}

// WithUserinfoEndpoint overrides the OAuth2 userinfo API base URL.
func WithUserinfoEndpoint(endpoint string) ClientOption {
	return func(c *GoogleClient) {
		c.userinfoEndpoint = endpoint
	}
}

// WithRevokeURL overrides the token revocation endpoint.
func WithRevokeURL(u string) ClientOption {
	return func(c *GoogleClient) {
		c.revokeURL = u
	}
}

// WithClientClock sets the clock used for default token expiry.
func WithClientClock(clock func() time.Time) ClientOption {
	return func(c *GoogleClient) {
		c.clock = clock
	}
}

// WithClientLogger sets the client's logger.
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *GoogleClient) {
		c.logger = logger
	}
}

// NewGoogleClient creates a Google Calendar client from an OAuth config.
func NewGoogleClient(config *oauth2.Config, opts ...ClientOption) (*GoogleClient, error) {
	if config == nil {
		return nil, fmt.Errorf("oauth config cannot be nil")
	}
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, fmt.Errorf("google OAuth credentials not configured. Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET environment variables")
	}

	c := &GoogleClient{
		oauth:      config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		calendarID: defaultCalendar,
		revokeURL:  defaultRevokeURL,
		clock:      time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CalendarID returns the Google calendar this client imports from.
func (c *GoogleClient) CalendarID() string {
	return c.calendarID
}

// ExchangeCode trades an authorization code for tokens.
func (c *GoogleClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenGrant, error) {
	cfg := *c.oauth
	if redirectURI != "" {
		cfg.RedirectURL = redirectURI
	}

	token, err := cfg.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, oauthError("token exchange", err)
	}

	return c.grantFromToken(token), nil
}

// Refresh runs the refresh grant. The returned grant's RefreshToken is
// whatever Google sent back and is usually empty.
func (c *GoogleClient) Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token cannot be empty")
	}

	source := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, oauthError("token refresh", err)
	}

	return c.grantFromToken(token), nil
}

// GetAccountInfo looks up the email of the account behind accessToken.
func (c *GoogleClient) GetAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error) {
	service, err := googleoauth2.NewService(ctx, c.serviceOptions(ctx, accessToken, c.userinfoEndpoint)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo service: %w", err)
	}

	info, err := service.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, apiError("userinfo.get", err)
	}

	verified := info.VerifiedEmail != nil && *info.VerifiedEmail
	return &AccountInfo{Email: info.Email, EmailVerified: verified}, nil
}

// Revoke asks Google to revoke a token. Callers treat failure as non-fatal.
func (c *GoogleClient) Revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ExternalAPIError{Op: "revoke", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &ExternalAPIError{Op: "revoke", StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
	}
	return nil
}

// ListEvents walks every page of events.list. Recurring series come back as
// one master plus explicit exception instances (singleEvents=false).
func (c *GoogleClient) ListEvents(ctx context.Context, accessToken string, req ListRequest) (*EventPage, error) {
	service, err := calendar.NewService(ctx, c.serviceOptions(ctx, accessToken, c.calendarEndpoint)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	call := service.Events.List(c.calendarID).
		Context(ctx).
		MaxResults(maxResults).
		SingleEvents(false)

	if req.Incremental() {
		call = call.SyncToken(req.SyncToken)
	} else {
		call = call.TimeMin(req.TimeMin.Format(time.RFC3339)).
			TimeMax(req.TimeMax.Format(time.RFC3339))
	}

	page := &EventPage{}
	pageToken := ""
	pageNum := 0

	for {
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		events, err := call.Do()
		if err != nil {
			if isGone(err) {
				return nil, ErrCursorInvalid
			}
			return nil, apiError("events.list", err)
		}

		pageNum++
		page.Events = append(page.Events, events.Items...)
		c.logger.Debug("fetched calendar page",
			zap.Int("page", pageNum),
			zap.Int("events", len(events.Items)),
			zap.Bool("incremental", req.Incremental()))

		pageToken = events.NextPageToken
		if pageToken == "" {
			page.NextSyncToken = events.NextSyncToken
			break
		}
	}

	return page, nil
}

func (c *GoogleClient) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *GoogleClient) serviceOptions(ctx context.Context, accessToken, endpoint string) []option.ClientOption {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(c.oauthContext(ctx), source)),
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

func (c *GoogleClient) grantFromToken(token *oauth2.Token) *TokenGrant {
	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = c.clock().Add(defaultTokenLifetime)
	}
	return &TokenGrant{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt.UTC(),
	}
}

// isGone reports a 410 from Google, which is how it rejects a stale sync token.
func isGone(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusGone
}

// apiError wraps a Google API failure. A 401 means the access token was
// revoked at Google, so it also carries ErrReauthRequired.
func apiError(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return &ExternalAPIError{Op: op, Err: err}
	}
	apiErr := &ExternalAPIError{Op: op, StatusCode: gerr.Code, Err: err}
	if gerr.Code == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrReauthRequired, apiErr)
	}
	return apiErr
}

func oauthError(op string, err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		return &ExternalAPIError{Op: op, StatusCode: rerr.Response.StatusCode, Err: err}
	}
	return &ExternalAPIError{Op: op, Err: err}
}

// isInvalidGrant reports whether the token endpoint rejected the refresh
// token itself, meaning the user revoked access or it expired.
func isInvalidGrant(err error) bool {
	var rerr *oauth2.RetrieveError
	return errors.As(err, &rerr) && rerr.ErrorCode == "invalid_grant"
}
