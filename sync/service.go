// ABOUTME: Public entry points for the Google Calendar integration
// ABOUTME: Connect, disconnect, import with a per-user lease and deadline, and connection status
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/harperreed/dayplan/lock"
	"github.com/harperreed/dayplan/models"
)

const (
	// DefaultRunTimeout bounds a single import run.
	DefaultRunTimeout = 5 * time.Minute

	// importLeaseTTL outlives any run bounded by DefaultRunTimeout, so a
	// crashed worker's lease frees itself.
	importLeaseTTL = 10 * time.Minute
)

// UserLister is implemented by credential stores that can enumerate
// connected users for scheduled imports.
type UserLister interface {
	ListConnectedUsers(ctx context.Context) ([]string, error)
}

// ServiceConfig holds the settings the service does not get from its collaborators.
type ServiceConfig struct {
	OAuth       *oauth2.Config
	StateSecret []byte
	RunTimeout  time.Duration
}

// Service is what the CLI, MCP tools, and web server call.
type Service struct {
	oauth      *oauth2.Config
	client     CalendarClient
	creds      CredentialStore
	importer   *Importer
	states     *StateSigner
	locker     lock.Locker
	runTimeout time.Duration
	logger     *zap.Logger
}

// NewService wires the service. A nil locker means an in-process locker.
func NewService(cfg ServiceConfig, client CalendarClient, creds CredentialStore, importer *Importer, locker lock.Locker, logger *zap.Logger) (*Service, error) {
	if cfg.OAuth == nil {
		return nil, fmt.Errorf("oauth config cannot be nil")
	}
	if importer == nil {
		return nil, fmt.Errorf("importer cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	states, err := NewStateSigner(cfg.StateSecret, importer.clock)
	if err != nil {
		return nil, err
	}
	if locker == nil {
		locker = lock.NewMemoryLocker(importer.clock)
	}
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}

	return &Service{
		oauth:      cfg.OAuth,
		client:     client,
		creds:      creds,
		importer:   importer,
		states:     states,
		locker:     locker,
		runTimeout: timeout,
		logger:     logger,
	}, nil
}

// AuthURL returns the Google consent URL for userID. Offline access with a
// forced consent prompt makes Google issue a refresh token every time.
func (s *Service) AuthURL(userID, redirectURI string) (string, error) {
	state, err := s.states.Issue(userID)
	if err != nil {
		return "", err
	}

	cfg := *s.oauth
	if redirectURI != "" {
		cfg.RedirectURL = redirectURI
	}
	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	), nil
}

// Connect finishes the OAuth flow: it verifies state, exchanges the code,
// and stores the credential. The cursor is reset when the Google account
// differs from the one previously connected.
func (s *Service) Connect(ctx context.Context, code, state, redirectURI string) (*models.ConnectResult, error) {
	userID, err := s.states.Verify(state)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, fmt.Errorf("authorization code cannot be empty")
	}

	grant, err := s.client.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	info, err := s.client.GetAccountInfo(ctx, grant.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get account info: %w", err)
	}
	if !info.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	previous, err := s.creds.FindUserMeta(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing connection: %w", err)
	}

	now := s.importer.clock().UTC()
	cred := models.OAuthCredential{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.ExpiresAt,
		AccountEmail: info.Email,
		ConnectedAt:  now,
	}
	if err := s.creds.SaveCredential(ctx, userID, cred); err != nil {
		return nil, fmt.Errorf("failed to save credential: %w", err)
	}

	if previous != nil && previous.Credential != nil && previous.Credential.AccountEmail != info.Email {
		s.logger.Info("google account changed, resetting sync cursor",
			zap.String("user_id", userID),
			zap.String("previous_email", previous.Credential.AccountEmail),
			zap.String("email", info.Email))
		if err := s.creds.UpdateSyncCursor(ctx, userID, models.SyncCursor{}); err != nil {
			return nil, fmt.Errorf("failed to reset sync cursor: %w", err)
		}
	}

	s.logger.Info("connected google calendar", zap.String("user_id", userID), zap.String("email", info.Email))

	return &models.ConnectResult{
		Connected:   true,
		Email:       info.Email,
		ConnectedAt: now,
	}, nil
}

// Disconnect revokes the stored grant at Google and removes the credential.
// Revocation is best effort; local removal always happens.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	meta, err := s.creds.FindUserMeta(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load credential: %w", err)
	}

	if meta != nil && meta.Credential != nil {
		token := meta.Credential.RefreshToken
		if token == "" {
			token = meta.Credential.AccessToken
		}
		if err := s.client.Revoke(ctx, token); err != nil {
			s.logger.Warn("failed to revoke google token, removing locally anyway",
				zap.String("user_id", userID), zap.Error(err))
		}
	}

	if err := s.creds.RemoveCredential(ctx, userID); err != nil {
		return fmt.Errorf("failed to remove credential: %w", err)
	}

	s.logger.Info("disconnected google calendar", zap.String("user_id", userID))
	return nil
}

// ImportNow runs one import for userID under a per-user lease. A second
// call while one is running fails with ErrImportInProgress.
func (s *Service) ImportNow(ctx context.Context, userID string) (*models.ImportResult, error) {
	release, err := s.locker.Acquire(ctx, "import:"+userID, importLeaseTTL)
	if errors.Is(err, lock.ErrLocked) {
		return nil, ErrImportInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire import lease: %w", err)
	}
	defer release()

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	return s.importer.Import(runCtx, userID)
}

// UserOutcome is one user's result from ImportAll.
type UserOutcome struct {
	UserID string
	Result *models.ImportResult
	Err    error
}

// ImportAll imports every connected user in turn. Per-user failures are
// reported in the outcomes; only listing users can fail the whole call.
func (s *Service) ImportAll(ctx context.Context) ([]UserOutcome, error) {
	lister, ok := s.creds.(UserLister)
	if !ok {
		return nil, fmt.Errorf("credential store cannot list connected users")
	}

	users, err := lister.ListConnectedUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list connected users: %w", err)
	}

	outcomes := make([]UserOutcome, 0, len(users))
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		result, err := s.ImportNow(ctx, userID)
		outcomes = append(outcomes, UserOutcome{UserID: userID, Result: result, Err: err})
	}
	return outcomes, nil
}

// Status reports the connection and the most recent run for userID.
func (s *Service) Status(ctx context.Context, userID string) (*models.ConnectionStatus, error) {
	meta, err := s.creds.FindUserMeta(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	status := &models.ConnectionStatus{}
	if meta != nil && meta.Credential != nil {
		email := meta.Credential.AccountEmail
		connectedAt := meta.Credential.ConnectedAt
		status.Connected = true
		status.Email = &email
		status.ConnectedAt = &connectedAt
	}
	if meta != nil && meta.Cursor != nil {
		status.LastSyncAt = meta.Cursor.LastSyncAt
	}

	if s.importer.runs != nil {
		last, err := s.importer.runs.LastRun(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load last run: %w", err)
		}
		if last != nil {
			status.LastRunStatus = last.Status
			status.LastRunError = last.ErrorMessage
		}
	}

	return status, nil
}
