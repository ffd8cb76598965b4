// ABOUTME: Migration utility that moves a legacy Google token file into the credential store
// ABOUTME: Looks up the account email, supports dry-run, and can remove the old file afterwards

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/harperreed/dayplan/charm"
	"github.com/harperreed/dayplan/config"
	"github.com/harperreed/dayplan/models"
	"github.com/harperreed/dayplan/sync"
)

// credentialStore is the part of the credential store the migration writes to.
type credentialStore interface {
	FindUserMeta(ctx context.Context, userID string) (*models.UserMeta, error)
	SaveCredential(ctx context.Context, userID string, cred models.OAuthCredential) error
}

// accountClient resolves the Google account behind a token.
type accountClient interface {
	GetAccountInfo(ctx context.Context, accessToken string) (*sync.AccountInfo, error)
	Refresh(ctx context.Context, refreshToken string) (*sync.TokenGrant, error)
}

type options struct {
	userID string
	email  string
	dryRun bool
	force  bool
	now    time.Time
}

func main() {
	configPath := flag.String("config", "", "Config file (default: XDG search)")
	tokenPath := flag.String("token", sync.LegacyTokenPath(), "Legacy token file")
	userID := flag.String("user", "", "User to store the credential for (default from config)")
	email := flag.String("email", "", "Google account email (looked up from Google when empty)")
	dryRun := flag.Bool("dry-run", false, "Show what would happen without making changes")
	force := flag.Bool("force", false, "Replace an existing stored credential")
	remove := flag.Bool("remove", false, "Delete the legacy token file after migrating")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	token, err := sync.LoadLegacyToken(*tokenPath)
	if err != nil {
		log.Fatalf("Failed to read legacy token: %v", err)
	}
	log.Printf("Read legacy token from %s", *tokenPath)

	kv, err := charm.NewClient(&cfg.Charm)
	if err != nil {
		log.Fatalf("Failed to open charm store: %v", err)
	}
	defer func() { _ = kv.Close() }()

	client, err := sync.NewGoogleClient(sync.NewOAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL))
	if err != nil {
		log.Fatalf("Failed to create Google client: %v", err)
	}

	opts := options{
		userID: cfg.UserID,
		email:  *email,
		dryRun: *dryRun,
		force:  *force,
		now:    time.Now(),
	}
	if *userID != "" {
		opts.userID = *userID
	}

	cred, err := migrate(context.Background(), token, charm.NewCredentialStore(kv), client, opts)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if opts.dryRun {
		log.Printf("[DRY RUN] Would store credential for %s (%s), expiring %s",
			opts.userID, cred.AccountEmail, cred.ExpiresAt.Format(time.RFC3339))
		return
	}

	if *remove {
		if err := os.Remove(*tokenPath); err != nil {
			log.Printf("Warning: failed to remove %s: %v", *tokenPath, err)
		} else {
			log.Printf("Removed legacy token file")
		}
	}

	log.Printf("Migration completed successfully: %s is connected as %s", opts.userID, cred.AccountEmail)
}

// migrate converts token into a stored credential for opts.userID. The
// account email comes from opts or, failing that, from Google, refreshing
// the access token first if it has expired.
func migrate(ctx context.Context, token *oauth2.Token, store credentialStore, client accountClient, opts options) (*models.OAuthCredential, error) {
	if opts.userID == "" {
		return nil, errors.New("user id is required")
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, errors.New("legacy token has neither an access token nor a refresh token")
	}

	meta, err := store.FindUserMeta(ctx, opts.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing credential: %w", err)
	}
	if meta != nil && meta.Credential != nil && !opts.force {
		return nil, fmt.Errorf("%s already has a stored credential for %s (use -force to replace it)",
			opts.userID, meta.Credential.AccountEmail)
	}

	cred := models.OAuthCredential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry.UTC(),
		AccountEmail: opts.email,
		ConnectedAt:  opts.now.UTC(),
	}

	if cred.AccountEmail == "" {
		if cred.ExpiresAt.Before(opts.now) || cred.AccessToken == "" {
			if cred.RefreshToken == "" {
				return nil, errors.New("legacy access token expired and has no refresh token; pass -email or reconnect")
			}
			grant, err := client.Refresh(ctx, cred.RefreshToken)
			if err != nil {
				return nil, fmt.Errorf("failed to refresh legacy token: %w", err)
			}
			cred.AccessToken = grant.AccessToken
			cred.ExpiresAt = grant.ExpiresAt
		}

		info, err := client.GetAccountInfo(ctx, cred.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to look up account email: %w", err)
		}
		cred.AccountEmail = info.Email
	}

	if opts.dryRun {
		return &cred, nil
	}

	if err := store.SaveCredential(ctx, opts.userID, cred); err != nil {
		return nil, fmt.Errorf("failed to save credential: %w", err)
	}
	return &cred, nil
}
