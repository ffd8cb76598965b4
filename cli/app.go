// ABOUTME: Shared wiring for CLI commands
// ABOUTME: Loads config and opens the database, KV store, Google client, and sync service
package cli

import (
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/harperreed/dayplan/charm"
	"github.com/harperreed/dayplan/config"
	"github.com/harperreed/dayplan/db"
	"github.com/harperreed/dayplan/lock"
	"github.com/harperreed/dayplan/logging"
	"github.com/harperreed/dayplan/sync"
)

// App holds everything a command needs. Close releases it.
type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	DB            *sql.DB
	KV            *charm.Client
	Credentials   *charm.CredentialStore
	Events        *db.EventRepository
	Notifications *db.NotificationRepository
	Runs          *db.RunRepository
	Service       *sync.Service

	redis *redis.Client
}

// NewApp loads configuration from cfgPath (empty means the default search)
// and wires the application.
func NewApp(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{Config: cfg, Logger: logger}
	if err := app.open(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) open() error {
	cfg := a.Config

	database, err := db.OpenDatabase(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.DB = database
	a.Events = db.NewEventRepository(database)
	a.Notifications = db.NewNotificationRepository(database)
	a.Runs = db.NewRunRepository(database)

	kv, err := charm.NewClient(&cfg.Charm)
	if err != nil {
		return fmt.Errorf("failed to open charm store: %w", err)
	}
	a.KV = kv
	a.Credentials = charm.NewCredentialStore(kv)

	oauthConfig := sync.NewOAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
	client, err := sync.NewGoogleClient(oauthConfig,
		sync.WithCalendarID(cfg.Google.CalendarID),
		sync.WithClientLogger(logging.WithComponent(a.Logger, "google")),
	)
	if err != nil {
		return fmt.Errorf("failed to create google client: %w", err)
	}

	importer := sync.NewImporter(a.Credentials, a.Events, a.Notifications, client,
		logging.WithComponent(a.Logger, "importer"),
		sync.WithRunRecorder(a.Runs),
	)

	service, err := sync.NewService(sync.ServiceConfig{
		OAuth:       oauthConfig,
		StateSecret: cfg.StateSecret(),
		RunTimeout:  cfg.Import.RunTimeout,
	}, client, a.Credentials, importer, a.locker(), logging.WithComponent(a.Logger, "service"))
	if err != nil {
		return fmt.Errorf("failed to create sync service: %w", err)
	}
	a.Service = service

	return nil
}

// locker returns a Redis-backed lease when Redis is configured so that
// several processes share one import per user.
func (a *App) locker() lock.Locker {
	if a.Config.Redis.Addr == "" {
		return nil
	}
	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	return lock.NewRedisLocker(a.redis, "", logging.WithComponent(a.Logger, "lock"))
}

// UserID resolves the user a command acts as.
func (a *App) UserID(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return a.Config.UserID
}

// Close releases every resource the app opened.
func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.KV != nil {
		_ = a.KV.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}
