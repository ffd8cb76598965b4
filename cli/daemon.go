// ABOUTME: Background daemon that imports every connected user on a cron schedule
// ABOUTME: Uses robfig/cron with overlap protection and logs per-user outcomes
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/harperreed/dayplan/logging"
	"github.com/harperreed/dayplan/sync"
)

type allImporter interface {
	ImportAll(ctx context.Context) ([]sync.UserOutcome, error)
}

// cronLogger adapts zap to cron's logger interface.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// DaemonCommand runs scheduled imports until interrupted.
func DaemonCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	schedule := fs.String("schedule", "", "Cron schedule (default from config)")
	runNow := fs.Bool("now", false, "Run one import immediately on start")
	_ = fs.Parse(args)

	cronExpr := app.Config.Import.Schedule
	if *schedule != "" {
		cronExpr = *schedule
	}

	logger := logging.WithComponent(app.Logger, "daemon")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler, err := newScheduler(ctx, cronExpr, app.Service, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Importing every connected user on schedule %q\n", cronExpr)
	fmt.Println("Press Ctrl+C to stop")

	if *runNow {
		runScheduledImports(ctx, app.Service, logger)
	}

	scheduler.Start()
	<-ctx.Done()

	logger.Info("stopping scheduler, waiting for running import")
	<-scheduler.Stop().Done()
	fmt.Println("\n✓ Daemon stopped")
	return nil
}

// newScheduler registers the import job. A run that outlasts its interval
// makes the next tick skip rather than stack.
func newScheduler(ctx context.Context, cronExpr string, importer allImporter, logger *zap.Logger) (*cron.Cron, error) {
	clog := cronLogger{sugar: logger.Sugar()}
	scheduler := cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	if _, err := scheduler.AddFunc(cronExpr, func() {
		runScheduledImports(ctx, importer, logger)
	}); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cronExpr, err)
	}
	return scheduler, nil
}

// runScheduledImports imports every connected user once and logs how each went.
func runScheduledImports(ctx context.Context, importer allImporter, logger *zap.Logger) {
	outcomes, err := importer.ImportAll(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduled import failed", zap.Error(err))
	}

	for _, outcome := range outcomes {
		switch {
		case outcome.Err == nil:
			logger.Info("imported user",
				zap.String("user_id", outcome.UserID),
				zap.Int("imported", outcome.Result.ImportedCount),
				zap.Int("skipped", outcome.Result.SkippedCount),
				zap.Int("conflicts", len(outcome.Result.Conflicts)))
		case errors.Is(outcome.Err, sync.ErrImportInProgress):
			logger.Info("import already running, skipped", zap.String("user_id", outcome.UserID))
		case errors.Is(outcome.Err, sync.ErrReauthRequired), errors.Is(outcome.Err, sync.ErrNotConnected):
			logger.Warn("user must reconnect google calendar",
				zap.String("user_id", outcome.UserID), zap.Error(outcome.Err))
		default:
			logger.Error("import failed",
				zap.String("user_id", outcome.UserID), zap.Error(outcome.Err))
		}
	}
}
