// ABOUTME: Charm KV store maintenance commands
// ABOUTME: Shows store status, forces a sync with the charm server, and wipes local data
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/harperreed/dayplan/models"
)

// StoreCommand routes the store subcommands.
func StoreCommand(app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("store requires a subcommand: status, sync, or reset")
	}

	switch args[0] {
	case "status":
		return storeStatus(app)
	case "sync":
		return storeSync(app)
	case "reset":
		return storeReset(app, args[1:])
	default:
		return fmt.Errorf("unknown store command: %s", args[0])
	}
}

func storeStatus(app *App) error {
	cfg := app.KV.Config()
	fmt.Printf("Charm host:  %s\n", cfg.Host)
	fmt.Printf("Database:    %s\n", cfg.Database)
	fmt.Printf("Auto sync:   %t\n", cfg.AutoSync)

	if id, err := app.KV.ID(); err != nil {
		fmt.Printf("Charm ID:    unavailable (%v)\n", err)
	} else {
		fmt.Printf("Charm ID:    %s\n", id)
	}

	users, err := app.Credentials.ListConnectedUsers(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list connected users: %w", err)
	}
	fmt.Printf("Connected:   %d users\n", len(users))
	for _, u := range users {
		fmt.Printf("  - %s\n", u)
	}

	runs, err := app.Runs.ListRuns(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list import runs: %w", err)
	}
	printRuns(os.Stdout, runs)
	return nil
}

func printRuns(w io.Writer, runs []models.ImportRun) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "Import runs: none yet")
		return
	}

	_, _ = fmt.Fprintln(w, "Import runs:")
	for _, run := range runs {
		finished := "never"
		if run.FinishedAt != nil {
			finished = run.FinishedAt.Local().Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "  - %-12s %-8s %s  imported %d, skipped %d, conflicts %d\n",
			run.UserID, run.Status, finished, run.ImportedCount, run.SkippedCount, run.ConflictCount)
		if run.ErrorMessage != nil {
			_, _ = fmt.Fprintf(w, "    error: %s\n", *run.ErrorMessage)
		}
	}
}

func storeSync(app *App) error {
	fmt.Println("Syncing with charm server...")
	if err := app.KV.Sync(); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	fmt.Println("✓ Sync complete")
	return nil
}

func storeReset(app *App, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	confirm := fs.Bool("confirm", false, "Really delete every stored credential and sync cursor")
	_ = fs.Parse(args)

	if !*confirm {
		return fmt.Errorf("reset deletes all stored Google credentials; re-run with --confirm")
	}
	if err := app.KV.Reset(); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	fmt.Println("✓ Local store reset")
	return nil
}
