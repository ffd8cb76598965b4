// ABOUTME: Import and status commands for Google Calendar
// ABOUTME: Runs one import for a user and prints counts, conflicts, and connection state
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/harperreed/dayplan/models"
	"github.com/harperreed/dayplan/sync"
)

// ImportCommand imports the user's Google Calendar now.
func ImportCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	user := fs.String("user", "", "User to import for (default from config)")
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	_ = fs.Parse(args)

	userID := app.UserID(*user)
	if !*asJSON {
		fmt.Println("Importing Google Calendar...")
	}

	result, err := app.Service.ImportNow(context.Background(), userID)
	if err != nil {
		return fmt.Errorf("%s: %w", sync.UserMessage(err), err)
	}

	if *asJSON {
		return writeJSON(os.Stdout, result)
	}
	printImportResult(os.Stdout, result)
	return nil
}

func printImportResult(w io.Writer, result *models.ImportResult) {
	_, _ = fmt.Fprintf(w, "  ✓ Imported %d events\n", result.ImportedCount)
	if result.SkippedCount > 0 {
		_, _ = fmt.Fprintf(w, "  → Skipped %d events\n", result.SkippedCount)
	}
	if len(result.Conflicts) > 0 {
		_, _ = fmt.Fprintf(w, "  ! %d events changed both here and in Google:\n", len(result.Conflicts))
		for _, c := range result.Conflicts {
			_, _ = fmt.Fprintf(w, "    - %s (local %s, google %s)\n",
				c.Title,
				c.LocalUpdatedAt.Local().Format(time.DateTime),
				c.ExternalUpdatedAt.Local().Format(time.DateTime))
		}
	}
}

// StatusCommand shows the Google Calendar connection for the user.
func StatusCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	user := fs.String("user", "", "User to show (default from config)")
	asJSON := fs.Bool("json", false, "Print the status as JSON")
	_ = fs.Parse(args)

	status, err := app.Service.Status(context.Background(), app.UserID(*user))
	if err != nil {
		return err
	}

	if *asJSON {
		return writeJSON(os.Stdout, status)
	}
	printStatus(os.Stdout, status, time.Now())
	return nil
}

func printStatus(w io.Writer, status *models.ConnectionStatus, now time.Time) {
	if !status.Connected {
		_, _ = fmt.Fprintln(w, "Google Calendar: not connected")
		_, _ = fmt.Fprintln(w, "Run 'dayplan connect' to link your calendar.")
		return
	}

	_, _ = fmt.Fprintf(w, "Google Calendar: connected as %s\n", *status.Email)
	if status.ConnectedAt != nil {
		_, _ = fmt.Fprintf(w, "  Connected:  %s\n", status.ConnectedAt.Local().Format(time.DateTime))
	}
	if status.LastSyncAt != nil {
		_, _ = fmt.Fprintf(w, "  Last sync:  %s\n", formatTimeSince(*status.LastSyncAt, now))
	} else {
		_, _ = fmt.Fprintln(w, "  Last sync:  never")
	}
	if status.LastRunStatus != "" {
		_, _ = fmt.Fprintf(w, "  Last run:   %s\n", status.LastRunStatus)
	}
	if status.LastRunError != nil {
		_, _ = fmt.Fprintf(w, "  Error:      %s\n", *status.LastRunError)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatTimeSince formats a time duration in a human-readable way.
func formatTimeSince(t, now time.Time) string {
	duration := now.Sub(t)

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}
