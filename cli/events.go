// ABOUTME: Local event and notification listing commands
// ABOUTME: Shows imported events and the import notification feed
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/harperreed/dayplan/db"
	"github.com/harperreed/dayplan/models"
)

// EventsCommand lists the user's local events.
func EventsCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	user := fs.String("user", "", "User whose events to list (default from config)")
	from := fs.String("from", "", "Only events ending on or after this date (YYYY-MM-DD)")
	to := fs.String("to", "", "Only events starting before this date (YYYY-MM-DD)")
	linked := fs.Bool("linked", false, "Only events imported from Google")
	limit := fs.Int("limit", 50, "Max results")
	_ = fs.Parse(args)

	filter := db.EventFilter{LinkedOnly: *linked, Limit: *limit}
	var err error
	if filter.From, err = parseDateFlag("from", *from); err != nil {
		return err
	}
	if filter.To, err = parseDateFlag("to", *to); err != nil {
		return err
	}

	events, err := app.Events.ListEvents(context.Background(), app.UserID(*user), filter)
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}

	printEvents(os.Stdout, events)
	return nil
}

// parseDateFlag accepts YYYY-MM-DD or RFC 3339. Empty means no bound.
func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: use YYYY-MM-DD or RFC 3339", name, value)
	}
	return t, nil
}

func printEvents(w io.Writer, events []models.Event) {
	if len(events) == 0 {
		_, _ = fmt.Fprintln(w, "No events found.")
		return
	}

	for _, e := range events {
		when := e.StartUTC.Local().Format("2006-01-02 15:04")
		if e.IsAllDay {
			when = e.StartUTC.Format(time.DateOnly) + " (all day)"
		}
		source := "local"
		if e.IsLinked() {
			source = "google"
		}
		_, _ = fmt.Fprintf(w, "%s  %-10s %-7s %s  (%s)\n", when, e.Status, source, e.Title, shortID(e.ID.String()))
	}
	_, _ = fmt.Fprintf(w, "\n%d events\n", len(events))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// EditCommand retitles a local event. Editing a Google-linked event marks it
// as changed here, so a later Google change to it is reported as a conflict.
func EditCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	user := fs.String("user", "", "Event owner (default from config)")
	title := fs.String("title", "", "New title")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: dayplan edit <event-id> --title <title>")
	}
	if *title == "" {
		return fmt.Errorf("--title is required")
	}

	ctx := context.Background()
	userID := app.UserID(*user)
	event, err := findEvent(ctx, app.Events, userID, fs.Arg(0))
	if err != nil {
		return err
	}

	if err := app.Events.TouchEvent(ctx, userID, event.ID.String(), *title, time.Now()); err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}

	fmt.Printf("✓ Renamed %q to %q\n", event.Title, *title)
	if event.IsLinked() {
		fmt.Println("  Google changes to this event will now be held for review.")
	}
	return nil
}

// findEvent resolves a full event id or a unique id prefix as printed by
// the events command.
func findEvent(ctx context.Context, events *db.EventRepository, userID, id string) (*models.Event, error) {
	event, err := events.GetEvent(ctx, userID, id)
	if err == nil {
		return event, nil
	}
	if !errors.Is(err, db.ErrEventNotFound) {
		return nil, fmt.Errorf("failed to load event: %w", err)
	}

	all, err := events.ListEvents(ctx, userID, db.EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return matchEventPrefix(all, id)
}

func matchEventPrefix(events []models.Event, prefix string) (*models.Event, error) {
	var match *models.Event
	for i := range events {
		if !strings.HasPrefix(events[i].ID.String(), prefix) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("event id %q is ambiguous", prefix)
		}
		match = &events[i]
	}
	if match == nil {
		return nil, fmt.Errorf("event %s not found", prefix)
	}
	return match, nil
}

// NotificationsCommand lists the user's notifications, or marks one read.
func NotificationsCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("notifications", flag.ExitOnError)
	user := fs.String("user", "", "User whose notifications to list (default from config)")
	unread := fs.Bool("unread", false, "Only unread notifications")
	limit := fs.Int("limit", 20, "Max results")
	markRead := fs.String("mark-read", "", "Mark the notification with this id as read")
	_ = fs.Parse(args)

	ctx := context.Background()
	userID := app.UserID(*user)

	if *markRead != "" {
		if err := app.Notifications.MarkRead(ctx, userID, *markRead); err != nil {
			return fmt.Errorf("failed to mark notification read: %w", err)
		}
		fmt.Printf("✓ Marked %s as read\n", *markRead)
		return nil
	}

	notifications, err := app.Notifications.ListNotifications(ctx, userID, *unread, *limit)
	if err != nil {
		return fmt.Errorf("failed to list notifications: %w", err)
	}

	printNotifications(os.Stdout, notifications)
	return nil
}

func printNotifications(w io.Writer, notifications []models.Notification) {
	if len(notifications) == 0 {
		_, _ = fmt.Fprintln(w, "No notifications.")
		return
	}

	for _, n := range notifications {
		marker := "*"
		if n.Read {
			marker = " "
		}
		_, _ = fmt.Fprintf(w, "%s %s  %s\n    %s\n    id: %s\n",
			marker, n.CreatedAt.Local().Format("2006-01-02 15:04"), n.Title, n.Message, n.ID)
	}
}
