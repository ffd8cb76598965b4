// ABOUTME: Web server and terminal UI commands
// ABOUTME: Serves the HTTP API and dashboard, or opens the interactive sync panel
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/harperreed/dayplan/logging"
	"github.com/harperreed/dayplan/sync"
	"github.com/harperreed/dayplan/tui"
	"github.com/harperreed/dayplan/web"
)

// ServeCommand runs the HTTP server until interrupted.
func ServeCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "Listen address (default from config)")
	_ = fs.Parse(args)

	listen := app.Config.Server.Addr
	if *addr != "" {
		listen = *addr
	}

	redirect := app.Config.Google.RedirectURL
	if redirect == "" {
		redirect = sync.DefaultRedirectURL
	}

	server, err := web.NewServer(app.Service, app.Events, app.Notifications, web.Options{
		DefaultUser: app.Config.UserID,
		RedirectURL: redirect,
		Logger:      logging.WithComponent(app.Logger, "web"),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Serving dayplan at http://%s\n", listen)
	return server.Start(ctx, listen)
}

// TUICommand opens the interactive sync panel, or prints the status when
// stdout is not a terminal.
func TUICommand(app *App, args []string) error {
	fs := flag.NewFlagSet("tui", flag.ExitOnError)
	user := fs.String("user", "", "User to show (default from config)")
	_ = fs.Parse(args)

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return StatusCommand(app, args)
	}
	return tui.Run(app.Service, app.UserID(*user))
}
