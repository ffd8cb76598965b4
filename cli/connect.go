// ABOUTME: Google Calendar connect and disconnect commands
// ABOUTME: Runs the OAuth consent flow against a local callback server and stores the credential
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"github.com/harperreed/dayplan/models"
	"github.com/harperreed/dayplan/sync"
)

// connectTimeout bounds how long the CLI waits for the browser callback.
const connectTimeout = sync.StateTTL

type connectFunc func(ctx context.Context, code, state, redirectURI string) (*models.ConnectResult, error)

type callbackResult struct {
	result *models.ConnectResult
	err    error
}

// newCallbackHandler finishes the OAuth flow when Google redirects back and
// reports the outcome on done.
func newCallbackHandler(connect connectFunc, redirectURI string, done chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		if oauthErr := query.Get("error"); oauthErr != "" {
			http.Error(w, "Authorization was not granted: "+oauthErr, http.StatusBadRequest)
			report(done, callbackResult{err: fmt.Errorf("authorization denied: %s", oauthErr)})
			return
		}

		code := query.Get("code")
		if code == "" {
			http.Error(w, "No authorization code received", http.StatusBadRequest)
			report(done, callbackResult{err: fmt.Errorf("no authorization code received")})
			return
		}

		result, err := connect(r.Context(), code, query.Get("state"), redirectURI)
		if err != nil {
			http.Error(w, sync.UserMessage(err), http.StatusBadRequest)
			report(done, callbackResult{err: err})
			return
		}

		_, _ = fmt.Fprintf(w, "Connected %s. You can close this window.", result.Email)
		report(done, callbackResult{result: result})
	})
}

// report delivers the first outcome; later callbacks are dropped.
func report(done chan<- callbackResult, res callbackResult) {
	select {
	case done <- res:
	default:
	}
}

// ConnectCommand authorizes Google Calendar access for the user.
func ConnectCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	user := fs.String("user", "", "User to connect (default from config)")
	noBrowser := fs.Bool("no-browser", false, "Print the URL instead of opening a browser")
	_ = fs.Parse(args)

	if err := app.Config.RequireGoogle(); err != nil {
		return err
	}

	redirectURI := app.Config.Google.RedirectURL
	if redirectURI == "" {
		redirectURI = sync.DefaultRedirectURL
	}
	callback, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect URL %q: %w", redirectURI, err)
	}

	listener, err := net.Listen("tcp", callback.Host)
	if err != nil {
		return fmt.Errorf("failed to listen for OAuth callback on %s: %w", callback.Host, err)
	}

	done := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.Handle(callback.Path, newCallbackHandler(app.Service.Connect, redirectURI, done))

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	authURL, err := app.Service.AuthURL(app.UserID(*user), redirectURI)
	if err != nil {
		return fmt.Errorf("failed to build authorization URL: %w", err)
	}

	fmt.Println("Opening browser for Google OAuth...")
	fmt.Printf("\nIf browser doesn't open, visit this URL:\n%s\n\n", authURL)
	if !*noBrowser {
		_ = openBrowser(authURL)
	}

	select {
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("OAuth flow failed: %w", res.err)
		}
		fmt.Printf("\n✓ Connected %s\n", res.result.Email)
		fmt.Println("Ready to import! Run 'dayplan import' to pull your calendar.")
		return nil
	case err := <-serveErr:
		return fmt.Errorf("OAuth callback server failed: %w", err)
	case <-time.After(connectTimeout):
		return fmt.Errorf("timed out waiting for authorization")
	}
}

// DisconnectCommand revokes and removes the user's Google credential.
func DisconnectCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("disconnect", flag.ExitOnError)
	user := fs.String("user", "", "User to disconnect (default from config)")
	_ = fs.Parse(args)

	userID := app.UserID(*user)
	if err := app.Service.Disconnect(context.Background(), userID); err != nil {
		return err
	}

	fmt.Printf("✓ Disconnected Google Calendar for %s\n", userID)
	return nil
}

// openBrowser attempts to open URL in default browser
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		cmd = "xdg-open"
		args = []string{url}
	}

	command := exec.Command(cmd, args...)
	return command.Start()
}
