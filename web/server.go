// ABOUTME: HTTP server for the Google Calendar integration
// ABOUTME: Serves the JSON API, OAuth redirect and callback, Prometheus metrics, and a status dashboard
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/harperreed/dayplan/db"
	"github.com/harperreed/dayplan/models"
	"github.com/harperreed/dayplan/sync"
)

//go:embed templates/*
var templatesFS embed.FS

// Service is the slice of sync.Service the server calls.
type Service interface {
	AuthURL(userID, redirectURI string) (string, error)
	Connect(ctx context.Context, code, state, redirectURI string) (*models.ConnectResult, error)
	Disconnect(ctx context.Context, userID string) error
	ImportNow(ctx context.Context, userID string) (*models.ImportResult, error)
	Status(ctx context.Context, userID string) (*models.ConnectionStatus, error)
}

// Options configure a Server.
type Options struct {
	// DefaultUser is used when a request carries no user_id.
	DefaultUser string
	// RedirectURL is the OAuth callback registered with Google.
	RedirectURL string
	Logger      *zap.Logger
}

type Server struct {
	service       Service
	events        *db.EventRepository
	notifications *db.NotificationRepository
	opts          Options
	templates     *template.Template
	logger        *zap.Logger
	mux           *http.ServeMux
}

func NewServer(service Service, events *db.EventRepository, notifications *db.NotificationRepository, opts Options) (*Server, error) {
	funcMap := template.FuncMap{
		"datetime": func(t *time.Time) string {
			if t == nil {
				return "never"
			}
			return t.Local().Format("2006-01-02 15:04")
		},
		"date": func(t time.Time) string {
			return t.Local().Format("Mon Jan 2 15:04")
		},
	}

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RedirectURL == "" {
		opts.RedirectURL = sync.DefaultRedirectURL
	}

	s := &Server{
		service:       service,
		events:        events,
		notifications: notifications,
		opts:          opts,
		templates:     tmpl,
		logger:        logger,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleDashboard)
	s.mux.HandleFunc("POST /import", s.handleDashboardImport)

	s.mux.HandleFunc("GET /oauth/start", s.handleOAuthStart)
	s.mux.HandleFunc("GET /oauth/callback", s.handleOAuthCallback)

	s.mux.HandleFunc("POST /api/google/connect", s.handleConnect)
	s.mux.HandleFunc("POST /api/google/disconnect", s.handleDisconnect)
	s.mux.HandleFunc("POST /api/google/import", s.handleImport)
	s.mux.HandleFunc("GET /api/google/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	s.mux.HandleFunc("POST /api/notifications/{id}/read", s.handleMarkRead)

	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the server's routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting web server", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (s *Server) user(r *http.Request) string {
	if id := r.URL.Query().Get("user_id"); id != "" {
		return id
	}
	return s.opts.DefaultUser
}

func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.service.AuthURL(s.user(r), s.opts.RedirectURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if oauthErr := query.Get("error"); oauthErr != "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Authorization was not granted.", Code: oauthErr})
		return
	}

	result, err := s.service.Connect(r.Context(), query.Get("code"), query.Get("state"), s.opts.RedirectURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type connectRequest struct {
	Code        string `json:"code"`
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body.", Code: "bad_request"})
		return
	}
	if req.RedirectURI == "" {
		req.RedirectURI = s.opts.RedirectURL
	}

	result, err := s.service.Connect(r.Context(), req.Code, req.State, req.RedirectURI)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Disconnect(r.Context(), s.user(r)); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"disconnected": true})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.ImportNow(r.Context(), s.user(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(r.Context(), s.user(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := db.EventFilter{LinkedOnly: query.Get("linked") == "true", Limit: 100}

	var err error
	if v := query.Get("from"); v != "" {
		if filter.From, err = time.Parse(time.RFC3339, v); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "from must be an RFC 3339 time.", Code: "bad_request"})
			return
		}
	}
	if v := query.Get("to"); v != "" {
		if filter.To, err = time.Parse(time.RFC3339, v); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "to must be an RFC 3339 time.", Code: "bad_request"})
			return
		}
	}
	if v := query.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer.", Code: "bad_request"})
			return
		}
	}

	events, err := s.events.ListEvents(r.Context(), s.user(r), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 20
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer.", Code: "bad_request"})
			return
		}
		limit = n
	}

	notifications, err := s.notifications.ListNotifications(r.Context(), s.user(r), query.Get("unread") == "true", limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": notifications})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.notifications.MarkRead(r.Context(), s.user(r), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "read": true})
}
