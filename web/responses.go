// ABOUTME: JSON responses, error-to-status mapping, and request logging for the web server
// ABOUTME: Turns sync errors into the connect / reconnect / try again messages users see
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/dayplan/db"
	"github.com/harperreed/dayplan/sync"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps an error to its HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	var apiErr *sync.ExternalAPIError
	switch {
	case errors.Is(err, sync.ErrNotConnected):
		return http.StatusConflict, "not_connected"
	case errors.Is(err, sync.ErrReauthRequired):
		return http.StatusUnauthorized, "reauth_required"
	case errors.Is(err, sync.ErrImportInProgress):
		return http.StatusConflict, "import_in_progress"
	case errors.Is(err, sync.ErrInvalidState):
		return http.StatusBadRequest, "invalid_state"
	case errors.Is(err, sync.ErrEmailNotVerified):
		return http.StatusForbidden, "email_not_verified"
	case errors.Is(err, db.ErrNotificationNotFound), errors.Is(err, db.ErrEventNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, sync.ErrTokenRefreshFailed), errors.As(err, &apiErr):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("code", code), zap.Error(err))
	}

	message := sync.UserMessage(err)
	if code == "not_found" {
		message = "Not found."
	}
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
