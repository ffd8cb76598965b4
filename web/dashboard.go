// ABOUTME: HTML dashboard for the Google Calendar connection
// ABOUTME: Shows connection status, upcoming imported events, and recent notifications
package web

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/dayplan/db"
	"github.com/harperreed/dayplan/models"
	"github.com/harperreed/dayplan/sync"
)

type dashboardData struct {
	Title         string
	UserID        string
	Status        *models.ConnectionStatus
	Events        []models.Event
	Notifications []models.Notification
	Flash         string
	Error         string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.renderDashboard(w, r, dashboardData{})
}

func (s *Server) handleDashboardImport(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{}
	result, err := s.service.ImportNow(r.Context(), s.user(r))
	if err != nil {
		data.Error = sync.UserMessage(err)
	} else {
		data.Flash = importSummary(result)
	}
	s.renderDashboard(w, r, data)
}

func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, data dashboardData) {
	ctx := r.Context()
	userID := s.user(r)

	status, err := s.service.Status(ctx, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	events, err := s.events.ListEvents(ctx, userID, db.EventFilter{From: time.Now(), LinkedOnly: true, Limit: 20})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	notifications, err := s.notifications.ListNotifications(ctx, userID, false, 5)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data.Title = "Google Calendar"
	data.UserID = userID
	data.Status = status
	data.Events = events
	data.Notifications = notifications

	if err := s.templates.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		s.logger.Error("template error", zap.String("template", "dashboard.html"), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func importSummary(result *models.ImportResult) string {
	summary := fmt.Sprintf("Imported %d, skipped %d", result.ImportedCount, result.SkippedCount)
	if n := len(result.Conflicts); n > 0 {
		summary += fmt.Sprintf(", %d need review", n)
	}
	return summary + "."
}
