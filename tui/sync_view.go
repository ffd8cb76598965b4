// ABOUTME: TUI view for Google Calendar sync status and controls
// ABOUTME: Renders connection state, runs imports in the background, and lists conflicts and activity
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/dayplan/models"
	"github.com/harperreed/dayplan/sync"
)

var (
	syncHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)

	syncLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Width(12)

	syncIdleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	syncSyncingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11")).
				Bold(true)

	syncErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	syncMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true)
)

// maxSyncMessages bounds the activity log.
const maxSyncMessages = 5

// StatusMsg carries a freshly loaded connection status.
type StatusMsg struct {
	Status *models.ConnectionStatus
	Err    error
}

// ImportCompleteMsg is sent when an import run finishes.
type ImportCompleteMsg struct {
	Result *models.ImportResult
	Err    error
}

func (m Model) renderSyncView() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("Google Calendar Sync"))
	s.WriteString("\n\n")

	switch {
	case m.statusErr != nil:
		s.WriteString(syncErrorStyle.Render("✗ Could not load status: " + m.statusErr.Error()))
		s.WriteString("\n")
	case m.status == nil:
		s.WriteString(syncMessageStyle.Render("Loading..."))
		s.WriteString("\n")
	case !m.status.Connected:
		s.WriteString(syncMessageStyle.Render("Not connected. Run 'dayplan connect' to link your calendar."))
		s.WriteString("\n")
	default:
		s.WriteString(m.renderStatus())
	}

	if len(m.conflicts) > 0 {
		s.WriteString("\n")
		s.WriteString(syncHeaderStyle.Render("Needs Review"))
		s.WriteString("\n\n")
		for _, c := range m.conflicts {
			s.WriteString(syncErrorStyle.Render("  ! " + c.Title))
			s.WriteString(syncMessageStyle.Render(fmt.Sprintf(" • local %s, google %s",
				c.LocalUpdatedAt.Local().Format("Jan 2 15:04"),
				c.ExternalUpdatedAt.Local().Format("Jan 2 15:04"))))
			s.WriteString("\n")
		}
	}

	if len(m.syncMessages) > 0 {
		s.WriteString("\n")
		s.WriteString(syncHeaderStyle.Render("Recent Activity"))
		s.WriteString("\n\n")
		for _, msg := range m.syncMessages {
			s.WriteString(syncMessageStyle.Render("  " + msg))
			s.WriteString("\n")
		}
	}

	s.WriteString(m.renderSyncHelp())
	return s.String()
}

func (m Model) renderStatus() string {
	var s strings.Builder
	now := m.clock()

	row := func(label, value string) {
		s.WriteString(syncLabelStyle.Render(label))
		s.WriteString(value)
		s.WriteString("\n")
	}

	if m.status.Email != nil {
		row("Account", *m.status.Email)
	}

	lastSync := "never"
	if m.status.LastSyncAt != nil {
		lastSync = formatTimeSince(*m.status.LastSyncAt, now)
	}
	row("Last sync", lastSync)

	switch {
	case m.importing:
		row("Status", m.spinner.View()+syncSyncingStyle.Render(" Importing..."))
	case m.status.LastRunStatus == models.RunStatusError:
		msg := "✗ Error"
		if m.status.LastRunError != nil {
			msg += ": " + *m.status.LastRunError
		}
		row("Status", syncErrorStyle.Render(msg))
	default:
		row("Status", syncIdleStyle.Render("✓ Idle"))
	}

	return s.String()
}

func (m Model) renderSyncHelp() string {
	help := []string{
		"i/Enter: Import now",
		"r: Refresh status",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleSyncKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "i", "enter":
		if m.importing {
			return m, nil
		}
		m.importing = true
		m.addSyncMessage("Starting import...")
		return m, tea.Batch(m.spinner.Tick, m.runImport())
	case "r":
		return m, m.loadStatus()
	}
	return m, nil
}

func (m Model) loadStatus() tea.Cmd {
	service, userID := m.service, m.userID
	return func() tea.Msg {
		status, err := service.Status(context.Background(), userID)
		return StatusMsg{Status: status, Err: err}
	}
}

func (m Model) runImport() tea.Cmd {
	service, userID := m.service, m.userID
	return func() tea.Msg {
		result, err := service.ImportNow(context.Background(), userID)
		return ImportCompleteMsg{Result: result, Err: err}
	}
}

// handleImportComplete records the outcome and reloads the status.
func (m *Model) handleImportComplete(msg ImportCompleteMsg) tea.Cmd {
	m.importing = false

	if msg.Err != nil {
		m.addSyncMessage("✗ " + sync.UserMessage(msg.Err))
		return m.loadStatus()
	}

	m.conflicts = msg.Result.Conflicts
	line := fmt.Sprintf("✓ Imported %d, skipped %d", msg.Result.ImportedCount, msg.Result.SkippedCount)
	if n := len(msg.Result.Conflicts); n > 0 {
		line += fmt.Sprintf(", %d need review", n)
	}
	m.addSyncMessage(line)
	return m.loadStatus()
}

// addSyncMessage adds a message to the sync message log.
func (m *Model) addSyncMessage(msg string) {
	timestamp := m.clock().Format("15:04:05")
	m.syncMessages = append(m.syncMessages, fmt.Sprintf("[%s] %s", timestamp, msg))
	if len(m.syncMessages) > maxSyncMessages {
		m.syncMessages = m.syncMessages[len(m.syncMessages)-maxSyncMessages:]
	}
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
