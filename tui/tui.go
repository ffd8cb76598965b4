// ABOUTME: Terminal User Interface using bubbletea framework
// ABOUTME: Full-screen Google Calendar sync panel with status, import trigger, and activity log
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/dayplan/models"
)

// Service is what the panel needs from the sync service.
type Service interface {
	Status(ctx context.Context, userID string) (*models.ConnectionStatus, error)
	ImportNow(ctx context.Context, userID string) (*models.ImportResult, error)
}

// Model is the main bubbletea model
type Model struct {
	service Service
	userID  string
	clock   func() time.Time

	status    *models.ConnectionStatus
	statusErr error

	importing    bool
	spinner      spinner.Model
	conflicts    []models.ImportConflict
	syncMessages []string

	// UI state
	width  int
	height int
}

// NewModel creates a new TUI model
func NewModel(service Service, userID string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = syncSyncingStyle

	return Model{
		service: service,
		userID:  userID,
		clock:   time.Now,
		spinner: s,
		width:   80,
		height:  24,
	}
}

// Run starts the full-screen panel and blocks until the user quits.
func Run(service Service, userID string) error {
	_, err := tea.NewProgram(NewModel(service, userID), tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return m.loadStatus()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case StatusMsg:
		m.status = msg.Status
		m.statusErr = msg.Err
		return m, nil
	case ImportCompleteMsg:
		return m, m.handleImportComplete(msg)
	case spinner.TickMsg:
		if !m.importing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	return m.renderSyncView()
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	}
	return m.handleSyncKeys(msg)
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)
)
