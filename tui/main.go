package main

import (
	"fmt"
	"os"
	"time"

	"tui/api"
	"tui/db"
	"tui/styles"
	"tui/views"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
)

type tab int

const (
	tabDashboard tab = iota
	tabJobs
)

type model struct {
	db            *db.Client
	api           *api.Client
	activeTab     tab
	width, height int
	notification  string
	notifyUntil   time.Time

	dashboard views.Dashboard
	jobs      views.Jobs
}

type tickMsg time.Time
type logTickMsg time.Time
type triggerMsg struct {
	feedID string
	err    error
}

func initialModel(dbClient *db.Client, apiClient *api.Client, logPath string) model {
	return model{
		db:        dbClient,
		api:       apiClient,
		activeTab: tabDashboard,
		dashboard: views.NewDashboard(dbClient, logPath),
		jobs:      views.NewJobs(dbClient),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.dashboard.Init(),
		m.jobs.Init(),
		tickCmd(),
		logTickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(10*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func logTickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return logTickMsg(t)
	})
}

func (m model) notify(text string) model {
	m.notification = text
	m.notifyUntil = time.Now().Add(3 * time.Second)
	return m
}

// triggerCmd re-runs the feed of the selected job, or the first feed on
// the dashboard.
func (m model) triggerCmd() tea.Cmd {
	var feedID string
	if m.activeTab == tabJobs {
		if job := m.jobs.Selected(); job != nil {
			feedID = job.FeedID
		}
	} else if ids := m.dashboard.FeedIDs(); len(ids) > 0 {
		feedID = ids[0]
	}
	if feedID == "" {
		return nil
	}
	return func() tea.Msg {
		return triggerMsg{feedID, m.api.TriggerImport(feedID)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "d":
			m.activeTab = tabDashboard
		case "i":
			m.activeTab = tabJobs
		case "tab":
			m.activeTab = (m.activeTab + 1) % 2
		case "r":
			m = m.notify("Refreshed")
			return m, m.refreshActive()
		case "t":
			if cmd := m.triggerCmd(); cmd != nil {
				m = m.notify("Import requested...")
				return m, cmd
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.dashboard = m.dashboard.SetSize(msg.Width, msg.Height-4)
		m.jobs = m.jobs.SetSize(msg.Width, msg.Height-4)

	case triggerMsg:
		if msg.err != nil {
			m = m.notify("Trigger failed: " + msg.err.Error())
		} else {
			m = m.notify("Import of " + msg.feedID + " queued")
		}
		cmds = append(cmds, m.dashboard.Refresh(), m.jobs.Refresh())

	case tickMsg:
		cmds = append(cmds, m.refreshActive(), tickCmd())

	case logTickMsg:
		cmds = append(cmds, m.dashboard.RefreshLog(), logTickCmd())
	}

	// Keys go to the active tab only, data messages to every view.
	switch msg.(type) {
	case tea.KeyMsg:
		switch m.activeTab {
		case tabDashboard:
			newDashboard, cmd := m.dashboard.Update(msg)
			m.dashboard = newDashboard.(views.Dashboard)
			cmds = append(cmds, cmd)
		case tabJobs:
			newJobs, cmd := m.jobs.Update(msg)
			m.jobs = newJobs.(views.Jobs)
			cmds = append(cmds, cmd)
		}
	default:
		newDashboard, cmd1 := m.dashboard.Update(msg)
		m.dashboard = newDashboard.(views.Dashboard)
		cmds = append(cmds, cmd1)

		newJobs, cmd2 := m.jobs.Update(msg)
		m.jobs = newJobs.(views.Jobs)
		cmds = append(cmds, cmd2)
	}

	return m, tea.Batch(cmds...)
}

func (m model) refreshActive() tea.Cmd {
	switch m.activeTab {
	case tabDashboard:
		return m.dashboard.Refresh()
	case tabJobs:
		return m.jobs.Refresh()
	}
	return nil
}

func (m model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.renderTabs(), m.renderContent(), m.renderStatusBar())
}

func (m model) renderTabs() string {
	tabNames := []string{"Dashboard", "Imports"}
	var rendered []string
	for i, name := range tabNames {
		if tab(i) == m.activeTab {
			rendered = append(rendered, styles.TabActive.Render(name))
		} else {
			rendered = append(rendered, styles.TabInactive.Render(name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...) + "\n"
}

func (m model) renderContent() string {
	switch m.activeTab {
	case tabDashboard:
		return m.dashboard.View()
	case tabJobs:
		return m.jobs.View()
	}
	return ""
}

func (m model) renderStatusBar() string {
	left := fmt.Sprintf("d Dash  i Imports  r Refresh  t Trigger  q Quit  [%s]", m.db.Backend())
	right := ""
	if time.Now().Before(m.notifyUntil) {
		right = styles.Notification.Render(m.notification)
	}

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 0)
	return styles.StatusBar.Render(left) + lipgloss.NewStyle().Width(gap).Render("") + right
}

func main() {
	_ = godotenv.Load()

	sqlitePath := os.Getenv("DB_PATH")
	if sqlitePath == "" {
		sqlitePath = "feedsync.db"
	}

	apiURL := os.Getenv("FEEDSYNC_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	dbClient, err := db.New(os.Getenv("DATABASE_URL"), sqlitePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	p := tea.NewProgram(
		initialModel(dbClient, api.New(apiURL), os.Getenv("LOG_FILE")),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
