package views

import (
	"fmt"
	"strings"
	"time"

	"tui/db"
	"tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type dashboardDataMsg struct {
	overview db.Overview
	feeds    []db.FeedStats
	err      error
}

type logTailMsg struct {
	lines   []string
	modTime time.Time
}

type Dashboard struct {
	db            *db.Client
	width, height int
	overview      db.Overview
	feeds         []db.FeedStats
	err           error
	logLines      []string
	logPath       string
	logScroll     int // 0 = newest
	logViewport   int
	logBuffer     int
	logModTime    time.Time
}

func NewDashboard(dbClient *db.Client, logPath string) Dashboard {
	return Dashboard{
		db:          dbClient,
		logPath:     logPath,
		logViewport: 20,
		logBuffer:   200,
	}
}

func (d Dashboard) Init() tea.Cmd {
	return tea.Batch(d.Refresh(), d.RefreshLog())
}

func (d Dashboard) Refresh() tea.Cmd {
	return func() tea.Msg {
		overview, err := d.db.GetOverview()
		if err != nil {
			return dashboardDataMsg{err: err}
		}
		feeds, err := d.db.GetFeedStats()
		return dashboardDataMsg{overview: overview, feeds: feeds, err: err}
	}
}

func (d Dashboard) RefreshLog() tea.Cmd {
	if d.logPath == "" {
		return nil
	}
	return func() tea.Msg {
		lines, modTime := readLastLines(d.logPath, d.logBuffer)
		return logTailMsg{lines, modTime}
	}
}

// FeedIDs lists the feeds that have run at least once.
func (d Dashboard) FeedIDs() []string {
	ids := make([]string, 0, len(d.feeds))
	for _, f := range d.feeds {
		ids = append(ids, f.FeedID)
	}
	return ids
}

func (d Dashboard) SetSize(w, h int) Dashboard {
	d.width = w
	d.height = h
	d.logViewport = max(h-16, 5)
	return d
}

func (d Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case dashboardDataMsg:
		d.overview = msg.overview
		d.feeds = msg.feeds
		d.err = msg.err
	case logTailMsg:
		d.logLines = msg.lines
		d.logModTime = msg.modTime
	case tea.KeyMsg:
		maxScroll := max(len(d.logLines)-d.logViewport, 0)
		switch msg.String() {
		case "up", "k":
			d.logScroll = min(d.logScroll+1, maxScroll)
		case "down", "j":
			d.logScroll = max(d.logScroll-1, 0)
		case "pgup":
			d.logScroll = min(d.logScroll+10, maxScroll)
		case "pgdown":
			d.logScroll = max(d.logScroll-10, 0)
		case "home":
			d.logScroll = maxScroll
		case "end":
			d.logScroll = 0
		}
	}
	return d, nil
}

func (d Dashboard) View() string {
	sections := []string{
		styles.Title.Render("Dashboard"),
		d.renderStatCards(),
		"",
		d.renderFeedCards(),
	}
	if d.err != nil {
		sections = append(sections, styles.StatusError.Render("database: "+d.err.Error()))
	}
	if d.logPath != "" {
		sections = append(sections, "", d.renderLogTail())
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (d Dashboard) renderStatCards() string {
	cards := []string{
		renderStatCard("Properties", d.overview.Properties),
		renderStatCard("Luxury", d.overview.Luxe),
		renderStatCard("Images", d.overview.Images),
		renderStatCard("Redirects", d.overview.Redirects),
		renderStatCard("Imports", d.overview.Jobs),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func renderStatCard(label string, value int) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		styles.StatValue.Render(fmt.Sprintf("%d", value)),
		styles.StatLabel.Render(label),
	)
	return styles.CardBorder.Width(16).Render(content)
}

func (d Dashboard) renderFeedCards() string {
	if len(d.feeds) == 0 {
		return styles.Muted.Render("No imports yet")
	}

	var cards []string
	for _, f := range d.feeds {
		cards = append(cards, renderFeedCard(f))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func renderFeedCard(f db.FeedStats) string {
	status := f.LastStatus
	switch f.LastStatus {
	case "completed":
		status = "✓ completed"
	case "failed":
		status = "✗ failed"
	case "running", "pending":
		status = "◐ " + f.LastStatus
	}

	lastRun := "never"
	if f.LastRunAt != nil {
		lastRun = relativeTime(*f.LastRunAt)
	}

	lines := []string{
		styles.StatValue.Render(f.FeedID),
		styles.ForStatus(f.LastStatus).Render(status),
		styles.StatLabel.Render("Last: " + lastRun),
		styles.StatLabel.Render(fmt.Sprintf("Props: %d", f.Properties)),
		styles.StatLabel.Render(fmt.Sprintf("+%d ~%d -%d", f.Imported, f.Updated, f.Deleted)),
		styles.StatLabel.Render(fmt.Sprintf("Failed: %d", f.Failed)),
		styles.StatLabel.Render("Took: " + f.LastDuration.Round(time.Millisecond).String()),
	}
	if f.LastErrorText != "" {
		lines = append(lines, styles.StatusError.Render(truncate(f.LastErrorText, 22)))
	}
	return styles.FeedCardBorder.Width(26).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (d Dashboard) renderLogTail() string {
	width := max(d.width-4, 20)
	if len(d.logLines) == 0 {
		return styles.LogBox.Width(width).Render(styles.Muted.Render("(waiting for logs...)"))
	}

	total := len(d.logLines)
	endIdx := min(total-d.logScroll, total)
	startIdx := max(endIdx-d.logViewport, 0)

	var lines []string
	for _, line := range d.logLines[startIdx:endIdx] {
		lines = append(lines, styleLogLine(line, width-4))
	}

	state := styles.StatusSuccess.Render(" ● LIVE ")
	if d.logScroll > 0 {
		state = styles.StatusPending.Render(fmt.Sprintf(" ↑%d ", d.logScroll))
	} else if !d.logModTime.IsZero() && time.Since(d.logModTime) > 10*time.Minute {
		state = styles.Muted.Render(" ○ idle ")
	}

	header := styles.Title.Render("Log") + state +
		styles.Muted.Render(fmt.Sprintf("[%d-%d/%d]", startIdx+1, endIdx, total))
	return styles.LogBox.Width(width).Render(header + "\n" + strings.Join(lines, "\n"))
}
