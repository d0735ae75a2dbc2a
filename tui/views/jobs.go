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

const jobsLimit = 100

type jobsMsg struct {
	jobs []db.ImportJob
	err  error
}

// Jobs lists recent import jobs with the failures of the selected one.
type Jobs struct {
	db            *db.Client
	width, height int
	jobs          []db.ImportJob
	err           error
	cursor        int
}

func NewJobs(dbClient *db.Client) Jobs {
	return Jobs{db: dbClient}
}

func (j Jobs) Init() tea.Cmd {
	return j.Refresh()
}

func (j Jobs) Refresh() tea.Cmd {
	return func() tea.Msg {
		jobs, err := j.db.GetRecentJobs(jobsLimit)
		return jobsMsg{jobs, err}
	}
}

func (j Jobs) SetSize(w, h int) Jobs {
	j.width = w
	j.height = h
	return j
}

// Selected returns the job under the cursor.
func (j Jobs) Selected() *db.ImportJob {
	if j.cursor < 0 || j.cursor >= len(j.jobs) {
		return nil
	}
	return &j.jobs[j.cursor]
}

func (j Jobs) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case jobsMsg:
		j.jobs = msg.jobs
		j.err = msg.err
		j.cursor = min(j.cursor, max(len(j.jobs)-1, 0))
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			j.cursor = max(j.cursor-1, 0)
		case "down", "j":
			j.cursor = min(j.cursor+1, max(len(j.jobs)-1, 0))
		case "g":
			j.cursor = 0
		case "G":
			j.cursor = max(len(j.jobs)-1, 0)
		}
	}
	return j, nil
}

func (j Jobs) View() string {
	if j.err != nil {
		return styles.StatusError.Render("database: " + j.err.Error())
	}
	if len(j.jobs) == 0 {
		return styles.Title.Render("Imports") + "\n" + styles.Muted.Render("No imports yet")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		styles.Title.Render("Imports"),
		j.renderTable(),
		"",
		j.renderDetail(),
	)
}

func (j Jobs) visibleRows() int {
	return max(j.height/2-2, 5)
}

func (j Jobs) renderTable() string {
	header := fmt.Sprintf("%-14s %-10s %-9s %6s %6s %6s %6s %6s %8s",
		"Feed", "Status", "Started", "Props", "New", "Upd", "Fail", "Del", "Took")
	rows := []string{styles.TableHeader.Render(header)}

	visible := j.visibleRows()
	start := 0
	if j.cursor >= visible {
		start = j.cursor - visible + 1
	}
	end := min(start+visible, len(j.jobs))

	for i := start; i < end; i++ {
		job := j.jobs[i]
		row := fmt.Sprintf("%-14s %s %-9s %6d %6d %6d %6d %6d %8s",
			truncate(job.FeedID, 14),
			styles.ForStatus(job.Status).Render(fmt.Sprintf("%-10s", job.Status)),
			job.CreatedAt.Local().Format("01-02 15:04"),
			job.PropertyCount,
			job.Imported,
			job.Updated,
			job.Failed,
			job.Deleted,
			job.Duration.Round(100*time.Millisecond).String(),
		)
		if i == j.cursor {
			row = styles.TableSelected.Render(row)
		}
		rows = append(rows, row)
	}
	return strings.Join(rows, "\n")
}

func (j Jobs) renderDetail() string {
	job := j.Selected()
	if job == nil {
		return ""
	}

	lines := []string{
		styles.StatValue.Render(job.ID),
		styles.StatLabel.Render(job.FeedURL),
		fmt.Sprintf("skipped %d  images %d uploaded, %d failed", job.Skipped, job.ImagesUploaded, job.ImagesFailed),
	}
	if job.ErrorMessage != "" {
		lines = append(lines, styles.StatusError.Render(job.ErrorMessage))
	}
	if len(job.FailedProps) > 0 {
		lines = append(lines, "", styles.TableHeader.Render("Failed properties"))
		for _, fp := range job.FailedProps {
			lines = append(lines, fmt.Sprintf("%-16s %s", truncate(fp.ReferenceNumber, 16), strings.Join(fp.Errors, "; ")))
		}
	}

	width := max(j.width-4, 20)
	return styles.DetailBox.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
