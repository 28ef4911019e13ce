package watch

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/sasspipe/internal/api"
)

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string

	width  int
	height int

	// State
	health    api.HealthzResponse
	connected bool
	lastPoll  time.Time

	jobTable table.Model

	// UI state
	theme Theme

	// Error display
	lastError string
}

// New creates a new watch TUI model.
func New(apiURL string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Mode", Width: 7},
			{Title: "Compiler", Width: 10},
			{Title: "Source", Width: 28},
			{Title: "Duration", Width: 9},
			{Title: "Finished", Width: 9},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		apiURL:   apiURL,
		jobTable: t,
		theme:    NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		fetchHealth(m.apiURL),
		fetchJobs(m.apiURL),
		tick(),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.jobTable, cmd = m.jobTable.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		// One poll chain: every tick refreshes both endpoints.
		return m, tea.Batch(fetchHealth(m.apiURL), fetchJobs(m.apiURL), tick())

	case healthMsg:
		m.health = api.HealthzResponse(msg)
		m.connected = true
		m.lastPoll = time.Now()
		m.lastError = ""

	case jobsMsg:
		m.jobTable.SetRows(jobRows(msg))

	case errMsg:
		m.connected = false
		m.lastError = msg.Error()
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing watch..."
	}

	header := m.renderHeader()
	jobs := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("RECENT COMPILES"),
			m.jobTable.View(),
		),
	)

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Navigate Jobs")

	parts := []string{header, jobs}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderHeader() string {
	innerWidth := m.width - 4

	statusText := m.theme.StatusOK.Render("HEALTHY")
	statusIcon := "✅"
	if !m.connected {
		statusText = m.theme.StatusFailed.Render("CONNECTING")
		statusIcon = "🔌"
	} else if m.health.Status != "ok" {
		statusText = m.theme.StatusFailed.Render("DEGRADED")
		statusIcon = "⚠️"
	}

	uptime := formatDuration(time.Duration(m.health.UptimeSeconds) * time.Second)

	clock := m.theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := " SASSPIPE WATCH"

	titleWidth := lipgloss.Width(titleText)
	clockWidth := lipgloss.Width(clock)
	pad := innerWidth - titleWidth - clockWidth - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	queueStr := fmt.Sprintf("Queue: %d", m.health.QueueDepth)
	if m.health.QueueDepth > 0 {
		queueStr = m.theme.StatusBusy.Render(queueStr)
	}
	statsLine := fmt.Sprintf(" %s %s  ⏱ %s  %s",
		statusIcon, statusText, uptime, queueStr)

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine)
	return m.theme.Border.Width(innerWidth).Render(content)
}

func jobRows(jobs []api.JobResponse) []table.Row {
	rows := make([]table.Row, 0, len(jobs))
	for _, j := range jobs {
		icon := "✓"
		switch j.Status {
		case "compile_error":
			icon = "✗"
		case "process_error":
			icon = "‼"
		case "crashed":
			icon = "💥"
		}

		src := j.SourceFile
		if len(src) > 28 {
			src = "…" + src[len(src)-27:]
		}
		if src == "" {
			src = filepath.Base(j.OutputFile)
		}

		rows = append(rows, table.Row{
			icon,
			j.Mode,
			j.Compiler,
			src,
			fmt.Sprintf("%dms", j.DurationMS),
			j.CompletedAt.Format("15:04:05"),
		})
	}
	return rows
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}

// Run starts the watch TUI against a running sasspipe daemon.
func Run(apiURL string) error {
	p := tea.NewProgram(New(apiURL))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("watch TUI failed: %w", err)
	}
	return nil
}
