// Package tui provides the interactive terminal UI for DoIt.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// RefreshInterval is how often the job list and worker stats are reloaded.
const RefreshInterval = 3 * time.Second

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	jobItemStyle = lipgloss.NewStyle().
			Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

const (
	modeList   = "list"
	modeDetail = "detail"
)

var filters = []string{"", "created", "queued", "complete", "failed"}
var filterNames = []string{"ALL", "CREATED", "QUEUED", "COMPLETE", "FAILED"}

// App is the main TUI application model.
type App struct {
	client       *Client
	jobs         []JobItem
	selectedIdx  int
	input        textinput.Model
	viewport     viewport.Model
	suggestions  *Suggestions
	width        int
	height       int
	mode         string
	currentJob   *JobDetail
	audit        []AuditEntry
	message      string
	filterIdx    int
	loading      bool
	daemonOnline bool
	workersStats *WorkersStats
}

// New creates a new TUI application.
func New(apiAddr string) *App {
	ti := textinput.New()
	ti.Placeholder = "/ for commands, @ for jobs: open <id> | dispatch <id> | filter <status>"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 80

	return &App{
		client:      NewClient(apiAddr),
		input:       ti,
		viewport:    viewport.New(80, 20),
		suggestions: NewSuggestions(),
		mode:        modeList,
		loading:     true,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.fetchJobs(),
		a.fetchWorkers(),
		a.checkDaemon(),
		a.tickCmd(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if cmd, handled := a.handleKey(msg); handled {
			return a, cmd
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 6
		a.viewport.Width = msg.Width
		a.viewport.Height = max(msg.Height-10, 5)

	case jobsLoadedMsg:
		a.loading = false
		a.jobs = msg.jobs
		a.suggestions.SetJobs(a.jobs)
		if a.selectedIdx >= len(a.jobs) {
			a.selectedIdx = max(0, len(a.jobs)-1)
		}

	case jobDetailLoadedMsg:
		a.currentJob = msg.job
		a.audit = msg.audit
		a.viewport.SetContent(renderJobDetail(a.currentJob, a.audit))

	case daemonStatusMsg:
		a.daemonOnline = msg.online

	case workersFetchedMsg:
		a.workersStats = msg.stats

	case tickMsg:
		cmds = append(cmds, a.fetchJobs(), a.fetchWorkers(), a.checkDaemon(), a.tickCmd())
		if a.mode == modeDetail && a.currentJob != nil && !terminal(a.currentJob.Status) {
			cmds = append(cmds, a.fetchJobDetail(a.currentJob.ID))
		}

	case commandResultMsg:
		a.message = msg.message
		return a, a.fetchJobs()

	case errMsg:
		a.loading = false
		a.message = "Error: " + msg.err.Error()
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)
	a.suggestions.Update(a.input.Value())

	if a.mode == modeDetail {
		a.viewport, cmd = a.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

// handleKey processes navigation keys. Keys that edit the command bar are
// left to the text input.
func (a *App) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		return tea.Quit, true

	case "esc":
		if a.input.Value() != "" {
			a.input.SetValue("")
			a.suggestions.Update("")
			return nil, true
		}
		if a.mode == modeDetail {
			a.mode = modeList
			a.currentJob = nil
			a.audit = nil
			return a.fetchJobs(), true
		}

	case "up":
		if a.suggestions.IsVisible() {
			a.suggestions.Prev()
		} else if a.mode == modeList && a.selectedIdx > 0 {
			a.selectedIdx--
		} else if a.mode == modeDetail {
			return nil, false
		}
		return nil, true

	case "down":
		if a.suggestions.IsVisible() {
			a.suggestions.Next()
		} else if a.mode == modeList && a.selectedIdx < len(a.jobs)-1 {
			a.selectedIdx++
		} else if a.mode == modeDetail {
			return nil, false
		}
		return nil, true

	case "tab":
		if text, ok := a.suggestions.Accept(); ok {
			a.input.SetValue(text)
			a.input.CursorEnd()
			a.suggestions.Update(text)
			return nil, true
		}
		if a.mode == modeList {
			a.cycleFilter()
			return a.fetchJobs(), true
		}

	case "enter":
		if text, ok := a.suggestions.Accept(); ok {
			if strings.HasSuffix(text, " ") {
				a.input.SetValue(text)
				a.input.CursorEnd()
				a.suggestions.Update(text)
				return nil, true
			}
			a.input.SetValue("")
			a.suggestions.Update("")
			return a.executeCommand(text), true
		}
		cmd := strings.TrimSpace(a.input.Value())
		if cmd != "" {
			a.input.SetValue("")
			a.suggestions.Update("")
			return a.executeCommand(cmd), true
		}
		if a.mode == modeList && len(a.jobs) > 0 {
			return a.openJob(a.jobs[a.selectedIdx].ID), true
		}
		return nil, true
	}
	return nil, false
}

func (a *App) cycleFilter() {
	a.filterIdx = (a.filterIdx + 1) % len(filters)
	a.selectedIdx = 0
}

func (a *App) openJob(id string) tea.Cmd {
	a.mode = modeDetail
	a.currentJob = nil
	a.audit = nil
	a.viewport.SetContent(renderJobDetail(nil, nil))
	a.viewport.GotoTop()
	return a.fetchJobDetail(id)
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = offlineStyle.Render("○ DAEMON")
	}
	header := titleStyle.Render("DoIt Jobs") + "  " + daemonStatus
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 1)) + "\n")

	contentHeight := max(a.height-9, 5)

	switch a.mode {
	case modeList:
		filterLabel := fmt.Sprintf(" Filter: [%s]", filterNames[a.filterIdx])
		b.WriteString(lipgloss.NewStyle().Foreground(mutedColor).Render(filterLabel) + "\n")
		b.WriteString(a.renderJobList(contentHeight - 1))
	case modeDetail:
		b.WriteString(a.viewport.View())
	}

	// Message bar
	b.WriteString("\n")
	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString(msgStyle.Render(a.message))
	}

	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Render(a.input.View()))
	if a.suggestions.IsVisible() {
		b.WriteString("\n")
		b.WriteString(a.suggestions.Render(a.width))
	}
	b.WriteString("\n")

	b.WriteString(statusBarStyle.Width(a.width).Render(a.statusLine()))
	return b.String()
}

func (a *App) statusLine() string {
	workers := "workers: offline"
	if s := a.workersStats; s != nil {
		if s.Running {
			workers = fmt.Sprintf("workers: %d/%d active | done %d | failed %d | dropped %d",
				s.ActiveWorkers, s.GlobalMax, s.Processed, s.Failed, s.Dropped)
		} else {
			workers = "workers: not running"
		}
	}

	switch a.mode {
	case modeDetail:
		return " " + workers + " | ↑↓:scroll | Esc:back | Ctrl+C:quit"
	default:
		return fmt.Sprintf(" Jobs: %d | %s | ↑↓:nav | Enter:open | Tab:filter | Ctrl+C:quit", len(a.jobs), workers)
	}
}

func (a *App) renderJobList(height int) string {
	if a.loading {
		return "\n  Loading jobs...\n"
	}
	if len(a.jobs) == 0 {
		return "\n  No jobs found. Create one with: doit job add\n"
	}

	// Keep the selection inside the visible window.
	start := 0
	if a.selectedIdx >= height {
		start = a.selectedIdx - height + 1
	}
	end := min(start+height, len(a.jobs))

	var lines []string
	for i := start; i < end; i++ {
		job := a.jobs[i]
		if i == a.selectedIdx {
			lines = append(lines, selectedStyle.Render(fmt.Sprintf("▶ %-9s %-9s %s", job.Status, job.Type, job.ID)))
			continue
		}
		line := fmt.Sprintf("  %s %-9s %s", formatStatus(job.Status), job.Type, job.ID)
		if job.Error != "" {
			line += "  " + helpStyle.Render(truncate(job.Error, 40))
		}
		lines = append(lines, jobItemStyle.Render(line))
	}
	return strings.Join(lines, "\n") + "\n"
}

func formatStatus(status string) string {
	style := lipgloss.NewStyle()
	switch status {
	case "created":
		style = style.Foreground(mutedColor)
	case "queued":
		style = style.Foreground(warningColor)
	case "complete":
		style = style.Foreground(successColor)
	case "failed":
		style = style.Foreground(errorColor)
	default:
		style = style.Foreground(cyanColor)
	}
	return style.Render(fmt.Sprintf("● %-8s", status))
}

func terminal(status string) bool {
	return status == "complete" || status == "failed"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// --- Commands ---

func (a *App) executeCommand(input string) tea.Cmd {
	input = strings.TrimPrefix(input, "/")
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimPrefix(parts[1], "@")
	}

	switch parts[0] {
	case "open":
		if arg == "" {
			return errCmd(fmt.Errorf("usage: open <job-id>"))
		}
		return a.openJob(arg)

	case "dispatch":
		if arg == "" && a.mode == modeList && len(a.jobs) > 0 {
			arg = a.jobs[a.selectedIdx].ID
		}
		if arg == "" && a.currentJob != nil {
			arg = a.currentJob.ID
		}
		if arg == "" {
			return errCmd(fmt.Errorf("usage: dispatch <job-id>"))
		}
		id := arg
		return func() tea.Msg {
			if err := a.client.DispatchJob(id); err != nil {
				return errMsg{err}
			}
			return commandResultMsg{fmt.Sprintf("✓ Dispatched %s", id)}
		}

	case "filter":
		a.filterIdx = 0
		for i, f := range filters {
			if f == arg {
				a.filterIdx = i
			}
		}
		a.selectedIdx = 0
		a.mode = modeList
		return a.fetchJobs()

	case "refresh":
		return tea.Batch(a.fetchJobs(), a.fetchWorkers(), a.checkDaemon())

	case "q", "quit", "exit":
		return tea.Quit
	}
	return errCmd(fmt.Errorf("unknown command: %s", parts[0]))
}

// --- Messages ---

type jobsLoadedMsg struct {
	jobs []JobItem
}

type jobDetailLoadedMsg struct {
	job   *JobDetail
	audit []AuditEntry
}

type daemonStatusMsg struct {
	online bool
}

type workersFetchedMsg struct {
	stats *WorkersStats
}

type commandResultMsg struct {
	message string
}

type errMsg struct {
	err error
}

type tickMsg time.Time

func errCmd(err error) tea.Cmd {
	return func() tea.Msg { return errMsg{err} }
}

func (a *App) fetchJobs() tea.Cmd {
	status := filters[a.filterIdx]
	return func() tea.Msg {
		jobs, err := a.client.ListJobs(status)
		if err != nil {
			return errMsg{err}
		}
		return jobsLoadedMsg{jobs}
	}
}

func (a *App) fetchJobDetail(id string) tea.Cmd {
	return func() tea.Msg {
		job, err := a.client.GetJob(id)
		if err != nil {
			return errMsg{err}
		}
		audit, err := a.client.GetJobAudit(id)
		if err != nil {
			return errMsg{err}
		}
		return jobDetailLoadedMsg{job, audit}
	}
}

func (a *App) fetchWorkers() tea.Cmd {
	return func() tea.Msg {
		stats, err := a.client.GetWorkers()
		if err != nil {
			return workersFetchedMsg{nil}
		}
		return workersFetchedMsg{stats}
	}
}

func (a *App) checkDaemon() tea.Cmd {
	return func() tea.Msg {
		ok, _ := a.client.CheckHealth()
		return daemonStatusMsg{ok}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
