package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Suggestions provides autocomplete for the command bar. "/" lists commands
// and "@" lists the ids of the jobs currently loaded.
type Suggestions struct {
	commands []SuggestionItem
	jobs     []SuggestionItem
	filtered []SuggestionItem
	selected int
	visible  bool
	prefix   string
}

// SuggestionItem represents a single autocomplete suggestion
type SuggestionItem struct {
	Text        string
	Description string
}

var commandSuggestions = []SuggestionItem{
	{Text: "open", Description: "Show a job with its audit trail"},
	{Text: "dispatch", Description: "Queue a created job"},
	{Text: "filter", Description: "Filter by status: all, created, queued, complete, failed"},
	{Text: "refresh", Description: "Reload jobs and worker stats"},
	{Text: "quit", Description: "Leave the TUI"},
}

// NewSuggestions creates a new suggestions handler
func NewSuggestions() *Suggestions {
	return &Suggestions{commands: commandSuggestions}
}

// SetJobs replaces the job reference suggestions.
func (s *Suggestions) SetJobs(jobs []JobItem) {
	s.jobs = make([]SuggestionItem, len(jobs))
	for i, j := range jobs {
		s.jobs[i] = SuggestionItem{Text: j.ID, Description: j.Type + " " + j.Status}
	}
}

// Update recomputes the suggestions for the current input.
func (s *Suggestions) Update(input string) {
	s.visible = false
	s.filtered = nil
	s.prefix = ""
	if input == "" || strings.Contains(input, " ") {
		return
	}

	var items []SuggestionItem
	switch input[0] {
	case '/':
		items = s.commands
	case '@':
		items = s.jobs
	default:
		return
	}
	s.prefix = input[:1]
	s.visible = true

	query := strings.ToLower(input[1:])
	for _, item := range items {
		if query == "" || strings.Contains(strings.ToLower(item.Text), query) {
			s.filtered = append(s.filtered, item)
		}
	}
	if s.selected >= len(s.filtered) {
		s.selected = 0
	}
}

// Next moves to the next suggestion
func (s *Suggestions) Next() {
	if len(s.filtered) == 0 {
		return
	}
	s.selected = (s.selected + 1) % len(s.filtered)
}

// Prev moves to the previous suggestion
func (s *Suggestions) Prev() {
	if len(s.filtered) == 0 {
		return
	}
	s.selected--
	if s.selected < 0 {
		s.selected = len(s.filtered) - 1
	}
}

// Accept returns the command bar text for the selected suggestion. Commands
// drop their "/" prefix; job ids become "open <id>".
func (s *Suggestions) Accept() (string, bool) {
	if !s.IsVisible() {
		return "", false
	}
	item := s.filtered[s.selected]
	if s.prefix == "@" {
		return "open " + item.Text, true
	}
	return item.Text + " ", true
}

// IsVisible returns whether suggestions are currently visible
func (s *Suggestions) IsVisible() bool {
	return s.visible && len(s.filtered) > 0
}

// Render renders the suggestions dropdown
func (s *Suggestions) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	var b strings.Builder

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor).
		Padding(0, 1).
		Width(max(width-4, 20))

	chosenStyle := lipgloss.NewStyle().
		Background(primaryColor).
		Foreground(fgColor).
		Bold(true)

	descStyle := lipgloss.NewStyle().
		Foreground(mutedColor).
		Italic(true)

	header := "Commands"
	if s.prefix == "@" {
		header = "Jobs"
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render(header))
	b.WriteString("\n")

	// Show max 5 suggestions
	maxVisible := 5
	for i, item := range s.filtered {
		if i >= maxVisible {
			b.WriteString(descStyle.Render(fmt.Sprintf("  ... and %d more", len(s.filtered)-maxVisible)))
			break
		}

		var line string
		if i == s.selected {
			line = chosenStyle.Render("> " + item.Text + " " + item.Description)
		} else {
			line = "  " + item.Text + " " + descStyle.Render(item.Description)
		}
		b.WriteString(line + "\n")
	}

	return boxStyle.Render(b.String())
}
