package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(12)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(secondaryColor).
			MarginTop(1)
)

// renderJobDetail renders a job and its audit trail for the detail viewport.
func renderJobDetail(job *JobDetail, audit []AuditEntry) string {
	if job == nil {
		return "  Loading job..."
	}

	var b strings.Builder
	field := func(label, value string) {
		b.WriteString("  " + labelStyle.Render(label) + value + "\n")
	}

	field("ID", job.ID)
	field("Type", job.Type)
	field("Status", formatStatus(job.Status))
	field("Created", formatTime(job.CreatedAt))
	field("Updated", formatTime(job.UpdatedAt))
	if job.CompletedAt != nil {
		field("Completed", formatTime(*job.CompletedAt))
	}
	if job.Error != "" {
		field("Error", lipgloss.NewStyle().Foreground(errorColor).Render(job.Error))
	}

	b.WriteString(sectionStyle.Render("  Payload") + "\n")
	b.WriteString(indentBlock(prettyJSON(job.Payload)) + "\n")

	if len(job.Result) > 0 {
		b.WriteString(sectionStyle.Render("  Result") + "\n")
		b.WriteString(indentBlock(prettyJSON(job.Result)) + "\n")
	}
	if job.RawResponse != "" {
		b.WriteString(sectionStyle.Render("  Raw response") + "\n")
		b.WriteString(indentBlock(job.RawResponse) + "\n")
	}

	b.WriteString(sectionStyle.Render(fmt.Sprintf("  Audit (%d)", len(audit))) + "\n")
	if len(audit) == 0 {
		b.WriteString("    " + helpStyle.Render("no audit records") + "\n")
	}
	for _, e := range audit {
		outcome := lipgloss.NewStyle().Foreground(successColor).Render(e.Outcome)
		if e.Outcome != "success" {
			outcome = lipgloss.NewStyle().Foreground(errorColor).Render(e.Outcome)
		}
		line := fmt.Sprintf("    %s  %-20s %s", formatTime(e.Timestamp), e.Action, outcome)
		if e.Details != "" {
			line += "  " + helpStyle.Render(e.Details)
		}
		b.WriteString(line + "\n")
	}

	return b.String()
}

func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func indentBlock(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
