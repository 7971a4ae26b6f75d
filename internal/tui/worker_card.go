package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// Status icons for worker states.
const (
	iconWorking = "[●]"
	iconIdle    = "[○]"
	iconError   = "[✗]"
	iconOffline = "[◌]"
)

// WorkerCard renders a single worker as a card.
type WorkerCard struct {
	worker models.Worker
	width  int
	height int
	now    func() time.Time

	borderStyle   lipgloss.Style
	nameStyle     lipgloss.Style
	statusWorking lipgloss.Style
	statusIdle    lipgloss.Style
	statusError   lipgloss.Style
	statusOffline lipgloss.Style
	labelStyle    lipgloss.Style
	valueStyle    lipgloss.Style
}

// NewWorkerCard creates a card for w.
func NewWorkerCard(w models.Worker) *WorkerCard {
	return &WorkerCard{
		worker: w,
		width:  26,
		height: 7,
		now:    time.Now,

		borderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),

		nameStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")),

		statusWorking: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")), // Green

		statusIdle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")), // Gray

		statusError: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")), // Red

		statusOffline: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")), // Orange

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
	}
}

// SetSize updates the card dimensions.
func (c *WorkerCard) SetSize(width, height int) {
	c.width = width
	c.height = height
}

// View renders the worker card.
func (c *WorkerCard) View() string {
	var b strings.Builder
	inner := c.width - 4

	b.WriteString(c.nameStyle.Render(truncate(c.worker.Name, inner)))
	b.WriteString("\n")
	b.WriteString(c.renderStatus())
	b.WriteString("\n")

	task := "-"
	if c.worker.Status == models.WorkerWorking {
		task = c.worker.Description
		if task == "" {
			task = c.worker.CurrentTaskID
		}
	}
	b.WriteString(c.labelStyle.Render("Task: "))
	b.WriteString(c.valueStyle.Render(truncate(task, inner-6)))
	b.WriteString("\n")

	model := c.worker.AssignedModel
	if model == "" {
		model = "-"
	}
	b.WriteString(c.labelStyle.Render("Model: "))
	b.WriteString(c.valueStyle.Render(truncate(model, inner-7)))
	b.WriteString("\n")

	b.WriteString(c.labelStyle.Render("Done: "))
	b.WriteString(c.valueStyle.Render(fmt.Sprintf("%d", c.worker.TasksCompleted)))
	if !c.worker.LastActivity.IsZero() {
		b.WriteString(c.labelStyle.Render("  "))
		b.WriteString(c.valueStyle.Render(formatDuration(c.now().Sub(c.worker.LastActivity))))
	}

	return c.borderStyle.
		Width(inner).
		Height(c.height - 2).
		Render(b.String())
}

// renderStatus renders the status line with icon.
func (c *WorkerCard) renderStatus() string {
	var icon string
	var style lipgloss.Style

	switch c.worker.Status {
	case models.WorkerWorking:
		icon, style = iconWorking, c.statusWorking
	case models.WorkerIdle:
		icon, style = iconIdle, c.statusIdle
	case models.WorkerError:
		icon, style = iconError, c.statusError
	case models.WorkerOffline:
		icon, style = iconOffline, c.statusOffline
	default:
		icon, style = iconIdle, c.statusIdle
	}
	return style.Render(icon + " " + string(c.worker.Status))
}

// truncate shortens s to max runes, marking the cut with "...".
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// formatDuration formats a duration compactly (45s, 3m12s, 1h5m).
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
