package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/agentdesk/internal/office"
)

// maxLogEntries bounds the activity log.
const maxLogEntries = 200

// DefaultRefresh is how often pool status is polled.
const DefaultRefresh = 500 * time.Millisecond

// StatusSource returns the current status of every office.
type StatusSource func() map[string]office.PoolStatus

// LogEntry represents a line in the activity log.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
}

type refreshMsg time.Time

// WatchApp is the bubbletea model for the office watch view.
type WatchApp struct {
	feed    *Feed
	source  StatusSource
	refresh time.Duration

	offices map[string]office.PoolStatus
	logs    []LogEntry
	spinner spinner.Model

	total    int
	done     int
	failed   int
	finished bool
	quitting bool

	width  int
	height int

	titleStyle   lipgloss.Style
	officeStyle  lipgloss.Style
	labelStyle   lipgloss.Style
	valueStyle   lipgloss.Style
	errorStyle   lipgloss.Style
	warnStyle    lipgloss.Style
	successStyle lipgloss.Style
	footerStyle  lipgloss.Style
}

// NewWatchApp creates the view. total is the number of calls in the batch.
func NewWatchApp(feed *Feed, source StatusSource, total int) *WatchApp {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &WatchApp{
		feed:    feed,
		source:  source,
		refresh: DefaultRefresh,
		offices: make(map[string]office.PoolStatus),
		spinner: s,
		total:   total,
		width:   100,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")),

		officeStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("45")),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),

		warnStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),

		successStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		footerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true),
	}
}

// NewWatchProgram creates the program and its model. A non-positive refresh
// keeps DefaultRefresh.
func NewWatchProgram(feed *Feed, source StatusSource, total int, refresh time.Duration) (*tea.Program, *WatchApp) {
	app := NewWatchApp(feed, source, total)
	app.SetRefresh(refresh)
	return tea.NewProgram(app, tea.WithAltScreen()), app
}

// SetRefresh changes the status polling interval.
func (a *WatchApp) SetRefresh(d time.Duration) {
	if d > 0 {
		a.refresh = d
	}
}

// Init implements tea.Model.
func (a *WatchApp) Init() tea.Cmd {
	a.pull()
	return tea.Batch(a.spinner.Tick, a.feed.listen(), a.tick())
}

func (a *WatchApp) tick() tea.Cmd {
	return tea.Tick(a.refresh, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (a *WatchApp) pull() {
	if a.source == nil {
		return
	}
	if snap := a.source(); snap != nil {
		a.offices = snap
	}
}

// Update implements tea.Model.
func (a *WatchApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case refreshMsg:
		a.pull()
		return a, a.tick()

	case StatusMsg:
		a.applyStatus(msg.Event)
		return a, a.feed.listen()

	case NoticeMsg:
		n := msg.Notice
		a.addLog(n.Time, "WARN", fmt.Sprintf("%s: %s", n.Kind, n.Message))
		return a, a.feed.listen()

	case AlertMsg:
		al := msg.Alert
		a.addLog(al.FiredAt, "WARN", fmt.Sprintf("budget %s reached %.0f%% (%.2f / %.2f)", al.ID, al.Threshold, al.Spent, al.Budget))
		return a, a.feed.listen()

	case CallDoneMsg:
		a.done++
		if msg.Err != nil {
			a.failed++
			a.addLog(time.Now(), "ERROR", fmt.Sprintf("%s failed: %v", msg.Label, msg.Err))
		} else {
			a.addLog(time.Now(), "INFO", fmt.Sprintf("%s done on %s after %d attempt(s) in %s",
				msg.Label, msg.Provider, msg.Attempts, formatDuration(msg.Elapsed)))
		}
		return a, a.feed.listen()

	case BatchDoneMsg:
		a.finished = true
		a.pull()
		a.addLog(time.Now(), "INFO", fmt.Sprintf("batch finished: %d ok, %d failed", a.done-a.failed, a.failed))
		return a, a.feed.listen()
	}

	return a, nil
}

func (a *WatchApp) applyStatus(ev office.StatusEvent) {
	if st, ok := a.offices[ev.Office]; ok && ev.WorkerID != "" {
		for i := range st.Workers {
			if st.Workers[i].ID == ev.WorkerID {
				st.Workers[i] = ev.Worker
			}
		}
		st.Queued = ev.QueueLen
		a.offices[ev.Office] = st
	}

	level := "INFO"
	text := fmt.Sprintf("%s %s", ev.Office, ev.Type)
	if ev.Worker.Name != "" {
		text += " " + ev.Worker.Name
	}
	if ev.TaskID != "" {
		text += " task " + ev.TaskID
	}
	switch ev.Type {
	case office.EventTaskFailed:
		level = "ERROR"
		if ev.Error != nil {
			text += ": " + ev.Error.Error()
		}
	case office.EventTaskQueued:
		text += fmt.Sprintf(" (queue=%d)", ev.QueueLen)
	}
	a.addLog(ev.Timestamp, level, text)
}

func (a *WatchApp) addLog(ts time.Time, level, message string) {
	if ts.IsZero() {
		ts = time.Now()
	}
	a.logs = append(a.logs, LogEntry{Timestamp: ts, Level: level, Message: message})
	if len(a.logs) > maxLogEntries {
		a.logs = a.logs[len(a.logs)-maxLogEntries:]
	}
}

// Logs returns the activity log.
func (a *WatchApp) Logs() []LogEntry {
	return a.logs
}

// Progress returns finished and failed call counts.
func (a *WatchApp) Progress() (done, failed int) {
	return a.done, a.failed
}

// Finished reports whether the batch has ended.
func (a *WatchApp) Finished() bool {
	return a.finished
}

// View implements tea.Model.
func (a *WatchApp) View() string {
	if a.quitting {
		return ""
	}

	var b strings.Builder

	title := "agentdesk office watch"
	if !a.finished {
		title = a.spinner.View() + " " + title
	}
	b.WriteString(a.titleStyle.Render(title))
	b.WriteString("\n")

	b.WriteString(a.labelStyle.Render("Calls: "))
	b.WriteString(a.valueStyle.Render(fmt.Sprintf("%d/%d", a.done, a.total)))
	if a.failed > 0 {
		b.WriteString("  ")
		b.WriteString(a.errorStyle.Render(fmt.Sprintf("%d failed", a.failed)))
	}
	if dropped := a.feed.Dropped(); dropped > 0 {
		b.WriteString("  ")
		b.WriteString(a.warnStyle.Render(fmt.Sprintf("%d events dropped", dropped)))
	}
	b.WriteString("\n\n")

	names := make([]string, 0, len(a.offices))
	for name := range a.offices {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := a.offices[name]
		b.WriteString(a.officeStyle.Render(name))
		b.WriteString(a.labelStyle.Render(fmt.Sprintf("  %d/%d busy  queue %d", st.Working, st.Size, st.Queued)))
		if st.Errored > 0 {
			b.WriteString(a.errorStyle.Render(fmt.Sprintf("  %d cooling down", st.Errored)))
		}
		b.WriteString("\n")

		cards := make([]string, 0, len(st.Workers))
		for _, w := range st.Workers {
			cards = append(cards, NewWorkerCard(w).View())
		}
		if len(cards) > 0 {
			b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(a.renderLogs(a.logLines()))

	footer := "q: quit"
	if a.finished {
		footer = a.successStyle.Render("done") + a.footerStyle.Render("  q: quit")
	} else {
		footer = a.footerStyle.Render(footer)
	}
	b.WriteString("\n")
	b.WriteString(footer)

	return b.String()
}

// logLines is how many log lines fit under the office cards.
func (a *WatchApp) logLines() int {
	if a.height <= 0 {
		return 10
	}
	used := 4 + len(a.offices)*8
	if n := a.height - used; n > 3 {
		return n
	}
	return 3
}

func (a *WatchApp) renderLogs(n int) string {
	start := 0
	if len(a.logs) > n {
		start = len(a.logs) - n
	}

	var b strings.Builder
	for _, e := range a.logs[start:] {
		style := a.labelStyle
		switch e.Level {
		case "ERROR":
			style = a.errorStyle
		case "WARN":
			style = a.warnStyle
		}
		line := fmt.Sprintf("%s %-5s %s", e.Timestamp.Format("15:04:05"), e.Level, e.Message)
		if a.width > 0 {
			line = truncate(line, a.width)
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}
