package tui

import (
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/agentdesk/internal/budget"
	"github.com/ShayCichocki/agentdesk/internal/office"
	"github.com/ShayCichocki/agentdesk/internal/retry"
)

// StatusMsg carries an office pool status change.
type StatusMsg struct {
	Event office.StatusEvent
}

// NoticeMsg carries a retry or failover notice.
type NoticeMsg struct {
	Notice retry.Notice
}

// AlertMsg carries a fired budget alert.
type AlertMsg struct {
	Alert budget.Alert
}

// CallDoneMsg reports one finished batch call.
type CallDoneMsg struct {
	Label    string
	Provider string
	Attempts int
	Err      error
	Elapsed  time.Duration
}

// BatchDoneMsg signals that no more calls will be reported.
type BatchDoneMsg struct{}

// Feed buffers messages from pool callbacks for the view. Sends never block.
type Feed struct {
	ch      chan tea.Msg
	dropped atomic.Int64
}

// NewFeed creates a feed with the given buffer size.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 256
	}
	return &Feed{ch: make(chan tea.Msg, size)}
}

// Status forwards a pool status event. It matches office.StatusFunc.
func (f *Feed) Status(ev office.StatusEvent) {
	f.send(StatusMsg{Event: ev})
}

// Notice forwards a retry notice. It matches retry.NoticeFunc.
func (f *Feed) Notice(n retry.Notice) {
	f.send(NoticeMsg{Notice: n})
}

// Alert forwards a fired budget alert.
func (f *Feed) Alert(a budget.Alert) {
	f.send(AlertMsg{Alert: a})
}

// Done reports a finished call.
func (f *Feed) Done(msg CallDoneMsg) {
	f.send(msg)
}

// Finish reports the end of the batch. It is never dropped.
func (f *Feed) Finish() {
	go func() { f.ch <- BatchDoneMsg{} }()
}

// Dropped returns how many messages were discarded.
func (f *Feed) Dropped() int64 {
	return f.dropped.Load()
}

func (f *Feed) send(msg tea.Msg) {
	select {
	case f.ch <- msg:
	default:
		f.dropped.Add(1)
	}
}

// listen returns a command that waits for the next message.
func (f *Feed) listen() tea.Cmd {
	return func() tea.Msg {
		return <-f.ch
	}
}
