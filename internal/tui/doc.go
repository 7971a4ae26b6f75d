// Package tui provides the read-only office watch view used by batch runs.
//
// The view shows every office's workers as cards, the overflow queue length,
// batch progress and a log of pool events and provider notices. It does not
// accept input beyond quitting with 'q' or Ctrl+C.
//
// Usage:
//
//	feed := tui.NewFeed(256)
//	program, app := tui.NewWatchProgram(feed, manager.GetAllStatus, len(jobs), cfg.TUI.RefreshRate)
//
//	d, _ := desk.Open(cfg,
//	    desk.WithStatusFunc(feed.Status),
//	    desk.WithNoticeFunc(feed.Notice),
//	)
//
//	go func() {
//	    // run calls, then
//	    feed.Done(tui.CallDoneMsg{Label: "job-1"})
//	    feed.Finish()
//	}()
//	program.Run()
//
// Feed methods never block: when the view falls behind, messages are dropped
// and counted.
package tui
