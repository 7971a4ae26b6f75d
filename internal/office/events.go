// Package office provides bounded-concurrency worker pools grouped by office.
package office

import (
	"time"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// EventType represents the type of pool status change.
type EventType string

const (
	// EventTaskAssigned indicates a worker claimed a task.
	EventTaskAssigned EventType = "task_assigned"
	// EventTaskQueued indicates no worker was idle and the task was queued.
	EventTaskQueued EventType = "task_queued"
	// EventTaskCompleted indicates a worker finished a task successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a worker's task returned an error.
	EventTaskFailed EventType = "task_failed"
	// EventPoolReset indicates the pool was hard reset.
	EventPoolReset EventType = "pool_reset"
)

// StatusEvent is delivered to the status-change callback.
type StatusEvent struct {
	// Type is the kind of event.
	Type EventType
	// Office is the office the pool belongs to.
	Office string
	// WorkerID is the related worker, if any.
	WorkerID string
	// TaskID is the related task, if any.
	TaskID string
	// Worker is a snapshot of the worker after the change.
	Worker models.Worker
	// QueueLen is the queue length after the change.
	QueueLen int
	// Error contains the task error for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// StatusFunc receives pool status changes. It is called outside the pool
// lock and must not block for long.
type StatusFunc func(StatusEvent)
