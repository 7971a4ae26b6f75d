package models

import "time"

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

const (
	// WorkerIdle indicates the worker can accept a task.
	WorkerIdle WorkerStatus = "idle"
	// WorkerWorking indicates the worker holds an in-flight task.
	WorkerWorking WorkerStatus = "working"
	// WorkerError indicates the worker's last task failed and it is cooling down.
	WorkerError WorkerStatus = "error"
	// WorkerOffline indicates the worker is not part of scheduling.
	WorkerOffline WorkerStatus = "offline"
)

// Valid returns true if the status is a known value.
func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerIdle, WorkerWorking, WorkerError, WorkerOffline:
		return true
	default:
		return false
	}
}

// Worker is one bounded-concurrency slot within an office.
type Worker struct {
	// ID is the unique identifier for this worker.
	ID string `json:"id"`
	// Name is the display name from the office roster.
	Name string `json:"name"`
	// Office is the office this worker belongs to.
	Office string `json:"office"`
	// Status is the current state of the worker.
	Status WorkerStatus `json:"status"`
	// CurrentTaskID is set exactly while Status is WorkerWorking.
	CurrentTaskID string `json:"current_task_id,omitempty"`
	// Description describes the current task.
	Description string `json:"description,omitempty"`
	// AssignedModel is the model requested for the current task.
	AssignedModel string `json:"assigned_model,omitempty"`
	// TasksCompleted counts successful tasks.
	TasksCompleted int `json:"tasks_completed"`
	// LastActivity is when the worker last changed state.
	LastActivity time.Time `json:"last_activity"`
}

// ClearTask resets the per-task fields.
func (w *Worker) ClearTask() {
	w.CurrentTaskID = ""
	w.Description = ""
	w.AssignedModel = ""
}
