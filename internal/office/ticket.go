package office

import (
	"context"
	"sync"
)

// Ticket is the future returned by AssignTask. It resolves exactly once,
// when the task completes, fails, or is dropped by a reset.
type Ticket struct {
	taskID string

	mu       sync.Mutex
	workerID string
	text     string
	err      error
	done     chan struct{}
	once     sync.Once
}

func newTicket(taskID string) *Ticket {
	return &Ticket{
		taskID: taskID,
		done:   make(chan struct{}),
	}
}

// TaskID returns the task this ticket tracks.
func (t *Ticket) TaskID() string {
	return t.taskID
}

// WorkerID returns the worker that ran (or is running) the task.
// It is empty while the task is queued.
func (t *Ticket) WorkerID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.workerID
}

// Done returns a channel closed when the ticket resolves.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Result returns the task output and error. It is only meaningful after Done is closed.
func (t *Ticket) Result() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text, t.err
}

// Wait blocks until the ticket resolves or ctx is done.
func (t *Ticket) Wait(ctx context.Context) (string, error) {
	select {
	case <-t.done:
		return t.Result()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *Ticket) setWorker(id string) {
	t.mu.Lock()
	t.workerID = id
	t.mu.Unlock()
}

func (t *Ticket) resolve(text string, err error) {
	t.once.Do(func() {
		t.mu.Lock()
		t.text = text
		t.err = err
		t.mu.Unlock()
		close(t.done)
	})
}
