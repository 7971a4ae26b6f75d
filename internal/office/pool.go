package office

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// DefaultCooldown is how long a failed worker stays in error before it is
// forced back to idle.
const DefaultCooldown = time.Second

// ErrReset resolves tickets whose queued task was dropped by Reset.
var ErrReset = errors.New("office: task dropped by pool reset")

// TaskFunc performs the work for a task on the worker that claimed it.
type TaskFunc func(ctx context.Context, worker models.Worker) (string, error)

// Task is a unit of work submitted to a pool.
type Task struct {
	// ID identifies the task. A random id is assigned when empty.
	ID string
	// Description is shown on the worker while the task runs.
	Description string
	// Run performs the work.
	Run TaskFunc
	// Model optionally pins the model for display and routing.
	Model string
	// Args carries caller-defined extras.
	Args map[string]any
}

// queuedTask is a task waiting for an idle worker.
type queuedTask struct {
	task   Task
	ticket *Ticket
}

// slot holds a worker and the reset epoch its current execution belongs to.
type slot struct {
	worker models.Worker
	epoch  uint64
}

// launch is an execution started under the lock and launched after it is released.
type launch struct {
	workerID string
	epoch    uint64
	item     queuedTask
	snapshot models.Worker
}

// PoolStatus is a point-in-time summary of a pool.
type PoolStatus struct {
	Office  string          `json:"office"`
	Size    int             `json:"size"`
	Idle    int             `json:"idle"`
	Working int             `json:"working"`
	Errored int             `json:"errored"`
	Offline int             `json:"offline"`
	Queued  int             `json:"queued"`
	Workers []models.Worker `json:"workers"`
}

// Active returns the number of workers holding a task.
func (s PoolStatus) Active() int {
	return s.Working
}

// Pool is a fixed roster of workers for one office with a FIFO overflow queue.
type Pool struct {
	office string

	mu    sync.Mutex
	slots map[string]*slot
	order []string
	queue []queuedTask

	onStatus StatusFunc
	cooldown time.Duration
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithStatusFunc sets the status-change callback.
func WithStatusFunc(fn StatusFunc) PoolOption {
	return func(p *Pool) {
		p.onStatus = fn
	}
}

// WithCooldown sets how long a failed worker stays in error.
func WithCooldown(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d >= 0 {
			p.cooldown = d
		}
	}
}

// WithBaseContext sets the parent context handed to task executions.
func WithBaseContext(ctx context.Context) PoolOption {
	return func(p *Pool) {
		p.ctx, p.cancel = context.WithCancel(ctx)
	}
}

// NewPool creates a pool with one worker per roster name, all idle.
func NewPool(office string, roster []string, opts ...PoolOption) *Pool {
	p := &Pool{
		office:   office,
		slots:    make(map[string]*slot, len(roster)),
		cooldown: DefaultCooldown,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.ctx == nil {
		p.ctx, p.cancel = context.WithCancel(context.Background())
	}

	for _, name := range roster {
		id := uuid.New().String()[:8]
		p.slots[id] = &slot{
			worker: models.Worker{
				ID:           id,
				Name:         name,
				Office:       office,
				Status:       models.WorkerIdle,
				LastActivity: p.now(),
			},
		}
		p.order = append(p.order, id)
	}

	return p
}

// Office returns the office name.
func (p *Pool) Office() string {
	return p.office
}

// Size returns the fixed number of workers.
func (p *Pool) Size() int {
	return len(p.order)
}

// AssignTask hands the task to the first idle worker in roster order and
// starts it without waiting. When no worker is idle the task is queued and
// the returned worker id is empty. Either way the Ticket resolves when the
// task finishes.
func (p *Pool) AssignTask(task Task) (string, *Ticket) {
	if task.ID == "" {
		task.ID = uuid.New().String()[:8]
	}
	item := queuedTask{task: task, ticket: newTicket(task.ID)}

	p.mu.Lock()
	s := p.firstIdleLocked()
	if s == nil {
		p.queue = append(p.queue, item)
		qlen := len(p.queue)
		p.mu.Unlock()

		log.Printf("[office] %s: no idle worker, queued task %s (queue=%d)", p.office, task.ID, qlen)
		p.notify(StatusEvent{Type: EventTaskQueued, TaskID: task.ID, QueueLen: qlen})
		return "", item.ticket
	}
	l := p.claimLocked(s, item)
	p.mu.Unlock()

	p.start(l)
	return l.workerID, item.ticket
}

// firstIdleLocked returns the first idle worker in roster order. Must be called with lock held.
func (p *Pool) firstIdleLocked() *slot {
	for _, id := range p.order {
		if s := p.slots[id]; s.worker.Status == models.WorkerIdle {
			return s
		}
	}
	return nil
}

// claimLocked marks the worker as working on item. Must be called with lock held.
func (p *Pool) claimLocked(s *slot, item queuedTask) launch {
	s.worker.Status = models.WorkerWorking
	s.worker.CurrentTaskID = item.task.ID
	s.worker.Description = item.task.Description
	s.worker.AssignedModel = item.task.Model
	s.worker.LastActivity = p.now()
	item.ticket.setWorker(s.worker.ID)

	return launch{
		workerID: s.worker.ID,
		epoch:    s.epoch,
		item:     item,
		snapshot: s.worker,
	}
}

// drainLocked assigns queued tasks, oldest first, while idle workers remain.
// Must be called with lock held.
func (p *Pool) drainLocked() []launch {
	var started []launch
	for len(p.queue) > 0 {
		s := p.firstIdleLocked()
		if s == nil {
			break
		}
		item := p.queue[0]
		p.queue[0] = queuedTask{}
		p.queue = p.queue[1:]
		started = append(started, p.claimLocked(s, item))
	}
	return started
}

// start notifies and launches an execution claimed under the lock.
func (p *Pool) start(l launch) {
	p.mu.Lock()
	qlen := len(p.queue)
	p.mu.Unlock()

	p.notify(StatusEvent{
		Type:     EventTaskAssigned,
		WorkerID: l.workerID,
		TaskID:   l.item.task.ID,
		Worker:   l.snapshot,
		QueueLen: qlen,
	})

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.execute(l)
	}()
}

// execute runs the task and finalizes the worker.
func (p *Pool) execute(l launch) {
	text, err := p.run(l.item.task, l.snapshot)
	if err == nil {
		p.finishSuccess(l, text)
		return
	}
	p.finishFailure(l, err)
}

// run invokes the task function, converting panics into errors.
func (p *Pool) run(task Task, worker models.Worker) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.ID, r)
		}
	}()
	if task.Run == nil {
		return "", fmt.Errorf("task %s has no run function", task.ID)
	}
	return task.Run(p.ctx, worker)
}

func (p *Pool) finishSuccess(l launch, text string) {
	p.mu.Lock()
	s := p.slots[l.workerID]
	stale := s.epoch != l.epoch
	if !stale {
		s.worker.TasksCompleted++
		s.worker.ClearTask()
		s.worker.Status = models.WorkerIdle
		s.worker.LastActivity = p.now()
	}
	snapshot := s.worker
	started := p.drainLocked()
	qlen := len(p.queue)
	p.mu.Unlock()

	if stale {
		log.Printf("[office] %s: worker %s finished task %s after reset, ignoring", p.office, l.workerID, l.item.task.ID)
	} else {
		p.notify(StatusEvent{
			Type:     EventTaskCompleted,
			WorkerID: l.workerID,
			TaskID:   l.item.task.ID,
			Worker:   snapshot,
			QueueLen: qlen,
		})
	}
	for _, next := range started {
		p.start(next)
	}
	l.item.ticket.resolve(text, nil)
}

func (p *Pool) finishFailure(l launch, taskErr error) {
	p.mu.Lock()
	s := p.slots[l.workerID]
	stale := s.epoch != l.epoch
	if !stale {
		s.worker.Status = models.WorkerError
		s.worker.LastActivity = p.now()
	}
	snapshot := s.worker
	qlen := len(p.queue)
	p.mu.Unlock()

	log.Printf("[office] %s: worker %s failed task %s: %v", p.office, l.workerID, l.item.task.ID, taskErr)
	if !stale {
		p.notify(StatusEvent{
			Type:     EventTaskFailed,
			WorkerID: l.workerID,
			TaskID:   l.item.task.ID,
			Worker:   snapshot,
			QueueLen: qlen,
			Error:    taskErr,
		})
		p.coolDown()
	}

	p.mu.Lock()
	if s.epoch == l.epoch && s.worker.Status == models.WorkerError {
		s.worker.ClearTask()
		s.worker.Status = models.WorkerIdle
		s.worker.LastActivity = p.now()
	}
	started := p.drainLocked()
	p.mu.Unlock()

	for _, next := range started {
		p.start(next)
	}
	l.item.ticket.resolve("", taskErr)
}

// coolDown waits out the failure cool-down unless the pool is closed.
func (p *Pool) coolDown() {
	if p.cooldown <= 0 {
		return
	}
	timer := time.NewTimer(p.cooldown)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-p.ctx.Done():
	}
}

// Reset drains the queue and forces every worker to idle with cleared task
// fields. In-flight executions are not cancelled; when they finish they no
// longer touch the reset worker. Dropped queued tickets resolve with ErrReset.
func (p *Pool) Reset() {
	p.mu.Lock()
	dropped := p.queue
	p.queue = nil
	for _, id := range p.order {
		s := p.slots[id]
		s.epoch++
		s.worker.ClearTask()
		s.worker.Status = models.WorkerIdle
		s.worker.LastActivity = p.now()
	}
	p.mu.Unlock()

	for _, item := range dropped {
		item.ticket.resolve("", ErrReset)
	}
	log.Printf("[office] %s: reset, dropped %d queued task(s)", p.office, len(dropped))
	p.notify(StatusEvent{Type: EventPoolReset})
}

// Status returns a snapshot of the pool.
func (p *Pool) Status() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := PoolStatus{
		Office:  p.office,
		Size:    len(p.order),
		Queued:  len(p.queue),
		Workers: make([]models.Worker, 0, len(p.order)),
	}
	for _, id := range p.order {
		w := p.slots[id].worker
		switch w.Status {
		case models.WorkerIdle:
			st.Idle++
		case models.WorkerWorking:
			st.Working++
		case models.WorkerError:
			st.Errored++
		case models.WorkerOffline:
			st.Offline++
		}
		st.Workers = append(st.Workers, w)
	}
	return st
}

// Worker returns a snapshot of one worker.
func (p *Pool) Worker(id string) (models.Worker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.slots[id]
	if !ok {
		return models.Worker{}, false
	}
	return s.worker, true
}

// QueueLen returns the number of queued tasks.
func (p *Pool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close cancels the context handed to executions and waits for them to return.
func (p *Pool) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pool) notify(ev StatusEvent) {
	if p.onStatus == nil {
		return
	}
	ev.Office = p.office
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.now()
	}
	p.onStatus(ev)
}
