package chat

import (
	"sync"

	"github.com/pelusa-v/zebra-chat/internal/logging"
)

// Task is a unit of work run on a MainQueue.
type Task func()

// Dispatcher schedules tasks for later execution.
type Dispatcher interface {
	Async(task Task) bool
}

// MainQueue is the single main scheduling context: one goroutine runs
// queued tasks in FIFO order. Async never blocks, so tasks may enqueue
// more tasks.
type MainQueue struct {
	mu      sync.Mutex
	pending []Task
	stopped bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func NewMainQueue() *MainQueue {
	return &MainQueue{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start runs the queue loop on a new goroutine.
func (q *MainQueue) Start() {
	go q.Run()
}

// Run executes tasks until Stop is called. Tasks still pending at stop
// time are dropped.
func (q *MainQueue) Run() {
	defer close(q.done)
	for {
		select {
		case <-q.wake:
			q.drain()
		case <-q.stop:
			return
		}
	}
}

func (q *MainQueue) drain() {
	for {
		q.mu.Lock()
		tasks := q.pending
		q.pending = nil
		q.mu.Unlock()
		if len(tasks) == 0 {
			return
		}
		for _, t := range tasks {
			select {
			case <-q.stop:
				return
			default:
			}
			q.run(t)
		}
	}
}

func (q *MainQueue) run(t Task) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get().Error().Interface("panic", r).Msg("main queue task panicked")
		}
	}()
	t()
}

// Async enqueues task. It returns false if the queue has been stopped.
func (q *MainQueue) Async(task Task) bool {
	if task == nil {
		return false
	}
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, task)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Sync enqueues task and waits for it to finish. Calling Sync from a task
// running on the same queue deadlocks.
func (q *MainQueue) Sync(task Task) bool {
	finished := make(chan struct{})
	if !q.Async(func() {
		defer close(finished)
		task()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-q.done:
		return false
	}
}

// Flush waits until every task queued before the call has run.
func (q *MainQueue) Flush() {
	q.Sync(func() {})
}

// Stop terminates the loop; pending tasks are discarded. Done reports
// when the loop has exited. Safe to call more than once.
func (q *MainQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.pending = nil
	q.mu.Unlock()
	close(q.stop)
}

// Done is closed once the loop has exited.
func (q *MainQueue) Done() <-chan struct{} {
	return q.done
}
