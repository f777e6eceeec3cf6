// Package loop runs tasks one at a time on a single owner goroutine.
//
// Everything a navigation module does (planning, sending commands, handling
// telemetry) is posted here, so module state has one writer. Delayed tasks
// wait on a timeutil.Clock timer and are then posted like any other task.
package loop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/tmsnav/internal/monitoring"
	"github.com/banshee-data/tmsnav/internal/timeutil"
)

// DefaultQueueSize bounds the number of queued tasks.
const DefaultQueueSize = 256

// ErrStopped is returned when posting to a loop that has finished running.
var ErrStopped = errors.New("loop stopped")

// ErrQueueFull is returned when the task queue is at capacity.
var ErrQueueFull = errors.New("loop queue full")

// Task is a unit of work run on the loop goroutine.
type Task func()

// Loop is a single-owner task queue.
type Loop struct {
	clock timeutil.Clock
	tasks chan Task

	mu      sync.Mutex
	done    chan struct{}
	stopped bool
	ctx     context.Context
}

// New returns a loop using clock for delayed tasks. A nil clock means
// timeutil.RealClock.
func New(clock timeutil.Clock) *Loop {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Loop{
		clock: clock,
		tasks: make(chan Task, DefaultQueueSize),
		done:  make(chan struct{}),
		ctx:   context.Background(),
	}
}

// Run executes tasks until ctx is cancelled. A panicking task is logged and
// the loop keeps going.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.ctx = ctx
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.stopped = true
		close(l.done)
		l.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-l.tasks:
			l.runTask(task)
		}
	}
}

func (l *Loop) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("loop: task panicked: %v", r)
		}
	}()
	task()
}

// Post queues task without blocking.
func (l *Loop) Post(task Task) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return ErrStopped
	}
	select {
	case l.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// PostAfter queues task once d has elapsed on the loop's clock. The returned
// function cancels the task if it has not been queued yet.
func (l *Loop) PostAfter(d time.Duration, task Task) (cancel func()) {
	timer := l.clock.NewTimer(d)
	stop := make(chan struct{})
	var once sync.Once

	go func() {
		select {
		case <-timer.C():
			if err := l.Post(task); err != nil && !errors.Is(err, ErrStopped) {
				monitoring.Logf("loop: delayed task dropped: %v", err)
			}
		case <-stop:
			timer.Stop()
		case <-l.done:
			timer.Stop()
		}
	}()

	return func() { once.Do(func() { close(stop) }) }
}

// Do runs task on the loop and waits for it to finish, or for ctx to end.
func (l *Loop) Do(ctx context.Context, task Task) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		task()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Context returns the context Run was started with.
func (l *Loop) Context() context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ctx
}
