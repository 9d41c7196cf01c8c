package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Runner is a small supervised pool for work accepted over HTTP push
// delivery. The entry point acknowledges the delivery immediately and hands
// the dispatch here, so the caller is never blocked for the duration of the
// pipeline while completion and failure remain observable through the
// error handler.
type Runner struct {
	tasks      chan namedTask
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	workers    int
	errHandler func(name string, err error)
}

type namedTask struct {
	name string
	fn   func(ctx context.Context) error
}

func NewRunner(workers, queueSize int) *Runner {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		tasks:   make(chan namedTask, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		workers: workers,
		errHandler: func(name string, err error) {
			log.Printf("Task %s failed: %v", name, err)
		},
	}
}

// SetErrorHandler replaces the default log-only failure handler.
func (r *Runner) SetErrorHandler(handler func(name string, err error)) {
	if handler != nil {
		r.errHandler = handler
	}
}

// Start launches the worker goroutines.
func (r *Runner) Start() {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Stop cancels in-flight work and waits for the workers to drain.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}

// Submit queues one unit of work. A full queue is reported to the caller
// instead of blocking the accept path.
func (r *Runner) Submit(name string, fn func(ctx context.Context) error) error {
	select {
	case r.tasks <- namedTask{name: name, fn: fn}:
		return nil
	default:
		return fmt.Errorf("task queue is full, try again later")
	}
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case task := <-r.tasks:
			if err := task.fn(r.ctx); err != nil {
				r.errHandler(task.name, err)
			}
		}
	}
}
