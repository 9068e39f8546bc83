// Package jobs runs background work on a fixed set of workers.
package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned by Submit after Stop has been called.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is one unit of work. The context passed to Run is the context
// the task was submitted with, so cancellation reaches in-flight work.
type Task struct {
	Ctx context.Context
	Run func(ctx context.Context)
}

// Pool executes tasks on a fixed number of workers. Concurrency never
// exceeds the pool size no matter how many callers submit.
type Pool struct {
	workers  int
	tasks    chan Task
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
	log      *logrus.Logger

	// closeMu orders Submit against Stop: once Stop holds the write
	// lock, no Submit can enqueue, so every accepted task is in the
	// queue before the workers start draining.
	closeMu sync.RWMutex
	closed  bool
}

// NewPool creates a pool with the given number of workers. The queue
// holds at most workers pending tasks, so Submit applies backpressure.
func NewPool(workers int, log *logrus.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logrus.New()
	}
	return &Pool{
		workers:  workers,
		tasks:    make(chan Task, workers),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
		log:      log,
	}
}

// Start launches the workers. Call once.
func (p *Pool) Start() {
	var wg sync.WaitGroup
	wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer wg.Done()
			p.work()
		}()
	}

	go func() {
		wg.Wait()
		close(p.doneChan)
	}()

	p.log.WithField("workers", p.workers).Debug("worker pool started")
}

func (p *Pool) work() {
	for {
		select {
		case <-p.stopChan:
			p.drain()
			return
		case task := <-p.tasks:
			// Tasks always run, even with a dead context, so callers
			// waiting on completion are never stranded.
			task.Run(task.Ctx)
		}
	}
}

// drain runs whatever is still queued after stop is signalled. Submit
// cannot enqueue past that point, so the queue only shrinks here.
func (p *Pool) drain() {
	for {
		select {
		case task := <-p.tasks:
			task.Run(task.Ctx)
		default:
			return
		}
	}
}

// Submit queues a task. It blocks while the queue is full and returns
// the context error if ctx ends first. A task Submit accepts is
// guaranteed to run, even if Stop is called right after.
func (p *Pool) Submit(ctx context.Context, run func(ctx context.Context)) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- Task{Ctx: ctx, Run: run}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals the workers to exit and waits for them. Accepted tasks
// still in the queue run to completion before Stop returns; later
// Submits fail with ErrPoolClosed.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.closeMu.Lock()
		p.closed = true
		p.closeMu.Unlock()
		close(p.stopChan)
	})
	<-p.doneChan
	p.log.Debug("worker pool stopped")
}
