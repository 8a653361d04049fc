package transport

import "sync"

// WorkerPool is a rest.Executor that bounds how many tasks run at once.
// Submit never blocks: a task waits for a slot on its own goroutine.
type WorkerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewWorkerPool returns a pool running at most size tasks at a time. A
// size <= 0 means no bound.
func NewWorkerPool(size int) *WorkerPool {
	p := &WorkerPool{}
	if size > 0 {
		p.sem = make(chan struct{}, size)
	}

	return p
}

// Submit schedules task.
func (p *WorkerPool) Submit(task func()) {
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		if p.sem != nil {
			p.sem <- struct{}{}
			defer func() { <-p.sem }()
		}

		task()
	}()
}

// Size returns the concurrency bound, 0 when unbounded.
func (p *WorkerPool) Size() int {
	return cap(p.sem)
}

// Wait blocks until every submitted task has returned.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
