// Package worker runs harvest jobs on a bounded set of workers and
// throttles requests per host.
package worker

import (
	"context"
	"sort"
	"sync"
)

// Job is one unit of work. worker is the 0-based id of the worker running
// it, so a job can use resources owned by that worker only.
type Job interface {
	Execute(ctx context.Context, worker int) Result
}

// Result is what a job produced. Seq is the submission order.
type Result interface {
	Seq() int
	GetError() error
}

// Pool manages a fixed number of workers
type Pool struct {
	workers    int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// NewPool creates a pool bound to ctx; cancelling ctx stops the workers
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, workers*2),
		results:    make(chan Result, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := job.Execute(p.ctx, id)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job; it returns without queuing once the pool is shut down
func (p *Pool) Submit(job Job) {
	select {
	case <-p.ctx.Done():
		return
	case p.jobQueue <- job:
	}
}

// Close marks the end of the job list; call it once every Submit returned
func (p *Pool) Close() {
	close(p.jobQueue)
}

// Wait collects results until the workers exit and returns them ordered
// by Seq. It drains while workers run, so Submit may still be in flight.
func (p *Pool) Wait() []Result {
	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	var results []Result
	for result := range p.results {
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Seq() < results[j].Seq()
	})
	return results
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}

// Run submits jobs from a separate goroutine so a pool smaller than the
// job list cannot deadlock on the bounded queues, then waits. The pool's
// context is released before Run returns.
func Run(ctx context.Context, workers int, jobs []Job) []Result {
	pool := NewPool(ctx, workers)
	defer pool.cancelFunc()
	pool.Start()

	go func() {
		for _, job := range jobs {
			pool.Submit(job)
		}
		pool.Close()
	}()

	return pool.Wait()
}
