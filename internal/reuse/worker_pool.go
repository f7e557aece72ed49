package reuse

import (
	"context"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
)

type Job interface {
	Execute(ctx context.Context) error
}

type WorkerPool struct {
	workers  int
	jobQueue chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	closed   sync.Once
}

// creates a new worker pool; size <= 0 sizes it from the CPU count
func NewWorkerPool(ctx context.Context, size int) *WorkerPool {
	if size <= 0 {
		totalCPU := runtime.NumCPU()
		systemReserve := max(1, totalCPU/4) // Reserve 1/4 of the CPU for the HTTP and stream loops
		size = max(1, totalCPU-systemReserve)
	}
	log.Info().
		Int("workers", size).
		Msg("Match worker pool initialized")
	poolCtx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  size,
		jobQueue: make(chan Job, size*2), // Buffer 2x the worker count
		ctx:      poolCtx,
		cancel:   cancel,
	}

	pool.start()

	return pool
}

// starts all worker goroutines
func (p *WorkerPool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// worker goroutine that processes jobs
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return // Channel closed
			}
			if err := job.Execute(p.ctx); err != nil {
				log.Error().Err(err).Int("worker", id).Msg("Worker failed to execute job")
			}
		}
	}
}

// submits a job to the pool, blocking while the queue is full
func (p *WorkerPool) Submit(ctx context.Context, job Job) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	case p.jobQueue <- job:
		return nil
	}
}

// stops the workers and waits for them to exit; queued jobs may be dropped
func (p *WorkerPool) Close() {
	p.closed.Do(func() {
		p.cancel()
		p.wg.Wait()
	})
}

// closed once the pool stops accepting and running jobs
func (p *WorkerPool) Done() <-chan struct{} {
	return p.ctx.Done()
}

// returns the number of workers
func (p *WorkerPool) Size() int {
	return p.workers
}
