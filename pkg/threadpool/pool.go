package threadpool

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ThreadPool runs jobs on a fixed set of workers fed by one shared queue.
type ThreadPool struct {
	name         string
	logger       zerolog.Logger
	panicHandler func(workerID int, recovered any)

	workers []*Worker
	stats   *counters

	mu     sync.RWMutex
	sender *Sender // nil once shutdown has begun

	shutdownOnce sync.Once
}

// New creates a pool with size workers. It returns ErrInvalidPoolSize when size
// is less than one, before any worker is spawned.
func New(size int, opts ...Option) (*ThreadPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPoolSize, size)
	}

	p := &ThreadPool{
		logger: zerolog.Nop(),
		stats:  &counters{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.name != "" {
		p.logger = p.logger.With().Str("pool", p.name).Logger()
	}

	sender, receiver := NewQueue()
	p.sender = sender

	p.workers = make([]*Worker, size)
	for i := range p.workers {
		p.workers[i] = newWorker(i, p, receiver.Clone())
	}
	// Workers hold their own clones; the pool keeps only the sending side.
	receiver.Close()

	p.logger.Info().Int("workers", size).Msg("Thread pool started")
	return p, nil
}

// MustNew is like New but panics on an invalid size.
func MustNew(size int, opts ...Option) *ThreadPool {
	p, err := New(size, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Execute queues job for execution by the next free worker. It does not wait for
// the job to run. After Shutdown has begun it returns ErrPoolShutdown.
func (p *ThreadPool) Execute(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.sender == nil {
		return ErrPoolShutdown
	}
	if err := p.sender.Send(job); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	p.stats.submitted.Add(1)
	return nil
}

// Sender returns a new producer handle on the pool's queue. Jobs sent through it
// bypass the pool's submission counter. The caller must Close the handle, or
// Shutdown will wait for it.
func (p *ThreadPool) Sender() (*Sender, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.sender == nil {
		return nil, ErrPoolShutdown
	}
	return p.sender.Clone(), nil
}

// Shutdown stops accepting jobs, lets the workers drain the queue and waits for
// every worker to exit. Calls after the first block until it has finished and
// then return.
func (p *ThreadPool) Shutdown() {
	p.shutdownOnce.Do(p.shutdown)
}

// Close implements io.Closer.
func (p *ThreadPool) Close() error {
	p.Shutdown()
	return nil
}

func (p *ThreadPool) shutdown() {
	p.mu.Lock()
	sender := p.sender
	p.sender = nil
	p.mu.Unlock()

	// Closing the sender must come first: it is what lets blocked receives return.
	if sender != nil {
		p.logger.Info().Int("queued", sender.Len()).Msg("Shutting down thread pool")
		sender.Close()
	}

	for _, w := range p.workers {
		p.logger.Debug().Int("worker_id", w.id).Msg("Shutting down worker")
		w.join()
	}

	p.logger.Info().
		Uint64("completed", p.stats.completed.Load()).
		Uint64("panicked", p.stats.panicked.Load()).
		Msg("Thread pool stopped")
}

// Size returns the number of workers the pool was created with.
func (p *ThreadPool) Size() int {
	return len(p.workers)
}

// Name returns the pool's label.
func (p *ThreadPool) Name() string {
	return p.name
}

// Workers returns the pool's workers in index order.
func (p *ThreadPool) Workers() []*Worker {
	workers := make([]*Worker, len(p.workers))
	copy(workers, p.workers)
	return workers
}

// Stats returns a snapshot of the pool's counters.
func (p *ThreadPool) Stats() Stats {
	s := Stats{
		Name:      p.name,
		Size:      len(p.workers),
		Alive:     int(p.stats.alive.Load()),
		Busy:      int(p.stats.busy.Load()),
		Submitted: p.stats.submitted.Load(),
		Completed: p.stats.completed.Load(),
		Panicked:  p.stats.panicked.Load(),
	}

	p.mu.RLock()
	if p.sender != nil {
		s.Queued = p.sender.Len()
	}
	p.mu.RUnlock()

	return s
}
