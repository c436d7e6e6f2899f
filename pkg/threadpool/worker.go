package threadpool

import (
	"errors"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

// Worker is a long-lived goroutine that pulls jobs from the pool's queue until
// the queue is disconnected.
type Worker struct {
	id   int
	pool *ThreadPool

	mu     sync.Mutex
	handle chan struct{} // closed when the goroutine returns; taken by join
	err    error
}

// newWorker spawns the worker goroutine. The worker owns rx and closes it on exit.
func newWorker(id int, pool *ThreadPool, rx *Receiver) *Worker {
	w := &Worker{
		id:     id,
		pool:   pool,
		handle: make(chan struct{}),
	}
	pool.stats.alive.Add(1)
	go w.run(rx, w.handle)
	return w
}

// ID returns the worker's index in the pool.
func (w *Worker) ID() int {
	return w.id
}

// Err returns the error that stopped the worker, if it stopped abnormally.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Worker) run(rx *Receiver, done chan struct{}) {
	logger := w.pool.logger.With().Int("worker_id", w.id).Logger()

	defer close(done)
	defer w.pool.stats.alive.Add(-1)
	defer rx.Close()

	for {
		logger.Debug().Msg("Waiting for lock and next job")
		job, err := rx.Receive()
		if err != nil {
			if errors.Is(err, ErrDisconnected) {
				logger.Debug().Msg("Queue disconnected, worker shutting down")
				return
			}
			logger.Error().Err(err).Msg("Worker stopped on receive failure")
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
			return
		}

		logger.Debug().Msg("Executing job")
		w.execute(job, logger)
	}
}

// execute runs job and recovers from a panic so the worker keeps serving.
func (w *Worker) execute(job Job, logger zerolog.Logger) {
	stats := w.pool.stats
	stats.busy.Add(1)

	defer func() {
		if r := recover(); r != nil {
			stats.panicked.Add(1)
			logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from job panic")
			if w.pool.panicHandler != nil {
				w.pool.panicHandler(w.id, r)
			}
		}
		stats.busy.Add(-1)
		stats.completed.Add(1)
	}()

	job()
}

// join takes the worker's exit handle and waits for the goroutine to return.
// Only the first call waits; later calls find no handle.
func (w *Worker) join() {
	w.mu.Lock()
	handle := w.handle
	w.handle = nil
	w.mu.Unlock()

	if handle == nil {
		return
	}
	<-handle
}
