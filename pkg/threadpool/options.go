package threadpool

import "github.com/rs/zerolog"

// Option configures a ThreadPool.
type Option func(*ThreadPool)

// WithLogger sets the logger used by the pool and its workers. The default
// discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *ThreadPool) {
		p.logger = logger
	}
}

// WithName labels the pool in logs and stats.
func WithName(name string) Option {
	return func(p *ThreadPool) {
		p.name = name
	}
}

// WithPanicHandler registers a function called on the worker goroutine after a
// job panics. The handler must not panic itself.
func WithPanicHandler(handler func(workerID int, recovered any)) Option {
	return func(p *ThreadPool) {
		p.panicHandler = handler
	}
}
