package threadpool

import "errors"

var (
	// ErrInvalidPoolSize is returned when a pool is constructed with fewer than one worker.
	ErrInvalidPoolSize = errors.New("threadpool: pool size must be greater than zero")

	// ErrPoolShutdown is returned when work is submitted after shutdown has begun.
	ErrPoolShutdown = errors.New("threadpool: pool is shutting down")

	// ErrQueueClosed is returned by Send when the handle was closed or no receiver remains.
	ErrQueueClosed = errors.New("threadpool: queue closed")

	// ErrDisconnected is returned by Receive once every sender is closed and the queue is drained.
	ErrDisconnected = errors.New("threadpool: queue disconnected")

	// ErrLockPoisoned is returned by Receive after a panic inside the receive critical section.
	ErrLockPoisoned = errors.New("threadpool: queue lock poisoned")

	// ErrNilJob is returned when a nil job is submitted.
	ErrNilJob = errors.New("threadpool: nil job")
)
