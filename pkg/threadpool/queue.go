package threadpool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// Job is a unit of work executed exactly once by some worker.
type Job func()

// channel is the state shared by every Sender and Receiver handle of a queue.
type channel struct {
	// recvMu is the lock workers contend on. It is held while a receiver waits
	// for a job and released before the job is returned.
	recvMu sync.Mutex

	mu        sync.Mutex // guards the fields below
	ready     *sync.Cond
	jobs      *queue.Queue
	senders   int
	receivers int
	poisoned  bool
}

// Sender is a producer handle for a queue. It is safe for concurrent use.
type Sender struct {
	ch     *channel
	closed atomic.Bool
}

// Receiver is a consumer handle for a queue. All receivers of a queue share one
// receive lock, so at most one of them inspects the head of the queue at a time.
type Receiver struct {
	ch     *channel
	closed atomic.Bool
}

// NewQueue creates an unbounded FIFO queue of jobs and returns its first sending
// and receiving handles.
func NewQueue() (*Sender, *Receiver) {
	ch := &channel{
		jobs:      queue.New(),
		senders:   1,
		receivers: 1,
	}
	ch.ready = sync.NewCond(&ch.mu)
	return &Sender{ch: ch}, &Receiver{ch: ch}
}

// Send enqueues a job for delivery to exactly one receiver.
func (s *Sender) Send(job Job) error {
	if job == nil {
		return ErrNilJob
	}
	if s.closed.Load() {
		return ErrQueueClosed
	}

	c := s.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.receivers == 0 {
		return ErrQueueClosed
	}
	c.jobs.Add(job)
	c.ready.Signal()
	return nil
}

// Clone returns a new handle on the same queue. Every clone must be closed
// before receivers observe disconnection.
func (s *Sender) Clone() *Sender {
	clone := &Sender{ch: s.ch}

	c := s.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.closed.Load() {
		clone.closed.Store(true)
		return clone
	}
	c.senders++
	return clone
}

// Close releases this handle. Closing the last open sender wakes every blocked
// receiver so it can drain the queue and observe ErrDisconnected.
func (s *Sender) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	c := s.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	c.senders--
	if c.senders == 0 {
		c.ready.Broadcast()
	}
}

// Len returns the number of jobs waiting in the queue.
func (s *Sender) Len() int {
	return s.ch.len()
}

// Receive blocks until a job is available or the queue is disconnected.
//
// The shared receive lock is held for the whole wait and released before Receive
// returns, so the caller runs the job without holding it. Jobs that were queued
// before the last sender closed are still delivered.
func (r *Receiver) Receive() (job Job, err error) {
	if r.closed.Load() {
		return nil, ErrDisconnected
	}

	c := r.ch
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			c.poison()
			job, err = nil, fmt.Errorf("%w: %v", ErrLockPoisoned, p)
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.poisoned {
		return nil, ErrLockPoisoned
	}
	for c.jobs.Length() == 0 && c.senders > 0 {
		c.ready.Wait()
	}
	if c.jobs.Length() == 0 {
		return nil, ErrDisconnected
	}
	return c.jobs.Remove().(Job), nil
}

// Clone returns a new handle sharing this receiver's queue and lock.
func (r *Receiver) Clone() *Receiver {
	clone := &Receiver{ch: r.ch}

	c := r.ch
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.closed.Load() {
		clone.closed.Store(true)
		return clone
	}
	c.receivers++
	return clone
}

// Close releases this handle. Once every receiver is closed Send fails with
// ErrQueueClosed.
func (r *Receiver) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}

	c := r.ch
	c.mu.Lock()
	c.receivers--
	c.mu.Unlock()
}

// Len returns the number of jobs waiting in the queue.
func (r *Receiver) Len() int {
	return r.ch.len()
}

func (c *channel) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jobs.Length()
}

// poison is called from a recover after c.mu has already been released by its
// deferred unlock.
func (c *channel) poison() {
	c.mu.Lock()
	c.poisoned = true
	c.mu.Unlock()
}
