package threadpool

import "sync/atomic"

// Stats is a point-in-time snapshot of a pool's counters.
type Stats struct {
	Name      string `json:"name,omitempty"`
	Size      int    `json:"size"`      // workers spawned at construction
	Alive     int    `json:"alive"`     // worker goroutines that have not returned
	Busy      int    `json:"busy"`      // workers currently running a job
	Queued    int    `json:"queued"`    // jobs waiting in the queue
	Submitted uint64 `json:"submitted"` // jobs accepted by Execute
	Completed uint64 `json:"completed"` // jobs that returned or panicked
	Panicked  uint64 `json:"panicked"`  // jobs that panicked
}

type counters struct {
	alive     atomic.Int64
	busy      atomic.Int64
	submitted atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
}
