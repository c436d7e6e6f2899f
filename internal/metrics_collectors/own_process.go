package metrics_collectors

import (
	"os"
	"sync"

	"github.com/shirou/gopsutil/process"
)

// ownProcess opens a gopsutil handle on the running server the first time it is
// needed. A failure to open is sticky.
type ownProcess struct {
	once sync.Once
	proc *process.Process
	err  error
}

func (o *ownProcess) get() (*process.Process, error) {
	o.once.Do(func() {
		o.proc, o.err = process.NewProcess(int32(os.Getpid()))
	})
	return o.proc, o.err
}
