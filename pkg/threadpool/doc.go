// Package threadpool implements a fixed-size pool of worker goroutines that
// pull jobs from a single shared FIFO queue.
//
// Producers submit jobs with Execute. Workers take turns holding the queue's
// receive lock while they wait for the next job and release it before running
// that job, so jobs run in parallel while delivery stays FIFO.
//
//	pool, err := threadpool.New(4, threadpool.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer pool.Shutdown()
//
//	_ = pool.Execute(func() {
//		// do work
//	})
//
// Shutdown closes the pool's sending side first. Workers keep draining jobs
// that were already queued; once the queue is empty and no sender is left
// their receive returns ErrDisconnected and they exit. Shutdown then joins
// every worker in index order. It is safe to call more than once.
//
// Jobs are fire-and-forget. A caller that needs a result closes over its own
// channel:
//
//	done := make(chan int, 1)
//	_ = pool.Execute(func() { done <- compute() })
//	result := <-done
package threadpool
