package threadpool_test

import (
	"fmt"

	"github.com/benmeehan/workpool/pkg/threadpool"
)

func ExampleThreadPool_Execute() {
	pool, err := threadpool.New(2)
	if err != nil {
		panic(err)
	}
	defer pool.Shutdown()

	// Jobs have no result; a caller that wants one closes over a channel.
	result := make(chan int, 1)
	_ = pool.Execute(func() {
		result <- 6 * 7
	})

	fmt.Println(<-result)
	// Output: 42
}

func ExampleThreadPool_Shutdown() {
	pool := threadpool.MustNew(1)

	for _, name := range []string{"A", "B", "C"} {
		name := name
		_ = pool.Execute(func() { fmt.Println(name) })
	}

	pool.Shutdown()
	fmt.Println(pool.Execute(func() {}))
	// Output:
	// A
	// B
	// C
	// threadpool: pool is shutting down
}
