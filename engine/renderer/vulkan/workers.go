package vulkan

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// runWorkers runs work once per worker index. Workers 0..n-2 get their own
// goroutine and the calling goroutine runs the last one, so n == 1 never
// spawns. It returns once all of them finished.
func runWorkers(n int, work func(worker int) error) error {
	if n < 1 {
		n = 1
	}
	var g errgroup.Group
	for i := 0; i < n-1; i++ {
		worker := i
		g.Go(func() error {
			return work(worker)
		})
	}
	last := work(n - 1)
	return errors.CombineErrors(g.Wait(), last)
}
