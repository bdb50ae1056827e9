package worker

import (
	"context"
	"fmt"
	"sync"
)

// Task is one indexed unit of work handed to the pool.
type Task[T any] struct {
	Index int
	Item  T
}

// Run feeds items to n workers and calls fn for each one. done, if set, is called once per
// finished task from the collecting goroutine. The first error cancels the remaining work.
func Run[T any](ctx context.Context, n int, items []T, fn func(workerID int, item T) error, done func()) error {
	if n < 1 {
		n = 1
	}
	if n > len(items) {
		n = len(items)
	}
	if n == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	taskChan := make(chan Task[T], n)
	resultsChan := make(chan error, n*2)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for task := range taskChan {
				var err error
				if err = fn(workerID, task.Item); err != nil {
					err = fmt.Errorf("task %d: %w", task.Index, err)
				}
				select {
				case resultsChan <- err:
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}

	// Producer
	go func() {
		defer close(taskChan)
		for i, item := range items {
			select {
			case taskChan <- Task[T]{Index: i, Item: item}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var firstErr error
	for err := range resultsChan {
		if err != nil && firstErr == nil {
			firstErr = err
			cancel()
			continue
		}
		if err == nil && done != nil {
			done()
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
