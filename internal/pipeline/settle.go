// Package pipeline provides the concurrent fan-out used by the fetch and
// extraction paths: every input settles to an explicit success-or-failure
// result instead of failures disappearing inside goroutines.
package pipeline

import (
	"context"
	"fmt"
	"sync"
)

// Result is the settled outcome for one input.
type Result[Out any] struct {
	Value Out
	Err   error
}

// Settle runs fn over every input with at most concurrency invocations in
// flight and returns one Result per input, index-aligned. Inputs are
// admitted in order, so waiting work queues FIFO behind the bound. Settle
// never fails as a whole; a panicking or erroring input only settles its own
// slot. Context cancellation settles the not-yet-started inputs with
// ctx.Err().
func Settle[In, Out any](ctx context.Context, concurrency int, inputs []In, fn func(ctx context.Context, in In) (Out, error)) []Result[Out] {
	if len(inputs) == 0 {
		return nil
	}

	if concurrency <= 0 || concurrency > len(inputs) {
		concurrency = len(inputs)
	}

	type job struct {
		idx int
		in  In
	}

	results := make([]Result[Out], len(inputs))
	jobs := make(chan job)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.idx] = settleOne(ctx, j.in, fn)
			}
		}()
	}

	for i, in := range inputs {
		select {
		case jobs <- job{idx: i, in: in}:
		case <-ctx.Done():
			results[i] = Result[Out]{Err: ctx.Err()}
		}
	}
	close(jobs)
	wg.Wait()

	return results
}

func settleOne[In, Out any](ctx context.Context, in In, fn func(ctx context.Context, in In) (Out, error)) (res Result[Out]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[Out]{Err: panicError{value: r}}
		}
	}()

	out, err := fn(ctx, in)
	return Result[Out]{Value: out, Err: err}
}

type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.value)
}
