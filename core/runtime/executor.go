package runtime

import (
	"context"
	"sync"
)

type executorKey struct{}

func onExecutor(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	_, ok := ctx.Value(executorKey{}).(*executor)
	return ok
}

// executor runs loader operations one at a time on a single goroutine so
// that overlapping Init and Download calls never interleave their state
// swaps.
type executor struct {
	tasks chan func(ctx context.Context)
	quit  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func newExecutor() *executor {
	e := &executor{
		tasks: make(chan func(ctx context.Context), 64),
		quit:  make(chan struct{}),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

func (e *executor) run() {
	defer e.wg.Done()
	ctx := context.WithValue(context.Background(), executorKey{}, e)
	for {
		select {
		case task := <-e.tasks:
			task(ctx)
		case <-e.quit:
			for {
				select {
				case task := <-e.tasks:
					task(ctx)
				default:
					return
				}
			}
		}
	}
}

func (e *executor) submit(task func(ctx context.Context)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrShutdown
	}
	e.tasks <- task
	return nil
}

// stop drains queued tasks and waits for the executor goroutine to exit.
func (e *executor) stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.quit)
	e.mu.Unlock()
	e.wg.Wait()
}

// start queues fn as an operation. The context passed to fn is cancelled
// when the operation is cancelled or finishes.
func start[T any](e *executor, fn func(ctx context.Context, op *Operation[T])) *Operation[T] {
	op := newOperation[T]()
	err := e.submit(func(execCtx context.Context) {
		ctx, cancel := context.WithCancel(execCtx)
		op.bind(cancel)
		if op.IsCancelled() {
			cancel()
		}
		defer cancel()
		fn(ctx, op)
	})
	if err != nil {
		var zero T
		op.finish(NotInitialized, zero, err)
	}
	return op
}
