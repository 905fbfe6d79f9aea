package runtime

import (
	"context"
	"sync"
)

// Operation is the handle of an asynchronous loader call. It is done once
// its error code leaves NotFinished.
type Operation[T any] struct {
	mu        sync.Mutex
	code      ErrorCode
	err       error
	result    T
	total     int
	current   int
	progress  float64
	fromCache bool
	cancelled bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newOperation[T any]() *Operation[T] {
	return &Operation[T]{
		code:    NotFinished,
		current: -1,
		done:    make(chan struct{}),
	}
}

// failedOperation returns an operation that is already done with code.
func failedOperation[T any](code ErrorCode, err error) *Operation[T] {
	op := newOperation[T]()
	var zero T
	op.finish(code, zero, err)
	return op
}

func (o *Operation[T]) IsDone() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.code != NotFinished
}

func (o *Operation[T]) Succeeded() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.code == Success
}

func (o *Operation[T]) ErrorCode() ErrorCode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.code
}

// Err returns nil until the operation fails.
func (o *Operation[T]) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.code == NotFinished || o.code == Success {
		return nil
	}
	return &OperationError{Code: o.code, Err: o.err}
}

func (o *Operation[T]) Result() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

func (o *Operation[T]) TotalCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.total
}

// CurrentCount is -1 until the first item starts.
func (o *Operation[T]) CurrentCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

func (o *Operation[T]) Progress() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// CurrentlyLoadingFromCache reports whether the item in flight is read from
// the content cache instead of the network.
func (o *Operation[T]) CurrentlyLoadingFromCache() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fromCache
}

func (o *Operation[T]) IsCancelled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled
}

// Done is closed when the operation finishes.
func (o *Operation[T]) Done() <-chan struct{} {
	return o.done
}

// Cancel requests cancellation. In-flight requests are released before the
// operation finishes with Cancelled, and loader state is left untouched.
func (o *Operation[T]) Cancel() error {
	o.mu.Lock()
	if o.code != NotFinished {
		o.mu.Unlock()
		return ErrAlreadyDone
	}
	o.cancelled = true
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// Wait blocks until the operation is done. Waiting from a task running on
// the loader executor would deadlock and fails with ErrWrongExecutor.
func (o *Operation[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	if onExecutor(ctx) {
		return zero, ErrWrongExecutor
	}
	select {
	case <-o.done:
		return o.Result(), o.Err()
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (o *Operation[T]) bind(cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
}

func (o *Operation[T]) setTotal(n int) {
	o.mu.Lock()
	o.total = n
	o.mu.Unlock()
}

func (o *Operation[T]) setCurrent(i int, fromCache bool) {
	o.mu.Lock()
	o.current = i
	o.fromCache = fromCache
	o.mu.Unlock()
}

func (o *Operation[T]) setProgress(p float64) {
	o.mu.Lock()
	o.progress = p
	o.mu.Unlock()
}

func (o *Operation[T]) finish(code ErrorCode, result T, err error) {
	o.mu.Lock()
	if o.code != NotFinished {
		o.mu.Unlock()
		return
	}
	o.code = code
	o.err = err
	o.result = result
	o.fromCache = false
	if code == Success {
		o.current = o.total
		o.progress = 1
	}
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	close(o.done)
}
