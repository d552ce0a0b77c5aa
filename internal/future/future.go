// Package future implements the single-resolve promise and worker pool
// from spec component 4.C, grounded in sqsh-tools' cextras future/threadpool
// (see original_source/.../tests/concurrency/future_test.c and
// libsqsh/src/posix/threadpool.c): a future carries an optional input value
// plus a resolved output; resolve wakes all waiters exactly once.
package future

import "sync"

// Future is a single-resolve cell carrying an optional input value of type
// In and a resolved output of type Out.
type Future[In, Out any] struct {
	in In

	mu       sync.Mutex
	cond     *sync.Cond
	resolved bool
	out      Out
}

// New creates a future carrying the given input value, available to workers
// via GetIn before the future is resolved.
func New[In, Out any](in In) *Future[In, Out] {
	f := &Future[In, Out]{in: in}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// GetIn returns the input value the future was created with.
func (f *Future[In, Out]) GetIn() In {
	return f.in
}

// Resolve sets the output exactly once and wakes all waiters. Calling
// Resolve on an already-resolved future is a programmer error and panics,
// matching the spec's "double-resolve is a programmer error".
func (f *Future[In, Out]) Resolve(out Out) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		panic("future: double resolve")
	}
	f.out = out
	f.resolved = true
	f.cond.Broadcast()
}

// Wait blocks until the future is resolved and returns its output.
func (f *Future[In, Out]) Wait() Out {
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.resolved {
		f.cond.Wait()
	}
	return f.out
}

// Done reports whether the future has already been resolved, without
// blocking.
func (f *Future[In, Out]) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolved
}
