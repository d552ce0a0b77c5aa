package squashfs

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sqfsgo/squashfs/internal/future"
)

// TestExtractManagerGetCachesByKey proves a second Get for the same
// (offset, len) never re-invokes fetch, the single-entry half of
// component G's at-most-one-build contract.
func TestExtractManagerGetCachesByKey(t *testing.T) {
	m := newExtractManager(&Superblock{}, 8)
	var calls int32
	fetch := func() ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("hello"), nil
	}

	for i := 0; i < 5; i++ {
		out, err := m.Get(100, 10, fetch)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(out) != "hello" {
			t.Fatalf("got %q", out)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 fetch call, got %d", got)
	}
}

// TestExtractManagerGetDedupsConcurrent proves that N goroutines racing
// Get() for the same block converge on exactly one decompression, the
// property the Begin-failure branch must preserve by retrying Retain
// instead of calling fetch again.
func TestExtractManagerGetDedupsConcurrent(t *testing.T) {
	m := newExtractManager(&Superblock{}, 8)
	var calls int32
	release := make(chan struct{})
	started := make(chan struct{}, 16)

	fetch := func() ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("block"), nil
	}

	const n = 16
	results := make([][]byte, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started <- struct{}{}
			results[i], errs[i] = m.Get(4096, 64, fetch)
		}(i)
	}

	// Give every goroutine a chance to reach Get before releasing fetch,
	// so the Retain-miss/Begin race actually happens across all of them.
	for i := 0; i < n; i++ {
		<-started
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 fetch invocation while a holder was live, got %d", got)
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: %v", i, err)
		}
		if string(results[i]) != "block" {
			t.Fatalf("goroutine %d: got %q", i, results[i])
		}
	}
}

// TestExtractManagerGetPropagatesFetchError proves a failed fetch aborts
// the slot rather than poisoning the cache, so a later Get for the same
// key gets a chance to retry.
func TestExtractManagerGetPropagatesFetchError(t *testing.T) {
	m := newExtractManager(&Superblock{}, 8)
	wantErr := errTestFetch
	var calls int32
	failing := func() ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, wantErr
	}

	if _, err := m.Get(1, 1, failing); err != wantErr {
		t.Fatalf("expected fetch error, got %v", err)
	}

	ok := func() ([]byte, error) { return []byte("ok"), nil }
	out, err := m.Get(1, 1, ok)
	if err != nil {
		t.Fatalf("retry after abort: %v", err)
	}
	if string(out) != "ok" {
		t.Fatalf("got %q", out)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected failing fetch called once, got %d", got)
	}
}

var errTestFetch = &testFetchErr{}

type testFetchErr struct{}

func (*testFetchErr) Error() string { return "squashfs test: fetch failed" }

// TestExtractManagerPrefetchNilPoolNoop proves Prefetch is a no-op when
// ThreadPoolSize(0) (the default) left sb.pool nil, rather than spawning a
// bare goroutine regardless of the configured pool.
func TestExtractManagerPrefetchNilPoolNoop(t *testing.T) {
	sb := &Superblock{}
	m := newExtractManager(sb, 8)
	var calls int32
	m.Prefetch(0, 4, func() ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("x"), nil
	})
	// nil pool: nothing should ever run, synchronously or otherwise.
	time.Sleep(5 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("expected Prefetch to no-op with a nil pool, got %d calls", got)
	}
	if _, ok := m.cache.Retain(blockKey{0, 4}); ok {
		t.Fatal("expected nothing cached")
	}
}

// TestExtractManagerPrefetchUsesPool proves that with a thread pool
// configured, Prefetch actually schedules the fetch onto it and the
// result lands in the cache.
func TestExtractManagerPrefetchUsesPool(t *testing.T) {
	sb := &Superblock{}
	pool := future.NewPool(2)
	defer pool.Destroy()
	sb.pool = pool

	m := newExtractManager(sb, 8)
	done := make(chan struct{})
	m.Prefetch(10, 4, func() ([]byte, error) {
		close(done)
		return []byte("warm"), nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("prefetch fetch never ran on the pool")
	}

	// allow the Set()/Release() following the close(done) to land
	deadline := time.After(time.Second)
	for {
		if h, ok := m.cache.Retain(blockKey{10, 4}); ok {
			if string(h.Value()) != "warm" {
				t.Fatalf("got %q", h.Value())
			}
			h.Release()
			return
		}
		select {
		case <-deadline:
			t.Fatal("prefetched block never appeared in cache")
		case <-time.After(time.Millisecond):
		}
	}
}
