package future

import (
	"runtime"
	"sync"
)

// task is one scheduled unit of work; priority classes are served FIFO
// within themselves, higher priority first.
type task struct {
	priority int
	fn       func()
}

// Pool is a worker pool that drives parallel block decompression (and
// other short CPU-bound work) for the extract manager and the file content
// iterator's speculative prefetch. A nil *Pool is valid and runs everything
// synchronously on the calling goroutine, matching the spec's "if absent,
// all work runs on the calling thread".
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queues  map[int][]task
	prios   []int
	closed  bool
	wg      sync.WaitGroup
	workers int
}

// NewPool spawns max(1, requested) workers; requested == 0 means "hardware
// concurrency".
func NewPool(requested int) *Pool {
	n := requested
	if n == 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n < 1 {
		n = 1
	}

	p := &Pool{
		queues:  make(map[int][]task),
		workers: n,
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Schedule enqueues fn at the given priority class (higher runs first;
// FIFO within a class). On a nil pool, fn runs synchronously and immediately.
func (p *Pool) Schedule(priority int, fn func()) {
	if p == nil {
		fn()
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if _, ok := p.queues[priority]; !ok {
		p.prios = insertSorted(p.prios, priority)
	}
	p.queues[priority] = append(p.queues[priority], task{priority: priority, fn: fn})
	p.mu.Unlock()
	p.cond.Signal()
}

func insertSorted(prios []int, v int) []int {
	for _, p := range prios {
		if p == v {
			return prios
		}
	}
	// Highest priority first.
	i := 0
	for i < len(prios) && prios[i] > v {
		i++
	}
	prios = append(prios, 0)
	copy(prios[i+1:], prios[i:])
	prios[i] = v
	return prios
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for {
			if p.closed && p.allEmptyLocked() {
				p.mu.Unlock()
				return
			}
			if t, ok := p.popLocked(); ok {
				p.mu.Unlock()
				runTask(t)
				break
			}
			p.cond.Wait()
		}
	}
}

func runTask(t task) {
	// Tasks may not throw; a panicking task terminates the pool per spec,
	// so we deliberately do not recover here.
	t.fn()
}

func (p *Pool) allEmptyLocked() bool {
	for _, q := range p.queues {
		if len(q) > 0 {
			return false
		}
	}
	return true
}

func (p *Pool) popLocked() (task, bool) {
	for _, prio := range p.prios {
		q := p.queues[prio]
		if len(q) > 0 {
			t := q[0]
			p.queues[prio] = q[1:]
			return t, true
		}
	}
	return task{}, false
}

// Destroy drains pending work then joins all workers.
func (p *Pool) Destroy() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}
