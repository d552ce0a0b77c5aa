package squashfs

import (
	"github.com/sqfsgo/squashfs/internal/lru"
	"github.com/sqfsgo/squashfs/internal/rcmap"
	"golang.org/x/sync/semaphore"
)

// prefetchWeight bounds the number of speculative background decompressions
// in flight at once, the same role `other_examples`' tarfs reader gives
// `x/sync/semaphore` around concurrent block decompression.
const prefetchWeight = 4

// blockKey identifies a compressed block by its exact location in the
// archive: two different blocks can never collide since a given
// compressed span can only ever decompress one way.
type blockKey struct {
	offset int64
	size   int
}

// extractManager is component G: a decompression cache keyed by block
// location, so that re-reading the same metablock or data block (a
// directory scanned twice, a file read non-sequentially, two goroutines
// reading overlapping byte ranges) pays the decompression cost once.
// Built the same way as mapManager (component A admission table plus
// component B LRU ring), one layer up the stack from raw bytes.
type extractManager struct {
	sb    *Superblock
	cache *rcmap.Map[blockKey, []byte]
	ring  *lru.Ring[blockKey]
	sem   *semaphore.Weighted
}

func newExtractManager(sb *Superblock, lruSize int) *extractManager {
	capacity := lruSize + 8
	if capacity < 2 {
		capacity = 2
	}
	m := &extractManager{sb: sb, sem: semaphore.NewWeighted(prefetchWeight)}
	m.cache = rcmap.New[blockKey, []byte](capacity, nil)
	m.ring = lru.New[blockKey](lruSize, m.cache)
	return m
}

// Get returns the decompressed bytes for the block at (offset, compressed
// size), invoking fetch to produce them on a cache miss. Concurrent
// callers racing for the same key block on whichever one wins Begin
// (component C's single-flight behavior, implemented here directly via
// rcmap rather than through internal/future since there is no separate
// "in" value to carry).
func (m *extractManager) Get(offset int64, compressedLen int, fetch func() ([]byte, error)) ([]byte, error) {
	key := blockKey{offset, compressedLen}

	if h, ok := m.cache.Retain(key); ok {
		m.ring.Touch(key)
		out := h.Value()
		h.Release()
		return out, nil
	}

	b, ok := m.cache.Begin(key)
	if !ok {
		// lost the race: a racer is already building this exact key, or the
		// table is saturated and evictLocked found nothing free. Retry Retain
		// once before giving up, the same pattern mapcache.go's windowFor
		// uses, so we wait on the in-flight build instead of redundantly
		// decompressing the same block ourselves.
		if h, ok := m.cache.Retain(key); ok {
			m.ring.Touch(key)
			out := h.Value()
			h.Release()
			return out, nil
		}
		// still nothing: table saturated with no live holder for this key.
		// Fall back to an uncached decompression rather than block
		// indefinitely.
		return fetch()
	}

	out, err := fetch()
	if err != nil {
		b.Abort()
		return nil, err
	}
	h := b.Set(out)
	m.ring.Touch(key)
	h.Release()
	return out, nil
}

// Prefetch speculatively warms the cache for a block the caller expects
// to need soon (sequential file reads, see Inode.ReadAt), without making
// the caller wait for it. It's a best-effort hint: if the key is already
// cached or being built, the prefetch slot budget is exhausted, or
// ThreadPoolSize(0) (the default) left read-ahead disabled, it's a no-op.
func (m *extractManager) Prefetch(offset int64, compressedLen int, fetch func() ([]byte, error)) {
	if m.sb.pool == nil {
		return
	}

	key := blockKey{offset, compressedLen}

	if h, ok := m.cache.Retain(key); ok {
		h.Release()
		return
	}

	if !m.sem.TryAcquire(1) {
		return
	}

	b, ok := m.cache.Begin(key)
	if !ok {
		m.sem.Release(1)
		return
	}

	m.sb.pool.Schedule(0, func() {
		defer m.sem.Release(1)
		out, err := fetch()
		if err != nil {
			b.Abort()
			return
		}
		h := b.Set(out)
		m.ring.Touch(key)
		h.Release()
	})
}
