package squashfs

import (
	"io"

	"github.com/sqfsgo/squashfs/internal/lru"
	"github.com/sqfsgo/squashfs/internal/mapper"
	"github.com/sqfsgo/squashfs/internal/rcmap"
)

// mapManager is component E: it slices an archive's mapper.Backend into
// fixed-size, block-aligned windows and serves reads from them, keeping a
// bounded number of recently-touched windows mapped via the LRU admission
// ring (component B) on top of the reference-counted window table
// (component A) so a window in active use is never unmapped out from
// under a reader, and so concurrent reads of the same window share one
// mapping rather than racing to create their own.
type mapManager struct {
	backend   mapper.Backend
	blockSize int64
	size      int64

	windows *rcmap.Map[int64, mapper.Window]
	ring    *lru.Ring[int64]
}

func newMapManager(backend mapper.Backend, blockSize, lruCapacity int) (*mapManager, error) {
	size, err := backend.Size()
	if err != nil {
		return nil, err
	}
	if blockSize <= 0 {
		blockSize = defaultMapperBlockSize
	}
	m := &mapManager{backend: backend, blockSize: int64(blockSize), size: size}
	windowCount := int(size/m.blockSize) + 2
	if lruCapacity > 0 && lruCapacity < windowCount {
		windowCount = lruCapacity + 1
	}
	m.windows = rcmap.New[int64, mapper.Window](windowCount, func(w mapper.Window) {
		backend.Unmap(w)
	})
	m.ring = lru.New[int64](lruCapacity, m.windows)
	return m, nil
}

func (m *mapManager) windowFor(off int64) (mapper.Window, func(), error) {
	base := (off / m.blockSize) * m.blockSize

	if h, ok := m.windows.Retain(base); ok {
		m.ring.Touch(base)
		return h.Value(), h.Release, nil
	}

	b, ok := m.windows.Begin(base)
	if !ok {
		// lost the race, or a concurrent writer is mid-build: retry once.
		if h, ok := m.windows.Retain(base); ok {
			m.ring.Touch(base)
			return h.Value(), h.Release, nil
		}
		return nil, nil, io.ErrNoProgress
	}

	length := m.blockSize
	if base+length > m.size {
		length = m.size - base
	}
	w, err := m.backend.MapBlock(base, int(length))
	if err != nil {
		b.Abort()
		return nil, nil, err
	}
	h := b.Set(w)
	m.ring.Touch(base)
	return h.Value(), h.Release, nil
}

// ReadAt lets mapManager stand in directly for the io.ReaderAt the rest of
// the reader (metablockReader, fragment/data block reads) already expects,
// so callers don't need to know the window cache exists.
func (m *mapManager) ReadAt(p []byte, off int64) (int, error) {
	if off >= m.size {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) {
		w, release, err := m.windowFor(off + int64(n))
		if err != nil {
			return n, err
		}
		data := w.Bytes()
		base := ((off + int64(n)) / m.blockSize) * m.blockSize
		inner := int(off + int64(n) - base)
		if inner >= len(data) {
			release()
			return n, io.EOF
		}
		c := copy(p[n:], data[inner:])
		release()
		n += c
	}
	return n, nil
}
