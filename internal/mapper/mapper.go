// Package mapper implements the backend-agnostic window onto archive bytes
// described by spec component 4.D: a polymorphic capability set over
// memory-mapped files, pread-based files, in-memory buffers, and HTTP range
// requests.
package mapper

import "io"

// Window is a contiguous byte view returned by a Backend. Unmap is
// idempotent once the window's refcount (tracked by the caller, typically
// internal/rcmap) hits zero.
type Window interface {
	// Bytes returns the contiguous view. The slice is valid until Unmap.
	Bytes() []byte
}

// Backend is the capability set every mapper variant implements. Backends
// must guarantee that concurrent reads of disjoint windows do not block
// each other, and that mapped windows remain valid until Unmap.
type Backend interface {
	// Size returns the total addressable length of the source.
	Size() (int64, error)

	// MapBlock returns a window over [offset, offset+length) of the source.
	MapBlock(offset int64, length int) (Window, error)

	// Unmap releases a window obtained from MapBlock. Idempotent.
	Unmap(w Window)

	// Close releases all backend resources. No further calls are valid
	// after Close.
	Close() error
}

// byteWindow is the trivial Window implementation shared by backends that
// materialize a plain []byte per block (pread, static, http).
type byteWindow struct{ b []byte }

func (w *byteWindow) Bytes() []byte { return w.b }

// ReaderAtBackend adapts any io.ReaderAt with a known size into a Backend
// by issuing a pread-equivalent ReadAt per MapBlock call. This is the
// backend used for plain files opened without mmap, and for any caller
// supplied io.ReaderAt (matching the teacher's Superblock.fs field).
type ReaderAtBackend struct {
	r    io.ReaderAt
	size int64
	// closer is optional; nil if the caller owns the underlying reader's
	// lifecycle (e.g. a caller-supplied io.ReaderAt that isn't a file).
	closer io.Closer
}

// NewReaderAt builds a ReaderAtBackend. size must be the exact length of r;
// the size is not probed.
func NewReaderAt(r io.ReaderAt, size int64) *ReaderAtBackend {
	return &ReaderAtBackend{r: r, size: size}
}

// NewReaderAtCloser is like NewReaderAt but also closes closer on Close.
func NewReaderAtCloser(r io.ReaderAt, size int64, closer io.Closer) *ReaderAtBackend {
	return &ReaderAtBackend{r: r, size: size, closer: closer}
}

func (b *ReaderAtBackend) Size() (int64, error) { return b.size, nil }

func (b *ReaderAtBackend) MapBlock(offset int64, length int) (Window, error) {
	if offset < 0 || length < 0 || offset+int64(length) > b.size {
		return nil, ErrOutOfBounds
	}
	buf := make([]byte, length)
	if length > 0 {
		if _, err := b.r.ReadAt(buf, offset); err != nil {
			return nil, err
		}
	}
	return &byteWindow{buf}, nil
}

func (b *ReaderAtBackend) Unmap(Window) {}

func (b *ReaderAtBackend) Close() error {
	if b.closer != nil {
		return b.closer.Close()
	}
	return nil
}

// StaticBackend serves windows directly out of an in-memory buffer with no
// copy, matching the "static" mapper variant for embedded/in-memory images.
type StaticBackend struct {
	data []byte
}

func NewStatic(data []byte) *StaticBackend {
	return &StaticBackend{data: data}
}

func (b *StaticBackend) Size() (int64, error) { return int64(len(b.data)), nil }

func (b *StaticBackend) MapBlock(offset int64, length int) (Window, error) {
	if offset < 0 || length < 0 || offset+int64(length) > int64(len(b.data)) {
		return nil, ErrOutOfBounds
	}
	return &byteWindow{b.data[offset : offset+int64(length)]}, nil
}

func (b *StaticBackend) Unmap(Window) {}

func (b *StaticBackend) Close() error { return nil }

// ErrOutOfBounds is returned by MapBlock when the requested window falls
// outside the backend's addressable size (spec: OUT_OF_BOUNDS).
var ErrOutOfBounds = outOfBoundsError{}

type outOfBoundsError struct{}

func (outOfBoundsError) Error() string { return "mapper: requested window out of bounds" }
