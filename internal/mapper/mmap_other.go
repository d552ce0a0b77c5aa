//go:build !unix

package mapper

import "os"

// OpenMmap falls back to a plain pread-based backend on platforms without
// a POSIX mmap (e.g. windows); the mapper capability contract (disjoint
// concurrent reads don't block each other) is preserved because os.File's
// ReadAt is safe for concurrent use.
func OpenMmap(path string) (*ReaderAtBackend, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return NewReaderAtCloser(f, st.Size(), f), nil
}
