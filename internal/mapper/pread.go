package mapper

import "os"

// openPread opens path for plain pread-based access (no mmap), matching
// the "pread" mapper variant from spec §4.D/§6 — useful on filesystems
// where mmap is undesirable (e.g. network filesystems) or unavailable.
func openPread(path string) (*ReaderAtBackend, error) {
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
