package squashfs

import "io"

// metablockSize is the logical size of one decompressed metadata block
// (spec §3): the inode table, directory table, fragment table, export
// table, id table and xattr table are all stored as streams of these.
const metablockSize = 8192

// metablockReader is a streaming cursor (component H) over one such
// metablock stream, starting at an arbitrary (outer, inner) coordinate and
// advancing forward one logical block at a time. It replaces the teacher
// snapshot's tableReader/inodeReader pair, which were byte-for-byte
// duplicates of each other (one consumed by the inode table, one by every
// other table) and, critically, never advanced their read offset across a
// block boundary, so a read spanning more than one metablock kept
// re-decompressing the same first block forever.
type metablockReader struct {
	sb   *Superblock
	buf  []byte
	offt int64
}

// newMetablockReader opens a cursor at byte offset base within the
// archive, cutting innerOffset bytes off the front of the first
// decompressed block (the "inner" coordinate of an inodeRef, or a
// directory index seek target).
func (sb *Superblock) newMetablockReader(base int64, innerOffset int) (*metablockReader, error) {
	r := &metablockReader{sb: sb, offt: base}
	if err := r.readBlock(); err != nil {
		return nil, err
	}
	if innerOffset != 0 {
		if innerOffset > len(r.buf) {
			return nil, newErr("metablock", KindCorruptedMetablock, io.ErrUnexpectedEOF)
		}
		r.buf = r.buf[innerOffset:]
	}
	return r, nil
}

func (sb *Superblock) newInodeReader(ino inodeRef) (*metablockReader, error) {
	return sb.newMetablockReader(int64(sb.InodeTableStart)+int64(ino.Index()), int(ino.Offset()))
}

func (r *metablockReader) readBlock() error {
	hdr := make([]byte, 2)
	if _, err := r.sb.fs.ReadAt(hdr, r.offt); err != nil {
		return err
	}
	lenN := r.sb.order.Uint16(hdr)
	uncompressed := lenN&0x8000 != 0
	lenN &= 0x7fff

	dataOfft := r.offt + 2
	buf := make([]byte, int(lenN))
	if _, err := r.sb.fs.ReadAt(buf, dataOfft); err != nil {
		return err
	}
	r.offt += 2 + int64(lenN)

	if !uncompressed {
		out, err := r.sb.extract.Get(dataOfft, len(buf), func() ([]byte, error) {
			return r.sb.decompress(buf, metablockSize)
		})
		if err != nil {
			return err
		}
		buf = out
	}
	r.buf = buf
	return nil
}

// Read implements io.Reader, pulling fresh metablocks off the underlying
// archive transparently as the current one is exhausted.
func (r *metablockReader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		if err := r.readBlock(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// newTableReader opens a metablock cursor into the directory table
// addressed by a (block-start, inner-offset) pair, matching the teacher's
// original newTableReader call shape used by dir.go's directory/index
// readers. The fragment table lookup goes through tables.go's lookupTable
// instead.
func (sb *Superblock) newTableReader(base int64, start int) (*metablockReader, error) {
	return sb.newMetablockReader(base, start)
}
