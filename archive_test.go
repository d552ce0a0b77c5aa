package squashfs

import (
	"bytes"
	"encoding/binary"
	"io"
)

// testArchive is a hand-built in-memory archive used by the white-box
// table/walk/tree tests below. Every metablock it writes is marked
// uncompressed (the high bit of the 2-byte length header, spec §3), so
// these tests exercise the addressing and iteration logic without needing
// a registered codec.
type testArchive struct {
	buf bytes.Buffer
}

// writeMetablock appends one uncompressed metablock and returns the byte
// offset its 2-byte length header starts at - the "outer" coordinate
// callers address it by.
func (a *testArchive) writeMetablock(data []byte) int64 {
	off := int64(a.buf.Len())
	hdr := uint16(len(data)) | 0x8000
	binary.Write(&a.buf, binary.LittleEndian, hdr)
	a.buf.Write(data)
	return off
}

// pad appends n raw bytes (not wrapped in a metablock header), used to
// place flat-array table records and lookup-table index pointers that
// tables.go's lookupTable reads directly via ReadAt rather than through a
// metablockReader.
func (a *testArchive) pad(b []byte) int64 {
	off := int64(a.buf.Len())
	a.buf.Write(b)
	return off
}

func (a *testArchive) bytes() []byte { return a.buf.Bytes() }

// mockArchiveReader is a plain io.ReaderAt over a byte slice, the
// white-box counterpart of mock_test.go's black-box mockReader.
type mockArchiveReader struct{ data []byte }

func (r *mockArchiveReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// newTestSuperblock wraps data in the minimal Superblock needed to drive
// metablockReader/lookupTable/extractManager directly, without going
// through Open/New's on-disk header decode.
func newTestSuperblock(data []byte) *Superblock {
	sb := &Superblock{
		order:           binary.LittleEndian,
		maxSymlinkDepth: defaultMaxSymlinkDepth,
	}
	sb.backend = nil
	sb.fs = &mockArchiveReader{data: data}
	sb.extract = newExtractManager(sb, 64)
	sb.inoIdx = make(map[uint32]inodeRef)
	return sb
}

// --- directory/inode record encoding helpers, shared by the table,
// walk and tree traversal tests ---

// encodeBasicDirInode matches GetInodeRef's case 1 layout.
func encodeBasicDirInode(typ uint16, perm, uidIdx, gidIdx uint16, modTime int32, ino uint32, startBlock uint32, nlink uint32, size uint16, offset uint16, parentIno uint32) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, typ)
	binary.Write(&b, binary.LittleEndian, perm)
	binary.Write(&b, binary.LittleEndian, uidIdx)
	binary.Write(&b, binary.LittleEndian, gidIdx)
	binary.Write(&b, binary.LittleEndian, modTime)
	binary.Write(&b, binary.LittleEndian, ino)
	binary.Write(&b, binary.LittleEndian, startBlock)
	binary.Write(&b, binary.LittleEndian, nlink)
	binary.Write(&b, binary.LittleEndian, size)
	binary.Write(&b, binary.LittleEndian, offset)
	binary.Write(&b, binary.LittleEndian, parentIno)
	return b.Bytes()
}

// encodeBasicFileInode matches GetInodeRef's case 2 layout, with no data
// blocks (fragment-only file).
func encodeBasicFileInode(ino uint32, startBlock uint32, fragBlock, fragOfft uint32, size uint32) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, uint16(2))
	binary.Write(&b, binary.LittleEndian, uint16(0o644))
	binary.Write(&b, binary.LittleEndian, uint16(0))
	binary.Write(&b, binary.LittleEndian, uint16(0))
	binary.Write(&b, binary.LittleEndian, int32(0))
	binary.Write(&b, binary.LittleEndian, ino)
	binary.Write(&b, binary.LittleEndian, startBlock)
	binary.Write(&b, binary.LittleEndian, fragBlock)
	binary.Write(&b, binary.LittleEndian, fragOfft)
	binary.Write(&b, binary.LittleEndian, size)
	return b.Bytes()
}

// encodeBasicSymlinkInode matches GetInodeRef's case 3 layout.
func encodeBasicSymlinkInode(ino uint32, target string) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, uint16(3))
	binary.Write(&b, binary.LittleEndian, uint16(0o777))
	binary.Write(&b, binary.LittleEndian, uint16(0))
	binary.Write(&b, binary.LittleEndian, uint16(0))
	binary.Write(&b, binary.LittleEndian, int32(0))
	binary.Write(&b, binary.LittleEndian, ino)
	binary.Write(&b, binary.LittleEndian, uint32(1)) // NLink
	binary.Write(&b, binary.LittleEndian, uint32(len(target)))
	b.WriteString(target)
	return b.Bytes()
}

// dirEntSpec is one entry to encode into a directory block.
type dirEntSpec struct {
	name  string
	typ   uint16
	inoR  inodeRef
}

// encodeDirBlock matches dir.go's dirReader wire format: one 12-byte
// header (count-1, startBlock, inodeNum) followed by fixed entries, all
// sharing the header's startBlock as their inodeRef outer coordinate.
func encodeDirBlock(startBlock uint32, ents []dirEntSpec) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, uint32(len(ents)-1))
	binary.Write(&b, binary.LittleEndian, startBlock)
	binary.Write(&b, binary.LittleEndian, uint32(0)) // inodeNum, unused by dirReader

	for _, e := range ents {
		binary.Write(&b, binary.LittleEndian, uint16(e.inoR.Offset()))
		binary.Write(&b, binary.LittleEndian, int16(0)) // inoNum2, unused
		binary.Write(&b, binary.LittleEndian, e.typ)
		binary.Write(&b, binary.LittleEndian, uint16(len(e.name)-1))
		b.WriteString(e.name)
	}
	return b.Bytes()
}

// dirSize is the on-disk directory_size a basic-dir inode must carry for
// a block encoded by encodeDirBlock: dirReader's EOF sentinel is "3 bytes
// left in the limited reader", matching the format's header-overhead
// convention.
func dirSize(block []byte) uint16 {
	return uint16(len(block) + 3)
}
