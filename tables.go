package squashfs

import (
	"io"
)

// The id, fragment, export and xattr-id tables (spec §4.I) share one
// on-disk shape: a flat array of fixed-size records, addressed indirectly
// through a small index block of metablock offsets ("table of tables") so
// that looking up entry N costs one extra indirection read rather than a
// linear scan. The teacher snapshot never read any of these (only
// inode.go's fragment lookup did its own ad hoc version of the fragment
// case); idTable/fragTable/xattrTable/exportTable below generalize that
// lookup to all four tables.

// lookupTable is the shared addressing scheme: recordSize-byte records,
// recordsPerBlock of them per metablock, with a flat array of metablock
// start offsets living at indexStart.
type lookupTable struct {
	sb         *Superblock
	indexStart int64
	count      int
	recordSize int
}

func newLookupTable(sb *Superblock, indexStart int64, count, recordSize int) *lookupTable {
	return &lookupTable{sb: sb, indexStart: indexStart, count: count, recordSize: recordSize}
}

func (t *lookupTable) recordsPerBlock() int { return metablockSize / t.recordSize }

// read fetches the raw bytes for record idx.
func (t *lookupTable) read(idx int) ([]byte, error) {
	if idx < 0 || idx >= t.count {
		return nil, newErr("table", KindOutOfBounds, ErrOutOfBounds)
	}
	perBlock := t.recordsPerBlock()
	block := idx / perBlock
	within := idx % perBlock

	ptrBuf := make([]byte, 8)
	if _, err := t.sb.fs.ReadAt(ptrBuf, t.indexStart+int64(block)*8); err != nil {
		return nil, err
	}
	base := t.sb.order.Uint64(ptrBuf)

	r, err := t.sb.newMetablockReader(int64(base), within*t.recordSize)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, t.recordSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// idTable resolves the 16-bit uid/gid indices stored in an inode into the
// 32-bit ids they actually name (spec §3: UID/GID are stored indirectly).
type idTable struct{ *lookupTable }

func (sb *Superblock) getIdTable() *idTable {
	if sb.idTable == nil {
		sb.idTable = &idTable{newLookupTable(sb, int64(sb.IdTableStart), int(sb.IdCount), 4)}
	}
	return sb.idTable
}

func (t *idTable) Lookup(idx uint16) (uint32, error) {
	buf, err := t.read(int(idx))
	if err != nil {
		return 0, err
	}
	return t.sb.order.Uint32(buf), nil
}

// fragTable resolves a fragment_block_index into the (start, size) of the
// fragment block holding a file's tail, replacing inode.go's inline
// version of the same lookup with one that can also serve xattr/export
// lookups through the shared lookupTable plumbing.
type fragTable struct{ *lookupTable }

type fragEntry struct {
	Start        uint64
	Size         uint32
	Uncompressed bool
}

func (sb *Superblock) getFragTable() *fragTable {
	if sb.fragTable == nil {
		sb.fragTable = &fragTable{newLookupTable(sb, int64(sb.FragTableStart), int(sb.FragCount), 16)}
	}
	return sb.fragTable
}

func (t *fragTable) Lookup(idx uint32) (fragEntry, error) {
	buf, err := t.read(int(idx))
	if err != nil {
		return fragEntry{}, err
	}
	start := t.sb.order.Uint64(buf[0:8])
	size := t.sb.order.Uint32(buf[8:12])
	e := fragEntry{Start: start, Size: size & 0xffffff, Uncompressed: size&0x1000000 != 0}
	return e, nil
}

// exportTable resolves an NFS-exported inode number to the inodeRef that
// locates it in the inode table (spec §4.I), used by GetInode when the
// in-memory inoIdx cache from a prior directory walk hasn't seen the inode
// yet.
type exportTable struct{ *lookupTable }

func (sb *Superblock) getExportTable() (*exportTable, error) {
	if sb.ExportTableStart == invalidTableStart {
		return nil, ErrInodeNotExported
	}
	if sb.exportTbl == nil {
		sb.exportTbl = &exportTable{newLookupTable(sb, int64(sb.ExportTableStart), int(sb.InodeCnt), 8)}
	}
	return sb.exportTbl, nil
}

func (t *exportTable) Lookup(ino uint32) (inodeRef, error) {
	if ino == 0 || int(ino) > t.count {
		return 0, ErrInodeNotExported
	}
	buf, err := t.read(int(ino) - 1)
	if err != nil {
		return 0, err
	}
	return inodeRef(t.sb.order.Uint64(buf)), nil
}

// xattrTable maps an inode's xattr index to the start of its xattr list
// within the xattr metadata region (spec §4.M), grounded on
// original_source/src/xattr.h's sqsh_xattr_id struct (xattr offset, count,
// byte size).
type xattrTable struct {
	sb          *Superblock
	ids         *lookupTable
	idTableAddr int64
}

type xattrIdEntry struct {
	XattrRef inodeRef
	Count    uint32
	Size     uint32
}

func (sb *Superblock) getXattrTable() (*xattrTable, error) {
	if sb.XattrIdTableStart == invalidTableStart {
		return nil, newErr("xattr", KindNotFound, ErrNotFound)
	}
	if sb.xattrTable == nil {
		hdr := make([]byte, 16)
		if _, err := sb.fs.ReadAt(hdr, int64(sb.XattrIdTableStart)); err != nil {
			return nil, err
		}
		listStart := int64(sb.order.Uint64(hdr[0:8]))
		count := sb.order.Uint32(hdr[8:12])
		sb.xattrTable = &xattrTable{
			sb:          sb,
			ids:         newLookupTable(sb, int64(sb.XattrIdTableStart)+16, int(count), 16),
			idTableAddr: listStart,
		}
	}
	return sb.xattrTable, nil
}

func (t *xattrTable) Lookup(idx uint32) (xattrIdEntry, error) {
	buf, err := t.ids.read(int(idx))
	if err != nil {
		return xattrIdEntry{}, err
	}
	ref := inodeRef(t.sb.order.Uint64(buf[0:8]))
	count := t.sb.order.Uint32(buf[8:12])
	size := t.sb.order.Uint32(buf[12:16])
	return xattrIdEntry{XattrRef: ref, Count: count, Size: size}, nil
}

// invalidTableStart is the on-disk sentinel (spec §3) meaning "this table
// is absent" for optional tables (xattr, export).
const invalidTableStart = ^uint64(0)
