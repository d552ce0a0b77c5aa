package squashfs

import "fmt"

// inodeRef packs the two coordinates needed to locate an inode's header
// within the inode metablock stream: which metablock (by byte offset from
// the start of the inode table, "outer") and where inside that decompressed
// metablock the inode header starts ("inner"). The on-disk packing is
// outer:48 bits / inner:16 bits (spec §3) — the teacher snapshot's
// inoderef.go instead read this as a 32/16 split, silently truncating the
// outer offset's top 16 bits for any archive whose inode table exceeds 4GiB
// of metablocks, so the shift/mask here is corrected to match the spec.
type inodeRef uint64

func newInodeRef(outer uint64, inner uint16) inodeRef {
	return inodeRef((outer << 16) | uint64(inner))
}

// Index returns the outer metablock offset, in bytes from the start of the
// inode table. Bits 16-63 of the packed reference (48 bits).
func (i inodeRef) Index() uint64 {
	return uint64(i) >> 16
}

// Offset returns the inner byte offset within that metablock's decompressed
// contents (bits 0-15, 16 bits).
func (i inodeRef) Offset() uint16 {
	return uint16(uint64(i) & 0xffff)
}

func (i inodeRef) String() string {
	return fmt.Sprintf("inodeRef(index=0x%x,offset=0x%x)", i.Index(), i.Offset())
}
