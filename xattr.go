package squashfs

import (
	"encoding/binary"
	"io"
)

// xattrPrefix maps the wire-format prefix index (squash_xattr_type &
// 0xff, spec §4.M) to the on-disk key's printed prefix, grounded on
// original_source/src/xattr.h's SquashXattrKey/SquashXattrLookupTable
// layout and mksquashfs's fixed prefix table.
var xattrPrefix = [...]string{
	"user.",
	"trusted.",
	"security.",
}

const xattrPrefixOol = 0x100

// XattrEntry is one extended attribute found on an inode: a full name
// (prefix already expanded) and its value.
type XattrEntry struct {
	Name  string
	Value []byte
}

// xattrIterator walks the xattr list for a single inode (component M),
// following each key with either an inline or out-of-line ("OoL") value
// per spec §4.M.
type xattrIterator struct {
	sb          *Superblock
	r           *metablockReader
	left        uint32
	idTableAddr int64
}

// Xattrs returns an iterator over the inode's extended attributes, or an
// empty iterator (zero entries) for archives with no xattr table or inodes
// that reference none.
func (i *Inode) Xattrs() (*xattrIterator, error) {
	if i.XattrIdx == noXattr {
		return &xattrIterator{}, nil
	}

	xt, err := i.sb.getXattrTable()
	if err != nil {
		if err == ErrNotFound || errKind(err) == KindNotFound {
			return &xattrIterator{}, nil
		}
		return nil, err
	}

	entry, err := xt.Lookup(i.XattrIdx)
	if err != nil {
		return nil, err
	}

	r, err := i.sb.newMetablockReader(int64(xt.idTableAddr)+int64(entry.XattrRef.Index()), int(entry.XattrRef.Offset()))
	if err != nil {
		return nil, err
	}

	return &xattrIterator{sb: i.sb, r: r, left: entry.Count, idTableAddr: xt.idTableAddr}, nil
}

// Next advances the iterator, returning io.EOF once every entry has been
// read.
func (x *xattrIterator) Next() (XattrEntry, error) {
	if x.left == 0 {
		return XattrEntry{}, io.EOF
	}
	x.left--

	var typ, nameSize uint16
	if err := binary.Read(x.r, x.sb.order, &typ); err != nil {
		return XattrEntry{}, err
	}
	if err := binary.Read(x.r, x.sb.order, &nameSize); err != nil {
		return XattrEntry{}, err
	}

	nameBuf := make([]byte, nameSize)
	if _, err := io.ReadFull(x.r, nameBuf); err != nil {
		return XattrEntry{}, err
	}

	prefixIdx := typ &^ xattrPrefixOol
	prefix := ""
	if int(prefixIdx) < len(xattrPrefix) {
		prefix = xattrPrefix[prefixIdx]
	}

	var valueSize uint32
	if err := binary.Read(x.r, x.sb.order, &valueSize); err != nil {
		return XattrEntry{}, err
	}

	var value []byte
	if typ&xattrPrefixOol != 0 {
		// out-of-line: the inline "value" is actually an 8-byte
		// inodeRef into the xattr value metablock region.
		var refRaw uint64
		if err := binary.Read(x.r, x.sb.order, &refRaw); err != nil {
			return XattrEntry{}, err
		}
		ref := inodeRef(refRaw)
		vr, err := x.sb.newMetablockReader(x.idTableAddr+int64(ref.Index()), int(ref.Offset()))
		if err != nil {
			return XattrEntry{}, err
		}
		var oolSize uint32
		if err := binary.Read(vr, x.sb.order, &oolSize); err != nil {
			return XattrEntry{}, err
		}
		value = make([]byte, oolSize)
		if _, err := io.ReadFull(vr, value); err != nil {
			return XattrEntry{}, err
		}
	} else {
		value = make([]byte, valueSize)
		if _, err := io.ReadFull(x.r, value); err != nil {
			return XattrEntry{}, err
		}
	}

	return XattrEntry{Name: prefix + string(nameBuf), Value: value}, nil
}
