package squashfs

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"log"
	"sync/atomic"
)

// noXattr marks an inode as carrying no xattr table reference, matching
// the on-disk NO_XATTR sentinel (basic inode types never even encode the
// field, so GetInodeRef seeds every inode with this value up front and
// only extended types overwrite it with a real table index).
const noXattr = 0xffffffff

type Inode struct {
	// refcnt is first value to get guaranteed 64bits alignment, if not sync/atomic will panic
	refcnt uint64 // for fuse

	sb *Superblock

	Type    uint16
	Perm    uint16
	UidIdx  uint16
	GidIdx  uint16
	ModTime int32
	Ino     uint32 // inode number

	StartBlock uint64
	NLink      uint32
	Size       uint64 // Careful, actual on disk size varies depending on type
	Offset     uint32 // uint16 for directories
	ParentIno  uint32 // for directories
	SymTarget  []byte // The target path this symlink points to
	IdxCount   uint16          // index count for advanced directories
	DirIndex   []DirIndexEntry // directory index entries, for large-directory binary search (component K)
	XattrIdx   uint32 // xattr table index (if relevant)
	Sparse     uint64

	// fragment
	FragBlock uint32
	FragOfft  uint32

	// file blocks (some have value 0x1001000)
	Blocks     []uint32
	BlocksOfft []uint64

	Rdev uint32 // block/char device major:minor, packed per mknod(2)
}

func (sb *Superblock) GetInode(ino uint64) (*Inode, error) {
	if ino == 1 {
		// get root inode
		return sb.rootIno, nil
	}
	if ino == sb.rootInoN {
		// we reverse
		ino = 1
	}

	// check index
	sb.inoIdxL.RLock()
	inor, ok := sb.inoIdx[uint32(ino)]
	sb.inoIdxL.RUnlock()
	if ok {
		return sb.GetInodeRef(inor)
	}

	export, err := sb.getExportTable()
	if err != nil {
		return nil, err
	}
	inor, err = export.Lookup(uint32(ino))
	if err != nil {
		return nil, err
	}
	found, err := sb.GetInodeRef(inor)
	if err != nil {
		return nil, err
	}
	sb.setInodeRefCache(found.Ino, inor)
	return found, nil
}

func (sb *Superblock) GetInodeRef(inor inodeRef) (*Inode, error) {
	r, err := sb.newInodeReader(inor)
	if err != nil {
		return nil, err
	}

	ino := &Inode{sb: sb, XattrIdx: noXattr}

	// read inode info
	err = binary.Read(r, sb.order, &ino.Type)
	if err != nil {
		return nil, err
	}
	err = binary.Read(r, sb.order, &ino.Perm)
	if err != nil {
		return nil, err
	}
	err = binary.Read(r, sb.order, &ino.UidIdx)
	if err != nil {
		return nil, err
	}
	err = binary.Read(r, sb.order, &ino.GidIdx)
	if err != nil {
		return nil, err
	}
	err = binary.Read(r, sb.order, &ino.ModTime)
	if err != nil {
		return nil, err
	}
	err = binary.Read(r, sb.order, &ino.Ino)
	if err != nil {
		return nil, err
	}

	//log.Printf("read inode #%d type=%d", ino.Ino, ino.Type)

	switch ino.Type {
	case 1: // Basic Directory
		var u32 uint32
		err = binary.Read(r, sb.order, &u32)
		if err != nil {
			return nil, err
		}
		ino.StartBlock = uint64(u32)

		err = binary.Read(r, sb.order, &ino.NLink)
		if err != nil {
			return nil, err
		}

		var u16 uint16
		err = binary.Read(r, sb.order, &u16)
		if err != nil {
			return nil, err
		}
		ino.Size = uint64(u16)

		err = binary.Read(r, sb.order, &u16)
		if err != nil {
			return nil, err
		}
		ino.Offset = uint32(u16)

		err = binary.Read(r, sb.order, &ino.ParentIno)
		if err != nil {
			return nil, err
		}

		//log.Printf("squashfs: read basic directory success, parent=%d", ino.ParentIno)
	case 8: // Extended dir
		var u32 uint32
		var u16 uint16

		err = binary.Read(r, sb.order, &ino.NLink)
		if err != nil {
			return nil, err
		}

		err = binary.Read(r, sb.order, &u32)
		if err != nil {
			return nil, err
		}
		ino.Size = uint64(u32)

		err = binary.Read(r, sb.order, &u32)
		if err != nil {
			return nil, err
		}
		ino.StartBlock = uint64(u32)

		err = binary.Read(r, sb.order, &ino.ParentIno)
		if err != nil {
			return nil, err
		}

		err = binary.Read(r, sb.order, &ino.IdxCount)
		if err != nil {
			return nil, err
		}

		err = binary.Read(r, sb.order, &u16)
		if err != nil {
			return nil, err
		}
		ino.Offset = uint32(u16)

		err = binary.Read(r, sb.order, &ino.XattrIdx)
		if err != nil {
			return nil, err
		}

		if ino.IdxCount > 0 {
			ino.DirIndex = make([]DirIndexEntry, ino.IdxCount)
			for idx := 0; idx < int(ino.IdxCount); idx++ {
				var entIndex, entStart, entSize uint32
				if err = binary.Read(r, sb.order, &entIndex); err != nil {
					return nil, err
				}
				if err = binary.Read(r, sb.order, &entStart); err != nil {
					return nil, err
				}
				if err = binary.Read(r, sb.order, &entSize); err != nil {
					return nil, err
				}
				nameBuf := make([]byte, int(entSize)+1)
				if _, err = io.ReadFull(r, nameBuf); err != nil {
					return nil, err
				}
				ino.DirIndex[idx] = DirIndexEntry{Index: entIndex, Start: entStart, Name: string(nameBuf)}
			}
		}
		//log.Printf("squashfs: read extended directory success, parent=%d indexes=%d size=%d", ino.ParentIno, ino.IdxCount, ino.Size)
	case 2: // Basic file
		var u32 uint32
		err = binary.Read(r, sb.order, &u32)
		if err != nil {
			return nil, err
		}
		ino.StartBlock = uint64(u32)

		// fragment_block_index
		err = binary.Read(r, sb.order, &ino.FragBlock)
		if err != nil {
			return nil, err
		}
		err = binary.Read(r, sb.order, &ino.FragOfft)
		if err != nil {
			return nil, err
		}
		err = binary.Read(r, sb.order, &u32)
		if err != nil {
			return nil, err
		}
		ino.Size = uint64(u32)

		// try to find out how many block_sizes entries
		blocks := int(ino.Size / uint64(sb.BlockSize))
		if ino.FragBlock == 0xffffffff {
			// file does not end in a fragment
			if ino.Size%uint64(sb.BlockSize) != 0 {
				blocks += 1
			}
		}
		//log.Printf("estimated %d blocks", blocks)

		ino.Blocks = make([]uint32, blocks)
		ino.BlocksOfft = make([]uint64, blocks)

		offt := uint64(0)

		// read blocks
		for i := 0; i < blocks; i += 1 {
			err = binary.Read(r, sb.order, &u32)
			if err != nil {
				return nil, err
			}

			ino.Blocks[i] = u32
			ino.BlocksOfft[i] = offt
			offt += uint64(u32) & 0xfffff // 1MB-1, since max block size is 1MB
		}

		if ino.FragBlock != 0xffffffff {
			// this has a fragment instead of last block
			ino.Blocks = append(ino.Blocks, 0xffffffff) // special code
		}
	case 9: // extended file
		err = binary.Read(r, sb.order, &ino.StartBlock)
		if err != nil {
			return nil, err
		}

		err = binary.Read(r, sb.order, &ino.Size)
		if err != nil {
			return nil, err
		}

		err = binary.Read(r, sb.order, &ino.Sparse) // TODO how to handle this?
		if err != nil {
			return nil, err
		}

		err = binary.Read(r, sb.order, &ino.NLink)
		if err != nil {
			return nil, err
		}

		// fragment_block_index
		err = binary.Read(r, sb.order, &ino.FragBlock)
		if err != nil {
			return nil, err
		}
		err = binary.Read(r, sb.order, &ino.FragOfft)
		if err != nil {
			return nil, err
		}

		err = binary.Read(r, sb.order, &ino.XattrIdx)
		if err != nil {
			return nil, err
		}

		// try to find out how many block_sizes entries
		blocks := int(ino.Size / uint64(sb.BlockSize))
		if ino.FragBlock == 0xffffffff {
			// file does not end in a fragment
			if ino.Size%uint64(sb.BlockSize) != 0 {
				blocks += 1
			}
		}
		//log.Printf("estimated %d blocks", blocks)

		ino.Blocks = make([]uint32, blocks)
		ino.BlocksOfft = make([]uint64, blocks)
		var u32 uint32

		offt := uint64(0)

		// read blocks
		for i := 0; i < blocks; i += 1 {
			err = binary.Read(r, sb.order, &u32)
			if err != nil {
				return nil, err
			}

			ino.Blocks[i] = u32
			ino.BlocksOfft[i] = offt
			offt += uint64(u32) & 0xfffff // 1MB-1, since max block size is 1MB
		}

		if ino.FragBlock != 0xffffffff {
			// this has a fragment instead of last block
			ino.Blocks = append(ino.Blocks, 0xffffffff) // special code
		}

		//log.Printf("squashfs: read extended file success, sparse=%d size=%d fragblock=%x", ino.Sparse, ino.Size, ino.FragBlock)
	case 3: // basic symlink
		err = binary.Read(r, sb.order, &ino.NLink)
		if err != nil {
			return nil, err
		}

		// read symlink target length
		var u32 uint32
		err = binary.Read(r, sb.order, &u32)
		if err != nil {
			return nil, err
		}

		if u32 > 4096 {
			// why is symlink length even stored as u32 ?
			return nil, errors.New("symlink target too long")
		}
		ino.Size = uint64(u32)

		// buffer
		buf := make([]byte, u32)
		_, err = io.ReadFull(r, buf)
		if err != nil {
			return nil, err
		}
		ino.SymTarget = buf

		//log.Printf("squashfs: read symlink to %s", ino.SymTarget)
	case 10: // extended symlink
		err = binary.Read(r, sb.order, &ino.NLink)
		if err != nil {
			return nil, err
		}

		// read symlink target length
		var u32 uint32
		err = binary.Read(r, sb.order, &u32)
		if err != nil {
			return nil, err
		}

		if u32 > 4096 {
			return nil, errors.New("symlink target too long")
		}
		ino.Size = uint64(u32)

		buf := make([]byte, u32)
		_, err = io.ReadFull(r, buf)
		if err != nil {
			return nil, err
		}
		ino.SymTarget = buf

		err = binary.Read(r, sb.order, &ino.XattrIdx)
		if err != nil {
			return nil, err
		}
	case 4, 5: // basic block/char device
		err = binary.Read(r, sb.order, &ino.NLink)
		if err != nil {
			return nil, err
		}
		err = binary.Read(r, sb.order, &ino.Rdev)
		if err != nil {
			return nil, err
		}
	case 11, 12: // extended block/char device
		err = binary.Read(r, sb.order, &ino.NLink)
		if err != nil {
			return nil, err
		}
		err = binary.Read(r, sb.order, &ino.Rdev)
		if err != nil {
			return nil, err
		}
		err = binary.Read(r, sb.order, &ino.XattrIdx)
		if err != nil {
			return nil, err
		}
	case 6, 7: // basic fifo/socket
		err = binary.Read(r, sb.order, &ino.NLink)
		if err != nil {
			return nil, err
		}
	case 13, 14: // extended fifo/socket
		err = binary.Read(r, sb.order, &ino.NLink)
		if err != nil {
			return nil, err
		}
		err = binary.Read(r, sb.order, &ino.XattrIdx)
		if err != nil {
			return nil, err
		}
	default:
		log.Printf("squashfs: unsupported inode type %d", ino.Type)
		return ino, nil
	}

	return ino, nil
}

func (i *Inode) ReadAt(p []byte, off int64) (int, error) {
	switch i.Type {
	case 2, 9: // Basic file
		//log.Printf("read request off=%d len=%d", off, len(p))

		if uint64(off) >= i.Size {
			// no read
			return 0, io.EOF
		}

		if uint64(off+int64(len(p))) > i.Size {
			p = p[:int64(i.Size)-off]
		}

		// we need to know what block to start with
		block := int(off / int64(i.sb.BlockSize))
		offset := int(off % int64(i.sb.BlockSize))
		n := 0

		for {
			var buf []byte

			// read block
			if i.Blocks[block] == 0xffffffff {
				// this is a fragment, need to decode fragment
				frag, err := i.sb.getFragTable().Lookup(i.FragBlock)
				if err != nil {
					return n, err
				}

				if frag.Uncompressed {
					buf = make([]byte, frag.Size)
					_, err = i.sb.fs.ReadAt(buf, int64(frag.Start))
					if err != nil {
						return n, err
					}
				} else {
					// read fragment
					buf = make([]byte, frag.Size)
					_, err = i.sb.fs.ReadAt(buf, int64(frag.Start))
					if err != nil {
						return n, err
					}

					// decompress
					raw := buf
					buf, err = i.sb.extract.Get(int64(frag.Start), len(raw), func() ([]byte, error) {
						return i.sb.decompress(raw, int(i.sb.BlockSize))
					})
					if err != nil {
						return n, err
					}
				}

				if i.FragOfft != 0 {
					buf = buf[i.FragOfft:]
				}
			} else if i.Blocks[block] == 0 {
				// this part of the file contains only zeroes
				buf = make([]byte, i.sb.BlockSize)
			} else {
				buf = make([]byte, i.Blocks[block]&0xfffff)
				_, err := i.sb.fs.ReadAt(buf, int64(i.StartBlock+i.BlocksOfft[block]))
				if err != nil {
					return n, err
				}

				// check for compression
				if i.Blocks[block]&0x1000000 == 0 {
					// compressed
					raw := buf
					dataOfft := int64(i.StartBlock + i.BlocksOfft[block])
					buf, err = i.sb.extract.Get(dataOfft, len(raw), func() ([]byte, error) {
						return i.sb.decompress(raw, int(i.sb.BlockSize))
					})
					if err != nil {
						return n, err
					}
				}
			}

			// check offset
			if offset > 0 {
				buf = buf[offset:]
			}

			// copy
			l := copy(p, buf)
			n += l
			if l == len(p) {
				// end of copy; warm the cache for the next block since
				// sequential reads (io.Copy, io.ReadAll) will likely ask
				// for it next.
				i.prefetchNext(block)
				return n, nil
			}

			// advance out ptr
			p = p[l:]

			// next block
			block += 1
			offset = 0
		}

		log.Printf("load at block=%d offset=%d", block, offset)
	}
	return 0, fs.ErrInvalid
}

// prefetchNext speculatively decompresses the block following block in
// the background, bounded by extractManager's semaphore (see extract.go),
// so a sequential reader doesn't pay decompression latency on every call.
func (i *Inode) prefetchNext(block int) {
	next := block + 1
	if next >= len(i.Blocks) {
		return
	}
	if i.Blocks[next] == 0xffffffff || i.Blocks[next] == 0 {
		// fragment tail or sparse hole: nothing to decompress ahead of time
		return
	}
	if i.Blocks[next]&0x1000000 != 0 {
		// stored uncompressed already
		return
	}

	dataOfft := int64(i.StartBlock + i.BlocksOfft[next])
	size := int(i.Blocks[next] & 0xfffff)
	i.sb.extract.Prefetch(dataOfft, size, func() ([]byte, error) {
		raw := make([]byte, size)
		if _, err := i.sb.fs.ReadAt(raw, dataOfft); err != nil {
			return nil, err
		}
		return i.sb.decompress(raw, int(i.sb.BlockSize))
	})
}

func (i *Inode) LookupRelativeInode(ctx context.Context, name string) (*Inode, error) {
	switch i.Type {
	case 1, 8:
		if seek := i.seekIndexFor(name); seek != nil {
			if found, err := i.scanFrom(seek, name); err == nil || err != fs.ErrNotExist {
				return found, err
			}
			// the index pointed us somewhere that didn't pan out (should
			// not happen for a well-formed archive); fall back to a full
			// scan from the start rather than report a false negative.
		}
		return i.scanFrom(nil, name)
	}
	return nil, newErr("lookup", KindWrongInodeType, ErrWrongInodeType)
}

// seekIndexFor returns the directory-index entry (component K) whose name
// sorts at or before name, the furthest such entry the on-disk index
// records, or nil if this directory has no index (small directories, or
// a basic rather than extended directory inode).
func (i *Inode) seekIndexFor(name string) *DirIndexEntry {
	if len(i.DirIndex) == 0 {
		return nil
	}
	lo, hi := 0, len(i.DirIndex)
	for lo < hi {
		mid := (lo + hi) / 2
		if i.DirIndex[mid].Name <= name {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return nil
	}
	return &i.DirIndex[lo-1]
}

func (i *Inode) scanFrom(seek *DirIndexEntry, name string) (*Inode, error) {
	dr, err := i.sb.dirReader(i, seek)
	if err != nil {
		return nil, err
	}
	for {
		ename, inoR, err := dr.next()
		if err != nil {
			if err == io.EOF {
				return nil, fs.ErrNotExist
			}
			return nil, err
		}

		if name == ename {
			found, err := i.sb.GetInodeRef(inoR)
			if err != nil {
				return nil, err
			}
			i.sb.setInodeRefCache(found.Ino, inoR)
			return found, nil
		}
	}
}

func (i *Inode) Mode() fs.FileMode {
	return (UnixToMode(uint32(i.Perm)) &^ fs.ModeType) | Type(i.Type).Mode()
}

func (i *Inode) IsDir() bool {
	switch i.Type {
	case 1, 8:
		return true
	}
	return false
}

func (i *Inode) Readlink() ([]byte, error) {
	switch i.Type {
	case 3, 10:
		return i.SymTarget, nil
	}
	return nil, fs.ErrInvalid
}

// GetUid resolves this inode's uid index through the id table. Returns 0
// if the table can't be read rather than propagating an error, matching
// the teacher's convention of fs.FileInfo-style accessors that cannot
// themselves fail.
func (i *Inode) GetUid() uint32 {
	id, err := i.sb.getIdTable().Lookup(i.UidIdx)
	if err != nil {
		return 0
	}
	return id
}

func (i *Inode) GetGid() uint32 {
	id, err := i.sb.getIdTable().Lookup(i.GidIdx)
	if err != nil {
		return 0
	}
	return id
}

func (i *Inode) AddRef(count uint64) uint64 {
	return atomic.AddUint64(&i.refcnt, count)
}

func (i *Inode) DelRef(count uint64) uint64 {
	return atomic.AddUint64(&i.refcnt, ^(count - 1))
}
