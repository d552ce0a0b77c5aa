package squashfs

import (
	"bytes"
	"encoding/binary"
	"io"
	"log"
	"net/http"
	"os"
	"reflect"
	"sync"

	"github.com/sqfsgo/squashfs/internal/future"
	"github.com/sqfsgo/squashfs/internal/mapper"
)

const defaultMaxSymlinkDepth = 100

// defaultMapperBlockSize is the default granularity (component D/E) at
// which the archive is sliced into cacheable windows: 128KiB.
const defaultMapperBlockSize = 1 << 17

// Superblock is the open archive handle (spec §4's "archive" object): the
// parsed 96-byte on-disk superblock plus every component needed to resolve
// inodes, directories and file data out of it. It is safe for concurrent
// use by multiple goroutines (spec §5); the pieces that are not -
// dirReader, metablockReader, xattrIterator, TreeTraversal - are obtained
// fresh per caller.
//
// https://dr-emann.github.io/squashfs/
type Superblock struct {
	fs    io.ReaderAt
	order binary.ByteOrder

	Magic             uint32
	InodeCnt          uint32
	ModTime           int32
	BlockSize         uint32
	FragCount         uint32
	Comp              Compression
	BlockLog          uint16
	Flags             Flags
	IdCount           uint16
	VMajor            uint16
	VMinor            uint16
	RootInode         uint64
	BytesUsed         uint64
	IdTableStart      uint64
	XattrIdTableStart uint64
	InodeTableStart   uint64
	DirTableStart     uint64
	FragTableStart    uint64
	ExportTableStart  uint64

	backend       mapper.Backend
	archiveOffset int64
	sourceSize    int64

	mapperBlockSize int
	mapperLRUSize   int
	extractLRUSize  int
	maxSymlinkDepth int
	threadPoolSize  int

	maps    *mapManager
	extract *extractManager
	pool    *future.Pool

	inoOfft  uint64
	rootIno  *Inode
	rootInoN uint64

	inoIdxL sync.RWMutex
	inoIdx  map[uint32]inodeRef

	idTable    *idTable
	fragTable  *fragTable
	xattrTable *xattrTable
	exportTbl  *exportTable
}

// New opens an archive from an arbitrary io.ReaderAt, matching the
// teacher's original entry point. A plain pread backend is built
// automatically unless SourceMapper supplies one. Its length is taken from
// SourceSize, or else from a Size() int64 or Stat() method on the reader;
// a reader with neither and no SourceSize is sized as empty and fails to
// open.
func New(fs io.ReaderAt, opts ...Option) (*Superblock, error) {
	sb := &Superblock{
		mapperBlockSize: defaultMapperBlockSize,
		mapperLRUSize:   64,
		extractLRUSize:  256,
		maxSymlinkDepth: defaultMaxSymlinkDepth,
	}

	for _, o := range opts {
		if err := o(sb); err != nil {
			return nil, err
		}
	}

	if sb.backend == nil {
		size := sb.sourceSize
		if size == 0 {
			if sz, ok := fs.(interface{ Size() int64 }); ok {
				size = sz.Size()
			} else if st, ok := fs.(interface{ Stat() (os.FileInfo, error) }); ok {
				if info, err := st.Stat(); err == nil {
					size = info.Size()
				}
			}
		}
		sb.backend = mapper.NewReaderAt(fs, size+sb.archiveOffset)
	}

	return sb.open()
}

// Open opens an archive stored in a regular local file.
func Open(path string, opts ...Option) (*Superblock, error) {
	b, err := mapper.OpenMmap(path)
	if err != nil {
		return nil, newErr("open", KindIO, err)
	}
	return New(readerAtCloser{b}, append([]Option{SourceMapper(b)}, opts...)...)
}

// OpenHTTP opens an archive served over HTTP byte-range requests (spec
// §6's HTTP source mapper). sizeOverride lets a caller supply the content
// length when the server doesn't report one via HEAD; pass 0 otherwise.
func OpenHTTP(client *http.Client, url string, sizeOverride int64, opts ...Option) (*Superblock, error) {
	b, err := mapper.OpenHTTP(client, url, sizeOverride)
	if err != nil {
		return nil, newErr("open", KindIO, err)
	}
	return New(readerAtCloser{b}, append([]Option{SourceMapper(b)}, opts...)...)
}

// readerAtCloser lets a mapper.Backend double as the io.ReaderAt New()
// expects when a caller went through Open/OpenHTTP rather than supplying
// their own reader.
type readerAtCloser struct{ b mapper.Backend }

func (r readerAtCloser) ReadAt(p []byte, off int64) (int, error) {
	w, err := r.b.MapBlock(off, len(p))
	if err != nil {
		return 0, err
	}
	defer r.b.Unmap(w)
	n := copy(p, w.Bytes())
	return n, nil
}

// offsetBackend rebases a backend so byte 0 of the archive maps to
// `offset` bytes into the underlying source, for ArchiveOffset.
type offsetBackend struct {
	inner  mapper.Backend
	offset int64
}

func (o offsetBackend) Size() (int64, error) {
	sz, err := o.inner.Size()
	if err != nil {
		return 0, err
	}
	return sz - o.offset, nil
}

func (o offsetBackend) MapBlock(offset int64, length int) (mapper.Window, error) {
	return o.inner.MapBlock(offset+o.offset, length)
}

func (o offsetBackend) Unmap(w mapper.Window) { o.inner.Unmap(w) }
func (o offsetBackend) Close() error          { return o.inner.Close() }

func (sb *Superblock) open() (*Superblock, error) {
	if sb.archiveOffset != 0 {
		sb.backend = offsetBackend{inner: sb.backend, offset: sb.archiveOffset}
	}

	maps, err := newMapManager(sb.backend, sb.mapperBlockSize, sb.mapperLRUSize)
	if err != nil {
		return nil, newErr("open", KindIO, err)
	}
	sb.maps = maps
	sb.fs = maps

	head := make([]byte, sb.binarySize())
	if _, err := sb.fs.ReadAt(head, 0); err != nil {
		return nil, newErr("open", KindIO, err)
	}
	if err := sb.UnmarshalBinary(head); err != nil {
		return nil, newErr("open", errKind(err), err)
	}

	sb.extract = newExtractManager(sb, sb.extractLRUSize)
	if sb.threadPoolSize != 0 {
		sb.pool = future.NewPool(sb.threadPoolSize)
	}

	sb.inoIdx = make(map[uint32]inodeRef)

	root, err := sb.GetInodeRef(inodeRefFromPacked(sb.RootInode))
	if err != nil {
		return nil, newErr("open", KindCorruptedInode, err)
	}
	sb.rootIno = root
	sb.rootInoN = uint64(root.Ino)
	sb.inoIdx[root.Ino] = inodeRefFromPacked(sb.RootInode)

	return sb, nil
}

func inodeRefFromPacked(v uint64) inodeRef { return inodeRef(v) }

func (s *Superblock) UnmarshalBinary(data []byte) error {
	v := reflect.ValueOf(s).Elem()
	c := v.NumField()
	r := bytes.NewReader(data)

	switch string(data[:4]) {
	case "hsqs":
		s.order = binary.LittleEndian
	case "sqsh":
		s.order = binary.BigEndian
	default:
		return ErrInvalidFile
	}

	var err error
	for i := 0; i < c; i++ {
		name := v.Type().Field(i).Name[0]
		if name < 'A' || name > 'Z' {
			continue
		}
		err = binary.Read(r, s.order, v.Field(i).Addr().Interface())
		if err != nil {
			return err
		}
	}

	if s.Magic != 0x73717368 {
		return ErrInvalidSuper
	}
	if s.VMajor != 4 {
		return ErrInvalidVersion
	}
	if s.BlockLog < 12 || s.BlockLog > 20 || s.BlockSize != 1<<s.BlockLog {
		return ErrInvalidSuper
	}

	log.Printf("squashfs: opened archive, %d inodes, block size %d, compression %s", s.InodeCnt, s.BlockSize, s.Comp)

	return nil
}

func (s *Superblock) binarySize() int {
	v := reflect.ValueOf(s).Elem()
	c := v.NumField()
	sz := uintptr(0)

	for i := 0; i < c; i++ {
		name := v.Type().Field(i).Name[0]
		if name < 'A' || name > 'Z' {
			continue
		}
		sz += v.Field(i).Type().Size()
	}
	return int(sz)
}

// setInodeRefCache records where on disk an already-resolved inode lives,
// so a later GetInode(ino) by number (e.g. from a directory entry seen
// again, or from the fuse bridge) can skip the export table.
func (sb *Superblock) setInodeRefCache(ino uint32, ref inodeRef) {
	sb.inoIdxL.Lock()
	sb.inoIdx[ino] = ref
	sb.inoIdxL.Unlock()
}

// Close releases the archive's backend and threadpool resources.
func (sb *Superblock) Close() error {
	if sb.pool != nil {
		sb.pool.Destroy()
	}
	if sb.backend != nil {
		return sb.backend.Close()
	}
	return nil
}
