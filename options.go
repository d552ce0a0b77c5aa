package squashfs

import (
	"github.com/sqfsgo/squashfs/internal/mapper"
)

// Option configures a Superblock at open time. Options are applied after
// the on-disk superblock has been parsed but before any table is read, so
// they may rely on BlockSize/Comp/etc already being populated.
type Option func(sb *Superblock) error

// InodeOffset shifts the inode numbers the fuse bridge reports
// (publicInodeNum and its directory listings) by the given amount, so a
// squashfs image can be combined with another filesystem's inode
// numbering without collisions. GetInode, Inode.Ino and fs.FileInfo keep
// the archive's own numbers.
func InodeOffset(inoOfft uint64) Option {
	return func(sb *Superblock) error {
		sb.inoOfft = inoOfft
		return nil
	}
}

// ArchiveOffset tells Open/New that the archive does not start at byte 0
// of the underlying reader, but at the given byte offset (an embedded
// squashfs image appended to another file, as many appliance firmware
// images do).
func ArchiveOffset(off int64) Option {
	return func(sb *Superblock) error {
		sb.archiveOffset = off
		return nil
	}
}

// SourceSize sets the archive length New uses when it wraps a plain
// io.ReaderAt, in place of the reader's own Size or Stat result, for
// readers that report no length or the wrong one. It has no effect when
// the backend comes from SourceMapper (as with Open and OpenHTTP);
// OpenHTTP takes its own size override as an argument.
func SourceSize(sz int64) Option {
	return func(sb *Superblock) error {
		sb.sourceSize = sz
		return nil
	}
}

// SourceMapper installs the mapper.Backend used to read the archive,
// overriding the default plain io.ReaderAt wrapper New() would otherwise
// construct. Used by OpenHTTP and by callers that want mmap or a custom
// backend.
func SourceMapper(b mapper.Backend) Option {
	return func(sb *Superblock) error {
		sb.backend = b
		return nil
	}
}

// MapperBlockSize sets the granularity (component D/E) at which the
// archive is sliced into cacheable windows. Must be a multiple of 4096;
// defaults to 128KiB.
func MapperBlockSize(n int) Option {
	return func(sb *Superblock) error {
		sb.mapperBlockSize = n
		return nil
	}
}

// MapperLRUSize bounds how many mapper windows (component E) stay mapped
// with no active holder before being evicted.
func MapperLRUSize(n int) Option {
	return func(sb *Superblock) error {
		sb.mapperLRUSize = n
		return nil
	}
}

// CompressionLRUSize bounds how many decompressed blocks (component G)
// stay cached with no active holder before being evicted.
func CompressionLRUSize(n int) Option {
	return func(sb *Superblock) error {
		sb.extractLRUSize = n
		return nil
	}
}

// MaxSymlinkDepth bounds the number of symlinks a path walk (component N)
// will follow before giving up with ErrTooManySymlinks. 0 leaves the default
// (defaultMaxSymlinkDepth) in place.
func MaxSymlinkDepth(n int) Option {
	return func(sb *Superblock) error {
		if n != 0 {
			sb.maxSymlinkDepth = n
		}
		return nil
	}
}

// ThreadPoolSize sets the number of workers backing the future/threadpool
// (component C) used for speculative read-ahead. 0 disables read-ahead
// and runs all decompression synchronously on the calling goroutine.
func ThreadPoolSize(n int) Option {
	return func(sb *Superblock) error {
		sb.threadPoolSize = n
		return nil
	}
}
