package squashfs

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure the way spec §7 enumerates them. Most
// callers will use errors.Is against the package-level sentinel variables
// below; ErrorKind is exposed for callers that want the finer-grained
// taxonomy via errors.As(err, &se) where se is *SquashError.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindSuperblockTooSmall
	KindWrongMagic
	KindUnsupportedVersion
	KindUnsupportedCompression
	KindCorruptedMetablock
	KindCorruptedDatablock
	KindCorruptedInode
	KindCorruptedDirectory
	KindCorruptedXattr
	KindWrongInodeType
	KindNotFound
	KindNotADirectory
	KindNotASymlink
	KindSymlinkLoop
	KindOutOfBounds
	KindIO
	KindNoMemory
	KindInvalidArgument
)

func (k ErrorKind) String() string {
	switch k {
	case KindSuperblockTooSmall:
		return "SUPERBLOCK_TOO_SMALL"
	case KindWrongMagic:
		return "WRONG_MAGIC"
	case KindUnsupportedVersion:
		return "UNSUPPORTED_VERSION"
	case KindUnsupportedCompression:
		return "UNSUPPORTED_COMPRESSION"
	case KindCorruptedMetablock:
		return "CORRUPTED_METABLOCK"
	case KindCorruptedDatablock:
		return "CORRUPTED_DATABLOCK"
	case KindCorruptedInode:
		return "CORRUPTED_INODE"
	case KindCorruptedDirectory:
		return "CORRUPTED_DIRECTORY"
	case KindCorruptedXattr:
		return "CORRUPTED_XATTR"
	case KindWrongInodeType:
		return "WRONG_INODE_TYPE"
	case KindNotFound:
		return "NOT_FOUND"
	case KindNotADirectory:
		return "NOT_A_DIRECTORY"
	case KindNotASymlink:
		return "NOT_A_SYMLINK"
	case KindSymlinkLoop:
		return "SYMLINK_LOOP"
	case KindOutOfBounds:
		return "OUT_OF_BOUNDS"
	case KindIO:
		return "IO"
	case KindNoMemory:
		return "NO_MEMORY"
	case KindInvalidArgument:
		return "INVALID_ARGUMENT"
	default:
		return "UNKNOWN"
	}
}

// SquashError carries an ErrorKind, the operation that failed, and an
// optional wrapped cause.
type SquashError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *SquashError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("squashfs: %s: %s: %s", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("squashfs: %s: %s", e.Op, e.Kind)
}

func (e *SquashError) Unwrap() error { return e.Err }

func newErr(op string, kind ErrorKind, err error) *SquashError {
	return &SquashError{Kind: kind, Op: op, Err: err}
}

// Package-specific error variables that can be used with errors.Is() for error handling.
var (
	// ErrInvalidFile is returned when the file format is not recognized as SquashFS
	ErrInvalidFile = errors.New("invalid file, squashfs signature not found")

	// ErrInvalidSuper is returned when the superblock data is corrupted or invalid
	ErrInvalidSuper = errors.New("invalid squashfs superblock")

	// ErrInvalidVersion is returned when the SquashFS version is not 4.0
	// This library only supports SquashFS 4.0 format
	ErrInvalidVersion = errors.New("invalid file version, expected squashfs 4.0")

	// ErrInodeNotExported is returned when trying to access an inode that isn't in the export table
	ErrInodeNotExported = errors.New("unknown squashfs inode and no NFS export table")

	// ErrNotDirectory is returned when attempting to perform directory operations on a non-directory
	ErrNotDirectory = errors.New("not a directory")

	// ErrTooManySymlinks is returned when symlink resolution exceeds the maximum depth
	// This prevents infinite loops in symlink resolution
	ErrTooManySymlinks = errors.New("too many levels of symbolic links")

	// ErrNotFound is returned when a path component cannot be located.
	ErrNotFound = errors.New("squashfs: path not found")

	// ErrWrongInodeType is returned when an accessor is used on an inode
	// of the wrong variant (e.g. reading the symlink target of a directory).
	ErrWrongInodeType = errors.New("squashfs: wrong inode type")

	// ErrNotSymlink is returned when ReadLink is called on a non-symlink inode.
	ErrNotSymlink = errors.New("squashfs: not a symlink")

	// ErrOutOfBounds is returned when a mapper/table lookup falls outside
	// the archive's addressable range.
	ErrOutOfBounds = errors.New("squashfs: out of bounds")
)

func errKind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidFile):
		return KindWrongMagic
	case errors.Is(err, ErrInvalidSuper):
		return KindCorruptedInode
	case errors.Is(err, ErrInvalidVersion):
		return KindUnsupportedVersion
	case errors.Is(err, ErrInodeNotExported):
		return KindNotFound
	case errors.Is(err, ErrNotDirectory):
		return KindNotADirectory
	case errors.Is(err, ErrTooManySymlinks):
		return KindSymlinkLoop
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrWrongInodeType):
		return KindWrongInodeType
	case errors.Is(err, ErrNotSymlink):
		return KindNotASymlink
	case errors.Is(err, ErrOutOfBounds):
		return KindOutOfBounds
	default:
		return KindIO
	}
}
