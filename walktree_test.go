package squashfs

import (
	"errors"
	"testing"
)

// buildWalkArchive constructs a tiny hand-built filesystem:
//
//	/ (root, ino 1)
//	  file.txt  (ino 2, regular file, fragment-only)
//	  link      (ino 3, symlink -> file.txt)
//	  sub/      (ino 4, dir, parent ino 1)
//	    inner.txt (ino 5, regular file, fragment-only)
//
// exercising component N (path walking, symlink following, ".." via
// GetInode's root shortcut) and component O (tree traversal) against real
// inode/directory data rather than just a symlink-free ".." depth count.
func buildWalkArchive(t *testing.T) *Superblock {
	t.Helper()
	var a testArchive

	var inodeTable []byte
	appendInode := func(rec []byte) uint16 {
		off := len(inodeTable)
		inodeTable = append(inodeTable, rec...)
		return uint16(off)
	}

	fileInnerOff := appendInode(encodeBasicFileInode(2, 0, 0, 0, 12))
	symlinkInnerOff := appendInode(encodeBasicSymlinkInode(3, "file.txt"))
	innerFileInnerOff := appendInode(encodeBasicFileInode(5, 0, 0, 0, 9))

	subBlock := encodeDirBlock(0, []dirEntSpec{
		{name: "inner.txt", typ: uint16(FileType), inoR: newInodeRef(0, innerFileInnerOff)},
	})
	subDirInnerOff := appendInode(encodeBasicDirInode(1, 0o755, 0, 0, 0, 4, 0, 2, dirSize(subBlock), 0, 1))

	rootBlock := encodeDirBlock(0, []dirEntSpec{
		{name: "file.txt", typ: uint16(FileType), inoR: newInodeRef(0, fileInnerOff)},
		{name: "link", typ: uint16(SymlinkType), inoR: newInodeRef(0, symlinkInnerOff)},
		{name: "sub", typ: uint16(DirType), inoR: newInodeRef(0, subDirInnerOff)},
	})
	rootBlockOff := uint16(len(subBlock))

	rootInnerOff := appendInode(encodeBasicDirInode(1, 0o755, 0, 0, 0, 1, 0, 2, dirSize(rootBlock), rootBlockOff, 1))

	inodeTableOff := a.writeMetablock(inodeTable)
	dirTableOff := a.writeMetablock(append(append([]byte{}, subBlock...), rootBlock...))

	sb := newTestSuperblock(a.bytes())
	sb.BlockSize = 131072
	sb.InodeTableStart = uint64(inodeTableOff)
	sb.DirTableStart = uint64(dirTableOff)

	root, err := sb.GetInodeRef(newInodeRef(0, rootInnerOff))
	if err != nil {
		t.Fatalf("resolving root inode: %v", err)
	}
	sb.rootIno = root
	sb.rootInoN = uint64(root.Ino)
	return sb
}

func TestFindInodeResolvesRegularPath(t *testing.T) {
	sb := buildWalkArchive(t)

	ino, err := sb.FindInode("sub/inner.txt", true)
	if err != nil {
		t.Fatalf("FindInode: %v", err)
	}
	if ino.Ino != 5 || ino.Type != uint16(FileType) {
		t.Fatalf("got ino=%d type=%d, want ino=5 type=%d", ino.Ino, ino.Type, FileType)
	}
}

func TestFindInodeFollowsSymlink(t *testing.T) {
	sb := buildWalkArchive(t)

	ino, err := sb.FindInode("link", true)
	if err != nil {
		t.Fatalf("FindInode(follow=true): %v", err)
	}
	if ino.Ino != 2 || ino.Type != uint16(FileType) {
		t.Fatalf("expected symlink to resolve to file.txt (ino 2), got ino=%d type=%d", ino.Ino, ino.Type)
	}
}

func TestFindInodeLstatDoesNotFollowFinalSymlink(t *testing.T) {
	sb := buildWalkArchive(t)

	ino, err := sb.FindInode("link", false)
	if err != nil {
		t.Fatalf("FindInode(follow=false): %v", err)
	}
	if ino.Ino != 3 || !Type(ino.Type).IsSymlink() {
		t.Fatalf("expected the symlink inode itself (ino 3), got ino=%d type=%d", ino.Ino, ino.Type)
	}
}

func TestFindInodeDotDotReturnsToParent(t *testing.T) {
	sb := buildWalkArchive(t)

	ino, err := sb.FindInode("sub/..", true)
	if err != nil {
		t.Fatalf("FindInode: %v", err)
	}
	if ino.Ino != 1 || !ino.IsDir() {
		t.Fatalf("expected .. from /sub to land back on root (ino 1), got ino=%d", ino.Ino)
	}
}

func TestFindInodeSymlinkLoop(t *testing.T) {
	// "loop" is a symlink to itself; with a small max depth this must
	// fail with ErrTooManySymlinks rather than recursing forever.
	sb := buildWalkArchiveWithSelfLoop(t)
	sb.maxSymlinkDepth = 5

	_, err := sb.FindInode("loop", true)
	if err == nil {
		t.Fatal("expected a symlink-loop error, got nil")
	}
	if !errors.Is(err, ErrTooManySymlinks) {
		t.Fatalf("expected ErrTooManySymlinks, got %v", err)
	}
}

// buildWalkArchiveWithSelfLoop is a standalone minimal archive (rather than
// reusing buildWalkArchive's layout) containing only a root directory with
// one self-referential symlink entry "loop" -> "loop".
func buildWalkArchiveWithSelfLoop(t *testing.T) *Superblock {
	t.Helper()
	var a testArchive

	var inodeTable []byte
	appendInode := func(rec []byte) uint16 {
		off := len(inodeTable)
		inodeTable = append(inodeTable, rec...)
		return uint16(off)
	}

	symlinkOff := appendInode(encodeBasicSymlinkInode(2, "loop"))
	rootBlock := encodeDirBlock(0, []dirEntSpec{
		{name: "loop", typ: uint16(SymlinkType), inoR: newInodeRef(0, symlinkOff)},
	})
	rootInnerOff := appendInode(encodeBasicDirInode(1, 0o755, 0, 0, 0, 1, 0, 2, dirSize(rootBlock), 0, 1))

	inodeTableOff := a.writeMetablock(inodeTable)
	dirTableOff := a.writeMetablock(rootBlock)

	sb := newTestSuperblock(a.bytes())
	sb.BlockSize = 131072
	sb.InodeTableStart = uint64(inodeTableOff)
	sb.DirTableStart = uint64(dirTableOff)

	root, err := sb.GetInodeRef(newInodeRef(0, rootInnerOff))
	if err != nil {
		t.Fatalf("resolving root inode: %v", err)
	}
	sb.rootIno = root
	sb.rootInoN = uint64(root.Ino)
	return sb
}

func TestTreeTraversalPrePostOrder(t *testing.T) {
	sb := buildWalkArchive(t)

	tt := sb.NewTreeTraversal(sb.rootIno)

	type step struct {
		state TreeState
		name  string
	}
	var got []step
	for {
		ok, err := tt.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, step{tt.State(), tt.name})
	}

	// root dir begin, then its children in directory order, descending
	// into sub/ before sub's DIRECTORY_END, then root's DIRECTORY_END.
	if len(got) == 0 {
		t.Fatal("expected at least one traversal step")
	}
	if got[0].state != TreeStateDirectoryBegin {
		t.Fatalf("expected first step to be DIRECTORY_BEGIN, got %v", got[0].state)
	}
	if got[len(got)-1].state != TreeStateDirectoryEnd {
		t.Fatalf("expected last step to be DIRECTORY_END, got %v", got[len(got)-1].state)
	}

	var sawSubBegin, sawSubEnd, sawInnerFile, sawTopFiles int
	for _, s := range got {
		switch {
		case s.name == "sub" && s.state == TreeStateDirectoryBegin:
			sawSubBegin++
		case s.name == "sub" && s.state == TreeStateDirectoryEnd:
			sawSubEnd++
		case s.name == "inner.txt" && s.state == TreeStateFile:
			sawInnerFile++
		case (s.name == "file.txt" || s.name == "link") && s.state == TreeStateFile:
			sawTopFiles++
		}
	}
	if sawSubBegin != 1 || sawSubEnd != 1 {
		t.Fatalf("expected exactly one sub DIRECTORY_BEGIN/END pair, got begin=%d end=%d", sawSubBegin, sawSubEnd)
	}
	if sawInnerFile != 1 {
		t.Fatalf("expected inner.txt visited once, got %d", sawInnerFile)
	}
	if sawTopFiles != 2 {
		t.Fatalf("expected file.txt and link visited as files, got %d", sawTopFiles)
	}
}
