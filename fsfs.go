package squashfs

import (
	"io/fs"
	"path"
)

// Superblock satisfies fs.FS, fs.StatFS and fs.ReadDirFS so an opened
// archive can be handed directly to fs.ReadFile, fs.Stat, fs.Glob,
// fs.WalkDir, http.FileServer(http.FS(sqfs)), and friends.
var (
	_ fs.FS        = (*Superblock)(nil)
	_ fs.StatFS    = (*Superblock)(nil)
	_ fs.ReadDirFS = (*Superblock)(nil)
)

func (sb *Superblock) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	ino, err := sb.FindInode(name, true)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return ino.OpenFile(name), nil
}

func (sb *Superblock) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	ino, err := sb.FindInode(name, true)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return &fileinfo{name: path.Base(name), ino: ino}, nil
}

func (sb *Superblock) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	ino, err := sb.FindInode(name, true)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	if !ino.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: ErrNotDirectory}
	}
	dr, err := sb.dirReader(ino, nil)
	if err != nil {
		return nil, err
	}
	entries, err := dr.ReadDir(-1)
	if err != nil {
		return nil, err
	}
	sortDirEntries(entries)
	return entries, nil
}

// sortDirEntries keeps ReadDir's output in the lexical order fs.ReadDirFS
// implementations are expected to return, matching os.ReadDir's contract
// whatever order the entries were read back from disk in.
func sortDirEntries(entries []fs.DirEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].Name() > entries[j].Name(); j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}
