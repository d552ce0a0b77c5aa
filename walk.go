package squashfs

import (
	"context"
	"io/fs"
	"path"
	"strings"
)

// FindInode resolves a slash-separated path from the archive root to the
// inode it names (component N), generalizing the teacher's
// LookupRelativeInodePath with directory-only traversal and symlink
// following: any symlink crossed for an intermediate path component is
// always followed (you cannot otherwise continue descending), while the
// final component is only followed when follow is true, matching the
// Lstat/Stat split fs.FS callers expect.
func (sb *Superblock) FindInode(p string, follow bool) (*Inode, error) {
	return sb.findInode(sb.rootIno, p, follow, 0)
}

func (sb *Superblock) findInode(start *Inode, p string, follow bool, depth int) (*Inode, error) {
	cur := start
	p = strings.Trim(p, "/")
	if p == "" {
		return cur, nil
	}

	segs := strings.Split(p, "/")
	for idx, seg := range segs {
		if seg == "" || seg == "." {
			continue
		}
		if !cur.IsDir() {
			return nil, newErr("find", KindNotADirectory, ErrNotDirectory)
		}

		if seg == ".." {
			depth++
			if depth > sb.maxSymlinkDepth {
				return nil, newErr("find", KindSymlinkLoop, ErrTooManySymlinks)
			}
			// GetInode takes the public numbering, in which the root and
			// on-disk inode 1 trade numbers.
			parentN := uint64(cur.ParentIno)
			switch parentN {
			case sb.rootInoN:
				parentN = 1
			case 1:
				parentN = sb.rootInoN
			}
			parent, err := sb.GetInode(parentN)
			if err != nil {
				return nil, err
			}
			cur = parent
			continue
		}

		next, err := cur.LookupRelativeInode(context.Background(), seg)
		if err != nil {
			return nil, err
		}

		isLast := idx == len(segs)-1
		if Type(next.Type).IsSymlink() && (!isLast || follow) {
			depth++
			if depth > sb.maxSymlinkDepth {
				return nil, newErr("find", KindSymlinkLoop, ErrTooManySymlinks)
			}
			target, err := next.Readlink()
			if err != nil {
				return nil, err
			}
			resolveFrom := cur
			targetPath := string(target)
			if strings.HasPrefix(targetPath, "/") {
				resolveFrom = sb.rootIno
			}
			resolved, err := sb.findInode(resolveFrom, targetPath, follow || !isLast, depth)
			if err != nil {
				return nil, err
			}
			cur = resolved
			continue
		}

		cur = next
	}

	return cur, nil
}

// Lstat resolves path without following a symlink named by its final
// component, mirroring os.Lstat. It satisfies the fs.FileInfo callers
// expect from the stdlib fs helpers, matching the signature of fs.Stat.
func (sb *Superblock) Lstat(name string) (fs.FileInfo, error) {
	ino, err := sb.FindInode(name, false)
	if err != nil {
		return nil, err
	}
	return &fileinfo{name: path.Base(name), ino: ino}, nil
}
