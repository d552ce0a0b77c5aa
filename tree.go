package squashfs

import "io/fs"

// TreeState identifies what kind of node a TreeTraversal step just produced,
// mirroring original_source's SqshTreeTraversalState (file, or directory
// entered/left) so callers can tell a directory's opening visit from its
// closing one without re-deriving it from the path stack.
type TreeState int

const (
	TreeStateFile TreeState = iota
	TreeStateDirectoryBegin
	TreeStateDirectoryEnd
)

// treeFrame tracks one directory level: its inode, the name it was
// reached by, its (lazily loaded) children, and how many of them have
// been visited so far.
type treeFrame struct {
	ino     *Inode
	name    string
	entries []fs.DirEntry
	pos     int
	entered bool
}

// TreeTraversal walks an inode's subtree in pre/post order (component O),
// for callers that want explicit directory begin/end steps rather than
// fs.WalkDir's callback. Each directory's entries are read into an
// fs.DirEntry slice when the directory is entered. Not safe for
// concurrent use.
type TreeTraversal struct {
	sb    *Superblock
	stack []treeFrame

	state TreeState
	ino   *Inode
	name  string
}

// NewTreeTraversal starts a traversal rooted at ino.
func (sb *Superblock) NewTreeTraversal(ino *Inode) *TreeTraversal {
	return &TreeTraversal{
		sb:    sb,
		stack: []treeFrame{{ino: ino, name: ""}},
	}
}

// Next advances the traversal, returning false once the whole subtree has
// been visited. State/Inode/Depth/PathSegment describe the step Next just
// produced.
func (t *TreeTraversal) Next() (bool, error) {
	for len(t.stack) > 0 {
		top := &t.stack[len(t.stack)-1]

		if !top.entered {
			top.entered = true
			entries, err := t.sb.readDirEntries(top.ino)
			if err != nil {
				return false, err
			}
			top.entries = entries
			t.state = TreeStateDirectoryBegin
			t.ino = top.ino
			t.name = top.name
			return true, nil
		}

		if top.pos >= len(top.entries) {
			// every child visited: emit DIRECTORY_END and pop.
			t.state = TreeStateDirectoryEnd
			t.ino = top.ino
			t.name = top.name
			t.stack = t.stack[:len(t.stack)-1]
			return true, nil
		}

		entry := top.entries[top.pos]
		top.pos++

		child, err := entry.Info()
		if err != nil {
			return false, err
		}
		childIno := child.Sys().(*Inode)

		if childIno.IsDir() {
			t.stack = append(t.stack, treeFrame{ino: childIno, name: entry.Name()})
			continue
		}

		t.state = TreeStateFile
		t.ino = childIno
		t.name = entry.Name()
		return true, nil
	}

	return false, nil
}

// State returns the kind of step Next just produced.
func (t *TreeTraversal) State() TreeState { return t.state }

// Inode returns the inode Next just produced.
func (t *TreeTraversal) Inode() *Inode { return t.ino }

// Depth returns how many directories deep the current step is, the root
// itself being depth 0.
func (t *TreeTraversal) Depth() int {
	if t.state == TreeStateDirectoryEnd || t.state == TreeStateFile {
		return len(t.stack)
	}
	return len(t.stack) - 1
}

// PathSegment returns the name of the node at depth i along the path to
// the current step, matching original_source's
// sqsh_tree_traversal_path_segment.
func (t *TreeTraversal) PathSegment(i int) string {
	if i < 0 {
		return ""
	}
	if i < len(t.stack) {
		return t.stack[i].name
	}
	if i == len(t.stack) {
		return t.name
	}
	return ""
}

func (sb *Superblock) readDirEntries(ino *Inode) ([]fs.DirEntry, error) {
	dr, err := sb.dirReader(ino, nil)
	if err != nil {
		return nil, err
	}
	return dr.ReadDir(-1)
}
