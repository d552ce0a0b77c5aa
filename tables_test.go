package squashfs

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildLookupTable writes a single index pointer plus one metablock of
// records and returns the archive bytes and the byte offset the table's
// index array starts at (what idTableAddr/IdTableStart/etc. point to).
func buildLookupTable(records [][]byte) ([]byte, int64) {
	var a testArchive
	var data bytes.Buffer
	for _, r := range records {
		data.Write(r)
	}
	blockOff := a.writeMetablock(data.Bytes())

	var ptr bytes.Buffer
	binary.Write(&ptr, binary.LittleEndian, uint64(blockOff))
	indexStart := a.pad(ptr.Bytes())
	return a.bytes(), indexStart
}

func TestIdTableLookup(t *testing.T) {
	ids := []uint32{1000, 1001, 65534}
	var recs [][]byte
	for _, id := range ids {
		var b bytes.Buffer
		binary.Write(&b, binary.LittleEndian, id)
		recs = append(recs, b.Bytes())
	}
	data, indexStart := buildLookupTable(recs)

	sb := newTestSuperblock(data)
	sb.IdTableStart = uint64(indexStart)
	sb.IdCount = uint16(len(ids))

	for i, want := range ids {
		got, err := sb.getIdTable().Lookup(uint16(i))
		if err != nil {
			t.Fatalf("Lookup(%d): %v", i, err)
		}
		if got != want {
			t.Fatalf("Lookup(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestFragTableLookup(t *testing.T) {
	type frag struct {
		start uint64
		size  uint32
		unc   bool
	}
	frags := []frag{
		{start: 0x1000, size: 4096, unc: false},
		{start: 0x9000, size: 2048, unc: true},
	}
	var recs [][]byte
	for _, f := range frags {
		var b bytes.Buffer
		binary.Write(&b, binary.LittleEndian, f.start)
		sz := f.size
		if f.unc {
			sz |= 0x1000000
		}
		binary.Write(&b, binary.LittleEndian, sz)
		binary.Write(&b, binary.LittleEndian, uint32(0)) // padding to 16 bytes
		recs = append(recs, b.Bytes())
	}
	data, indexStart := buildLookupTable(recs)

	sb := newTestSuperblock(data)
	sb.FragTableStart = uint64(indexStart)
	sb.FragCount = uint32(len(frags))

	for i, want := range frags {
		got, err := sb.getFragTable().Lookup(uint32(i))
		if err != nil {
			t.Fatalf("Lookup(%d): %v", i, err)
		}
		if got.Start != want.start || got.Size != want.size || got.Uncompressed != want.unc {
			t.Fatalf("Lookup(%d) = %+v, want start=%x size=%d unc=%v", i, got, want.start, want.size, want.unc)
		}
	}
}

func TestExportTableLookup(t *testing.T) {
	refs := []inodeRef{
		newInodeRef(0, 0x10),
		newInodeRef(8192, 0x40),
	}
	var recs [][]byte
	for _, r := range refs {
		var b bytes.Buffer
		binary.Write(&b, binary.LittleEndian, uint64(r))
		recs = append(recs, b.Bytes())
	}
	data, indexStart := buildLookupTable(recs)

	sb := newTestSuperblock(data)
	sb.ExportTableStart = uint64(indexStart)
	sb.InodeCnt = uint32(len(refs))

	exp, err := sb.getExportTable()
	if err != nil {
		t.Fatalf("getExportTable: %v", err)
	}
	for i, want := range refs {
		got, err := exp.Lookup(uint32(i + 1)) // export table is 1-based
		if err != nil {
			t.Fatalf("Lookup(%d): %v", i+1, err)
		}
		if got != want {
			t.Fatalf("Lookup(%d) = %v, want %v", i+1, got, want)
		}
	}

	if _, err := exp.Lookup(0); err == nil {
		t.Fatal("expected an error for inode 0")
	}
	if _, err := exp.Lookup(uint32(len(refs) + 1)); err == nil {
		t.Fatal("expected an error for an out-of-range inode number")
	}
}

func TestExportTableAbsent(t *testing.T) {
	sb := newTestSuperblock(nil)
	sb.ExportTableStart = invalidTableStart
	if _, err := sb.getExportTable(); err == nil {
		t.Fatal("expected an error when the export table is absent")
	}
}

func TestLookupTableOutOfBounds(t *testing.T) {
	data, indexStart := buildLookupTable([][]byte{{1, 2, 3, 4}})
	sb := newTestSuperblock(data)
	sb.IdTableStart = uint64(indexStart)
	sb.IdCount = 1

	if _, err := sb.getIdTable().Lookup(5); err == nil {
		t.Fatal("expected an out-of-bounds error")
	}
}
