package squashfs

import (
	"bytes"
	"fmt"
	"io"
)

// Compression identifies one of the six on-disk compression algorithms a
// SquashFS 4.0 superblock can declare (spec §3). Named Compression (rather
// than the teacher snapshot's SquashComp) to match what the teacher's own
// test suite (squashfs_components_test.go: TestCompression) already
// expects.
type Compression uint16

const (
	GZip Compression = 1
	LZMA Compression = 2
	LZO  Compression = 3
	XZ   Compression = 4
	LZ4  Compression = 5
	ZSTD Compression = 6
)

func (s Compression) String() string {
	switch s {
	case GZip:
		return "GZip"
	case LZMA:
		return "LZMA"
	case LZO:
		return "LZO"
	case XZ:
		return "XZ"
	case LZ4:
		return "LZ4"
	case ZSTD:
		return "ZSTD"
	}
	return fmt.Sprintf("Compression(%d)", s)
}

// Decompressor turns a single compressed block into decompressed bytes.
// expectedSize is the caller's known decompressed length when one is
// derivable from the on-disk layout (<= 8192 for a metablock, the block
// size implied by the file's block list for a data block), or 0 when the
// codec must discover the length itself by reading to stream end.
// Implementations must not retain src past the call.
type Decompressor func(expectedSize int, src []byte) ([]byte, error)

var decompressors = map[Compression]Decompressor{}

// RegisterDecompressor installs the decompressor for a given compression
// id. Codec files call this from an init() func, mirroring the registration
// shape the teacher's comp_xz.go/comp_zstd.go already reference
// (RegisterCompHandler / RegisterDecompressor) without ever defining it.
func RegisterDecompressor(c Compression, d Decompressor) {
	decompressors[c] = d
}

// MakeDecompressor adapts a stateless io.Reader-wrapping decompressor
// factory that cannot itself fail (e.g. zstd.ZipDecompressor()'s
// `func(io.Reader) io.ReadCloser`) into the Decompressor shape.
func MakeDecompressor(open func(io.Reader) io.ReadCloser) Decompressor {
	return MakeDecompressorErr(func(r io.Reader) (io.ReadCloser, error) {
		return open(r), nil
	})
}

// MakeDecompressorErr adapts a decompressor factory that can fail at
// construction time (e.g. xz.NewReader, which validates the stream header
// up front) into the Decompressor shape.
func MakeDecompressorErr(open func(io.Reader) (io.ReadCloser, error)) Decompressor {
	return func(expectedSize int, src []byte) ([]byte, error) {
		rc, err := open(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		buf := bytes.NewBuffer(make([]byte, 0, expectedSize))
		if _, err := io.Copy(buf, rc); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// decompress dispatches to the registered codec for sb.Comp. The "none"
// compression id isn't registered (bypassed by callers checking the
// uncompressed flag directly per spec §4.F), so an unregistered codec here
// always means UNSUPPORTED_COMPRESSION. expectedSize is forwarded to the
// codec as a size hint; see Decompressor.
func (sb *Superblock) decompress(src []byte, expectedSize int) ([]byte, error) {
	d, ok := decompressors[sb.Comp]
	if !ok {
		return nil, newErr("decompress", KindUnsupportedCompression, fmt.Errorf("unsupported compression %s", sb.Comp))
	}
	out, err := d(expectedSize, src)
	if err != nil {
		return nil, newErr("decompress", KindCorruptedMetablock, err)
	}
	return out, nil
}
