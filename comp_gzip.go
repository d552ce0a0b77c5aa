package squashfs

import (
	"io"

	"github.com/klauspost/compress/zlib"
)

// SquashFS's "gzip" compression id is actually zlib-framed DEFLATE (a
// two-byte zlib header + deflate stream + adler32 trailer, not the gzip
// container format), matching mksquashfs's use of zlib's deflate()/
// inflate() directly.
func init() {
	RegisterDecompressor(GZip, MakeDecompressorErr(func(r io.Reader) (io.ReadCloser, error) {
		return zlib.NewReader(r)
	}))
}
