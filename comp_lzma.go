package squashfs

import (
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// LZMA-compressed SquashFS blocks are raw LZMA1 streams (no .xz container),
// which is what the xz module's lzma subpackage reads directly.
func init() {
	RegisterDecompressor(LZMA, MakeDecompressorErr(func(r io.Reader) (io.ReadCloser, error) {
		rc, err := lzma.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(rc), nil
	}))
}
