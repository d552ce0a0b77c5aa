package squashfs

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// mksquashfs's LZ4 blocks are raw lz4 block-format data (no frame magic or
// container), so unlike the stream-oriented codecs above this one needs the
// expected decompressed size up front to size the destination buffer, which
// the extract manager always has available from the on-disk layout (spec
// §4.F/§4.G). github.com/pierrec/lz4/v4's UncompressBlock is the exact
// primitive for this, grounded on the pack's own raw-block lz4 usage
// (diskfs-go-diskfs, ethereum-go-ethereum vendor pierrec/lz4).
func init() {
	RegisterDecompressor(LZ4, func(expectedSize int, src []byte) ([]byte, error) {
		if expectedSize <= 0 {
			return nil, fmt.Errorf("lz4: decompressed size unknown")
		}
		dst := make([]byte, expectedSize)
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, err
		}
		return dst[:n], nil
	})
}
