//go:build zstd

package blockfs

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

func init() {
	registerComp(CompZstd, compCodec{
		Decompress: func(r io.Reader) (io.ReadCloser, error) {
			dec, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return dec.IOReadCloser(), nil
		},
		Compress: func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w)
		},
	})
}
