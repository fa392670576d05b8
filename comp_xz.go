//go:build xz

package blockfs

import (
	"io"

	"github.com/ulikunitz/xz"
)

func init() {
	registerComp(CompXZ, compCodec{
		Decompress: func(r io.Reader) (io.ReadCloser, error) {
			rc, err := xz.NewReader(r)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(rc), nil
		},
		Compress: func(w io.Writer) (io.WriteCloser, error) {
			return xz.NewWriter(w)
		},
	})
}
