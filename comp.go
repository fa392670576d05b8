package blockfs

import (
	"fmt"
	"io"
)

// SnapshotComp identifies the compression codec a snapshot was written
// with, stored in the snapshot header so Import can pick the matching
// decompressor without the caller naming it.
type SnapshotComp uint16

const (
	// CompNone stores the raw device image with no compression.
	CompNone SnapshotComp = 0
	// CompXZ is available when built with the xz build tag (comp_xz.go).
	CompXZ SnapshotComp = 1
	// CompZstd is available when built with the zstd build tag (comp_zstd.go).
	CompZstd SnapshotComp = 2
)

func (c SnapshotComp) String() string {
	switch c {
	case CompNone:
		return "none"
	case CompXZ:
		return "xz"
	case CompZstd:
		return "zstd"
	}
	return fmt.Sprintf("SnapshotComp(%d)", c)
}

// compCodec wraps a reader or writer with a codec's (de)compression layer.
type compCodec struct {
	Decompress func(r io.Reader) (io.ReadCloser, error)
	Compress   func(w io.Writer) (io.WriteCloser, error)
}

// compRegistry holds the codecs linked into the binary. Build tags on
// comp_xz.go and comp_zstd.go populate it via init(); without those tags
// only CompNone is available, and Export/Import reject any other value.
var compRegistry = map[SnapshotComp]compCodec{}

func registerComp(id SnapshotComp, c compCodec) {
	compRegistry[id] = c
}
