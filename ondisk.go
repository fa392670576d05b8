package blockfs

import (
	"bytes"
	"encoding/binary"
	"unsafe"
)

// onDiskInode is the exact 512-byte on-disk inode layout described in
// spec.md §3: length, is_dir, magic, 123 direct pointers, one indirect
// pointer, one double-indirect pointer. Every field is a fixed-size
// integer so binary.Write/binary.Read can (de)serialize the whole struct
// in one call.
type onDiskInode struct {
	Length         int32
	IsDir          int32
	Magic          uint32
	Direct         [DirectPtrs]uint32
	Indirect       uint32
	DoubleIndirect uint32
}

// Static assert: onDiskInode must be exactly one sector. Go has no
// static_assert keyword; a pair of array declarations whose length is
// (SectorSize - size) and (size - SectorSize) catches both directions,
// since a negative array length is a compile error and a zero length is not.
var (
	_ [SectorSize - int(unsafe.Sizeof(onDiskInode{}))]byte
	_ [int(unsafe.Sizeof(onDiskInode{})) - SectorSize]byte
)

func marshalInode(d *onDiskInode) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(SectorSize)
	if err := binary.Write(buf, binary.LittleEndian, d); err != nil {
		// onDiskInode has only fixed-size fields; this cannot fail.
		panic(err)
	}
	return buf.Bytes()
}

func unmarshalInode(raw []byte) (*onDiskInode, error) {
	if len(raw) < SectorSize {
		return nil, ErrInvalidMagic
	}
	d := new(onDiskInode)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, d); err != nil {
		return nil, err
	}
	if d.Magic != InodeMagic {
		return nil, ErrInvalidMagic
	}
	return d, nil
}
