package btree

import (
	"fmt"

	"github.com/deploymenttheory/vdfs4-unpacker/internal/datasource"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/types"
)

// SpaceBitmap exposes the free-space bitmap tree's head node as a
// byte-addressable bit vector. Like the xattr tree, it's opened and
// validated but never descended as a tree -- the bitmap lives directly
// after the head node within the same super page.
type SpaceBitmap struct {
	ds                *datasource.DataSource
	head              datasource.Pointer[types.HeadBtreeNode]
	bitmapSizeInBytes uint64
}

// NewSpaceBitmap opens the free-space bitmap.
func NewSpaceBitmap(ds *datasource.DataSource, superBlocks types.SuperBlocks, baseTable datasource.Pointer[types.BaseTable]) (*SpaceBitmap, error) {
	blockSize := uint64(1) << superBlocks.SuperBlock.LogBlockSize
	head, err := readBaseTableRecord(ds, superBlocks, blockSize, baseTable, types.BnodeSpaceBitmap, 0, types.HeadBtreeNodeSize, types.DecodeHeadBtreeNode)
	if err != nil {
		return nil, err
	}

	superPageSize := uint64(1) << superBlocks.SuperBlock.LogSuperPageSize
	bitmapSize := superPageSize - types.HeadBtreeNodeSize - uint64(types.CRC32Size)
	return &SpaceBitmap{ds: ds, head: head, bitmapSizeInBytes: bitmapSize}, nil
}

// FreeSpaceBit reports whether physical block n is marked free.
func (b *SpaceBitmap) FreeSpaceBit(n uint64) (bool, error) {
	byteIndex := n / 8
	bitIndex := n % 8
	if byteIndex >= b.bitmapSizeInBytes {
		return false, fmt.Errorf("block %d is out of range for a %d byte bitmap", n, b.bitmapSizeInBytes)
	}
	buf, err := b.ds.ReadBytesAt(b.head.Position+uint64(types.HeadBtreeNodeSize)+byteIndex, 1)
	if err != nil {
		return false, err
	}
	return buf[0]&(1<<bitIndex) != 0, nil
}
