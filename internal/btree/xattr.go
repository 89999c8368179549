package btree

import (
	"github.com/deploymenttheory/vdfs4-unpacker/internal/datasource"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/types"
)

// XattrTree is opened and version-checked the same way as the catalog and
// extent trees, but is never descended by the unpack path -- the same
// status as the free-space bitmap. Its presence here is for parity with the
// original engine, which parses it before deliberately leaving it unused.
type XattrTree struct {
	head datasource.Pointer[types.HeadBtreeNode]
}

// NewXattrTree opens and validates the xattr tree's head node without ever
// reading a record out of it.
func NewXattrTree(ds *datasource.DataSource, superBlocks types.SuperBlocks, baseTable datasource.Pointer[types.BaseTable]) (*XattrTree, error) {
	blockSize := uint64(1) << superBlocks.SuperBlock.LogBlockSize
	head, err := readBaseTableRecord(ds, superBlocks, blockSize, baseTable, types.BtreeXattrTree, 0, types.HeadBtreeNodeSize, types.DecodeHeadBtreeNode)
	if err != nil {
		return nil, err
	}
	return &XattrTree{head: head}, nil
}

func (x *XattrTree) RootBnodeID() uint32 { return x.head.Data.RootBnodeID }
func (x *XattrTree) Height() uint16      { return x.head.Data.BtreeHeight }
