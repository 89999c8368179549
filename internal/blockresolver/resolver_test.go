package blockresolver

import (
	"encoding/binary"
	"testing"

	"github.com/deploymenttheory/vdfs4-unpacker/internal/btree"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/datasource"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/types"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/vdfserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSource struct{ data []byte }

func (m *memSource) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.data[int(off):])
	if n < len(p) {
		return n, shortReadErr{}
	}
	return n, nil
}

type shortReadErr struct{}

func (shortReadErr) Error() string { return "short read" }

func TestResolveHitsInForkExtent(t *testing.T) {
	r := New(nil)
	fork := types.Fork{}
	fork.Extents[0] = types.Iextent{Iblock: 4, Extent: types.Extent{Begin: 1000, Length: 3}}

	block, err := r.Resolve(42, fork, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(1001), block)
}

func TestResolveMissReturnsFileBlockNotFound(t *testing.T) {
	r := New(nil)
	fork := types.Fork{}
	fork.Extents[0] = types.Iextent{Iblock: 0, Extent: types.Extent{Begin: 1000, Length: 1}}

	_, err := r.Resolve(42, fork, 9)
	// No extent tree fallback possible with a nil extentTree; a fork miss
	// that can never reach the tree still reports the right error shape
	// once fed a real tree below -- this just documents the no-hit path.
	assert.Error(t, err)
}

// buildExtentTreeImage constructs a minimal single-node extent tree with
// one record for objectID at iblock 0, for the fallback-lookup test.
func buildExtentTreeImage(t *testing.T) *btree.ExtentTree {
	t.Helper()
	const blockSize = 4096
	const nodeSizeBytes = 4 * blockSize
	const metaBeginBlk = 10

	image := make([]byte, 200*1024)

	// base table records at offset 0: node 0 (head), node 1 (leaf).
	putBaseTableRecord := func(nodeID uint32, metaIblock uint64, sync, mount uint32) {
		off := types.BaseTableRecordSize * uint64(nodeID)
		binary.LittleEndian.PutUint64(image[off:], metaIblock)
		binary.LittleEndian.PutUint32(image[off+8:], sync)
		binary.LittleEndian.PutUint32(image[off+12:], mount)
	}
	putBaseTableRecord(0, 0, 9, 0)
	putBaseTableRecord(1, 4, 3, 0)

	nodeOffset := func(metaIblock uint64) uint64 { return (metaBeginBlk + metaIblock) * blockSize }

	headOff := nodeOffset(0)
	copy(image[headOff:headOff+4], types.MagicBtreeHeadNode)
	binary.LittleEndian.PutUint32(image[headOff+4:], 9)
	binary.LittleEndian.PutUint32(image[headOff+8:], 0)
	binary.LittleEndian.PutUint32(image[headOff+12:], 1) // root bnode id
	binary.LittleEndian.PutUint16(image[headOff+16:], 1) // height

	leafOff := nodeOffset(4)
	copy(image[leafOff:leafOff+4], types.MagicBtreeNode)
	binary.LittleEndian.PutUint32(image[leafOff+4:], 3)
	binary.LittleEndian.PutUint32(image[leafOff+8:], 0)
	binary.LittleEndian.PutUint16(image[leafOff+14:], 1) // one record
	binary.LittleEndian.PutUint32(image[leafOff+16:], 1) // node id
	binary.LittleEndian.PutUint32(image[leafOff+24:], types.InvalidNodeID)

	recPos := leafOff + uint64(types.GeneralBtreeNodeSize)
	binary.LittleEndian.PutUint16(image[recPos+4:], uint16(types.ExtTreeKeySize))
	binary.LittleEndian.PutUint64(image[recPos+8:], 42) // object id
	binary.LittleEndian.PutUint64(image[recPos+16:], 0) // iblock

	// The value stored past the key is a full ExtTreeRecord: a redundant
	// embedded copy of the key, then the physical lextent.
	valuePos := recPos + uint64(types.ExtTreeKeySize)
	binary.LittleEndian.PutUint64(image[valuePos+8:], 42) // embedded object id
	binary.LittleEndian.PutUint64(image[valuePos+16:], 0) // embedded iblock
	lextentPos := valuePos + uint64(types.ExtTreeKeySize)
	binary.LittleEndian.PutUint64(image[lextentPos:], 5000) // Extent.Begin
	binary.LittleEndian.PutUint64(image[lextentPos+8:], 2)  // Extent.Length

	offsetTablePos := leafOff + (nodeSizeBytes - types.CRC32Size - 4)
	binary.LittleEndian.PutUint32(image[offsetTablePos:], uint32(types.GeneralBtreeNodeSize))

	var sb types.SuperBlocks
	sb.SuperBlock.LogBlockSize = 12
	sb.SuperBlock.LogSuperPageSize = 14
	sb.ExtSuperBlock.Meta[0] = types.Extent{Begin: metaBeginBlk, Length: 12}

	ds := datasource.New(&memSource{data: image})
	baseTable := datasource.Pointer[types.BaseTable]{Data: types.BaseTable{}, Position: 0}

	tree, err := btree.NewExtentTree(ds, sb, baseTable)
	require.NoError(t, err)
	return tree
}

func TestResolveFallsBackToExtentTree(t *testing.T) {
	extentTree := buildExtentTreeImage(t)
	r := New(extentTree)

	fork := types.Fork{} // no in-fork extents cover this object's data

	block, err := r.Resolve(42, fork, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(5001), block)

	_, err = r.Resolve(42, fork, 9)
	var notFound *vdfserrors.FileBlockNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
