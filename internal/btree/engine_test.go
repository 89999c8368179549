package btree

import (
	"encoding/binary"
	"testing"

	"github.com/deploymenttheory/vdfs4-unpacker/internal/datasource"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSource struct{ data []byte }

func (m *memSource) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.data[int(off):])
	if n < len(p) {
		return n, errShortRead
	}
	return n, nil
}

type shortReadErr struct{}

func (shortReadErr) Error() string { return "short read" }

var errShortRead = shortReadErr{}

const (
	testBlockSize     = 4096
	testNodeSizeBytes = 4 * testBlockSize // log_super_page_size=14, log_block_size=12
	testMetaBeginBlk  = 10
	testMetaLenBlk    = 12
)

func testSuperBlocks() types.SuperBlocks {
	var sb types.SuperBlocks
	sb.SuperBlock.LogBlockSize = 12
	sb.SuperBlock.LogSuperPageSize = 14
	sb.ExtSuperBlock.Meta[0] = types.Extent{Begin: testMetaBeginBlk, Length: testMetaLenBlk}
	return sb
}

// nodeOffset returns the absolute byte offset of the metaIblock-th node.
func nodeOffset(metaIblock uint64) uint64 {
	return (testMetaBeginBlk + metaIblock) * testBlockSize
}

func baseTableWithRecords(records map[uint32]types.BaseTableRecord) datasource.Pointer[types.BaseTable] {
	var bt types.BaseTable
	// Every translation slot points at the same records array; tests only
	// ever exercise one tree at a time, so this is harmless.
	for i := range bt.TranslationTableOffsets {
		bt.TranslationTableOffsets[i] = 0
	}
	return datasource.Pointer[types.BaseTable]{Data: bt, Position: 0}
}

func putBaseTableRecords(image []byte, records map[uint32]types.BaseTableRecord) {
	for nodeID, rec := range records {
		off := types.BaseTableRecordSize * uint64(nodeID)
		binary.LittleEndian.PutUint64(image[off:], rec.MetaIblock)
		binary.LittleEndian.PutUint32(image[off+8:], rec.SyncCount)
		binary.LittleEndian.PutUint32(image[off+12:], rec.MountCount)
	}
}

func putHeadNode(image []byte, metaIblock uint64, rootBnodeID uint32, height uint16, sync, mount uint32) {
	off := nodeOffset(metaIblock)
	copy(image[off:off+4], types.MagicBtreeHeadNode)
	binary.LittleEndian.PutUint32(image[off+4:], sync)
	binary.LittleEndian.PutUint32(image[off+8:], mount)
	binary.LittleEndian.PutUint32(image[off+12:], rootBnodeID)
	binary.LittleEndian.PutUint16(image[off+16:], height)
}

type testRecord struct {
	key   types.ExtTreeKey
	value types.Extent
}

func putLeafNode(image []byte, metaIblock uint64, nodeID, nextNodeID uint32, sync, mount uint32, records []testRecord) {
	off := nodeOffset(metaIblock)
	copy(image[off:off+4], types.MagicBtreeNode)
	binary.LittleEndian.PutUint32(image[off+4:], sync)
	binary.LittleEndian.PutUint32(image[off+8:], mount)
	binary.LittleEndian.PutUint16(image[off+14:], uint16(len(records)))
	binary.LittleEndian.PutUint32(image[off+16:], nodeID)
	binary.LittleEndian.PutUint32(image[off+24:], nextNodeID)

	recordRelOffset := uint64(types.GeneralBtreeNodeSize)
	for i, r := range records {
		recPos := off + recordRelOffset
		binary.LittleEndian.PutUint16(image[recPos+4:], uint16(types.ExtTreeKeySize)) // GenericKey.KeyLen
		binary.LittleEndian.PutUint64(image[recPos+8:], r.key.ObjectID)
		binary.LittleEndian.PutUint64(image[recPos+16:], r.key.Iblock)

		// The value past the key is a full ExtTreeRecord: an embedded copy
		// of the key, then the physical lextent.
		valuePos := recPos + uint64(types.ExtTreeKeySize)
		binary.LittleEndian.PutUint64(image[valuePos+8:], r.key.ObjectID)
		binary.LittleEndian.PutUint64(image[valuePos+16:], r.key.Iblock)
		lextentPos := valuePos + uint64(types.ExtTreeKeySize)
		binary.LittleEndian.PutUint64(image[lextentPos:], r.value.Begin)
		binary.LittleEndian.PutUint64(image[lextentPos+8:], r.value.Length)

		offsetTablePos := off + (testNodeSizeBytes - types.CRC32Size - 4*(uint64(i)+1))
		binary.LittleEndian.PutUint32(image[offsetTablePos:], uint32(recordRelOffset))

		recordRelOffset += types.ExtTreeKeySize + types.ExtTreeRecordSize
	}
}

func newTestExtentTree(t *testing.T, image []byte, rootBnodeID uint32, height uint16, headSync, headMount uint32) *ExtentTree {
	t.Helper()
	ds := datasource.New(&memSource{data: image})
	baseTable := baseTableWithRecords(nil)
	tree, err := New[types.ExtTreeKey](ds, testSuperBlocks(), baseTable, types.BtreeExtentsTree, types.ExtTreeKeySize, types.DecodeExtTreeKey)
	require.NoError(t, err)
	return &ExtentTree{tree: tree}
}

func TestBinarySearchFindsExactAndFloorRecords(t *testing.T) {
	image := make([]byte, 200*1024)
	putBaseTableRecords(image, map[uint32]types.BaseTableRecord{
		0: {MetaIblock: 0, SyncCount: 9, MountCount: 0},
		1: {MetaIblock: 4, SyncCount: 3, MountCount: 0},
	})
	putHeadNode(image, 0, 1, leafLevel, 9, 0)
	putLeafNode(image, 4, 1, types.InvalidNodeID, 3, 0, []testRecord{
		{key: types.ExtTreeKey{ObjectID: 1, Iblock: 0}, value: types.Extent{Begin: 100, Length: 1}},
		{key: types.ExtTreeKey{ObjectID: 1, Iblock: 5}, value: types.Extent{Begin: 200, Length: 1}},
		{key: types.ExtTreeKey{ObjectID: 1, Iblock: 10}, value: types.Extent{Begin: 300, Length: 1}},
	})

	et := newTestExtentTree(t, image, 1, leafLevel, 9, 0)

	keyPtr, _, index, err := et.tree.Find(types.ExtTreeKey{ObjectID: 1, Iblock: 5})
	require.NoError(t, err)
	assert.Equal(t, uint16(1), index)
	assert.Equal(t, uint64(5), keyPtr.Data.Iblock)

	// A search key between two records lands on the floor entry.
	keyPtr, _, index, err = et.tree.Find(types.ExtTreeKey{ObjectID: 1, Iblock: 7})
	require.NoError(t, err)
	assert.Equal(t, uint16(1), index)
	assert.Equal(t, uint64(5), keyPtr.Data.Iblock)
}

func TestRecordsIteratorCrossesToNextNode(t *testing.T) {
	image := make([]byte, 200*1024)
	putBaseTableRecords(image, map[uint32]types.BaseTableRecord{
		0: {MetaIblock: 0, SyncCount: 9, MountCount: 0},
		1: {MetaIblock: 4, SyncCount: 3, MountCount: 0},
		2: {MetaIblock: 8, SyncCount: 7, MountCount: 0},
	})
	putHeadNode(image, 0, 1, leafLevel, 9, 0)
	putLeafNode(image, 4, 1, 2, 3, 0, []testRecord{
		{key: types.ExtTreeKey{ObjectID: 1, Iblock: 0}, value: types.Extent{Begin: 100, Length: 1}},
	})
	putLeafNode(image, 8, 2, types.InvalidNodeID, 7, 0, []testRecord{
		{key: types.ExtTreeKey{ObjectID: 1, Iblock: 1}, value: types.Extent{Begin: 200, Length: 1}},
		{key: types.ExtTreeKey{ObjectID: 1, Iblock: 2}, value: types.Extent{Begin: 300, Length: 1}},
	})

	et := newTestExtentTree(t, image, 1, leafLevel, 9, 0)

	it, err := et.RecordsIterator(1)
	require.NoError(t, err)

	var seen []uint64
	for {
		rec, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen = append(seen, rec.Lextent.Begin)
	}
	assert.Equal(t, []uint64{100, 200, 300}, seen)
}

func TestRecordsIteratorStopsAtDifferentObjectID(t *testing.T) {
	image := make([]byte, 200*1024)
	putBaseTableRecords(image, map[uint32]types.BaseTableRecord{
		0: {MetaIblock: 0, SyncCount: 9, MountCount: 0},
		1: {MetaIblock: 4, SyncCount: 3, MountCount: 0},
	})
	putHeadNode(image, 0, 1, leafLevel, 9, 0)
	putLeafNode(image, 4, 1, types.InvalidNodeID, 3, 0, []testRecord{
		{key: types.ExtTreeKey{ObjectID: 1, Iblock: 0}, value: types.Extent{Begin: 100, Length: 1}},
		{key: types.ExtTreeKey{ObjectID: 2, Iblock: 0}, value: types.Extent{Begin: 200, Length: 1}},
	})

	et := newTestExtentTree(t, image, 1, leafLevel, 9, 0)

	it, err := et.RecordsIterator(1)
	require.NoError(t, err)

	rec, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(100), rec.Lextent.Begin)

	_, ok, err = it.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNodeVersionMismatchIsRejected(t *testing.T) {
	image := make([]byte, 200*1024)
	putBaseTableRecords(image, map[uint32]types.BaseTableRecord{
		0: {MetaIblock: 0, SyncCount: 9, MountCount: 0},
	})
	// Head node's own on-disk version (sync=1) doesn't match the base
	// table record's version (sync=9).
	putHeadNode(image, 0, 1, leafLevel, 1, 0)

	ds := datasource.New(&memSource{data: image})
	_, err := New[types.ExtTreeKey](ds, testSuperBlocks(), baseTableWithRecords(nil), types.BtreeExtentsTree, types.ExtTreeKeySize, types.DecodeExtTreeKey)
	assert.Error(t, err)
}

func TestFreeSpaceBit(t *testing.T) {
	image := make([]byte, 200*1024)
	putBaseTableRecords(image, map[uint32]types.BaseTableRecord{
		0: {MetaIblock: 0, SyncCount: 4, MountCount: 0},
	})
	putHeadNode(image, 0, 0, 0, 4, 0)

	bitmapStart := nodeOffset(0) + uint64(types.HeadBtreeNodeSize)
	image[bitmapStart] = 0b00000101 // bits 0 and 2 set

	ds := datasource.New(&memSource{data: image})
	sb := testSuperBlocks()
	sb.SuperBlock.LogSuperPageSize = 14

	bitmap, err := NewSpaceBitmap(ds, sb, baseTableWithRecords(nil))
	require.NoError(t, err)

	bit0, err := bitmap.FreeSpaceBit(0)
	require.NoError(t, err)
	assert.True(t, bit0)

	bit1, err := bitmap.FreeSpaceBit(1)
	require.NoError(t, err)
	assert.False(t, bit1)

	bit2, err := bitmap.FreeSpaceBit(2)
	require.NoError(t, err)
	assert.True(t, bit2)
}
