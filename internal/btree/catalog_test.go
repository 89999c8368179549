package btree

import (
	"encoding/binary"
	"testing"

	"github.com/deploymenttheory/vdfs4-unpacker/internal/datasource"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// putCatalogLeafNode writes a single-level catalog tree's root/leaf node
// carrying one folder record, directly under the root directory.
func putCatalogLeafNode(image []byte, metaIblock uint64, nodeID uint32, sync, mount uint32, name string, objectID uint64, linksCount uint64) {
	off := nodeOffset(metaIblock)
	copy(image[off:off+4], types.MagicBtreeNode)
	binary.LittleEndian.PutUint32(image[off+4:], sync)
	binary.LittleEndian.PutUint32(image[off+8:], mount)
	binary.LittleEndian.PutUint16(image[off+14:], 1) // one record
	binary.LittleEndian.PutUint32(image[off+16:], nodeID)
	binary.LittleEndian.PutUint32(image[off+24:], types.InvalidNodeID)

	const recordRelOffset = uint64(types.GeneralBtreeNodeSize)
	recPos := off + recordRelOffset

	binary.LittleEndian.PutUint16(image[recPos+4:], uint16(types.CatKeySize)) // GenericKey.KeyLen
	binary.LittleEndian.PutUint64(image[recPos+8:], uint64(types.RootInode))  // ParentID
	binary.LittleEndian.PutUint64(image[recPos+16:], objectID)
	image[recPos+24] = byte(types.RecordFolder)
	image[recPos+25] = byte(len(name))
	copy(image[recPos+26:], name)

	valuePos := recPos + types.CatKeySize
	binary.LittleEndian.PutUint64(image[valuePos+16:], linksCount) // CatalogFolderRecord.LinksCount

	offsetTablePos := off + (testNodeSizeBytes - types.CRC32Size - 4)
	binary.LittleEndian.PutUint32(image[offsetTablePos:], uint32(recordRelOffset))
}

func TestCatalogAllRecordsIteratorDecodesFolder(t *testing.T) {
	image := make([]byte, 200*1024)
	putBaseTableRecords(image, map[uint32]types.BaseTableRecord{
		0: {MetaIblock: 0, SyncCount: 9, MountCount: 0},
		1: {MetaIblock: 4, SyncCount: 3, MountCount: 0},
	})
	putHeadNode(image, 0, 1, leafLevel, 9, 0)
	putCatalogLeafNode(image, 4, 1, 3, 0, "etc", 10, 1)

	ds := datasource.New(&memSource{data: image})
	tree, err := New[types.CatKey](ds, testSuperBlocks(), baseTableWithRecords(nil), types.BtreeCatalogTree, types.CatKeySize, types.DecodeCatKey)
	require.NoError(t, err)
	cat := &CatalogTree{tree: tree}

	it, err := cat.AllRecordsIterator()
	require.NoError(t, err)

	rec, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, rec.Folder)
	assert.Equal(t, "etc", rec.Key.Data.NameString())
	assert.Equal(t, uint64(10), rec.Key.Data.ObjectID)
	assert.Equal(t, uint64(1), rec.Folder.LinksCount)

	_, ok, err = it.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}
