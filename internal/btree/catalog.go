package btree

import (
	"github.com/deploymenttheory/vdfs4-unpacker/internal/datasource"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/types"
)

// CatalogTree is the catalog tree facade: keys ordered by
// (parent_id, name, name_len, object_id), values that vary by record type.
type CatalogTree struct {
	tree *Tree[types.CatKey]
}

// NewCatalogTree opens the catalog tree rooted in baseTable.
func NewCatalogTree(ds *datasource.DataSource, superBlocks types.SuperBlocks, baseTable datasource.Pointer[types.BaseTable]) (*CatalogTree, error) {
	tree, err := New[types.CatKey](ds, superBlocks, baseTable, types.BtreeCatalogTree, types.CatKeySize, types.DecodeCatKey)
	if err != nil {
		return nil, err
	}
	return &CatalogTree{tree: tree}, nil
}

// CatalogRecord pairs a decoded catalog key with whichever value record its
// RecordType carries -- at most one of Folder/File/Hlink is set.
type CatalogRecord struct {
	Key    datasource.Pointer[types.CatKey]
	Folder *types.CatalogFolderRecord
	File   *types.CatalogFileRecord
	Hlink  *types.CatalogHlinkRecord
}

// CatalogRecordsIterator walks every catalog record in key order.
type CatalogRecordsIterator struct {
	it *RecordsIterator[types.CatKey]
}

// Height returns the catalog tree's root-to-leaf depth.
func (c *CatalogTree) Height() uint16 { return c.tree.Height() }

// AllRecordsIterator seeds a full scan at the lexicographically first
// possible child of the root directory, mirroring the original engine's own
// full-catalog walk.
func (c *CatalogTree) AllRecordsIterator() (*CatalogRecordsIterator, error) {
	it, err := c.tree.RecordsIterator(types.ChildOfRoot())
	if err != nil {
		return nil, err
	}
	return &CatalogRecordsIterator{it: it}, nil
}

// Next decodes the next catalog record, resolving its value payload by
// RecordType.
func (it *CatalogRecordsIterator) Next() (CatalogRecord, bool, error) {
	keyPtr, ok, err := it.it.Next()
	if err != nil || !ok {
		return CatalogRecord{}, ok, err
	}

	rec := CatalogRecord{Key: keyPtr}
	switch keyPtr.Data.RecordType {
	case types.RecordFolder:
		v, err := Value[types.CatKey, types.CatalogFolderRecord](it.it.tree.ds, keyPtr, types.CatalogFolderRecordSize, types.DecodeCatalogFolderRecord)
		if err != nil {
			return CatalogRecord{}, false, err
		}
		rec.Folder = &v.Data
	case types.RecordFile:
		v, err := Value[types.CatKey, types.CatalogFileRecord](it.it.tree.ds, keyPtr, types.CatalogFileRecordSize, types.DecodeCatalogFileRecord)
		if err != nil {
			return CatalogRecord{}, false, err
		}
		rec.File = &v.Data
	case types.RecordHardLink:
		v, err := Value[types.CatKey, types.CatalogHlinkRecord](it.it.tree.ds, keyPtr, types.CatalogHlinkRecordSize, types.DecodeCatalogHlinkRecord)
		if err != nil {
			return CatalogRecord{}, false, err
		}
		rec.Hlink = &v.Data
	}
	return rec, true, nil
}

// Find looks up a single catalog record by its exact key.
func (c *CatalogTree) Find(key types.CatKey) (CatalogRecord, error) {
	keyPtr, _, _, err := c.tree.Find(key)
	if err != nil {
		return CatalogRecord{}, err
	}
	rec := CatalogRecord{Key: keyPtr}
	switch keyPtr.Data.RecordType {
	case types.RecordFolder:
		v, err := Value[types.CatKey, types.CatalogFolderRecord](c.tree.ds, keyPtr, types.CatalogFolderRecordSize, types.DecodeCatalogFolderRecord)
		if err != nil {
			return CatalogRecord{}, err
		}
		rec.Folder = &v.Data
	case types.RecordFile:
		v, err := Value[types.CatKey, types.CatalogFileRecord](c.tree.ds, keyPtr, types.CatalogFileRecordSize, types.DecodeCatalogFileRecord)
		if err != nil {
			return CatalogRecord{}, err
		}
		rec.File = &v.Data
	case types.RecordHardLink:
		v, err := Value[types.CatKey, types.CatalogHlinkRecord](c.tree.ds, keyPtr, types.CatalogHlinkRecordSize, types.DecodeCatalogHlinkRecord)
		if err != nil {
			return CatalogRecord{}, err
		}
		rec.Hlink = &v.Data
	}
	return rec, nil
}
