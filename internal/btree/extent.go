package btree

import (
	"github.com/deploymenttheory/vdfs4-unpacker/internal/datasource"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/types"
)

// ExtentTree is the extent tree facade: keys ordered by (object_id, iblock),
// values the logical-to-physical extent each key describes.
type ExtentTree struct {
	tree *Tree[types.ExtTreeKey]
}

// NewExtentTree opens the extent tree rooted in baseTable.
func NewExtentTree(ds *datasource.DataSource, superBlocks types.SuperBlocks, baseTable datasource.Pointer[types.BaseTable]) (*ExtentTree, error) {
	tree, err := New[types.ExtTreeKey](ds, superBlocks, baseTable, types.BtreeExtentsTree, types.ExtTreeKeySize, types.DecodeExtTreeKey)
	if err != nil {
		return nil, err
	}
	return &ExtentTree{tree: tree}, nil
}

// Height returns the extent tree's root-to-leaf depth.
func (e *ExtentTree) Height() uint16 { return e.tree.Height() }

// ObjectRecordsIterator walks every extent record belonging to a single
// object id, in ascending iblock order, stopping as soon as the object id
// changes.
type ObjectRecordsIterator struct {
	it       *RecordsIterator[types.ExtTreeKey]
	objectID uint64
}

// RecordsIterator seeds a scan at objectID's first possible extent record.
func (e *ExtentTree) RecordsIterator(objectID uint64) (*ObjectRecordsIterator, error) {
	it, err := e.tree.RecordsIterator(types.FromObjectID(objectID))
	if err != nil {
		return nil, err
	}
	return &ObjectRecordsIterator{it: it, objectID: objectID}, nil
}

// Next returns the next extent tree record for this iterator's object id, or
// ok=false once the iterator reaches a different object's records.
func (it *ObjectRecordsIterator) Next() (types.ExtTreeRecord, bool, error) {
	keyPtr, ok, err := it.it.Next()
	// The seed lookup lands on the floor of (objectID, 0), which can be a
	// record of a lower object id; step past those.
	for err == nil && ok && keyPtr.Data.ObjectID < it.objectID {
		keyPtr, ok, err = it.it.Next()
	}
	if err != nil || !ok {
		return types.ExtTreeRecord{}, false, err
	}
	if keyPtr.Data.ObjectID != it.objectID {
		return types.ExtTreeRecord{}, false, nil
	}

	// The stored value is a full Vdfs4ExtTreeRecord: a redundant copy of the
	// key followed by the physical lextent, not a bare Extent at value_offset.
	v, err := Value[types.ExtTreeKey, types.ExtTreeRecord](it.it.tree.ds, keyPtr, types.ExtTreeRecordSize, types.DecodeExtTreeRecord)
	if err != nil {
		return types.ExtTreeRecord{}, false, err
	}
	return types.ExtTreeRecord{Key: keyPtr.Data, Lextent: v.Data.Lextent}, true, nil
}
