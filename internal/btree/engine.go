// Package btree implements the generic VDFS4 B+tree engine: translating a
// node id to a physical offset through a snapshot's base table and the
// super block's meta-area extent list, then binary-searching within a
// node's trailing offset table. The catalog and extent trees are thin
// facades built on top of one generic engine instantiated per key type; the
// xattr facade only reads and validates its tree's head node and does not
// use the engine.
package btree

import (
	"fmt"

	"github.com/deploymenttheory/vdfs4-unpacker/internal/datasource"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/types"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/vdfserrors"
)

// leafLevel is the tree level real catalog/extent/xattr records live at;
// everything above it is an index level carrying GenericIndexValue children.
const leafLevel uint16 = 1

// Key is the constraint the catalog and extent key types satisfy (XattrTreeKey
// does not implement it): ordering against
// another key of the same type, and the byte distance from the key to its
// trailing value payload.
type Key[T any] interface {
	Compare(other T) int
	ValueOffset() uint64
}

// versionedNode is the constraint shared by HeadBtreeNode and
// GeneralBtreeNode: both carry a comparable version and a checkable signature.
type versionedNode interface {
	GetVersion() uint64
	CheckSignature() bool
}

// translatable is satisfied by BnodeType and BtreeType: both index into a
// base table's per-tree record arrays the same way.
type translatable interface {
	TranslationIndex() int
}

// Tree is the generic engine, instantiated once per key type by the
// catalog and extent facades.
type Tree[T Key[T]] struct {
	ds          *datasource.DataSource
	superBlocks types.SuperBlocks
	baseTable   datasource.Pointer[types.BaseTable]
	treeType    translatable

	blockSize     uint64
	nodeSizeBytes uint64
	keySize       int
	decodeKey     datasource.DecodeFunc[T]

	head datasource.Pointer[types.HeadBtreeNode]
}

// New opens the tree rooted at treeType's head node (node id 0). blockSize
// and nodeSizeBytes are derived from the super block's own log_block_size /
// log_super_page_size -- deliberately independent of the fixed default the
// snapshot manager uses for its own base-table offset math.
func New[T Key[T]](ds *datasource.DataSource, superBlocks types.SuperBlocks, baseTable datasource.Pointer[types.BaseTable], treeType translatable, keySize int, decodeKey datasource.DecodeFunc[T]) (*Tree[T], error) {
	sb := superBlocks.SuperBlock
	blockSize := uint64(1) << sb.LogBlockSize
	nodeSizeBytes := (uint64(1) << (sb.LogSuperPageSize - sb.LogBlockSize)) * blockSize

	t := &Tree[T]{
		ds:            ds,
		superBlocks:   superBlocks,
		baseTable:     baseTable,
		treeType:      treeType,
		blockSize:     blockSize,
		nodeSizeBytes: nodeSizeBytes,
		keySize:       keySize,
		decodeKey:     decodeKey,
	}

	head, err := readBaseTableRecord(ds, superBlocks, blockSize, baseTable, treeType, 0, types.HeadBtreeNodeSize, types.DecodeHeadBtreeNode)
	if err != nil {
		return nil, err
	}
	t.head = head
	return t, nil
}

// Height returns the tree's root-to-leaf depth, as recorded in its head node.
func (t *Tree[T]) Height() uint16 { return t.head.Data.BtreeHeight }

// RootBnodeID returns the node id the tree's head node points at.
func (t *Tree[T]) RootBnodeID() uint32 { return t.head.Data.RootBnodeID }

// getIblockOffset translates a meta-iblock into a physical block index by
// walking the super block's meta-area extent list in order.
func getIblockOffset(superBlocks types.SuperBlocks, metaIblock uint64) (uint64, error) {
	var total uint64
	for _, ext := range superBlocks.ExtSuperBlock.Meta {
		if ext.Length == 0 {
			continue
		}
		if total+ext.Length > metaIblock {
			return ext.Begin + (metaIblock - total), nil
		}
		total += ext.Length
	}
	return 0, fmt.Errorf("meta iblock %d is not covered by any meta-area extent", metaIblock)
}

// readBaseTableRecord resolves nodeID within treeType's translation table to
// a physical node, decodes its first size bytes as V, and validates the
// node's signature and version against the base table record it was
// resolved through.
func readBaseTableRecord[V versionedNode](ds *datasource.DataSource, superBlocks types.SuperBlocks, blockSize uint64, baseTable datasource.Pointer[types.BaseTable], treeType translatable, nodeID uint32, size int, decode datasource.DecodeFunc[V]) (datasource.Pointer[V], error) {
	firstRecordPosition := baseTable.Data.TranslatedPosition(baseTable.Position, treeType)
	recordPosition := firstRecordPosition + types.BaseTableRecordSize*uint64(nodeID)

	tableRecordPtr, err := datasource.ReadAt(ds, recordPosition, types.BaseTableRecordSize, types.DecodeBaseTableRecord)
	if err != nil {
		return datasource.Pointer[V]{}, err
	}

	iblockOffset, err := getIblockOffset(superBlocks, tableRecordPtr.Data.MetaIblock)
	if err != nil {
		return datasource.Pointer[V]{}, err
	}

	nodePtr, err := datasource.ReadAt(ds, iblockOffset*blockSize, size, decode)
	if err != nil {
		return datasource.Pointer[V]{}, err
	}

	if !nodePtr.Data.CheckSignature() {
		return datasource.Pointer[V]{}, &vdfserrors.InvalidNodeSignatureError{NodeID: nodeID}
	}
	if nodePtr.Data.GetVersion() != tableRecordPtr.Data.GetVersion() {
		return datasource.Pointer[V]{}, &vdfserrors.NodeVersionMismatchError{
			NodeVersion:      nodePtr.Data.GetVersion(),
			BaseTableVersion: tableRecordPtr.Data.GetVersion(),
		}
	}
	return nodePtr, nil
}

func (t *Tree[T]) getNode(nodeID uint32) (datasource.Pointer[types.GeneralBtreeNode], error) {
	return readBaseTableRecord(t.ds, t.superBlocks, t.blockSize, t.baseTable, t.treeType, nodeID, types.GeneralBtreeNodeSize, types.DecodeGeneralBtreeNode)
}

// bnodeOffsetOffset is the byte distance from a node's start to the index-th
// entry of its trailing offset table, which grows backwards from just
// before the node's own CRC-32.
func (t *Tree[T]) bnodeOffsetOffset(index uint16) uint64 {
	return t.nodeSizeBytes - uint64(types.CRC32Size) - 4*(uint64(index)+1)
}

func (t *Tree[T]) readBnodeOffsetFromBuffer(buffer []byte, node datasource.Pointer[types.GeneralBtreeNode], index uint16) (uint32, error) {
	if index > node.Data.LastRecordIndex() {
		return 0, &vdfserrors.RecordIndexOutOfBoundsError{Index: index}
	}
	offset, err := t.ds.ReadUint32From(buffer, int(t.bnodeOffsetOffset(index)))
	if err != nil {
		return 0, err
	}
	if offset == 0 || uint64(offset) >= t.nodeSizeBytes {
		return 0, &vdfserrors.RecordOffsetOutOfBoundsError{Offset: offset}
	}
	return offset, nil
}

func (t *Tree[T]) keyFromBuffer(buffer []byte, node datasource.Pointer[types.GeneralBtreeNode], index uint16) (datasource.Pointer[T], error) {
	offset, err := t.readBnodeOffsetFromBuffer(buffer, node, index)
	if err != nil {
		return datasource.Pointer[T]{}, err
	}
	return datasource.DecodeFrom(t.ds, buffer, node.Position, int(offset), t.decodeKey)
}

// checkValueOffset bounds a record's key-to-value distance against the
// largest possible key size, the same sanity check the original engine
// applies before dereferencing a record's value.
func checkValueOffset(offset uint64) (uint64, error) {
	if offset > types.KeyMaxLen {
		return 0, &vdfserrors.RecordValueOffsetOutOfBoundsError{Offset: offset}
	}
	return offset, nil
}

// binarySearch finds key (or its nearest lower neighbor) within node, using
// a right-biased midpoint so the search converges on the floor entry rather
// than looping forever on a two-record window.
func (t *Tree[T]) binarySearch(buffer []byte, node datasource.Pointer[types.GeneralBtreeNode], key T) (uint16, datasource.Pointer[T], error) {
	leftIndex := uint16(0)
	rightIndex := node.Data.LastRecordIndex()

	leftRecord, err := t.keyFromBuffer(buffer, node, leftIndex)
	if err != nil {
		return 0, datasource.Pointer[T]{}, err
	}

	if leftIndex == rightIndex || leftRecord.Data.Compare(key) == 0 {
		return leftIndex, leftRecord, nil
	}
	if leftRecord.Data.Compare(key) > 0 {
		return 0, datasource.Pointer[T]{}, vdfserrors.ErrLeftKeyAboveSearchKey
	}

	rightRecord, err := t.keyFromBuffer(buffer, node, rightIndex)
	if err != nil {
		return 0, datasource.Pointer[T]{}, err
	}
	if rightRecord.Data.Compare(key) == 0 {
		return rightIndex, rightRecord, nil
	}

	for leftIndex < rightIndex-1 {
		middleIndex := leftIndex + (rightIndex-leftIndex+1)/2
		middleRecord, err := t.keyFromBuffer(buffer, node, middleIndex)
		if err != nil {
			return 0, datasource.Pointer[T]{}, err
		}
		switch cmp := middleRecord.Data.Compare(key); {
		case cmp < 0:
			leftIndex = middleIndex
			leftRecord = middleRecord
		case cmp == 0:
			return middleIndex, middleRecord, nil
		default:
			rightIndex = middleIndex
		}
	}
	return leftIndex, leftRecord, nil
}

func (t *Tree[T]) traverseLevel(nodeID uint32, key T) (uint16, datasource.Pointer[T], datasource.Pointer[types.GeneralBtreeNode], error) {
	node, err := t.getNode(nodeID)
	if err != nil {
		return 0, datasource.Pointer[T]{}, datasource.Pointer[types.GeneralBtreeNode]{}, err
	}
	buffer, err := t.ds.ReadBytesAt(node.Position, t.nodeSizeBytes)
	if err != nil {
		return 0, datasource.Pointer[T]{}, datasource.Pointer[types.GeneralBtreeNode]{}, err
	}
	index, record, err := t.binarySearch(buffer, node, key)
	if err != nil {
		return 0, datasource.Pointer[T]{}, datasource.Pointer[types.GeneralBtreeNode]{}, err
	}
	return index, record, node, nil
}

// traverse descends from the tree's root down to tillLevel, following each
// index record's child node id until it reaches that level.
func (t *Tree[T]) traverse(key T, tillLevel uint16) (uint16, datasource.Pointer[T], datasource.Pointer[types.GeneralBtreeNode], error) {
	if tillLevel < 1 || tillLevel > t.head.Data.BtreeHeight {
		return 0, datasource.Pointer[T]{}, datasource.Pointer[types.GeneralBtreeNode]{}, &vdfserrors.LevelTooHighError{
			Requested: tillLevel,
			TreeLevel: t.head.Data.BtreeHeight,
		}
	}

	nodeID := t.head.Data.RootBnodeID
	for level := t.head.Data.BtreeHeight; ; level-- {
		index, record, node, err := t.traverseLevel(nodeID, key)
		if err != nil {
			return 0, datasource.Pointer[T]{}, datasource.Pointer[types.GeneralBtreeNode]{}, err
		}
		if level == tillLevel {
			return index, record, node, nil
		}

		valueOffset, err := checkValueOffset(record.Data.ValueOffset())
		if err != nil {
			return 0, datasource.Pointer[T]{}, datasource.Pointer[types.GeneralBtreeNode]{}, err
		}
		childPtr, err := datasource.ReadAt(t.ds, record.Position+valueOffset, types.GenericIndexValueSize, types.DecodeGenericIndexValue)
		if err != nil {
			return 0, datasource.Pointer[T]{}, datasource.Pointer[types.GeneralBtreeNode]{}, err
		}
		nodeID = childPtr.Data.NodeID
	}
}

// Find locates key's exact leaf record, or its nearest lower neighbor if an
// exact match isn't present.
func (t *Tree[T]) Find(key T) (datasource.Pointer[T], datasource.Pointer[types.GeneralBtreeNode], uint16, error) {
	index, record, node, err := t.traverse(key, leafLevel)
	return record, node, index, err
}

// RecordsIterator returns an iterator positioned at (or just before) startKey.
func (t *Tree[T]) RecordsIterator(startKey T) (*RecordsIterator[T], error) {
	index, _, node, err := t.traverse(startKey, leafLevel)
	if err != nil {
		return nil, err
	}
	buffer, err := t.ds.ReadBytesAt(node.Position, t.nodeSizeBytes)
	if err != nil {
		return nil, err
	}
	return &RecordsIterator[T]{tree: t, node: node, buffer: buffer, recordIndex: index}, nil
}

// Value decodes the value payload trailing key as a V, bounds-checking the
// key's declared value offset first.
func Value[T Key[T], V any](ds *datasource.DataSource, key datasource.Pointer[T], size int, decode datasource.DecodeFunc[V]) (datasource.Pointer[V], error) {
	offset, err := checkValueOffset(key.Data.ValueOffset())
	if err != nil {
		return datasource.Pointer[V]{}, err
	}
	return datasource.ReadAt(ds, key.Position+offset, size, decode)
}
