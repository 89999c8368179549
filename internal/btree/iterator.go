package btree

import (
	"fmt"

	"github.com/deploymenttheory/vdfs4-unpacker/internal/datasource"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/types"
)

// RecordsIterator walks a tree's leaf level forward from wherever it was
// seeded, crossing into the next node via next_node_id once the current
// node's last record is consumed.
type RecordsIterator[T Key[T]] struct {
	tree        *Tree[T]
	node        datasource.Pointer[types.GeneralBtreeNode]
	buffer      []byte
	recordIndex uint16
	done        bool
}

// Next returns the next record, or ok=false once the tree's leaf chain is
// exhausted. An out-of-order next_node_id (a self-loop) is reported as an
// error rather than iterated forever -- the tree was modified underneath
// the iterator.
func (it *RecordsIterator[T]) Next() (datasource.Pointer[T], bool, error) {
	if it.done {
		return datasource.Pointer[T]{}, false, nil
	}

	for it.recordIndex > it.node.Data.LastRecordIndex() {
		if it.node.Data.NextNodeID == types.InvalidNodeID {
			it.done = true
			return datasource.Pointer[T]{}, false, nil
		}
		if it.node.Data.NextNodeID == it.node.Data.NodeID {
			it.done = true
			return datasource.Pointer[T]{}, false, fmt.Errorf("tree was modified during iterating")
		}

		node, err := it.tree.getNode(it.node.Data.NextNodeID)
		if err != nil {
			return datasource.Pointer[T]{}, false, err
		}
		buffer, err := it.tree.ds.ReadBytesAt(node.Position, it.tree.nodeSizeBytes)
		if err != nil {
			return datasource.Pointer[T]{}, false, err
		}
		it.node = node
		it.buffer = buffer
		it.recordIndex = 0
	}

	record, err := it.tree.keyFromBuffer(it.buffer, it.node, it.recordIndex)
	if err != nil {
		return datasource.Pointer[T]{}, false, err
	}
	it.recordIndex++
	return record, true, nil
}
