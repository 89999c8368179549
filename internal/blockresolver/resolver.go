// Package blockresolver translates a file's logical blocks to physical disk
// blocks: first against the up-to-nine extents a fork carries in-record,
// then against the extent tree for files whose placement outgrew that
// inline capacity.
package blockresolver

import (
	"github.com/deploymenttheory/vdfs4-unpacker/internal/btree"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/types"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/vdfserrors"
)

// Resolver resolves logical-to-physical block placement for files whose
// fork doesn't carry the answer directly.
type Resolver struct {
	extentTree *btree.ExtentTree
}

// New builds a Resolver backed by extentTree's fallback lookups.
func New(extentTree *btree.ExtentTree) *Resolver {
	return &Resolver{extentTree: extentTree}
}

// Resolve returns the physical block iblock maps to for objectID's fork.
func (r *Resolver) Resolve(objectID uint64, fork types.Fork, iblock uint64) (uint64, error) {
	for _, ie := range fork.Extents {
		if ie.Extent.Length == 0 {
			continue
		}
		if iblock >= ie.Iblock && iblock < ie.Iblock+ie.Extent.Length {
			return ie.Extent.Begin + (iblock - ie.Iblock), nil
		}
	}

	if r.extentTree == nil {
		return 0, &vdfserrors.FileBlockNotFoundError{Iblock: iblock}
	}
	it, err := r.extentTree.RecordsIterator(objectID)
	if err != nil {
		return 0, err
	}
	for {
		rec, ok, err := it.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		if iblock >= rec.Key.Iblock && iblock < rec.Key.Iblock+rec.Lextent.Length {
			return rec.Lextent.Begin + (iblock - rec.Key.Iblock), nil
		}
	}
	return 0, &vdfserrors.FileBlockNotFoundError{Iblock: iblock}
}
