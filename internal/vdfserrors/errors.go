// Package vdfserrors defines the typed error kinds shared across the
// data source, snapshot, B+tree, block resolver and file decoder layers,
// mirroring the layered VdfsError/BtreeError/DataSourceError split of the
// format this unpacker implements.
package vdfserrors

import "fmt"

// DataSource errors surface a failed read/seek against the backing image.
type DataSourceError struct {
	Op  string
	Err error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source: %s: %v", e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// NewDataSourceError wraps a lower level I/O error with the operation that failed.
func NewDataSourceError(op string, err error) *DataSourceError {
	return &DataSourceError{Op: op, Err: err}
}

// Btree errors cover node navigation and record decode failures.
var (
	ErrBaseTableMissing = fmt.Errorf("no valid base table found in either snapshot slot")
)

type NodeVersionMismatchError struct {
	NodeVersion      uint64
	BaseTableVersion uint64
}

func (e *NodeVersionMismatchError) Error() string {
	return fmt.Sprintf("node version %d does not match base table record version %d", e.NodeVersion, e.BaseTableVersion)
}

type InvalidNodeSignatureError struct {
	NodeID uint32
}

func (e *InvalidNodeSignatureError) Error() string {
	return fmt.Sprintf("node %d has an invalid signature", e.NodeID)
}

type RecordIndexOutOfBoundsError struct {
	Index uint16
}

func (e *RecordIndexOutOfBoundsError) Error() string {
	return fmt.Sprintf("record index %d is out of bounds for node", e.Index)
}

type RecordOffsetOutOfBoundsError struct {
	Offset uint32
}

func (e *RecordOffsetOutOfBoundsError) Error() string {
	return fmt.Sprintf("record offset %d is out of bounds for node", e.Offset)
}

type RecordValueOffsetOutOfBoundsError struct {
	Offset uint64
}

func (e *RecordValueOffsetOutOfBoundsError) Error() string {
	return fmt.Sprintf("record value offset %d exceeds max key length", e.Offset)
}

type LevelTooHighError struct {
	Requested uint16
	TreeLevel uint16
}

func (e *LevelTooHighError) Error() string {
	return fmt.Sprintf("requested level %d is outside tree levels 1..%d", e.Requested, e.TreeLevel)
}

var ErrLeftKeyAboveSearchKey = fmt.Errorf("leftmost record key in node is greater than the search key")

// File decode / unpack errors.
type FileBlockNotFoundError struct {
	Iblock uint64
}

func (e *FileBlockNotFoundError) Error() string {
	return fmt.Sprintf("logical block %d could not be resolved to a physical block", e.Iblock)
}

var (
	ErrCompressedExtentWrongSignature  = fmt.Errorf("compressed extent has an unexpected signature")
	ErrCannotDecompressWithoutCodec    = fmt.Errorf("file is flagged compressed but carries no recognized compression descriptor")
	ErrCannotFindParentFolder          = fmt.Errorf("parent folder for catalog record was not unpacked before its child")
	ErrDecompression                   = fmt.Errorf("chunk decompression failed")
)
