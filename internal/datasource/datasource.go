// Package datasource wraps the byte-addressable image the unpacker reads
// from: positioned reads of fixed-size typed records, raw byte ranges, and
// an abstract scratch buffer used to stage a compressed file's raw payload
// before its trailing descriptor is parsed.
package datasource

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/deploymenttheory/vdfs4-unpacker/internal/vdfserrors"
)

// ByteSource is anything the data source can issue positioned reads
// against -- an opened image file, or an in-memory/tempfile scratch buffer.
type ByteSource interface {
	io.ReaderAt
}

// DataSource is the single point every layer above it reads the volume
// image through.
type DataSource struct {
	src    ByteSource
	endian binary.ByteOrder
}

// New wraps src for little-endian record decoding, the byte order every
// VDFS4 structure on disk uses.
func New(src ByteSource) *DataSource {
	return &DataSource{src: src, endian: binary.LittleEndian}
}

// Endian returns the byte order records are decoded with.
func (d *DataSource) Endian() binary.ByteOrder { return d.endian }

// Pointer pairs a decoded value with the byte position it was read from,
// so callers can derive further offsets (a record's value payload, a
// node's trailing offset table) relative to where the value actually lives.
type Pointer[T any] struct {
	Data     T
	Position uint64
}

// DecodeFunc parses a fixed-layout value out of a byte slice. Every type in
// internal/types exposes one of these.
type DecodeFunc[T any] func(data []byte, endian binary.ByteOrder) (T, error)

// ReadBytesAt reads exactly size bytes starting at position.
func (d *DataSource) ReadBytesAt(position, size uint64) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := d.src.ReadAt(buf, int64(position)); err != nil {
		return nil, vdfserrors.NewDataSourceError(fmt.Sprintf("read %d bytes at %d", size, position), err)
	}
	return buf, nil
}

// ReadAt decodes a T at position using decode, sized by first reading size bytes.
func ReadAt[T any](d *DataSource, position uint64, size int, decode DecodeFunc[T]) (Pointer[T], error) {
	buf, err := d.ReadBytesAt(position, uint64(size))
	if err != nil {
		return Pointer[T]{}, err
	}
	value, err := decode(buf, d.endian)
	if err != nil {
		return Pointer[T]{}, err
	}
	return Pointer[T]{Data: value, Position: position}, nil
}

// DecodeFrom decodes a T out of an already-read buffer at a relative
// offset, producing a Pointer whose Position is absolute (basePosition+offset).
func DecodeFrom[T any](d *DataSource, buffer []byte, basePosition uint64, offset int, decode DecodeFunc[T]) (Pointer[T], error) {
	if offset < 0 || offset > len(buffer) {
		return Pointer[T]{}, fmt.Errorf("offset %d out of bounds for %d byte buffer", offset, len(buffer))
	}
	value, err := decode(buffer[offset:], d.endian)
	if err != nil {
		return Pointer[T]{}, err
	}
	return Pointer[T]{Data: value, Position: basePosition + uint64(offset)}, nil
}

// ReadUint32At reads a single little-endian uint32 at position, used for
// the per-record trailing offset table bnodes carry.
func (d *DataSource) ReadUint32At(position uint64) (uint32, error) {
	buf, err := d.ReadBytesAt(position, 4)
	if err != nil {
		return 0, err
	}
	return d.endian.Uint32(buf), nil
}

// ReadUint32From reads a little-endian uint32 out of an already-read buffer.
func (d *DataSource) ReadUint32From(buffer []byte, offset int) (uint32, error) {
	if offset < 0 || offset+4 > len(buffer) {
		return 0, fmt.Errorf("offset %d out of bounds for %d byte buffer", offset, len(buffer))
	}
	return d.endian.Uint32(buffer[offset : offset+4]), nil
}
