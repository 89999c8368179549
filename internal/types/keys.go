package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// CatKey is the catalog tree's key: (parent_id, name) primarily, with
// name_len and object_id breaking ties -- see Compare.
type CatKey struct {
	Gen        GenericKey
	ParentID   uint64
	ObjectID   uint64
	RecordType CatalogRecordType
	NameLen    uint8
	Name       [FileNameLen]byte
}

const CatKeySize = GenericKeySize + 8 + 8 + 1 + 1 + FileNameLen

func DecodeCatKey(data []byte, endian binary.ByteOrder) (CatKey, error) {
	if len(data) < CatKeySize {
		return CatKey{}, fmt.Errorf("data too small for catalog key: %d bytes", len(data))
	}
	var k CatKey
	var err error
	if k.Gen, err = DecodeGenericKey(data[0:GenericKeySize], endian); err != nil {
		return CatKey{}, err
	}
	off := GenericKeySize
	k.ParentID = endian.Uint64(data[off : off+8])
	off += 8
	k.ObjectID = endian.Uint64(data[off : off+8])
	off += 8
	k.RecordType = CatalogRecordType(data[off])
	off++
	k.NameLen = data[off]
	off++
	copy(k.Name[:], data[off:off+FileNameLen])
	return k, nil
}

// NameString returns the UTF-8 decoded object name.
func (k CatKey) NameString() string {
	return string(k.Name[:k.NameLen])
}

// ChildOfRoot builds the lookup key used to seed a full catalog scan: the
// lexicographically-first possible child of the root directory.
func ChildOfRoot() CatKey {
	return CatKey{ParentID: uint64(RootInode)}
}

// Compare orders two catalog keys the way the catalog tree is sorted on
// disk: by parent id, then name, then name length, then object id.
func (k CatKey) Compare(other CatKey) int {
	if k.ParentID != other.ParentID {
		if k.ParentID < other.ParentID {
			return -1
		}
		return 1
	}
	if c := bytes.Compare(k.Name[:k.NameLen], other.Name[:other.NameLen]); c != 0 {
		return c
	}
	if k.NameLen != other.NameLen {
		if k.NameLen < other.NameLen {
			return -1
		}
		return 1
	}
	if k.ObjectID != other.ObjectID {
		if k.ObjectID < other.ObjectID {
			return -1
		}
		return 1
	}
	return 0
}

func (k CatKey) Equal(other CatKey) bool { return k.Compare(other) == 0 }

// ValueOffset is the byte distance from the start of the key to its record payload.
func (k CatKey) ValueOffset() uint64 { return uint64(k.Gen.KeyLen) }

// ExtTreeKey is the extent tree's key: (object_id, iblock).
type ExtTreeKey struct {
	Gen      GenericKey
	ObjectID uint64
	Iblock   uint64
}

const ExtTreeKeySize = GenericKeySize + 8 + 8

func DecodeExtTreeKey(data []byte, endian binary.ByteOrder) (ExtTreeKey, error) {
	if len(data) < ExtTreeKeySize {
		return ExtTreeKey{}, fmt.Errorf("data too small for extent tree key: %d bytes", len(data))
	}
	var k ExtTreeKey
	var err error
	if k.Gen, err = DecodeGenericKey(data[0:GenericKeySize], endian); err != nil {
		return ExtTreeKey{}, err
	}
	off := GenericKeySize
	k.ObjectID = endian.Uint64(data[off : off+8])
	off += 8
	k.Iblock = endian.Uint64(data[off : off+8])
	return k, nil
}

func FromObjectID(objectID uint64) ExtTreeKey {
	return ExtTreeKey{ObjectID: objectID}
}

func (k ExtTreeKey) Compare(other ExtTreeKey) int {
	if k.ObjectID != other.ObjectID {
		if k.ObjectID < other.ObjectID {
			return -1
		}
		return 1
	}
	if k.Iblock != other.Iblock {
		if k.Iblock < other.Iblock {
			return -1
		}
		return 1
	}
	return 0
}

func (k ExtTreeKey) Equal(other ExtTreeKey) bool { return k.Compare(other) == 0 }

func (k ExtTreeKey) ValueOffset() uint64 { return uint64(k.Gen.KeyLen) }

// XattrTreeKey is the xattr tree's key (tree is parsed but never descended
// by the unpack path, same status as the free-space bitmap).
type XattrTreeKey struct {
	Gen      GenericKey
	ObjectID uint64
	NameLen  uint8
	Name     [XattrNameMaxLen]byte
}

const XattrTreeKeySize = GenericKeySize + 8 + 1 + XattrNameMaxLen

func DecodeXattrTreeKey(data []byte, endian binary.ByteOrder) (XattrTreeKey, error) {
	if len(data) < XattrTreeKeySize {
		return XattrTreeKey{}, fmt.Errorf("data too small for xattr tree key: %d bytes", len(data))
	}
	var k XattrTreeKey
	var err error
	if k.Gen, err = DecodeGenericKey(data[0:GenericKeySize], endian); err != nil {
		return XattrTreeKey{}, err
	}
	off := GenericKeySize
	k.ObjectID = endian.Uint64(data[off : off+8])
	off += 8
	k.NameLen = data[off]
	off++
	copy(k.Name[:], data[off:off+XattrNameMaxLen])
	return k, nil
}

// Iextent is one slot of a fork's in-record extent list: a physical extent
// plus the logical block index it starts at.
type Iextent struct {
	Extent Extent
	Iblock uint64
}

const IextentSize = ExtentSize + 8

func DecodeIextent(data []byte, endian binary.ByteOrder) (Iextent, error) {
	if len(data) < IextentSize {
		return Iextent{}, fmt.Errorf("data too small for iextent: %d bytes", len(data))
	}
	var ie Iextent
	var err error
	if ie.Extent, err = DecodeExtent(data[0:ExtentSize], endian); err != nil {
		return Iextent{}, err
	}
	ie.Iblock = endian.Uint64(data[ExtentSize : ExtentSize+8])
	return ie, nil
}

// Fork describes a file system object's data placement: its size, the
// block count allocated under the current snapshot, and up to nine
// in-record extents before the extent tree takes over.
type Fork struct {
	SizeInBytes       uint64
	TotalBlocksCount  uint64
	Extents           [ExtentsCountInFork]Iextent
}

const ForkSize = 8 + 8 + IextentSize*ExtentsCountInFork

func DecodeFork(data []byte, endian binary.ByteOrder) (Fork, error) {
	if len(data) < ForkSize {
		return Fork{}, fmt.Errorf("data too small for fork: %d bytes", len(data))
	}
	var f Fork
	f.SizeInBytes = endian.Uint64(data[0:8])
	f.TotalBlocksCount = endian.Uint64(data[8:16])
	off := 16
	for i := 0; i < ExtentsCountInFork; i++ {
		ie, err := DecodeIextent(data[off:off+IextentSize], endian)
		if err != nil {
			return Fork{}, err
		}
		f.Extents[i] = ie
		off += IextentSize
	}
	return f, nil
}

// CatalogFolderRecord is the common header shared by folder and file
// catalog records: flags, link accounting, ownership and timestamps.
type CatalogFolderRecord struct {
	Flags            uint32
	Generation       uint32
	TotalItemsCount  uint64
	LinksCount       uint64
	NextOrphanID     uint64
	FileMode         uint16
	UID              uint32
	GID              uint32
	CreationTime     Timespec
	ModificationTime Timespec
	AccessTime       Timespec
}

const CatalogFolderRecordSize = 4 + 4 + 8 + 8 + 8 + 2 + 2 + 4 + 4 + TimespecSize*3

func DecodeCatalogFolderRecord(data []byte, endian binary.ByteOrder) (CatalogFolderRecord, error) {
	if len(data) < CatalogFolderRecordSize {
		return CatalogFolderRecord{}, fmt.Errorf("data too small for folder record: %d bytes", len(data))
	}
	var r CatalogFolderRecord
	r.Flags = endian.Uint32(data[0:4])
	r.Generation = endian.Uint32(data[4:8])
	r.TotalItemsCount = endian.Uint64(data[8:16])
	r.LinksCount = endian.Uint64(data[16:24])
	r.NextOrphanID = endian.Uint64(data[24:32])
	r.FileMode = endian.Uint16(data[32:34])
	// data[34:36] is a 2-byte pad
	r.UID = endian.Uint32(data[36:40])
	r.GID = endian.Uint32(data[40:44])

	off := 44
	var err error
	if r.CreationTime, err = DecodeTimespec(data[off:off+TimespecSize], endian); err != nil {
		return CatalogFolderRecord{}, err
	}
	off += TimespecSize
	if r.ModificationTime, err = DecodeTimespec(data[off:off+TimespecSize], endian); err != nil {
		return CatalogFolderRecord{}, err
	}
	off += TimespecSize
	if r.AccessTime, err = DecodeTimespec(data[off:off+TimespecSize], endian); err != nil {
		return CatalogFolderRecord{}, err
	}
	return r, nil
}

// IsFileType reports whether FileMode's type bits match the given type.
func (r CatalogFolderRecord) IsFileType(t FileType) bool { return t.Is(r.FileMode) }

// FileType extracts the POSIX file type this record describes.
func (r CatalogFolderRecord) FileType() (FileType, bool) { return FileTypeOf(r.FileMode) }

// HasFileFlag tests a single flag bit, with HardLink additionally implied
// whenever the object has more than one link -- this mirrors the original
// engine's has_file_flag exactly (a links_count side channel, not just a bit test).
func (r CatalogFolderRecord) HasFileFlag(flag FileFlag) bool {
	if flag == FlagHardLink && r.LinksCount > 1 {
		return true
	}
	return r.Flags&(1<<uint32(flag)) != 0
}

// CatalogFileRecord extends CatalogFolderRecord with the file's data fork.
type CatalogFileRecord struct {
	Common   CatalogFolderRecord
	DataFork Fork
}

const CatalogFileRecordSize = CatalogFolderRecordSize + ForkSize

func DecodeCatalogFileRecord(data []byte, endian binary.ByteOrder) (CatalogFileRecord, error) {
	if len(data) < CatalogFileRecordSize {
		return CatalogFileRecord{}, fmt.Errorf("data too small for file record: %d bytes", len(data))
	}
	var r CatalogFileRecord
	var err error
	if r.Common, err = DecodeCatalogFolderRecord(data[0:CatalogFolderRecordSize], endian); err != nil {
		return CatalogFileRecord{}, err
	}
	if r.DataFork, err = DecodeFork(data[CatalogFolderRecordSize:CatalogFileRecordSize], endian); err != nil {
		return CatalogFileRecord{}, err
	}
	return r, nil
}

// CatalogHlinkRecord is the tiny record a hard-link catalog entry carries:
// just the mode bits the link itself was created with.
type CatalogHlinkRecord struct {
	FileMode uint16
}

const CatalogHlinkRecordSize = 6

func DecodeCatalogHlinkRecord(data []byte, endian binary.ByteOrder) (CatalogHlinkRecord, error) {
	if len(data) < CatalogHlinkRecordSize {
		return CatalogHlinkRecord{}, fmt.Errorf("data too small for hlink record: %d bytes", len(data))
	}
	return CatalogHlinkRecord{FileMode: endian.Uint16(data[0:2])}, nil
}

// ExtTreeRecord is the extent tree's record: the key it was stored under
// plus the logical-to-physical extent it describes.
type ExtTreeRecord struct {
	Key     ExtTreeKey
	Lextent Extent
}

const ExtTreeRecordSize = ExtTreeKeySize + ExtentSize

func DecodeExtTreeRecord(data []byte, endian binary.ByteOrder) (ExtTreeRecord, error) {
	if len(data) < ExtTreeRecordSize {
		return ExtTreeRecord{}, fmt.Errorf("data too small for extent tree record: %d bytes", len(data))
	}
	var r ExtTreeRecord
	var err error
	if r.Key, err = DecodeExtTreeKey(data[0:ExtTreeKeySize], endian); err != nil {
		return ExtTreeRecord{}, err
	}
	if r.Lextent, err = DecodeExtent(data[ExtTreeKeySize:ExtTreeRecordSize], endian); err != nil {
		return ExtTreeRecord{}, err
	}
	return r, nil
}

// GenericIndexValue is the value half of an internal-node record: the id of
// the child node to descend into.
type GenericIndexValue struct {
	NodeID uint32
}

const GenericIndexValueSize = 4

func DecodeGenericIndexValue(data []byte, endian binary.ByteOrder) (GenericIndexValue, error) {
	if len(data) < GenericIndexValueSize {
		return GenericIndexValue{}, fmt.Errorf("data too small for index value: %d bytes", len(data))
	}
	return GenericIndexValue{NodeID: endian.Uint32(data[0:4])}, nil
}

// CompressedFileDescr trails a compressed/encrypted file's raw payload: the
// codec signature, the uncompressed size, and how many compressed extents
// follow it (going backwards from this descriptor).
type CompressedFileDescr struct {
	SignType       uint8
	Magic          [4]byte
	ExtentsNum     uint16
	LayoutVersion  uint16
	UnpackedSize   uint64
	Crc            uint32
	LogChunkSize   uint32
	AesNonce       [AESNonceSize]byte
}

const CompressedFileDescrSize = 7 + 1 + 4 + 2 + 2 + 8 + 4 + 4 + AESNonceSize

func DecodeCompressedFileDescr(data []byte, endian binary.ByteOrder) (CompressedFileDescr, error) {
	if len(data) < CompressedFileDescrSize {
		return CompressedFileDescr{}, fmt.Errorf("data too small for compressed file descriptor: %d bytes", len(data))
	}
	var d CompressedFileDescr
	// data[0:7] is the reserved lead-in kept for backward-compat field insertion
	d.SignType = data[7]
	off := 8
	copy(d.Magic[:], data[off:off+4])
	off += 4
	d.ExtentsNum = endian.Uint16(data[off : off+2])
	off += 2
	d.LayoutVersion = endian.Uint16(data[off : off+2])
	off += 2
	d.UnpackedSize = endian.Uint64(data[off : off+8])
	off += 8
	d.Crc = endian.Uint32(data[off : off+4])
	off += 4
	d.LogChunkSize = endian.Uint32(data[off : off+4])
	off += 4
	copy(d.AesNonce[:], data[off:off+AESNonceSize])
	return d, nil
}

// Compression identifies the codec this descriptor's magic names, if any.
func (d CompressedFileDescr) Compression() (FileCompression, bool) {
	switch {
	case checkTag(d.Magic[:], MagicComprZip):
		return CompressionZlib, true
	case checkTag(d.Magic[:], MagicComprGzip):
		return CompressionGzip, true
	case checkTag(d.Magic[:], MagicComprLzo):
		return CompressionLzo, true
	default:
		return CompressionNone, false
	}
}

// Auth identifies the digest algorithm this descriptor's first magic byte names, if any.
func (d CompressedFileDescr) Auth() (FileAuth, bool) {
	switch d.Magic[0] {
	case AuthTagMD5:
		return AuthMD5, true
	case AuthTagSHA1:
		return AuthSHA1, true
	case AuthTagSHA256:
		return AuthSHA256, true
	default:
		return AuthNone, false
	}
}

// SignatureType decodes the descriptor's signature scheme, if recognized.
func (d CompressedFileDescr) SignatureType() (SignatureType, bool) {
	switch SignatureType(d.SignType) {
	case SignatureNone, SignatureRSA1024, SignatureRSA2048:
		return SignatureType(d.SignType), true
	default:
		return 0, false
	}
}

// CompressedExtent locates one compressed chunk within the raw scratch payload.
type CompressedExtent struct {
	Magic    [2]byte
	Flags    uint16
	LenBytes uint32
	Start    uint64
}

const CompressedExtentSize = 2 + 2 + 4 + 8

func DecodeCompressedExtent(data []byte, endian binary.ByteOrder) (CompressedExtent, error) {
	if len(data) < CompressedExtentSize {
		return CompressedExtent{}, fmt.Errorf("data too small for compressed extent: %d bytes", len(data))
	}
	var e CompressedExtent
	copy(e.Magic[:], data[0:2])
	e.Flags = endian.Uint16(data[2:4])
	e.LenBytes = endian.Uint32(data[4:8])
	e.Start = endian.Uint64(data[8:16])
	return e, nil
}

func (e CompressedExtent) CheckSignature() bool { return checkTag(e.Magic[:], MagicComprExt) }

func (e CompressedExtent) HasUncompressedFlag() bool { return e.Flags&ChunkFlagUncompressed != 0 }

func (e CompressedExtent) HasEncryptedFlag() bool { return e.Flags&ChunkFlagEncrypted != 0 }

// Per-key-type maximum lengths, each the key's struct size rounded up to
// an 8-byte boundary -- matches the original engine's padding convention
// for key records stored in a bnode.
const (
	CatKeyMaxLen   = ((CatKeySize + 7) / 8) * 8
	XattrKeyMaxLen = ((XattrTreeKeySize + 7) / 8) * 8
	ExtKeyMaxLen   = ((ExtTreeKeySize + 7) / 8) * 8
)

// KeyMaxLen is the largest of the three key types' aligned sizes: used to
// sanity-check a record's value offset before dereferencing it.
// CatKeyMaxLen(288) > XattrKeyMaxLen(224) > ExtKeyMaxLen(24).
const KeyMaxLen = CatKeyMaxLen
