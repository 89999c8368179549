// Package types holds the on-disk record schemas of the VDFS4 layout: super
// blocks, extents, snapshot base tables, B+tree nodes and the catalog/extent/
// xattr tree keys and records built on top of them. Every Decode function
// parses a fixed, little-endian byte layout directly out of a slice: no
// reflection, no generic struct tags.
package types

import (
	"encoding/binary"
	"fmt"
)

// Timespec is a 12-byte wall-clock timestamp (32-bit seconds, 32-bit
// seconds-high, 32-bit nanoseconds).
type Timespec struct {
	Seconds     uint32
	SecondsHigh uint32
	Nanoseconds uint32
}

const TimespecSize = 12

func DecodeTimespec(data []byte, endian binary.ByteOrder) (Timespec, error) {
	if len(data) < TimespecSize {
		return Timespec{}, fmt.Errorf("data too small for timespec: %d bytes", len(data))
	}
	return Timespec{
		Seconds:     endian.Uint32(data[0:4]),
		SecondsHigh: endian.Uint32(data[4:8]),
		Nanoseconds: endian.Uint32(data[8:12]),
	}, nil
}

// Extent is a contiguous run of blocks: Begin is the physical block index, Length the block count.
type Extent struct {
	Begin  uint64
	Length uint64
}

const ExtentSize = 16

func DecodeExtent(data []byte, endian binary.ByteOrder) (Extent, error) {
	if len(data) < ExtentSize {
		return Extent{}, fmt.Errorf("data too small for extent: %d bytes", len(data))
	}
	return Extent{
		Begin:  endian.Uint64(data[0:8]),
		Length: endian.Uint64(data[8:16]),
	}, nil
}

// SuperBlock is the 512-byte primary descriptor of a VDFS4 volume.
type SuperBlock struct {
	Signature              [4]byte
	LayoutVersion          [4]byte
	MaximumBlocksCount     uint64
	CreationTimestamp      Timespec
	VolumeUUID             [16]byte
	VolumeName             [16]byte
	MkfsVersion            [64]byte
	LogBlockSize           uint8
	LogSuperPageSize       uint8
	LogEraseBlockSize      uint8
	CaseInsensitive        bool
	ReadOnly               bool
	ImageCRC32Present      bool
	ForceFullDecompDecrypt bool
	HashType               uint8
	EncryptionFlags        uint8
	SignType               uint8
	ExsbChecksum           uint32
	BasetableChecksum      uint32
	MetaHashtableChecksum  uint32
	ImageInodeCount        uint64
	SbHash                 [MaxCryptedHashLen]byte
	Checksum               uint32
}

const SuperBlockSize = 512

func DecodeSuperBlock(data []byte, endian binary.ByteOrder) (SuperBlock, error) {
	if len(data) < SuperBlockSize {
		return SuperBlock{}, fmt.Errorf("data too small for super block: %d bytes", len(data))
	}
	var sb SuperBlock
	copy(sb.Signature[:], data[0:4])
	copy(sb.LayoutVersion[:], data[4:8])
	sb.MaximumBlocksCount = endian.Uint64(data[8:16])

	ts, err := DecodeTimespec(data[16:28], endian)
	if err != nil {
		return SuperBlock{}, err
	}
	sb.CreationTimestamp = ts

	copy(sb.VolumeUUID[:], data[28:44])
	copy(sb.VolumeName[:], data[44:60])
	copy(sb.MkfsVersion[:], data[60:124])
	// data[124:164] is the 40-byte unused pad, skipped

	off := 164
	sb.LogBlockSize = data[off]
	sb.LogSuperPageSize = data[off+1]
	sb.LogEraseBlockSize = data[off+2]
	sb.CaseInsensitive = data[off+3] != 0
	sb.ReadOnly = data[off+4] != 0
	sb.ImageCRC32Present = data[off+5] != 0
	sb.ForceFullDecompDecrypt = data[off+6] != 0
	sb.HashType = data[off+7]
	sb.EncryptionFlags = data[off+8]
	sb.SignType = data[off+9]
	off += 10 + 54 // skip the 54-byte reserved block

	sb.ExsbChecksum = endian.Uint32(data[off : off+4])
	sb.BasetableChecksum = endian.Uint32(data[off+4 : off+8])
	sb.MetaHashtableChecksum = endian.Uint32(data[off+8 : off+12])
	sb.ImageInodeCount = endian.Uint64(data[off+12 : off+20])
	off += 20 + 4 // skip the 4-byte pad

	copy(sb.SbHash[:], data[off:off+MaxCryptedHashLen])
	off += MaxCryptedHashLen

	sb.Checksum = endian.Uint32(data[off : off+4])
	return sb, nil
}

// ExtendedSuperBlock carries the mutable, per-mount volume accounting: the
// meta-area extent list (the translation from meta-iblock to physical block)
// and the snapshot tables extent.
type ExtendedSuperBlock struct {
	FilesCount         uint64
	FoldersCount       uint64
	VolumeBody         Extent
	MountCounter       uint32
	SyncCounter        uint32
	UmountCounter      uint32
	Generation         uint32
	DebugArea          Extent
	MetaTbc            uint32
	Tables             Extent
	Meta               [MetaBtreeExtents]Extent
	Extension          Extent
	VolumeBlocksCount  uint64
	Crc                uint8
	VolumeUUID         [16]byte
	KbytesWritten      uint64
	MetaHashtableArea  Extent
	Checksum           uint32
}

const ExtendedSuperBlockSize = 2560

func DecodeExtendedSuperBlock(data []byte, endian binary.ByteOrder) (ExtendedSuperBlock, error) {
	if len(data) < ExtendedSuperBlockSize {
		return ExtendedSuperBlock{}, fmt.Errorf("data too small for extended super block: %d bytes", len(data))
	}
	var esb ExtendedSuperBlock
	esb.FilesCount = endian.Uint64(data[0:8])
	esb.FoldersCount = endian.Uint64(data[8:16])

	var err error
	if esb.VolumeBody, err = DecodeExtent(data[16:32], endian); err != nil {
		return ExtendedSuperBlock{}, err
	}
	esb.MountCounter = endian.Uint32(data[32:36])
	esb.SyncCounter = endian.Uint32(data[36:40])
	esb.UmountCounter = endian.Uint32(data[40:44])
	esb.Generation = endian.Uint32(data[44:48])
	if esb.DebugArea, err = DecodeExtent(data[48:64], endian); err != nil {
		return ExtendedSuperBlock{}, err
	}
	esb.MetaTbc = endian.Uint32(data[64:68])
	// data[68:72] is a 4-byte pad
	if esb.Tables, err = DecodeExtent(data[72:88], endian); err != nil {
		return ExtendedSuperBlock{}, err
	}

	off := 88
	for i := 0; i < MetaBtreeExtents; i++ {
		ext, err := DecodeExtent(data[off:off+ExtentSize], endian)
		if err != nil {
			return ExtendedSuperBlock{}, err
		}
		esb.Meta[i] = ext
		off += ExtentSize
	}

	if esb.Extension, err = DecodeExtent(data[off:off+16], endian); err != nil {
		return ExtendedSuperBlock{}, err
	}
	off += 16

	esb.VolumeBlocksCount = endian.Uint64(data[off : off+8])
	off += 8
	esb.Crc = data[off]
	off++
	copy(esb.VolumeUUID[:], data[off:off+16])
	off += 16
	off += 7 // skip the 7-byte reserved pad
	esb.KbytesWritten = endian.Uint64(data[off : off+8])
	off += 8
	if esb.MetaHashtableArea, err = DecodeExtent(data[off:off+16], endian); err != nil {
		return ExtendedSuperBlock{}, err
	}
	off += 16
	off += 860 // skip the trailing reserved block
	esb.Checksum = endian.Uint32(data[off : off+4])

	return esb, nil
}

// SuperBlocks is the full, fixed first block of a VDFS4 image: two redundant
// raw signature copies followed by the live super block and extended super block.
type SuperBlocks struct {
	Sign1          SuperBlock
	Sign2          SuperBlock
	SuperBlock     SuperBlock
	ExtSuperBlock  ExtendedSuperBlock
}

const SuperBlocksSize = SuperBlockSize*3 + ExtendedSuperBlockSize

func DecodeSuperBlocks(data []byte, endian binary.ByteOrder) (SuperBlocks, error) {
	if len(data) < SuperBlocksSize {
		return SuperBlocks{}, fmt.Errorf("data too small for super blocks: %d bytes", len(data))
	}
	var sbs SuperBlocks
	var err error
	if sbs.Sign1, err = DecodeSuperBlock(data[0:SuperBlockSize], endian); err != nil {
		return SuperBlocks{}, err
	}
	if sbs.Sign2, err = DecodeSuperBlock(data[SuperBlockSize:2*SuperBlockSize], endian); err != nil {
		return SuperBlocks{}, err
	}
	if sbs.SuperBlock, err = DecodeSuperBlock(data[2*SuperBlockSize:3*SuperBlockSize], endian); err != nil {
		return SuperBlocks{}, err
	}
	if sbs.ExtSuperBlock, err = DecodeExtendedSuperBlock(data[3*SuperBlockSize:SuperBlocksSize], endian); err != nil {
		return SuperBlocks{}, err
	}
	return sbs, nil
}

// GeneralBtreeNode is the header common to every non-head B+tree node.
type GeneralBtreeNode struct {
	Magic       [4]byte
	Version     [2]uint32
	FreeSpace   uint16
	RecsCount   uint16
	NodeID      uint32
	NrevNodeID  uint32
	NextNodeID  uint32
	NodeType    uint32
}

const GeneralBtreeNodeSize = 32

func DecodeGeneralBtreeNode(data []byte, endian binary.ByteOrder) (GeneralBtreeNode, error) {
	if len(data) < GeneralBtreeNodeSize {
		return GeneralBtreeNode{}, fmt.Errorf("data too small for btree node: %d bytes", len(data))
	}
	var n GeneralBtreeNode
	copy(n.Magic[:], data[0:4])
	n.Version[0] = endian.Uint32(data[4:8])
	n.Version[1] = endian.Uint32(data[8:12])
	n.FreeSpace = endian.Uint16(data[12:14])
	n.RecsCount = endian.Uint16(data[14:16])
	n.NodeID = endian.Uint32(data[16:20])
	n.NrevNodeID = endian.Uint32(data[20:24])
	n.NextNodeID = endian.Uint32(data[24:28])
	n.NodeType = endian.Uint32(data[28:32])
	return n, nil
}

// CheckSignature reports whether Magic matches either a leaf/internal node
// tag or the head node tag -- the original engine accepts both when
// validating a just-read node.
func (n GeneralBtreeNode) CheckSignature() bool {
	return checkTag(n.Magic[:], MagicBtreeHeadNode) || checkTag(n.Magic[:], MagicBtreeNode)
}

// GetVersion combines the two 32-bit halves into the comparable node version.
func (n GeneralBtreeNode) GetVersion() uint64 {
	return (uint64(n.Version[1]) << 32) + uint64(n.Version[0])
}

// LastRecordIndex is the index of the final populated record slot.
func (n GeneralBtreeNode) LastRecordIndex() uint16 {
	return n.RecsCount - 1
}

// HeadBtreeNode precedes the free-space bitmap in a tree's head node; only
// present at node id 0 of each of the three trees.
type HeadBtreeNode struct {
	Magic       [4]byte
	Version     [2]uint32
	RootBnodeID uint32
	BtreeHeight uint16
}

const HeadBtreeNodeSize = 20

func DecodeHeadBtreeNode(data []byte, endian binary.ByteOrder) (HeadBtreeNode, error) {
	if len(data) < HeadBtreeNodeSize {
		return HeadBtreeNode{}, fmt.Errorf("data too small for head btree node: %d bytes", len(data))
	}
	var n HeadBtreeNode
	copy(n.Magic[:], data[0:4])
	n.Version[0] = endian.Uint32(data[4:8])
	n.Version[1] = endian.Uint32(data[8:12])
	n.RootBnodeID = endian.Uint32(data[12:16])
	n.BtreeHeight = endian.Uint16(data[16:18])
	// data[18:20] is a 2-byte pad
	return n, nil
}

func (n HeadBtreeNode) CheckSignature() bool {
	return checkTag(n.Magic[:], MagicBtreeHeadNode)
}

func (n HeadBtreeNode) GetVersion() uint64 {
	return (uint64(n.Version[1]) << 32) + uint64(n.Version[0])
}

// SnapshotDescriptor prefixes every base/extended table slot: signature,
// CRC-validated sync/mount counters and the byte offset of the trailing
// checksum relative to the descriptor's own start.
type SnapshotDescriptor struct {
	Signature      [4]byte
	SyncCount      uint32
	MountCount     uint64
	ChecksumOffset uint64
}

const SnapshotDescriptorSize = 24

func DecodeSnapshotDescriptor(data []byte, endian binary.ByteOrder) (SnapshotDescriptor, error) {
	if len(data) < SnapshotDescriptorSize {
		return SnapshotDescriptor{}, fmt.Errorf("data too small for snapshot descriptor: %d bytes", len(data))
	}
	var d SnapshotDescriptor
	copy(d.Signature[:], data[0:4])
	d.SyncCount = endian.Uint32(data[4:8])
	d.MountCount = endian.Uint64(data[8:16])
	d.ChecksumOffset = endian.Uint64(data[16:24])
	return d, nil
}

func (d SnapshotDescriptor) CheckSignature(tag string) bool {
	return checkTag(d.Signature[:], tag)
}

// Version combines mount/sync counters the same way the original compares
// two snapshot slots: mount_count is the high half, sync_count the low half.
func (d SnapshotDescriptor) Version() uint64 {
	return (d.MountCount << 32) | uint64(d.SyncCount)
}

// sfNR is the number of special files each base table carries a translation
// slot for: CatTree(2)..XattrTree(6) inclusive.
const sfNR = int(XattrTree) - int(CatTreeInode) + 1

// BaseTable is a snapshot's translation table: for each of the special
// files (catalog/bitmap/extent/free-inode/xattr trees) it carries the last
// page index and the byte offset of that tree's record array.
type BaseTable struct {
	Descriptor                 SnapshotDescriptor
	LastPageIndex               [sfNR]uint64
	TranslationTableOffsets     [sfNR]uint64
}

const BaseTableSize = SnapshotDescriptorSize + sfNR*8 + sfNR*8

func DecodeBaseTable(data []byte, endian binary.ByteOrder) (BaseTable, error) {
	if len(data) < BaseTableSize {
		return BaseTable{}, fmt.Errorf("data too small for base table: %d bytes", len(data))
	}
	var bt BaseTable
	var err error
	if bt.Descriptor, err = DecodeSnapshotDescriptor(data[0:SnapshotDescriptorSize], endian); err != nil {
		return BaseTable{}, err
	}
	off := SnapshotDescriptorSize
	for i := 0; i < sfNR; i++ {
		bt.LastPageIndex[i] = endian.Uint64(data[off : off+8])
		off += 8
	}
	for i := 0; i < sfNR; i++ {
		bt.TranslationTableOffsets[i] = endian.Uint64(data[off : off+8])
		off += 8
	}
	return bt, nil
}

// TranslatedPosition returns the byte offset of tableType's record array
// within this base table, given the base table's own byte position.
func (bt BaseTable) TranslatedPosition(baseTableOffset uint64, tableType interface{ TranslationIndex() int }) uint64 {
	return baseTableOffset + bt.TranslationTableOffsets[tableType.TranslationIndex()]
}

// BaseTableRecord locates one B+tree node via its meta-iblock plus the node
// version the node itself must agree with.
type BaseTableRecord struct {
	MetaIblock uint64
	SyncCount  uint32
	MountCount uint32
}

const BaseTableRecordSize = 16

func DecodeBaseTableRecord(data []byte, endian binary.ByteOrder) (BaseTableRecord, error) {
	if len(data) < BaseTableRecordSize {
		return BaseTableRecord{}, fmt.Errorf("data too small for base table record: %d bytes", len(data))
	}
	return BaseTableRecord{
		MetaIblock: endian.Uint64(data[0:8]),
		SyncCount:  endian.Uint32(data[8:12]),
		MountCount: endian.Uint32(data[12:16]),
	}, nil
}

func (r BaseTableRecord) GetVersion() uint64 {
	return (uint64(r.MountCount) << 32) + uint64(r.SyncCount)
}

// GenericKey is the common prefix of every B+tree key: a magic tag plus the
// byte lengths of the key and of the record that follows it.
type GenericKey struct {
	Magic     [4]byte
	KeyLen    uint16
	RecordLen uint16
}

const GenericKeySize = 8

func DecodeGenericKey(data []byte, endian binary.ByteOrder) (GenericKey, error) {
	if len(data) < GenericKeySize {
		return GenericKey{}, fmt.Errorf("data too small for generic key: %d bytes", len(data))
	}
	var k GenericKey
	copy(k.Magic[:], data[0:4])
	k.KeyLen = endian.Uint16(data[4:6])
	k.RecordLen = endian.Uint16(data[6:8])
	return k, nil
}

func checkTag(signature []byte, tag string) bool {
	if len(signature) < len(tag) {
		return false
	}
	for i := 0; i < len(tag); i++ {
		if signature[i] != tag[i] {
			return false
		}
	}
	return true
}
