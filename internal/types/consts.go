package types

// Block/page geometry defaults; overridable only by what the super block
// itself reports (log_block_size / log_super_page_size).
const (
	BlockSizeDefault     = 4096
	SuperPageSizeDefault = 16384
)

const (
	FileNameLen     = 255
	FullPathLen     = 1023
	XattrNameMaxLen = 200
	XattrValMaxLen  = 200

	ExtentsCountInFork = 9
	MetaBtreeExtents   = 96

	CRC32Size = 4

	MaxCryptedHashLen = 256
	AESNonceSize      = 8

	MD5HashLen    = 16
	SHA1HashLen   = 20
	SHA256HashLen = 32

	SnapshotExtSize   = 4096
	SnapshotExtTables = 8

	InvalidNodeID = 0
)

// Signature / magic constants, all compared against raw bytes since VDFS4
// magics are ASCII tags rather than numeric constants.
const (
	MagicSnapshotBaseTable     = "CoWB"
	MagicSnapshotExtendedTable = "CoWE"

	MagicBtreeHeadNode = "eHND"
	MagicBtreeNode     = "Nd"

	MagicComprZip  = "CZip"
	MagicComprGzip = "CGzp"
	MagicComprLzo  = "CLzo"
	MagicComprExt  = "XT"
)

const (
	AuthTagMD5    = 'I'
	AuthTagSHA1   = 'H'
	AuthTagSHA256 = 'h'
)

const (
	ChunkFlagUncompressed uint16 = 0x1
	ChunkFlagEncrypted    uint16 = 0x2
)

// SpecialInodeID enumerates the fixed, well-known object ids every VDFS4
// volume reserves below the first real file inode.
type SpecialInodeID uint64

const (
	RootDirObject SpecialInodeID = 0
	RootInode     SpecialInodeID = 1
	CatTreeInode  SpecialInodeID = 2
	SpaceBitmap   SpecialInodeID = 3
	ExtentsTree   SpecialInodeID = 4
	FreeInodeMap  SpecialInodeID = 5
	XattrTree     SpecialInodeID = 6
	SnapshotInode SpecialInodeID = 7
	OrphanInodes  SpecialInodeID = 8
	FirstFile     SpecialInodeID = 9
)

// BnodeType indexes into the base table's per-tree translation slots; the
// five special-file trees occupy slots 0..4 once offset by CatTreeInode, so
// the catalog, extent and xattr trees use slots 0, 2 and 4.
type BnodeType uint32

const (
	BnodeCatalogTree   BnodeType = BnodeType(CatTreeInode)
	BnodeSpaceBitmap   BnodeType = BnodeType(SpaceBitmap)
	BnodeExtentsTree   BnodeType = BnodeType(ExtentsTree)
	BnodeFreeInodeMap  BnodeType = BnodeType(FreeInodeMap)
	BnodeXattrTree     BnodeType = BnodeType(XattrTree)
)

// TranslationIndex returns the zero-based index of this tree type within
// the base table's per-tree record arrays.
func (b BnodeType) TranslationIndex() int {
	return int(b) - 2
}

// BtreeType distinguishes the three tree facades the unpacker builds on
// top of the generic B+tree engine.
type BtreeType uint32

const (
	BtreeCatalogTree BtreeType = BtreeType(CatTreeInode)
	BtreeExtentsTree BtreeType = BtreeType(ExtentsTree)
	BtreeXattrTree   BtreeType = BtreeType(XattrTree)
)

// TranslationIndex mirrors BnodeType.TranslationIndex for the tree facades.
func (b BtreeType) TranslationIndex() int {
	return int(b) - 2
}

// CatalogRecordType tags what kind of object a catalog tree record describes.
type CatalogRecordType uint8

const (
	RecordDummy      CatalogRecordType = 0
	RecordFolder     CatalogRecordType = 1
	RecordFile       CatalogRecordType = 2
	RecordHardLink   CatalogRecordType = 3
	RecordInodeLink  CatalogRecordType = 5
	RecordUnpackInode CatalogRecordType = 10
)

// FileFlag bit positions, tested against Vdfs4CatalogFolderRecord.Flags in
// the exact precedence order the unpacker dispatches them (see
// internal/unpacker): AuthFile, CompressedFile, EncryptedFile, HardLink,
// HasBlocksInExttree, Immutable, OrphanInode, ProfiledFile, ReadOnlyAuth.
type FileFlag uint32

const (
	FlagHasBlocksInExttree FileFlag = 1
	FlagImmutable          FileFlag = 2
	FlagHardLink           FileFlag = 10
	FlagOrphanInode        FileFlag = 12
	FlagCompressedFile     FileFlag = 13
	FlagAuthFile           FileFlag = 15
	FlagReadOnlyAuth       FileFlag = 16
	FlagEncryptedFile      FileFlag = 17
	FlagProfiledFile       FileFlag = 18
)

// FileCompression identifies the codec a compressed file descriptor names.
type FileCompression int

const (
	CompressionNone FileCompression = iota
	CompressionZlib
	CompressionGzip
	CompressionLzo
)

// FileAuth identifies the hash algorithm an auth-bearing file descriptor carries.
type FileAuth int

const (
	AuthNone FileAuth = iota
	AuthMD5
	AuthSHA1
	AuthSHA256
)

// HashLen returns the digest length in bytes for the given auth algorithm.
func (a FileAuth) HashLen() uint64 {
	switch a {
	case AuthMD5:
		return MD5HashLen
	case AuthSHA1:
		return SHA1HashLen
	case AuthSHA256:
		return SHA256HashLen
	default:
		return 0
	}
}

// SignatureType identifies the signature scheme a compressed file descriptor carries.
type SignatureType uint8

const (
	SignatureNone   SignatureType = 0
	SignatureRSA1024 SignatureType = 1
	SignatureRSA2048 SignatureType = 2
)

// Length returns the signature length in bytes, 0 for SignatureNone.
func (s SignatureType) Length() uint64 {
	switch s {
	case SignatureRSA1024:
		return 128
	case SignatureRSA2048:
		return 256
	default:
		return 0
	}
}

// FileTypeMask isolates the POSIX file-type bits of a catalog record's file_mode.
const FileTypeMask uint16 = 0o170000

// FileType enumerates the POSIX file types VDFS4 stores in file_mode.
type FileType uint16

const (
	FileTypeFIFO            FileType = 0o010000
	FileTypeCharacterDevice FileType = 0o020000
	FileTypeDirectory       FileType = 0o040000
	FileTypeBlockDevice     FileType = 0o060000
	FileTypeRegular         FileType = 0o100000
	FileTypeSymlink         FileType = 0o120000
	FileTypeSocket          FileType = 0o140000
)

// Is reports whether fileMode's type bits match this file type.
func (t FileType) Is(fileMode uint16) bool {
	return fileMode&FileTypeMask == uint16(t)
}

// FileTypeOf extracts the FileType carried by a file_mode value, if recognized.
func FileTypeOf(fileMode uint16) (FileType, bool) {
	for _, t := range []FileType{
		FileTypeDirectory, FileTypeCharacterDevice, FileTypeBlockDevice,
		FileTypeRegular, FileTypeFIFO, FileTypeSymlink, FileTypeSocket,
	} {
		if t.Is(fileMode) {
			return t, true
		}
	}
	return 0, false
}
