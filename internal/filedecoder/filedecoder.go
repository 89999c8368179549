// Package filedecoder reconstructs a catalog file record's contents: a raw
// copy for ordinary files, or staged-then-decompressed chunks for files
// carrying the compressed flag.
package filedecoder

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/sirupsen/logrus"

	"github.com/deploymenttheory/vdfs4-unpacker/internal/blockresolver"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/datasource"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/types"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/vdfserrors"
)

// WriteRaw copies a file's data fork block by block, truncating the final
// block to the fork's exact byte size.
func WriteRaw(ds *datasource.DataSource, resolver *blockresolver.Resolver, objectID uint64, fork types.Fork, blockSize uint64, w io.Writer) error {
	if fork.SizeInBytes == 0 {
		return nil
	}
	totalBlocks := (fork.SizeInBytes + blockSize - 1) / blockSize
	remaining := fork.SizeInBytes
	for iblock := uint64(0); iblock < totalBlocks; iblock++ {
		physBlock, err := resolver.Resolve(objectID, fork, iblock)
		if err != nil {
			return err
		}
		n := blockSize
		if remaining < n {
			n = remaining
		}
		buf, err := ds.ReadBytesAt(physBlock*blockSize, n)
		if err != nil {
			return err
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write raw block %d: %w", iblock, err)
		}
		remaining -= n
	}
	return nil
}

// scratchWriter adapts Scratch's read/write-at API to io.Writer for the raw
// staging copy WriteCompressed performs before parsing the trailing descriptor.
type scratchWriter struct{ s *datasource.Scratch }

func (s scratchWriter) Write(p []byte) (int, error) { return s.s.Write(p) }

// WriteCompressed stages a compressed file's raw payload to scratch, reads
// its trailing CompressedFileDescr and chunk table, and writes the
// decompressed result to w. skipped reports a file this unpacker
// deliberately doesn't handle (auth-bearing), logged rather than failed.
func WriteCompressed(ds *datasource.DataSource, resolver *blockresolver.Resolver, objectID uint64, fork types.Fork, blockSize uint64, scratchThreshold int64, w io.Writer, log *logrus.Entry) (skipped bool, err error) {
	scratch, err := datasource.NewScratch(int64(fork.SizeInBytes), scratchThreshold)
	if err != nil {
		return false, err
	}
	defer scratch.Close()

	if err := WriteRaw(ds, resolver, objectID, fork, blockSize, scratchWriter{scratch}); err != nil {
		return false, err
	}

	descrOffset := int64(fork.SizeInBytes) - int64(types.CompressedFileDescrSize)
	if descrOffset < 0 {
		return false, vdfserrors.ErrCannotDecompressWithoutCodec
	}
	descrBuf := make([]byte, types.CompressedFileDescrSize)
	if _, err := scratch.ReadAt(descrBuf, descrOffset); err != nil {
		return false, fmt.Errorf("read compressed file descriptor: %w", err)
	}
	descr, err := types.DecodeCompressedFileDescr(descrBuf, ds.Endian())
	if err != nil {
		return false, err
	}

	if auth, ok := descr.Auth(); ok {
		log.WithField("auth", auth).Warn("skipping file with auth")
		return true, nil
	}

	compression, ok := descr.Compression()
	if !ok {
		return false, vdfserrors.ErrCannotDecompressWithoutCodec
	}

	sig, _ := descr.SignatureType()
	tableEnd := descrOffset - int64(sig.Length())
	extentsTableOffset := tableEnd - int64(descr.ExtentsNum)*int64(types.CompressedExtentSize)
	if extentsTableOffset < 0 {
		return false, fmt.Errorf("compressed extent table runs before the start of the scratch payload")
	}

	for i := 0; i < int(descr.ExtentsNum); i++ {
		pos := extentsTableOffset + int64(i)*int64(types.CompressedExtentSize)
		extBuf := make([]byte, types.CompressedExtentSize)
		if _, err := scratch.ReadAt(extBuf, pos); err != nil {
			return false, fmt.Errorf("read compressed extent %d: %w", i, err)
		}
		ext, err := types.DecodeCompressedExtent(extBuf, ds.Endian())
		if err != nil {
			return false, err
		}
		if !ext.CheckSignature() {
			return false, vdfserrors.ErrCompressedExtentWrongSignature
		}

		chunk := make([]byte, ext.LenBytes)
		if _, err := scratch.ReadAt(chunk, int64(ext.Start)); err != nil {
			return false, fmt.Errorf("read compressed chunk %d: %w", i, err)
		}

		if ext.HasUncompressedFlag() {
			if _, err := w.Write(chunk); err != nil {
				return false, fmt.Errorf("write uncompressed chunk %d: %w", i, err)
			}
			continue
		}

		if err := decompressChunk(compression, chunk, w); err != nil {
			return false, fmt.Errorf("decompress chunk %d: %w: %w", i, err, vdfserrors.ErrDecompression)
		}
	}
	return false, nil
}

func decompressChunk(compression types.FileCompression, chunk []byte, w io.Writer) error {
	switch compression {
	case types.CompressionZlib:
		r, err := zlib.NewReader(bytes.NewReader(chunk))
		if err != nil {
			return err
		}
		defer r.Close()
		_, err = io.Copy(w, r)
		return err
	case types.CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(chunk))
		if err != nil {
			return err
		}
		defer r.Close()
		_, err = io.Copy(w, r)
		return err
	default:
		return vdfserrors.ErrCannotDecompressWithoutCodec
	}
}
