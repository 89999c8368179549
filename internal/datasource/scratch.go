package datasource

import (
	"bytes"
	"fmt"
	"os"
)

// DefaultScratchThresholdBytes is a 32 MiB in-memory/tempfile cutover for
// callers with no configured threshold: a staged payload up to this size
// stays in memory, above it spills to a held-open, already-unlinked temp
// file. The CLI passes internal/config's threshold instead (64 MiB unless
// overridden).
const DefaultScratchThresholdBytes = 32 * 1024 * 1024

// Scratch is the byte-addressable staging area a compressed file's raw
// payload is written to before its trailing descriptor and chunk extents
// are parsed back out of it. Below the configured threshold it's a plain
// in-memory buffer; above it, an unlinked temp file so large files don't
// hold their full raw size resident.
type Scratch struct {
	buf  *bytes.Buffer
	file *os.File
}

// NewScratch allocates a scratch buffer sized for expectedSize, choosing
// the in-memory or temp-file backing based on threshold.
func NewScratch(expectedSize int64, threshold int64) (*Scratch, error) {
	if expectedSize <= threshold {
		return &Scratch{buf: bytes.NewBuffer(make([]byte, 0, expectedSize))}, nil
	}

	f, err := os.CreateTemp("", "vdfs4-unpacker-scratch-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch temp file: %w", err)
	}
	// Unlink immediately; the open handle keeps the backing store alive
	// for as long as this Scratch is used, with nothing left on disk to
	// clean up if the process exits abnormally.
	if err := os.Remove(f.Name()); err != nil {
		f.Close()
		return nil, fmt.Errorf("unlink scratch temp file: %w", err)
	}
	return &Scratch{file: f}, nil
}

func (s *Scratch) Write(p []byte) (int, error) {
	if s.buf != nil {
		return s.buf.Write(p)
	}
	return s.file.Write(p)
}

func (s *Scratch) ReadAt(p []byte, off int64) (int, error) {
	if s.buf != nil {
		return bytes.NewReader(s.buf.Bytes()).ReadAt(p, off)
	}
	return s.file.ReadAt(p, off)
}

// Close releases the backing temp file handle, if any. In-memory scratch
// buffers need no cleanup.
func (s *Scratch) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
