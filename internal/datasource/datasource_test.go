package datasource

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSource struct {
	data []byte
}

func (m *memSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func TestReadBytesAt(t *testing.T) {
	ds := New(&memSource{data: []byte{1, 2, 3, 4, 5}})

	got, err := ds.ReadBytesAt(1, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3, 4}, got)
}

func TestReadBytesAtOutOfRangeErrors(t *testing.T) {
	ds := New(&memSource{data: []byte{1, 2, 3}})

	_, err := ds.ReadBytesAt(0, 10)
	assert.Error(t, err)
}

type fakeRecord struct {
	A uint32
	B uint16
}

func decodeFakeRecord(data []byte, endian binary.ByteOrder) (fakeRecord, error) {
	return fakeRecord{A: endian.Uint32(data[0:4]), B: endian.Uint16(data[4:6])}, nil
}

func TestReadAtDecodesTypedRecord(t *testing.T) {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint32(buf[0:4], 0xdeadbeef)
	binary.LittleEndian.PutUint16(buf[4:6], 42)
	ds := New(&memSource{data: buf})

	ptr, err := ReadAt(ds, 0, 6, decodeFakeRecord)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), ptr.Data.A)
	assert.Equal(t, uint16(42), ptr.Data.B)
	assert.Equal(t, uint64(0), ptr.Position)
}

func TestDecodeFromRelativeOffset(t *testing.T) {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[6:10], 7)
	binary.LittleEndian.PutUint16(buf[10:12], 9)
	ds := New(&memSource{})

	ptr, err := DecodeFrom(ds, buf, 100, 6, decodeFakeRecord)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), ptr.Data.A)
	assert.Equal(t, uint64(106), ptr.Position)
}

func TestScratchInMemoryRoundtrip(t *testing.T) {
	s, err := NewScratch(16, DefaultScratchThresholdBytes)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Write([]byte("hello world"))
	require.NoError(t, err)

	out := make([]byte, 5)
	n, err := s.ReadAt(out, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(out))
}

func TestScratchTempFileRoundtrip(t *testing.T) {
	s, err := NewScratch(16, 0)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Write(bytes.Repeat([]byte{0xAB}, 32))
	require.NoError(t, err)

	out := make([]byte, 4)
	n, err := s.ReadAt(out, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0xAB, 0xAB, 0xAB, 0xAB}, out)
}
