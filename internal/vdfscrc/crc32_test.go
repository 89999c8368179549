package vdfscrc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksumConformanceVector(t *testing.T) {
	// Standard CRC catalog check string; value sourced from the VDFS4
	// reference implementation's algorithm parameters.
	got := Checksum([]byte("123456789"))
	assert.Equal(t, uint32(0x2DFD2D88), got)
}

func TestChecksumEmptyIsZero(t *testing.T) {
	assert.Equal(t, uint32(0), Checksum(nil))
}

func TestChecksumDiffersFromIEEE(t *testing.T) {
	// Sanity check that this is not accidentally the stdlib IEEE variant,
	// which folds in init=0xFFFFFFFF/xorout=0xFFFFFFFF and would produce
	// 0xCBF43926 for the same check string.
	assert.NotEqual(t, uint32(0xCBF43926), Checksum([]byte("123456789")))
}
