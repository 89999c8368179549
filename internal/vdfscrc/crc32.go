// Package vdfscrc implements the CRC-32 variant VDFS4 stores in snapshot
// descriptors and compressed file descriptors: width 32,
// poly 0x04C11DB7, init 0, reflected input/output, xorout 0. The snapshot
// manager validates descriptors with it; a compressed file descriptor's
// crc field is decoded but not checked. This is
// deliberately NOT the IEEE/Ethernet CRC-32 stdlib callers usually reach
// for (that variant folds in init=0xFFFFFFFF and a final xorout via the
// ^crc wrapping baked into hash/crc32's Update), so a thin custom driver
// sits directly on the reflected IEEE table instead.
package vdfscrc

import "hash/crc32"

var table = crc32.MakeTable(crc32.IEEE)

// Checksum computes the VDFS4 CRC-32 of data.
func Checksum(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc = table[byte(crc)^b] ^ (crc >> 8)
	}
	return crc
}
