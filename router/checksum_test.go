package router

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksum16ZeroesOnSelf(t *testing.T) {
	// A packet's own header, checksum field already filled in, must
	// checksum to zero (§8 testable property 4, read in reverse).
	header := []byte{
		0x45, 0x00, 0x00, 0x3c, 0x1c, 0x46, 0x40, 0x00,
		0x40, 0x06, 0x00, 0x00, 0xac, 0x10, 0x0a, 0x63,
		0xac, 0x10, 0x0a, 0x0c,
	}
	binary.BigEndian.PutUint16(header[10:12], 0)
	sum := Checksum16(header)
	binary.BigEndian.PutUint16(header[10:12], sum)
	require.Equal(t, uint16(0), Checksum16(header))
}

func TestChecksum16OddLength(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	// Odd byte padded with a trailing zero, per RFC 1071.
	require.Equal(t, Checksum16([]byte{0x01, 0x02, 0x03, 0x00}), Checksum16(data))
}

func TestIncrementalUpdateMatchesFullRecompute(t *testing.T) {
	header := []byte{
		0x45, 0x00, 0x00, 0x28, 0x00, 0x01, 0x00, 0x00,
		0xff, 0x06, 0x00, 0x00, 0x0a, 0x00, 0x00, 0x05,
		0x0a, 0x00, 0x00, 0x01,
	}
	binary.BigEndian.PutUint16(header[10:12], Checksum16(header))

	oldSrc := binary.BigEndian.Uint32(header[12:16])
	newSrc := uint32(0xcb007102) // 203.0.113.2

	checksum := binary.BigEndian.Uint16(header[10:12])
	updated := incrementalUpdate(checksum,
		[]uint16{hi16(oldSrc), lo16(oldSrc)},
		[]uint16{hi16(newSrc), lo16(newSrc)})

	rebuilt := make([]byte, len(header))
	copy(rebuilt, header)
	binary.BigEndian.PutUint32(rebuilt[12:16], newSrc)
	binary.BigEndian.PutUint16(rebuilt[10:12], 0)
	wantFull := Checksum16(rebuilt)

	require.Equal(t, wantFull, updated)
}
