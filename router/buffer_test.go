package router

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChainAddHeaderAndFlatten(t *testing.T) {
	payload := []byte("ABCDEFGH")
	chain := NewChain(payload)
	chain.AddHeader([]byte{0xaa, 0xbb})
	chain.AddHeader([]byte{0x01, 0x02, 0x03})

	require.Equal(t, 3+2+len(payload), chain.Len())

	flat, err := chain.Flatten()
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0xaa, 0xbb, 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H'}, flat)

	chain.Free()
}

func TestChainFlattenTooLong(t *testing.T) {
	chain := NewChain(make([]byte, MaxFrameLen+1))
	_, err := chain.Flatten()
	require.ErrorIs(t, err, ErrFrameTooLong)
	chain.Free()
}
