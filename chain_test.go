package fat32

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFollowFATSimpleChain(t *testing.T) {
	v := newBareVolume(t, 4096, 512, 8, 16)

	v.fat[2] = 3
	v.fat[3] = 4
	v.fat[4] = fatEOCLow | 0x07

	chain, err := v.followFAT(2)
	require.NoError(t, err)
	require.Equal(t, []uint32{2, 3, 4}, chain)
}

func TestFollowFATCutsCycle(t *testing.T) {
	v := newBareVolume(t, 4096, 512, 8, 16)

	// FAT[5]=6, FAT[6]=7, FAT[7]=5 — a chain that loops back on itself.
	v.fat[5] = 6
	v.fat[6] = 7
	v.fat[7] = 5

	chain, err := v.followFAT(5)
	require.NoError(t, err)
	require.Equal(t, []uint32{5, 6, 7}, chain)
}

func TestFollowFATStopsAtFreeSuccessor(t *testing.T) {
	v := newBareVolume(t, 4096, 512, 8, 16)

	v.fat[2] = 3
	v.fat[3] = 0

	chain, err := v.followFAT(2)
	require.NoError(t, err)
	require.Equal(t, []uint32{2, 3}, chain)
}

func TestFollowFATStopsAtBadCluster(t *testing.T) {
	v := newBareVolume(t, 4096, 512, 8, 16)

	v.fat[2] = fatBad

	chain, err := v.followFAT(2)
	require.NoError(t, err)
	require.Equal(t, []uint32{2}, chain)
}

func TestFollowFATOutOfRangeStart(t *testing.T) {
	v := newBareVolume(t, 4096, 512, 8, 16)

	chain, err := v.followFAT(999)
	require.NoError(t, err)
	require.Empty(t, chain)
}

func TestFollowFATZeroStartIsNoOp(t *testing.T) {
	v := newBareVolume(t, 4096, 512, 8, 16)

	chain, err := v.followFAT(0)
	require.NoError(t, err)
	require.Nil(t, chain)
}
