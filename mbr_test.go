package fat32

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateMBRAcceptsGoodPartition(t *testing.T) {
	v := newBareVolume(t, 4096, 512, 1, 16)

	m := MBR{Signature: bootSignature}
	m.Partitions[0] = PartitionEntry{Status: 0x80, Type: 0x0C, FirstLBA: 1, SectorCount: 2000}

	raw := validBPBBytes(t)
	require.NoError(t, v.ih.WriteAt(sectorSize, raw))

	require.True(t, v.validateMBR(m))
}

func TestValidateMBRRejectsBadSignature(t *testing.T) {
	v := newBareVolume(t, 4096, 512, 1, 16)

	m := MBR{Signature: 0x1234}
	require.False(t, v.validateMBR(m))
}

func TestValidateMBRRejectsWhenNoPartitionHasValidBPB(t *testing.T) {
	v := newBareVolume(t, 4096, 512, 1, 16)

	m := MBR{Signature: bootSignature}
	m.Partitions[0] = PartitionEntry{Status: 0x80, Type: 0x0C, FirstLBA: 1, SectorCount: 2000}
	// no BPB written at LBA 1 — it's all zeros, which fails strict validation.

	require.False(t, v.validateMBR(m))
}

func TestInitializeMBRRebuildsFromScanWhenTableInvalid(t *testing.T) {
	v := newBareVolume(t, 4096, 512, 1, 16)

	// leave sector 0 (the MBR) zeroed — invalid signature — but plant a
	// valid FAT32 boot sector at LBA 1 for the sweep to find.
	raw := validBPBBytes(t)
	require.NoError(t, v.ih.WriteAt(sectorSize, raw))

	require.NoError(t, v.InitializeMBR())

	partitions := v.ListPartitions()
	require.Len(t, partitions, 1)
	require.Equal(t, uint32(1), partitions[0].FirstLBA)
	require.True(t, partitions[0].IsActive())
}

func TestInitializeMBRFixesUpSuspectType(t *testing.T) {
	v := newBareVolume(t, 4096, 512, 1, 16)

	m := MBR{Signature: bootSignature}
	m.Partitions[0] = PartitionEntry{Status: 0x80, Type: 0x07, FirstLBA: 1, SectorCount: 1234}
	raw, err := encodeMBR(m)
	require.NoError(t, err)
	require.NoError(t, v.ih.WriteAt(0, raw))

	bpb := validBPBBytes(t)
	require.NoError(t, v.ih.WriteAt(sectorSize, bpb))

	require.NoError(t, v.InitializeMBR())

	partitions := v.ListPartitions()
	require.Len(t, partitions, 1)
	require.Equal(t, byte(0x0C), partitions[0].Type)
	require.Equal(t, uint32(20000), partitions[0].SectorCount) // corrected from BPB
}
