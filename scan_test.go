package fat32

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanAndAutoRepairFixesOrphanAndAllocation(t *testing.T) {
	v := newBareVolume(t, 16384, 512, 8, 32) // 4096 bytes/cluster

	buf := make([]byte, v.BytesPerCluster())
	broken := DirEntry{Name: shortNameBytes("BROKEN.DAT"), Attr: 0x20, FileSize: 4097}
	broken.SetStartCluster(3) // file needs 2 clusters but only 1 is chained
	copy(buf[0:dirEntrySize], makeDirEntryBytes(t, broken))

	v.fat[2] = fatEOCLow | 0x07
	v.fat[3] = fatEOCLow | 0x07
	v.fat[20] = fatEOCLow | 0x07 // orphaned: FAT-marked, not directory-referenced

	writeClusterFixture(t, v, 2, buf)

	report, err := v.ScanAndAutoRepair(2, true)
	require.NoError(t, err)
	require.Equal(t, []uint32{20}, report.Consistency.OrphanedClusters)
	require.Len(t, report.Repaired, 1)
	require.Equal(t, uint32(0), v.fat[20])

	// the repaired entry's new chain must actually be marked used now.
	newStart := report.Repaired[0].NewChain[0]
	entry, err := v.fatEntry(newStart)
	require.NoError(t, err)
	require.NotEqual(t, uint32(0), entry)
}

func TestScanAndAutoRepairDryRunReportsWithoutMutating(t *testing.T) {
	v := newBareVolume(t, 16384, 512, 8, 32)

	buf := make([]byte, v.BytesPerCluster())
	broken := DirEntry{Name: shortNameBytes("BROKEN.DAT"), Attr: 0x20, FileSize: 4097}
	broken.SetStartCluster(3)
	copy(buf[0:dirEntrySize], makeDirEntryBytes(t, broken))

	v.fat[2] = fatEOCLow | 0x07
	v.fat[3] = fatEOCLow | 0x07
	v.fat[20] = fatEOCLow | 0x07

	writeClusterFixture(t, v, 2, buf)

	report, err := v.ScanAndAutoRepair(2, false)
	require.NoError(t, err)
	require.Equal(t, []uint32{20}, report.Consistency.OrphanedClusters)
	require.Len(t, report.Repaired, 1)

	// dry run: on-disk FAT must be completely untouched — the in-memory FAT
	// was only ever mutated, never flushed, so cluster 20's on-disk slot is
	// still whatever the zero-filled image started with.
	fatSize := int64(v.sectorsPerFAT) * int64(v.bytesPerSector)
	onDisk := make([]byte, fatSize)
	require.NoError(t, v.ih.ReadAt(v.fatBegin, onDisk))
	require.Equal(t, uint32(0), defaultEncoding.Uint32(onDisk[20*4:]))
}

func TestScanAndAutoRepairRequiresLoadedFAT(t *testing.T) {
	v := newBareVolume(t, 16384, 512, 8, 32)
	v.fat = nil

	_, err := v.ScanAndAutoRepair(2, true)
	require.ErrorIs(t, err, ErrFATNotLoaded)
}
