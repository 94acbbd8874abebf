package fat32

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func deletedEntryBytes(t *testing.T, name string, startCluster uint32, size uint32, created, written Timestamp) []byte {
	t.Helper()

	e := DirEntry{
		Name:           shortNameBytes(name),
		Attr:           0x20,
		FileSize:       size,
		CrtDate:        created.Date,
		CrtTime:        created.Time,
		WriteDate:      written.Date,
		WriteTime:      written.Time,
	}
	e.SetStartCluster(startCluster)
	e.Name[0] = dirEntryDeleted

	return makeDirEntryBytes(t, e)
}

func TestAnalyzeRecoveryCandidatesGoodSingleCandidate(t *testing.T) {
	v := newBareVolume(t, 8192, 512, 8, 32) // 4096 bytes/cluster

	buf := make([]byte, v.BytesPerCluster())
	created := Timestamp{Date: date(2024, 1, 1), Time: clock(9, 0, 0)}
	written := Timestamp{Date: date(2024, 1, 1), Time: clock(9, 5, 0)}
	copy(buf[0:dirEntrySize], deletedEntryBytes(t, "GONE.DAT", 10, 100, created, written))

	writeClusterFixture(t, v, 2, buf)

	candidates, err := v.AnalyzeRecoveryCandidates(2)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.True(t, candidates[0].IsRecoverable)
	require.Equal(t, ReasonGood, candidates[0].Reason)
	require.Equal(t, "GONE.DAT", candidates[0].ShortName)
}

func TestAnalyzeRecoveryCandidatesInvalidRange(t *testing.T) {
	v := newBareVolume(t, 8192, 512, 8, 32)

	buf := make([]byte, v.BytesPerCluster())
	ts := Timestamp{}
	// start cluster is within the total but its claimed run runs past the
	// end of the volume.
	copy(buf[0:dirEntrySize], deletedEntryBytes(t, "HUGE.DAT", v.totalClusters+1, 1<<30, ts, ts))

	writeClusterFixture(t, v, 2, buf)

	candidates, err := v.AnalyzeRecoveryCandidates(2)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.False(t, candidates[0].IsRecoverable)
	require.Equal(t, ReasonInvalidRange, candidates[0].Reason)
}

func TestAnalyzeRecoveryCandidatesOverwrittenByLive(t *testing.T) {
	v := newBareVolume(t, 8192, 512, 8, 32)

	// cluster 10 is live (FAT-marked).
	v.fat[10] = fatEOCLow | 0x07

	buf := make([]byte, v.BytesPerCluster())
	ts := Timestamp{}
	copy(buf[0:dirEntrySize], deletedEntryBytes(t, "GONE.DAT", 10, 100, ts, ts))
	writeClusterFixture(t, v, 2, buf)

	candidates, err := v.AnalyzeRecoveryCandidates(2)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.False(t, candidates[0].IsRecoverable)
	require.Equal(t, ReasonOverwrittenByLive, candidates[0].Reason)
}

func TestAnalyzeRecoveryCandidatesCollisionPrefersLaterCreation(t *testing.T) {
	v := newBareVolume(t, 8192, 512, 8, 32)

	buf := make([]byte, v.BytesPerCluster())

	// A: created 2024-01-01 09:00, last write 09:05 — both candidates claim
	// cluster 100.
	aCreated := Timestamp{Date: date(2024, 1, 1), Time: clock(9, 0, 0)}
	aWritten := Timestamp{Date: date(2024, 1, 1), Time: clock(9, 5, 0)}

	// B: created 2024-01-01 09:10 — strictly after A's last write, so B
	// dominates and must win.
	bCreated := Timestamp{Date: date(2024, 1, 1), Time: clock(9, 10, 0)}
	bWritten := Timestamp{Date: date(2024, 1, 1), Time: clock(9, 15, 0)}

	copy(buf[0:dirEntrySize], deletedEntryBytes(t, "A.DAT", 100, 100, aCreated, aWritten))
	copy(buf[dirEntrySize:2*dirEntrySize], deletedEntryBytes(t, "B.DAT", 100, 100, bCreated, bWritten))

	writeClusterFixture(t, v, 2, buf)

	candidates, err := v.AnalyzeRecoveryCandidates(2)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	// both names read back as "\xE5.DAT" once deleted, so candidates are
	// told apart by their slot: A at offset 0, B at offset dirEntrySize.
	byOffset := map[int]DeletedCandidate{}
	for _, c := range candidates {
		byOffset[c.OffsetInCluster] = c
	}

	require.False(t, byOffset[0].IsRecoverable)
	require.Equal(t, ReasonCollisionLost, byOffset[0].Reason)
	require.True(t, byOffset[dirEntrySize].IsRecoverable)
	require.Equal(t, ReasonGood, byOffset[dirEntrySize].Reason)
}

func TestAnalyzeRecoveryCandidatesCollisionFallsBackToLastWrite(t *testing.T) {
	v := newBareVolume(t, 8192, 512, 8, 128) // cluster 50 must be in range

	buf := make([]byte, v.BytesPerCluster())

	// Neither candidate's creation postdates the other's last write, so the
	// tie-breaker (later last-write wins) decides.
	aCreated := Timestamp{Date: date(2024, 1, 1), Time: clock(9, 0, 0)}
	aWritten := Timestamp{Date: date(2024, 1, 1), Time: clock(9, 30, 0)}

	bCreated := Timestamp{Date: date(2024, 1, 1), Time: clock(9, 5, 0)}
	bWritten := Timestamp{Date: date(2024, 1, 1), Time: clock(9, 45, 0)}

	copy(buf[0:dirEntrySize], deletedEntryBytes(t, "A.DAT", 50, 100, aCreated, aWritten))
	copy(buf[dirEntrySize:2*dirEntrySize], deletedEntryBytes(t, "B.DAT", 50, 100, bCreated, bWritten))

	writeClusterFixture(t, v, 2, buf)

	candidates, err := v.AnalyzeRecoveryCandidates(2)
	require.NoError(t, err)

	// A sits at offset 0, B at offset dirEntrySize.
	byOffset := map[int]DeletedCandidate{}
	for _, c := range candidates {
		byOffset[c.OffsetInCluster] = c
	}

	require.True(t, byOffset[dirEntrySize].IsRecoverable)
	require.False(t, byOffset[0].IsRecoverable)
}
