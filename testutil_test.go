package fat32

import (
	"os"
	"path/filepath"
	"testing"
)

// newTestImage creates a zero-filled temp file of the given size and opens
// it as an ImageHandle, cleaning up automatically at test end.
func newTestImage(t *testing.T, size int64) *ImageHandle {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "image.bin")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create temp image: %v", err)
	}

	if err := f.Truncate(size); err != nil {
		t.Fatalf("truncate temp image: %v", err)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("close temp image: %v", err)
	}

	ih, err := OpenImage(path)
	if err != nil {
		t.Fatalf("open temp image: %v", err)
	}

	t.Cleanup(func() {
		ih.Close()
	})

	return ih
}

// newBareVolume returns a Volume over a fresh image, with the derived
// geometry fields set directly (bypassing InitializeMBR/InitializeVolume)
// so component-level tests can exercise chain/consistency/repair/analyzer
// logic without building a full boot region.
func newBareVolume(t *testing.T, imageSectors int64, bytesPerSector uint32, sectorsPerCluster uint32, fatEntries int) *Volume {
	t.Helper()

	ih := newTestImage(t, imageSectors*int64(bytesPerSector))

	v := NewVolume(ih, NewRecordingLogger())

	v.bytesPerSector = bytesPerSector
	v.numFATs = 2
	v.sectorsPerFAT = uint32((fatEntries*4 + int(bytesPerSector) - 1) / int(bytesPerSector))
	v.bpb.SectorsPerCluster = uint8(sectorsPerCluster)
	v.bpb.BytesPerSector = uint16(bytesPerSector)
	v.bpb.RootCluster = 2

	v.fatBegin = 0
	v.dataBegin = int64(v.numFATs) * int64(v.sectorsPerFAT) * int64(bytesPerSector)
	v.totalClusters = uint32(fatEntries) - 2

	v.fat = make([]uint32, fatEntries)

	return v
}

// writeClusterFixture writes raw bytes directly into a cluster's mapped
// offset, for tests that plant directory data without going through the
// restorer's own write paths.
func writeClusterFixture(t *testing.T, v *Volume, cluster uint32, data []byte) {
	t.Helper()

	buf := make([]byte, v.BytesPerCluster())
	copy(buf, data)

	if err := v.writeCluster(cluster, buf); err != nil {
		t.Fatalf("write cluster %d fixture: %v", cluster, err)
	}
}

// makeDirEntryBytes builds a raw 32-byte directory entry for fixtures.
func makeDirEntryBytes(t *testing.T, e DirEntry) []byte {
	t.Helper()

	raw, err := encodeDirEntry(e)
	if err != nil {
		t.Fatalf("encode dir entry fixture: %v", err)
	}

	return raw
}

// shortNameBytes packs a "NAME.EXT"-style string into the 11-byte packed
// short-name field, space-padding each half.
func shortNameBytes(name string) [11]byte {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}

	base := name
	ext := ""

	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			base = name[:i]
			ext = name[i+1:]
			break
		}
	}

	copy(out[0:8], base)
	copy(out[8:11], ext)

	return out
}

func date(year, month, day int) uint16 {
	return uint16((year-1980)<<9 | month<<5 | day)
}

func clock(hour, minute, second int) uint16 {
	return uint16(hour<<11 | minute<<5 | second/2)
}
