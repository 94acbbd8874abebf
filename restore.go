package fat32

import "bytes"

// magicNumbers is the extension-keyed signature table the restorer checks a
// restored file's first cluster against. A mismatch is a warning only — it
// never vetoes a restore, per §4.J step 4. Supplements the distillation with
// the handful of signatures original_source/FAT32.cpp checks before undeleting
// a file.
var magicNumbers = map[string][]byte{
	"JPG":  {0xFF, 0xD8},
	"JPEG": {0xFF, 0xD8},
	"PNG":  {0x89, 0x50, 0x4E, 0x47},
	"GIF":  {0x47, 0x49, 0x46},
	"PDF":  {0x25, 0x50, 0x44, 0x46},
	"ZIP":  {0x50, 0x4B, 0x03, 0x04},
}

func extensionOf(shortName string) string {
	for i := len(shortName) - 1; i >= 0; i-- {
		if shortName[i] == '.' {
			return shortName[i+1:]
		}
	}

	return ""
}

// verifyMagicNumber reads the entry's first cluster and compares its leading
// bytes against the extension's expected signature. It never returns an
// error that aborts a restore; it only reports whether the bytes matched, so
// the caller can log a warning.
func (v *Volume) verifyMagicNumber(startCluster uint32, shortName string) (matched bool, hasSignature bool) {
	ext := extensionOf(shortName)

	sig, ok := magicNumbers[ext]
	if !ok {
		return false, false
	}

	data, err := v.readCluster(startCluster)
	if err != nil || len(data) < len(sig) {
		return false, true
	}

	return bytes.Equal(data[:len(sig)], sig), true
}

// RestoreDeletedFile implements §4.J's single-entry restore: re-validate
// that the entry is still deleted, pre-flight every claimed cluster for a
// collision, and only then commit the directory-entry and FAT mutations. No
// on-disk change happens unless every pre-flight check passes.
func (v *Volume) RestoreDeletedFile(dirCluster uint32, offsetInCluster int, replacementChar byte) (err error) {
	defer recoverAsError(&err)

	if v.fat == nil {
		return ErrFATNotLoaded
	}

	data, err := v.readCluster(dirCluster)
	if err != nil {
		return err
	}

	if offsetInCluster < 0 || offsetInCluster+dirEntrySize > len(data) {
		return ErrClusterOutOfRange
	}

	entry, err := decodeDirEntry(data[offsetInCluster : offsetInCluster+dirEntrySize])
	if err != nil {
		return err
	}

	if !entry.IsDeleted() {
		return ErrEntryNotDeleted
	}

	needed := v.neededClusters(entry.FileSize)
	start := entry.StartCluster()

	var run []uint32

	if needed > 0 {
		if start < 2 || start+needed > v.totalClusters+2 {
			return ErrCollision
		}

		for c := start; c < start+needed; c++ {
			entryVal, err := v.fatEntry(c)
			if err != nil || !isFreeCluster(entryVal) {
				v.logger.Warnf("restore: collision at cluster %d for %q, aborting before any change", c, entry.ShortName())
				return ErrCollision
			}

			run = append(run, c)
		}
	}

	if matched, has := v.verifyMagicNumber(start, entry.ShortName()); has && !matched {
		v.logger.Warnf("restore: %q first-cluster bytes do not match its extension's signature (proceeding anyway)", entry.ShortName())
	}

	entry.Name[0] = replacementChar

	encoded, err := encodeDirEntry(entry)
	if err != nil {
		return err
	}

	copy(data[offsetInCluster:offsetInCluster+dirEntrySize], encoded)

	for i, c := range run {
		if i == len(run)-1 {
			v.fat[c] = fatEOCLow | 0x07
		} else {
			v.fat[c] = run[i+1]
		}
	}

	if len(run) > 0 {
		if err := v.writeFAT(); err != nil {
			return err
		}
	}

	if err := v.writeCluster(dirCluster, data); err != nil {
		return err
	}

	v.logger.Infof("restore[%s]: restored %q (start=%d, %d cluster(s))", v.sessionID, entry.ShortName(), start, len(run))

	return nil
}

// RestoreTree implements §4.J's subtree restore: restore the parent entry
// first; if it turns out to be a directory, descend into it, analyze its
// deleted entries, and restore every recoverable non-"."/".." child,
// recursing into any restored sub-directories. Recursion is capped at
// maxDirectoryDepth and guarded against cycles by refusing to re-enter a
// cluster already visited or a cluster of 0.
func (v *Volume) RestoreTree(parentDirCluster uint32, offsetInCluster int, replacementChar byte) (err error) {
	defer recoverAsError(&err)

	return v.restoreTreeDepth(parentDirCluster, offsetInCluster, replacementChar, make(map[uint32]bool), 0)
}

func (v *Volume) restoreTreeDepth(dirCluster uint32, offsetInCluster int, replacementChar byte, visited map[uint32]bool, depth int) error {
	if depth > maxDirectoryDepth {
		return ErrRecursionCapped
	}

	if err := v.RestoreDeletedFile(dirCluster, offsetInCluster, replacementChar); err != nil {
		return err
	}

	data, err := v.readCluster(dirCluster)
	if err != nil {
		return err
	}

	restored, err := decodeDirEntry(data[offsetInCluster : offsetInCluster+dirEntrySize])
	if err != nil {
		return err
	}

	if !restored.IsDirectory() {
		return nil
	}

	childCluster := restored.StartCluster()
	if childCluster == 0 || visited[childCluster] {
		return nil
	}

	visited[childCluster] = true

	candidates, err := v.AnalyzeRecoveryCandidates(childCluster)
	if err != nil {
		return err
	}

	for _, cand := range candidates {
		if !cand.IsRecoverable || isDotEntry(cand.ShortName) {
			continue
		}

		if err := v.restoreTreeDepth(cand.DirCluster, cand.OffsetInCluster, replacementChar, visited, depth+1); err != nil {
			v.logger.Warnf("restoreTree: failed to restore %q under cluster %d: %v", cand.ShortName, childCluster, err)
		}
	}

	return nil
}
