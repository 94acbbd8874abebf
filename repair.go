package fat32

import "math"

// neededClusters computes ceil(fileSize / bytesPerCluster).
func (v *Volume) neededClusters(fileSize uint32) uint32 {
	bpc := v.BytesPerCluster()
	if bpc == 0 {
		return 0
	}

	return uint32(math.Ceil(float64(fileSize) / float64(bpc)))
}

// chainIsBad implements §4.H's classification: a chain is bad if it's empty
// for a non-empty file, shorter than needed, touches an out-of-range
// cluster, or traverses a cluster already marked free.
func (v *Volume) chainIsBad(startCluster uint32, fileSize uint32) (bool, []uint32) {
	needed := v.neededClusters(fileSize)

	if startCluster == 0 {
		return fileSize > 0, nil
	}

	chain, err := v.followFAT(startCluster)
	if err != nil {
		return true, chain
	}

	if uint32(len(chain)) < needed {
		return true, chain
	}

	for _, c := range chain {
		if c < 2 || c >= v.totalClusters+2 {
			return true, chain
		}

		entry, err := v.fatEntry(c)
		if err != nil || isFreeCluster(entry) {
			return true, chain
		}
	}

	return false, chain
}

// contiguousGuess implements §4.H's run-finding heuristic: try the declared
// start hint first, then scan from cluster 2 upward for the first fit.
func (v *Volume) contiguousGuess(startHint uint32, fileSize uint32) []uint32 {
	needed := v.neededClusters(fileSize)
	if needed == 0 {
		return nil
	}

	if startHint >= 2 && v.rangeIsFree(startHint, needed) {
		return v.clusterRun(startHint, needed)
	}

	for c := uint32(2); c+needed <= v.totalClusters+2; c++ {
		if v.rangeIsFree(c, needed) {
			return v.clusterRun(c, needed)
		}
	}

	return nil
}

func (v *Volume) rangeIsFree(start, count uint32) bool {
	if start < 2 || start+count > v.totalClusters+2 {
		return false
	}

	for c := start; c < start+count; c++ {
		entry, err := v.fatEntry(c)
		if err != nil || !isFreeCluster(entry) {
			return false
		}
	}

	return true
}

func (v *Volume) clusterRun(start, count uint32) []uint32 {
	run := make([]uint32, count)
	for i := uint32(0); i < count; i++ {
		run[i] = start + i
	}

	return run
}

// RepairedEntry records one directory entry the allocation-chain repairer
// reassigned a fresh cluster run to.
type RepairedEntry struct {
	DirCluster      uint32
	OffsetInCluster int
	OldChain        []uint32
	NewChain        []uint32
}

// repairAllocationChains implements §4.H over a single directory cluster:
// for every live, non-LFN, non-deleted entry with a bad chain, find a
// contiguous free run and rewrite the FAT and the entry's start cluster. When
// persist is false this only reports what would change — the in-memory FAT
// and directory bytes are left untouched, for a dry-run scan.
func (v *Volume) repairAllocationChains(dirCluster uint32, persist bool) (repaired []RepairedEntry, dirty bool, err error) {
	if v.fat == nil {
		return nil, false, ErrFATNotLoaded
	}

	data, err := v.readCluster(dirCluster)
	if err != nil {
		return nil, false, err
	}

	for off := 0; off+dirEntrySize <= len(data); off += dirEntrySize {
		entry, err := decodeDirEntry(data[off : off+dirEntrySize])
		if err != nil {
			continue
		}

		if entry.IsEndOfDirectory() {
			break
		}

		if entry.IsLongNameFragment() || entry.IsDeleted() {
			continue
		}

		if isDotEntry(entry.ShortName()) {
			continue
		}

		start := entry.StartCluster()

		bad, oldChain := v.chainIsBad(start, entry.FileSize)
		if !bad {
			continue
		}

		hint := start
		if hint == 0 {
			hint = 2
		}

		newChain := v.contiguousGuess(hint, entry.FileSize)
		if len(newChain) == 0 {
			v.logger.Warnf("repair: no free run found for entry at cluster %d offset %d", dirCluster, off)
			continue
		}

		repaired = append(repaired, RepairedEntry{
			DirCluster:      dirCluster,
			OffsetInCluster: off,
			OldChain:        oldChain,
			NewChain:        newChain,
		})

		if !persist {
			v.logger.Infof("repair (dry-run): would reassign entry at cluster %d offset %d to %d cluster(s) starting at %d", dirCluster, off, len(newChain), newChain[0])
			continue
		}

		for _, c := range oldChain {
			v.fat[c] = 0
		}

		for i, c := range newChain {
			if i == len(newChain)-1 {
				v.fat[c] = fatEOCLow | 0x07
			} else {
				v.fat[c] = newChain[i+1]
			}
		}

		entry.SetStartCluster(newChain[0])

		encoded, err := encodeDirEntry(entry)
		if err != nil {
			return repaired, dirty, err
		}

		copy(data[off:off+dirEntrySize], encoded)
		dirty = true

		v.logger.Infof("repair: reassigned entry at cluster %d offset %d to %d cluster(s) starting at %d", dirCluster, off, len(newChain), newChain[0])
	}

	if dirty {
		if err := v.writeCluster(dirCluster, data); err != nil {
			return repaired, dirty, err
		}
	}

	return repaired, dirty, nil
}
