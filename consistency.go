package fat32

// ConsistencyReport summarizes what the consistency checker found so a
// caller (or test) can inspect the repair without re-deriving it.
type ConsistencyReport struct {
	OrphanedClusters    []uint32
	MissingStartClusters []uint32
}

// checkConsistency implements §4.G: reconcile FAT-reachable clusters against
// directory-reachable clusters. Orphans (FAT-marked but not directory-
// referenced) are freed; dangling directory references (directory-referenced
// but FAT[c] == 0) are rewritten as single-cluster chains. The writeBack flag
// controls whether the FAT mutation is persisted.
func (v *Volume) checkConsistency(rootCluster uint32, writeBack bool) (report ConsistencyReport, err error) {
	defer recoverAsError(&err)

	if v.fat == nil {
		return report, ErrFATNotLoaded
	}

	directoryReferenced := make(map[uint32]bool)

	if err := v.collectDirectoryReferences(rootCluster, directoryReferenced, make(map[uint32]bool), 0); err != nil {
		return report, err
	}

	fatMarked := make(map[uint32]bool)
	for c := uint32(2); c < uint32(len(v.fat)); c++ {
		if v.fat[c] != 0 {
			fatMarked[c] = true
		}
	}

	for c := range fatMarked {
		if directoryReferenced[c] {
			continue
		}

		orphanChain, err := v.followFAT(c)
		if err != nil {
			return report, err
		}

		for _, oc := range orphanChain {
			if !directoryReferenced[oc] {
				v.fat[oc] = 0
				report.OrphanedClusters = append(report.OrphanedClusters, oc)
			}
		}
	}

	for c := range directoryReferenced {
		if c >= uint32(len(v.fat)) {
			continue
		}

		if v.fat[c] == 0 {
			v.fat[c] = fatEOCLow | 0x07
			report.MissingStartClusters = append(report.MissingStartClusters, c)
		}
	}

	if len(report.OrphanedClusters) > 0 {
		v.logger.Warnf("consistency: freed %d orphaned cluster(s)", len(report.OrphanedClusters))
	}

	if len(report.MissingStartClusters) > 0 {
		v.logger.Warnf("consistency: rewrote %d missing start cluster(s) as single-cluster EOC", len(report.MissingStartClusters))
	}

	if writeBack && (len(report.OrphanedClusters) > 0 || len(report.MissingStartClusters) > 0) {
		if err := v.writeFAT(); err != nil {
			return report, err
		}
	}

	return report, nil
}

const maxDirectoryDepth = 64

// collectDirectoryReferences depth-first walks live, non-LFN, non-deleted
// entries from a directory cluster, adding each file's full cluster chain to
// referenced. "." and ".." are skipped, and recursion is capped per §5.
func (v *Volume) collectDirectoryReferences(cluster uint32, referenced map[uint32]bool, visitedDirs map[uint32]bool, depth int) error {
	if depth > maxDirectoryDepth {
		return ErrRecursionCapped
	}

	if visitedDirs[cluster] {
		return nil
	}

	visitedDirs[cluster] = true

	chain, err := v.followFAT(cluster)
	if err != nil {
		return err
	}

	for _, c := range chain {
		referenced[c] = true
	}

	var subdirs []uint32

	scanErr := v.scanDirectory(cluster, scanHonorTerminator, func(_ uint32, _ int, entry DirEntry) bool {
		if entry.IsLongNameFragment() || entry.IsDeleted() {
			return true
		}

		name := entry.ShortName()
		if isDotEntry(name) {
			return true
		}

		start := entry.StartCluster()
		if start == 0 {
			return true
		}

		if entry.IsDirectory() {
			subdirs = append(subdirs, start)
			return true
		}

		fileChain, err := v.followFAT(start)
		if err != nil {
			return true
		}

		for _, c := range fileChain {
			referenced[c] = true
		}

		return true
	})

	if scanErr != nil {
		return scanErr
	}

	for _, sub := range subdirs {
		if sub == cluster {
			continue
		}

		if err := v.collectDirectoryReferences(sub, referenced, visitedDirs, depth+1); err != nil {
			return err
		}
	}

	return nil
}
