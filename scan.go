package fat32

// ScanReport combines the consistency checker's findings with every
// allocation-chain repair the scan performed (or would perform, in a
// dry-run).
type ScanReport struct {
	Consistency ConsistencyReport
	Repaired    []RepairedEntry
}

// ScanAndAutoRepair is the entry point the driver/CLI collaborator calls to
// run components F (chain walker), G (consistency checker), and H
// (allocation-chain repairer) together over the directory tree rooted at
// rootCluster. When fix is false, every finding is still computed and
// reported, but nothing is written back to the image.
func (v *Volume) ScanAndAutoRepair(rootCluster uint32, fix bool) (report ScanReport, err error) {
	defer recoverAsError(&err)

	if v.fat == nil {
		return report, ErrFATNotLoaded
	}

	consistencyReport, err := v.checkConsistency(rootCluster, fix)
	if err != nil {
		return report, err
	}

	report.Consistency = consistencyReport

	dirClusters, err := v.listDirectoryClusters(rootCluster, make(map[uint32]bool), 0)
	if err != nil {
		return report, err
	}

	anyDirty := false

	for _, dc := range dirClusters {
		repaired, dirty, err := v.repairAllocationChains(dc, fix)
		if err != nil {
			return report, err
		}

		report.Repaired = append(report.Repaired, repaired...)

		if dirty {
			anyDirty = true
		}
	}

	if fix && anyDirty {
		if err := v.writeFAT(); err != nil {
			return report, err
		}
	}

	return report, nil
}

// listDirectoryClusters collects every cluster belonging to every directory
// (not file) in the tree rooted at rootCluster, depth-first and depth-capped,
// so ScanAndAutoRepair can run the allocation-chain repairer over each one.
func (v *Volume) listDirectoryClusters(cluster uint32, visitedDirs map[uint32]bool, depth int) ([]uint32, error) {
	if depth > maxDirectoryDepth {
		return nil, ErrRecursionCapped
	}

	if visitedDirs[cluster] {
		return nil, nil
	}

	visitedDirs[cluster] = true

	chain, err := v.followFAT(cluster)
	if err != nil {
		return nil, err
	}

	result := append([]uint32{}, chain...)

	var subdirs []uint32

	scanErr := v.scanDirectory(cluster, scanHonorTerminator, func(_ uint32, _ int, entry DirEntry) bool {
		if entry.IsLongNameFragment() || entry.IsDeleted() || !entry.IsDirectory() {
			return true
		}

		name := entry.ShortName()
		if isDotEntry(name) {
			return true
		}

		start := entry.StartCluster()
		if start != 0 && start != cluster {
			subdirs = append(subdirs, start)
		}

		return true
	})

	if scanErr != nil {
		return result, scanErr
	}

	for _, sub := range subdirs {
		children, err := v.listDirectoryClusters(sub, visitedDirs, depth+1)
		if err != nil {
			return result, err
		}

		result = append(result, children...)
	}

	return result, nil
}
