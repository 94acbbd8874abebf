package fat32

// directoryScanMode resolves the §9 Open Question about whether a directory
// scan should stop at the first end-of-directory terminator or continue
// scanning every cluster in the directory's full FAT chain.
type directoryScanMode int

const (
	// scanHonorTerminator stops the entire walk (across every cluster in the
	// chain) at the first 0x00 byte-0 entry, matching the convention a live
	// filesystem driver relies on. Used for live-entry traversals
	// (consistency checking, tree listing) where entries genuinely cannot
	// exist past a terminator in a healthy directory.
	scanHonorTerminator directoryScanMode = iota

	// scanFullChain ignores terminators entirely once reached and keeps
	// scanning every remaining cluster of the chain. Used for the deleted-
	// entry analyzer: a damaged directory can carry a terminator earlier in
	// its chain than stale, still-readable deleted entries further down, and
	// a forensic undelete tool should err toward finding them.
	scanFullChain
)

// dirEntryVisitor is called for every 32-byte slot in a directory's cluster
// chain that scanDirectory reaches. Returning false stops the walk
// immediately (in addition to whatever the scan mode would otherwise do).
type dirEntryVisitor func(cluster uint32, offsetInCluster int, entry DirEntry) (doContinue bool)

// scanDirectory walks every cluster in the chain starting at startCluster,
// decoding each 32-byte slot and invoking visit. Cycle detection and bounds
// checking are inherited from followFAT.
func (v *Volume) scanDirectory(startCluster uint32, mode directoryScanMode, visit dirEntryVisitor) error {
	chain, err := v.followFAT(startCluster)
	if err != nil {
		return err
	}

	for _, cluster := range chain {
		data, err := v.readCluster(cluster)
		if err != nil {
			v.logger.Warnf("scanDirectory: failed to read cluster %d: %v", cluster, err)
			continue
		}

		stopWalk := false

		for off := 0; off+dirEntrySize <= len(data); off += dirEntrySize {
			entry, err := decodeDirEntry(data[off : off+dirEntrySize])
			if err != nil {
				continue
			}

			if entry.IsEndOfDirectory() {
				if mode == scanHonorTerminator {
					stopWalk = true
					break
				}

				continue
			}

			if !visit(cluster, off, entry) {
				stopWalk = true
				break
			}
		}

		if stopWalk {
			break
		}
	}

	return nil
}

// isDotEntry reports whether a short name is the "." or ".." convention
// entry, which directory walks must skip to avoid infinite recursion.
func isDotEntry(name string) bool {
	return name == "." || name == ".."
}
