package fat32

// TreeEntry is one live, non-deleted entry surfaced by ListTree.
type TreeEntry struct {
	Path         string
	ShortName    string
	IsDirectory  bool
	Size         uint32
	StartCluster uint32
}

// ListTree recursively lists every live directory entry from rootCluster,
// depth-first and depth-capped, supplementing the distillation with the
// recursive browse original_source/FAT32.cpp's menu offered before an
// operator chose what to undelete.
func (v *Volume) ListTree(rootCluster uint32) (entries []TreeEntry, err error) {
	defer recoverAsError(&err)

	if v.fat == nil {
		return nil, ErrFATNotLoaded
	}

	err = v.listTreeDepth(rootCluster, "", &entries, make(map[uint32]bool), 0)

	return entries, err
}

func (v *Volume) listTreeDepth(cluster uint32, prefix string, entries *[]TreeEntry, visited map[uint32]bool, depth int) error {
	if depth > maxDirectoryDepth {
		return ErrRecursionCapped
	}

	if visited[cluster] {
		return nil
	}

	visited[cluster] = true

	var subdirs []TreeEntry

	scanErr := v.scanDirectory(cluster, scanHonorTerminator, func(_ uint32, _ int, entry DirEntry) bool {
		if entry.IsLongNameFragment() || entry.IsDeleted() {
			return true
		}

		name := entry.ShortName()
		if isDotEntry(name) {
			return true
		}

		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}

		te := TreeEntry{
			Path:         path,
			ShortName:    name,
			IsDirectory:  entry.IsDirectory(),
			Size:         entry.FileSize,
			StartCluster: entry.StartCluster(),
		}

		*entries = append(*entries, te)

		if te.IsDirectory {
			subdirs = append(subdirs, te)
		}

		return true
	})

	if scanErr != nil {
		return scanErr
	}

	for _, sub := range subdirs {
		if sub.StartCluster == 0 || sub.StartCluster == cluster {
			continue
		}

		if err := v.listTreeDepth(sub.StartCluster, sub.Path, entries, visited, depth+1); err != nil {
			return err
		}
	}

	return nil
}
