package fat32

// RecoveryReason is the arbitration outcome tag for a DeletedCandidate.
type RecoveryReason int

const (
	ReasonGood RecoveryReason = iota
	ReasonInvalidRange
	ReasonOverwrittenByLive
	ReasonCollisionLost
)

func (r RecoveryReason) String() string {
	switch r {
	case ReasonGood:
		return "Good"
	case ReasonInvalidRange:
		return "InvalidRange"
	case ReasonOverwrittenByLive:
		return "OverwrittenByLive"
	case ReasonCollisionLost:
		return "CollisionLost"
	default:
		return "Unknown"
	}
}

// DeletedCandidate is one deleted-entry record the analyzer produced, per
// §3's DeletedCandidate data model.
type DeletedCandidate struct {
	DirCluster      uint32
	OffsetInCluster int

	ShortName    string
	Size         uint32
	StartCluster uint32
	IsDirectory  bool

	Creation  Timestamp
	LastWrite Timestamp

	IsRecoverable bool
	Reason        RecoveryReason
}

// needed returns ceil(Size / bytesPerCluster) for this candidate.
func (c DeletedCandidate) needed(v *Volume) uint32 {
	return v.neededClusters(c.Size)
}

// AnalyzeRecoveryCandidates implements §4.I: enumerate deleted entries in the
// directory cluster chain starting at dirCluster, build a cluster-claim map
// under the contiguous-layout assumption, and apply the four-tier
// arbitration to decide which candidates are recoverable.
func (v *Volume) AnalyzeRecoveryCandidates(dirCluster uint32) (candidates []DeletedCandidate, err error) {
	defer recoverAsError(&err)

	if v.fat == nil {
		return nil, ErrFATNotLoaded
	}

	scanErr := v.scanDirectory(dirCluster, scanFullChain, func(cluster uint32, off int, entry DirEntry) bool {
		if !entry.IsDeleted() || entry.IsLongNameFragment() {
			return true
		}

		candidates = append(candidates, DeletedCandidate{
			DirCluster:      cluster,
			OffsetInCluster: off,
			ShortName:       entry.ShortName(),
			Size:            entry.FileSize,
			StartCluster:    entry.StartCluster(),
			IsDirectory:     entry.IsDirectory(),
			Creation:        Timestamp{Date: entry.CrtDate, Time: entry.CrtTime},
			LastWrite:       Timestamp{Date: entry.WriteDate, Time: entry.WriteTime},
			IsRecoverable:   true,
			Reason:          ReasonGood,
		})

		return true
	})

	if scanErr != nil {
		return nil, scanErr
	}

	clusterClaims := make(map[uint32][]int)

	for i := range candidates {
		c := &candidates[i]

		needed := c.needed(v)
		if needed == 0 {
			continue
		}

		if c.StartCluster+needed > v.totalClusters+2 {
			c.IsRecoverable = false
			c.Reason = ReasonInvalidRange
			continue
		}

		for cl := c.StartCluster; cl < c.StartCluster+needed; cl++ {
			clusterClaims[cl] = append(clusterClaims[cl], i)
		}
	}

	for cluster, claimants := range clusterClaims {
		entryVal, err := v.fatEntry(cluster)
		if err != nil {
			continue
		}

		if entryVal&fatEntryMask != 0 {
			for _, idx := range claimants {
				candidates[idx].IsRecoverable = false
				candidates[idx].Reason = ReasonOverwrittenByLive
			}

			continue
		}

		if len(claimants) <= 1 {
			continue
		}

		winner := claimants[0]
		for _, challenger := range claimants[1:] {
			if preferCandidate(candidates[challenger], candidates[winner]) {
				winner = challenger
			}
		}

		for _, idx := range claimants {
			if idx == winner {
				continue
			}

			candidates[idx].IsRecoverable = false
			candidates[idx].Reason = ReasonCollisionLost
		}
	}

	return candidates, nil
}

// preferCandidate implements §4.I's two-phase deleted-vs-deleted rule:
// candidate a is preferred over b if a's creation strictly postdates b's
// last-write (a was created after b finished writing); failing that, the
// later last-write wins.
func preferCandidate(a, b DeletedCandidate) bool {
	aDominates := a.Creation.After(b.LastWrite)
	bDominates := b.Creation.After(a.LastWrite)

	if aDominates && !bDominates {
		return true
	}

	if bDominates && !aDominates {
		return false
	}

	return a.LastWrite.After(b.LastWrite)
}
