package fat32

const (
	fatEntryMask = 0x0FFFFFFF

	fatEOCLow  = 0x0FFFFFF8
	fatBad     = 0x0FFFFFF7
	fatFree    = 0x00000000
)

// isEndOfChain reports whether a masked FAT entry value is in the
// end-of-chain reserved range.
func isEndOfChain(v uint32) bool {
	return v >= fatEOCLow && v <= fatEntryMask
}

// isBadCluster reports whether a masked FAT entry marks a bad cluster.
func isBadCluster(v uint32) bool {
	return v == fatBad
}

// isFreeCluster reports whether a masked FAT entry marks a free cluster.
func isFreeCluster(v uint32) bool {
	return v == fatFree
}

// fatStructurallyValid implements the §4.E structural check: entry 0, masked
// to 28 bits, must have its high 8 bits all set.
func fatStructurallyValid(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}

	entry0 := defaultEncoding.Uint32(buf) & fatEntryMask

	return entry0&0x0FFFFF00 == 0x0FFFFF00
}

// LoadFAT implements §4.E: read FAT #1, fall back to FAT #2 on structural
// failure and mirror the good copy back, masking every entry to 28 bits. If
// both copies fail, the allocation-chain repairer (component H) is driven
// against the root cluster as a best-effort diagnostic pass over whichever
// copy read cleanly; nothing it finds is persisted, since a FAT that failed
// structural validation on both copies isn't trustworthy enough to write
// back to. The load itself still fails and v.fat is left nil — the caller
// must not assume the volume is mounted.
func (v *Volume) LoadFAT() (err error) {
	defer recoverAsError(&err)

	if v.bytesPerSector == 0 || v.sectorsPerFAT == 0 {
		return ErrVolumeNotBound
	}

	fatSize := int64(v.sectorsPerFAT) * int64(v.bytesPerSector)

	buf1 := make([]byte, fatSize)
	err1 := v.ih.ReadAt(v.fatBegin, buf1)

	if err1 == nil && fatStructurallyValid(buf1) {
		v.fat = decodeFATBuffer(buf1)
		v.logger.Infof("FAT: loaded copy #1 (%d entries)", len(v.fat))
		return nil
	}

	v.logger.Warnf("FAT: copy #1 failed structural validation")

	var buf2 []byte
	var err2 error = ErrFATNotLoaded

	if v.numFATs > 1 {
		fat2Offset := v.fatBegin + fatSize
		buf2 = make([]byte, fatSize)
		err2 = v.ih.ReadAt(fat2Offset, buf2)

		if err2 == nil && fatStructurallyValid(buf2) {
			v.fat = decodeFATBuffer(buf2)
			v.logger.Warnf("FAT: copy #1 corrupt, using copy #2 and mirroring it back")

			if err := v.ih.WriteAt(v.fatBegin, buf2); err != nil {
				return err
			}

			return nil
		}

		v.logger.Warnf("FAT: copy #2 also failed structural validation")
	}

	v.logger.Errorf("FAT: both copies invalid, running allocation-chain repair against root cluster before failing load")

	switch {
	case err1 == nil:
		v.fat = decodeFATBuffer(buf1)
	case err2 == nil:
		v.fat = decodeFATBuffer(buf2)
	}

	if v.fat != nil {
		if repaired, _, repairErr := v.repairAllocationChains(v.bpb.RootCluster, false); repairErr != nil {
			v.logger.Warnf("FAT: diagnostic repair pass against root cluster failed: %v", repairErr)
		} else if len(repaired) > 0 {
			v.logger.Warnf("FAT: diagnostic repair pass found %d entr(ies) with a bad allocation chain (not persisted)", len(repaired))
		}
	} else {
		v.logger.Warnf("FAT: neither copy could even be read, skipping diagnostic repair pass")
	}

	v.fat = nil

	return ErrFATNotLoaded
}

func decodeFATBuffer(buf []byte) []uint32 {
	count := len(buf) / 4
	fat := make([]uint32, count)

	for i := 0; i < count; i++ {
		fat[i] = defaultEncoding.Uint32(buf[i*4:]) & fatEntryMask
	}

	return fat
}

// writeFAT serializes the in-memory FAT with the 28-bit mask applied and
// writes numFATs identical copies, flushing after each, per §4.E/§5's
// ordering guarantee (copy i before copy i+1).
func (v *Volume) writeFAT() (err error) {
	defer recoverAsError(&err)

	if v.fat == nil {
		return ErrFATNotLoaded
	}

	buf := make([]byte, len(v.fat)*4)
	for i, entry := range v.fat {
		defaultEncoding.PutUint32(buf[i*4:], entry&fatEntryMask)
	}

	fatSize := int64(v.sectorsPerFAT) * int64(v.bytesPerSector)

	for i := 0; i < int(v.numFATs); i++ {
		offset := v.fatBegin + int64(i)*fatSize

		if err := v.ih.WriteAt(offset, buf); err != nil {
			return err
		}
	}

	return nil
}

// fatEntry returns the masked FAT entry for a cluster, or an error if the
// cluster index is out of the loaded FAT's bounds.
func (v *Volume) fatEntry(cluster uint32) (uint32, error) {
	if v.fat == nil {
		return 0, ErrFATNotLoaded
	}

	if cluster >= uint32(len(v.fat)) {
		return 0, ErrClusterOutOfRange
	}

	return v.fat[cluster], nil
}

// setFATEntry writes a masked value into the in-memory FAT for a cluster.
func (v *Volume) setFATEntry(cluster uint32, value uint32) error {
	if v.fat == nil {
		return ErrFATNotLoaded
	}

	if cluster >= uint32(len(v.fat)) {
		return ErrClusterOutOfRange
	}

	v.fat[cluster] = value & fatEntryMask

	return nil
}
