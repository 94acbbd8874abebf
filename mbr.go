package fat32

// validateMBR implements §4.C's validation rule: a valid MBR has the
// 0xAA55 signature and at least one partition entry whose type is
// {0x0B, 0x0C}, whose first-LBA/sector-count are non-zero, and whose boot
// sector at that LBA passes the strict BPB validator.
func (v *Volume) validateMBR(m MBR) bool {
	if !m.IsSignatureValid() {
		return false
	}

	for _, pe := range m.Partitions {
		if pe.IsEmpty() || !partitionTypes[pe.Type] {
			continue
		}

		raw := make([]byte, sectorSize)
		if err := v.ih.ReadAt(int64(pe.FirstLBA)*sectorSize, raw); err != nil {
			continue
		}

		if strictValidateBPB(raw) {
			return true
		}
	}

	return false
}

// InitializeMBR ensures a valid MBR is bound in memory, rebuilding it from a
// full-image FAT32 sweep if the one on disk doesn't validate, and fixing up
// suspect-but-recoverable fields otherwise. This is the entry point named in
// the design's driver/CLI collaborator contract.
func (v *Volume) InitializeMBR() (err error) {
	defer recoverAsError(&err)

	raw := make([]byte, sectorSize)
	if err := v.ih.ReadAt(0, raw); err != nil {
		return err
	}

	m, err := decodeMBR(raw)
	if err != nil {
		return err
	}

	if !v.validateMBR(m) {
		v.logger.Warnf("MBR: validation failed, rebuilding from full-image scan")

		m, err = v.rebuildMBR()
		if err != nil {
			return err
		}
	} else if err := v.fixupMBR(&m); err != nil {
		return err
	}

	v.mbr = m

	return nil
}

// rebuildMBR implements §4.C's rebuild algorithm: sweep the image for FAT32
// volumes and synthesize a fresh partition table.
func (v *Volume) rebuildMBR() (m MBR, err error) {
	defer recoverAsError(&err)

	m.Signature = bootSignature

	totalSectors := v.ih.Length() / sectorSize
	cursor := int64(1)
	slot := 0

	buf := make([]byte, sectorSize)

	for cursor < totalSectors && slot < partitionCount {
		offset := cursor * sectorSize

		if err := v.ih.ReadAt(offset, buf); err != nil {
			break
		}

		if !strictValidateBPB(buf) {
			cursor++
			continue
		}

		b, err := decodeBPB(buf)
		if err != nil {
			cursor++
			continue
		}

		status := byte(0x00)
		if slot == 0 {
			status = 0x80
		}

		m.Partitions[slot] = PartitionEntry{
			Status:      status,
			Type:        0x0C,
			FirstLBA:    uint32(cursor),
			SectorCount: b.TotalSectors32,
		}

		v.logger.Infof("MBR rebuild: found FAT32 volume at LBA %d (%d sectors)", cursor, b.TotalSectors32)

		slot++

		if b.TotalSectors32 == 0 {
			break
		}

		cursor += int64(b.TotalSectors32)
	}

	if slot == 0 {
		return m, ErrNoValidPartition
	}

	raw, err := encodeMBR(m)
	if err != nil {
		return m, err
	}

	if err := v.ih.WriteAt(0, raw); err != nil {
		return m, err
	}

	return m, nil
}

// fixupMBR implements §4.C's fix-up pass over an already-valid MBR: suspect
// type bytes and disagreeing sector counts are corrected in place.
func (v *Volume) fixupMBR(m *MBR) error {
	dirty := false

	for i := range m.Partitions {
		pe := &m.Partitions[i]

		if pe.IsEmpty() {
			continue
		}

		raw := make([]byte, sectorSize)
		if err := v.ih.ReadAt(int64(pe.FirstLBA)*sectorSize, raw); err != nil {
			continue
		}

		if !strictValidateBPB(raw) {
			continue
		}

		b, err := decodeBPB(raw)
		if err != nil {
			continue
		}

		if !partitionTypes[pe.Type] {
			v.logger.Warnf("MBR fix-up: slot %d has type 0x%02X, rewriting to 0x0C", i, pe.Type)
			pe.Type = 0x0C
			dirty = true
		}

		if pe.SectorCount != b.TotalSectors32 {
			v.logger.Warnf("MBR fix-up: slot %d sector count %d disagrees with BPB %d", i, pe.SectorCount, b.TotalSectors32)
			pe.SectorCount = b.TotalSectors32
			dirty = true
		}
	}

	if !dirty {
		return nil
	}

	raw, err := encodeMBR(*m)
	if err != nil {
		return err
	}

	return v.ih.WriteAt(0, raw)
}

// ListPartitions returns every non-empty partition entry currently bound in
// the in-memory MBR, in slot order.
func (v *Volume) ListPartitions() []PartitionEntry {
	partitions := make([]PartitionEntry, 0, partitionCount)

	for _, pe := range v.mbr.Partitions {
		if !pe.IsEmpty() {
			partitions = append(partitions, pe)
		}
	}

	return partitions
}
