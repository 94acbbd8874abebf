package fat32

import (
	"bytes"
)

var validBytesPerSector = map[uint16]bool{512: true, 1024: true, 2048: true, 4096: true}

// defaultSPCCandidates is the order the geometry brute-force tries
// sectors-per-cluster guesses in. Exposed as an override (§9 Open Question:
// the teacher's fixed order may be wrong on 4 KiB-cluster volumes) via
// ReconstructionOptions.SPCCandidates.
var defaultSPCCandidates = []uint8{8, 16, 32, 64, 1, 2, 4, 128}

func isPowerOfTwoInRange(n uint8, lo, hi int) bool {
	v := int(n)
	if v < lo || v > hi {
		return false
	}

	return v&(v-1) == 0
}

// strictValidateBPB implements §4.D's strict validator: the set of checks
// that must all pass before a candidate 512-byte sector is accepted as a
// FAT32 boot sector.
func strictValidateBPB(raw []byte) bool {
	if len(raw) != sectorSize {
		return false
	}

	if defaultEncoding.Uint16(raw[bpbSignatureOffset:]) != bootSignature {
		return false
	}

	if !bytes.Equal(raw[bpbFileSystemTypeOffset:bpbFileSystemTypeOffset+5], []byte("FAT32")) {
		return false
	}

	b, err := decodeBPB(raw)
	if err != nil {
		return false
	}

	if !validBytesPerSector[b.BytesPerSector] {
		return false
	}

	if !isPowerOfTwoInRange(b.SectorsPerCluster, 1, 128) {
		return false
	}

	if b.ReservedSectorCount < 1 {
		return false
	}

	if b.NumFATs != 1 && b.NumFATs != 2 {
		return false
	}

	if b.FATSize32 == 0 {
		return false
	}

	if b.RootCluster < 2 {
		return false
	}

	if b.TotalSectors32 == 0 {
		return false
	}

	return true
}

// ReconstructionOptions lets a caller override the geometry brute-force's
// sectors-per-cluster candidate order, per the §9 Open Question.
type ReconstructionOptions struct {
	SPCCandidates []uint8
}

// loadBPB implements the §4.D load pipeline for a partition: try the main
// sector, fall back to the conventional backup, and failing both, reconstruct
// geometry from scratch.
func (v *Volume) loadBPB(p PartitionEntry, opts *ReconstructionOptions) (b BPB, err error) {
	defer recoverAsError(&err)

	mainOffset := int64(p.FirstLBA) * sectorSize
	raw := make([]byte, sectorSize)

	if err := v.ih.ReadAt(mainOffset, raw); err == nil && strictValidateBPB(raw) {
		b, err := decodeBPB(raw)
		if err != nil {
			return b, err
		}

		v.logger.Infof("BPB: main sector at LBA %d is valid", p.FirstLBA)
		return b, nil
	}

	backupOffset := int64(p.FirstLBA+6) * sectorSize
	backupRaw := make([]byte, sectorSize)

	if err := v.ih.ReadAt(backupOffset, backupRaw); err == nil && strictValidateBPB(backupRaw) {
		b, err := decodeBPB(backupRaw)
		if err != nil {
			return b, err
		}

		v.logger.Warnf("BPB: main sector at LBA %d invalid, restoring from backup at LBA %d", p.FirstLBA, p.FirstLBA+6)

		if err := v.ih.WriteAt(mainOffset, backupRaw); err != nil {
			return b, err
		}

		return b, nil
	}

	v.logger.Warnf("BPB: both main and backup sectors invalid for partition at LBA %d; reconstructing geometry", p.FirstLBA)

	return v.reconstructBPB(p, opts)
}

// reconstructBPB implements the §4.D "geometry brute-force" algorithm.
func (v *Volume) reconstructBPB(p PartitionEntry, opts *ReconstructionOptions) (b BPB, err error) {
	defer recoverAsError(&err)

	spcCandidates := defaultSPCCandidates
	if opts != nil && len(opts.SPCCandidates) > 0 {
		spcCandidates = opts.SPCCandidates
	}

	b.BytesPerSector = sectorSize
	b.NumFATs = 2
	b.RootCluster = 2
	b.HiddenSectors = p.FirstLBA
	b.TotalSectors32 = p.SectorCount

	reservedSectors, sectorsPerFAT, err := v.locateFATs(p)
	if err != nil {
		return b, err
	}

	b.ReservedSectorCount = uint16(reservedSectors)
	b.FATSize32 = sectorsPerFAT

	spc, err := v.inferSectorsPerCluster(p, b, spcCandidates)
	if err != nil {
		v.logger.Warnf("BPB reconstruction: no SPC candidate matched, defaulting to 8")
		spc = 8
	}

	b.SectorsPerCluster = spc
	b.FSInfoSector = 1
	b.BackupBPBSector = 6
	b.JumpBoot = bpbJumpStub
	b.FileSystemType = fileSystemType
	b.SectorSignature = bootSignature

	raw, err := encodeBPB(b)
	if err != nil {
		return b, err
	}

	offset := int64(p.FirstLBA) * sectorSize
	if err := v.ih.WriteAt(offset, raw); err != nil {
		return b, err
	}

	v.logger.Infof("BPB reconstructed: reserved=%d sectorsPerFAT=%d spc=%d", reservedSectors, sectorsPerFAT, spc)

	return b, nil
}

// fatSignature is the little-endian encoding of 0x0FFFFFF8, the first FAT
// entry's conventional media-descriptor-derived value.
var fatSignature = [4]byte{0xF8, 0xFF, 0xFF, 0x0F}

// locateFATs scans sectors 1..4000 after the partition start for the FAT
// start signature; the first hit is FAT #1's reserved-sector offset, the
// second determines sectors-per-FAT from the gap between the two.
func (v *Volume) locateFATs(p PartitionEntry) (reservedSectors, sectorsPerFAT uint32, err error) {
	defer recoverAsError(&err)

	var fat1Offset, fat2Offset int64 = -1, -1

	buf := make([]byte, sectorSize)

	for rel := int64(1); rel <= 4000; rel++ {
		offset := (int64(p.FirstLBA) + rel) * sectorSize

		if err := v.ih.ReadAt(offset, buf); err != nil {
			break
		}

		if bytes.Equal(buf[:4], fatSignature[:]) {
			if fat1Offset == -1 {
				fat1Offset = rel
			} else {
				fat2Offset = rel
				break
			}
		}
	}

	if fat1Offset == -1 {
		return 0, 0, ErrNoValidPartition
	}

	reservedSectors = uint32(fat1Offset)

	if fat2Offset != -1 {
		sectorsPerFAT = uint32(fat2Offset - fat1Offset)
	}

	return reservedSectors, sectorsPerFAT, nil
}

// inferSectorsPerCluster tries each SPC candidate, computing the derived
// data-region start and checking whether cluster 2's first sector contains a
// plausible directory entry.
func (v *Volume) inferSectorsPerCluster(p PartitionEntry, b BPB, candidates []uint8) (spc uint8, err error) {
	defer recoverAsError(&err)

	fatBegin := int64(p.FirstLBA+uint32(b.ReservedSectorCount)) * sectorSize
	fatRegionSize := int64(b.NumFATs) * int64(b.FATSize32) * sectorSize

	buf := make([]byte, sectorSize)

	for _, candidate := range candidates {
		dataBegin := fatBegin + fatRegionSize
		cluster2Offset := dataBegin

		if err := v.ih.ReadAt(cluster2Offset, buf); err != nil {
			continue
		}

		if looksLikeDirectorySector(buf) {
			return candidate, nil
		}
	}

	return 0, ErrNoValidPartition
}

// looksLikeDirectorySector checks the sixteen 32-byte windows of a sector
// for at least one plausible directory-entry attribute byte, per §4.D.
func looksLikeDirectorySector(sector []byte) bool {
	for i := 0; i+dirEntrySize <= len(sector); i += dirEntrySize {
		attr := sector[i+11]

		if attr&0x18 != 0 || attr == 0x20 {
			return true
		}
	}

	return false
}
