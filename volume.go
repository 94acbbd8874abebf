// Package fat32 is a forensic repair and undelete engine for a FAT32 volume
// exposed as a raw block image. It locates the partition table, validates
// and reconstructs the boot parameter block, verifies and repairs the file
// allocation table, and restores deleted directory entries in place.
package fat32

import (
	"github.com/google/uuid"
)

// Volume owns the image handle exclusively for its lifetime and holds every
// structure bound during initialization: the MBR, the selected partition's
// BPB, the derived geometry, and the in-memory FAT. Read-only inspection
// methods and mutating repair/restore methods are both hung off this type;
// callers are responsible for the single-writer discipline the design
// requires.
type Volume struct {
	ih     *ImageHandle
	logger Logger

	mbr MBR

	partition PartitionEntry
	bpb       BPB

	fatBegin       int64
	dataBegin      int64
	totalClusters  uint32
	bytesPerSector uint32
	sectorsPerFAT  uint32
	numFATs        uint8

	fat []uint32

	sessionID uuid.UUID
}

// NewVolume binds an already-open ImageHandle to a fresh Volume. It cannot
// fail; the fallible step is OpenImage, which produces the handle. The image
// is not touched until InitializeMBR is called.
func NewVolume(ih *ImageHandle, logger Logger) *Volume {
	if logger == nil {
		logger = nullLogger{}
	}

	return &Volume{
		ih:        ih,
		logger:    logger,
		sessionID: uuid.New(),
	}
}

// SessionID is a diagnostic-only label (never persisted to the image) that
// lets an operator correlate a batch of restore log lines back to one
// invocation of the engine.
func (v *Volume) SessionID() uuid.UUID {
	return v.sessionID
}

// InitializeVolume selects partition index i from the currently bound MBR,
// loads its BPB (§4.D's load pipeline), and binds the derived volume
// parameters from §3. InitializeMBR must have been called first.
func (v *Volume) InitializeVolume(i int) (err error) {
	defer recoverAsError(&err)

	partitions := v.ListPartitions()
	if i < 0 || i >= len(partitions) {
		return ErrNoValidPartition
	}

	v.partition = partitions[i]

	b, err := v.loadBPB(v.partition, nil)
	if err != nil {
		return err
	}

	v.bpb = b
	v.bindDerivedParameters()

	return nil
}

// InitializeVolumeWithOptions is InitializeVolume with an explicit
// ReconstructionOptions override, used when the caller wants to pin the SPC
// candidate order ahead of time rather than accept the default.
func (v *Volume) InitializeVolumeWithOptions(i int, opts *ReconstructionOptions) (err error) {
	defer recoverAsError(&err)

	partitions := v.ListPartitions()
	if i < 0 || i >= len(partitions) {
		return ErrNoValidPartition
	}

	v.partition = partitions[i]

	b, err := v.loadBPB(v.partition, opts)
	if err != nil {
		return err
	}

	v.bpb = b
	v.bindDerivedParameters()

	return nil
}

// bindDerivedParameters computes fat_begin, data_begin, and total_clusters
// from the bound BPB and partition, per §3.
func (v *Volume) bindDerivedParameters() {
	v.bytesPerSector = uint32(v.bpb.BytesPerSector)
	v.numFATs = v.bpb.NumFATs
	v.sectorsPerFAT = v.bpb.FATSize32

	v.fatBegin = (int64(v.partition.FirstLBA) + int64(v.bpb.ReservedSectorCount)) * int64(v.bytesPerSector)
	v.dataBegin = v.fatBegin + int64(v.numFATs)*int64(v.sectorsPerFAT)*int64(v.bytesPerSector)

	reservedAndFATSectors := uint32(v.bpb.ReservedSectorCount) + uint32(v.numFATs)*v.sectorsPerFAT
	if v.bpb.TotalSectors32 > reservedAndFATSectors && v.bpb.SectorsPerCluster > 0 {
		v.totalClusters = (v.bpb.TotalSectors32 - reservedAndFATSectors) / uint32(v.bpb.SectorsPerCluster)
	}
}

// BytesPerCluster is sectors-per-cluster × bytes-per-sector.
func (v *Volume) BytesPerCluster() uint32 {
	return uint32(v.bpb.SectorsPerCluster) * v.bytesPerSector
}

// ClusterOffset maps a cluster index to its absolute byte offset in the
// image, per §3.
func (v *Volume) ClusterOffset(cluster uint32) int64 {
	return v.dataBegin + int64(cluster-2)*int64(v.BytesPerCluster())
}

// TotalClusters is the derived cluster count for the bound volume.
func (v *Volume) TotalClusters() uint32 {
	return v.totalClusters
}

// RootCluster is the BPB's declared root directory start cluster.
func (v *Volume) RootCluster() uint32 {
	return v.bpb.RootCluster
}

// readCluster reads one full cluster's bytes. A cluster index outside
// [2, totalClusters+2) is reported as ErrClusterOutOfRange, per §4.F/§4.G's
// bounds-checking requirement.
func (v *Volume) readCluster(cluster uint32) ([]byte, error) {
	if cluster < 2 || cluster >= v.totalClusters+2 {
		return nil, ErrClusterOutOfRange
	}

	buf := make([]byte, v.BytesPerCluster())
	if err := v.ih.ReadAt(v.ClusterOffset(cluster), buf); err != nil {
		return nil, err
	}

	return buf, nil
}

// writeCluster writes one full cluster's bytes back to its mapped offset.
func (v *Volume) writeCluster(cluster uint32, data []byte) error {
	if cluster < 2 || cluster >= v.totalClusters+2 {
		return ErrClusterOutOfRange
	}

	return v.ih.WriteAt(v.ClusterOffset(cluster), data)
}

// Close releases the underlying image handle.
func (v *Volume) Close() error {
	return v.ih.Close()
}
