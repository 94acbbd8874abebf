// This file holds the low-level, on-disk storage structures: MBR, BPB, and
// directory entries. Encoders/decoders here are total, unvalidated pure
// functions on fixed-width buffers; validation lives in the managers
// (mbr.go, bpb.go) that call them.
package fat32

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"
)

var defaultEncoding = binary.LittleEndian

const (
	sectorSize = 512

	mbrBootloaderSize  = 446
	partitionEntrySize = 16
	partitionCount     = 4

	bpbFileSystemTypeOffset = 82
	bpbBootCodeSize         = 420
	bpbSignatureOffset      = 510

	dirEntrySize = 32
)

var (
	bootSignature   = uint16(0xAA55)
	fileSystemType  = [8]byte{'F', 'A', 'T', '3', '2', ' ', ' ', ' '}
	bpbJumpStub     = [3]byte{0xEB, 0x58, 0x90}
	partitionTypes  = map[byte]bool{0x0B: true, 0x0C: true}
)

// PartitionEntry is one 16-byte record of the MBR's partition table.
type PartitionEntry struct {
	Status      byte
	CHSFirst    [3]byte
	Type        byte
	CHSLast     [3]byte
	FirstLBA    uint32
	SectorCount uint32
}

// IsEmpty reports whether this slot holds no partition, per §3: both
// first-LBA and sector-count are zero.
func (pe PartitionEntry) IsEmpty() bool {
	return pe.FirstLBA == 0 && pe.SectorCount == 0
}

// IsActive reports the conventional active/bootable flag.
func (pe PartitionEntry) IsActive() bool {
	return pe.Status == 0x80
}

func decodePartitionEntry(raw []byte) (pe PartitionEntry, err error) {
	if len(raw) != partitionEntrySize {
		return pe, fmt.Errorf("partition entry must be %d bytes, got %d", partitionEntrySize, len(raw))
	}

	if err := restruct.Unpack(raw, defaultEncoding, &pe); err != nil {
		return pe, err
	}

	return pe, nil
}

func encodePartitionEntry(pe PartitionEntry) ([]byte, error) {
	return restruct.Pack(defaultEncoding, &pe)
}

// MBR is the 512-byte master boot record: an opaque bootloader region, four
// partition entries, and a trailing signature.
type MBR struct {
	Bootloader [mbrBootloaderSize]byte
	Partitions [partitionCount]PartitionEntry
	Signature  uint16
}

// IsSignatureValid reports whether the trailing two bytes equal 0xAA55.
func (m MBR) IsSignatureValid() bool {
	return m.Signature == bootSignature
}

func decodeMBR(raw []byte) (m MBR, err error) {
	if len(raw) != sectorSize {
		return m, fmt.Errorf("MBR sector must be %d bytes, got %d", sectorSize, len(raw))
	}

	copy(m.Bootloader[:], raw[:mbrBootloaderSize])

	for i := 0; i < partitionCount; i++ {
		start := mbrBootloaderSize + i*partitionEntrySize
		pe, err := decodePartitionEntry(raw[start : start+partitionEntrySize])
		if err != nil {
			return m, err
		}

		m.Partitions[i] = pe
	}

	m.Signature = defaultEncoding.Uint16(raw[bpbSignatureOffset:])

	return m, nil
}

func encodeMBR(m MBR) ([]byte, error) {
	buf := make([]byte, sectorSize)

	copy(buf[:mbrBootloaderSize], m.Bootloader[:])

	for i, pe := range m.Partitions {
		encoded, err := encodePartitionEntry(pe)
		if err != nil {
			return nil, err
		}

		start := mbrBootloaderSize + i*partitionEntrySize
		copy(buf[start:start+partitionEntrySize], encoded)
	}

	defaultEncoding.PutUint16(buf[bpbSignatureOffset:], m.Signature)

	return buf, nil
}

// BPB is the FAT32 BIOS Parameter Block, the boot sector's geometry header.
type BPB struct {
	JumpBoot            [3]byte
	OEMName             [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   uint8
	ReservedSectorCount uint16
	NumFATs             uint8
	RootEntryCount      uint16
	TotalSectors16      uint16
	Media               uint8
	FATSize16           uint16
	SectorsPerTrack     uint16
	NumHeads            uint16
	HiddenSectors       uint32
	TotalSectors32      uint32

	FATSize32        uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      uint32
	FSInfoSector     uint16
	BackupBPBSector  uint16
	Reserved         [12]byte
	DriveNumber      uint8
	Reserved1        uint8
	BootSignature    uint8
	VolumeID         uint32
	VolumeLabel      [11]byte
	FileSystemType   [8]byte
	BootCode         [bpbBootCodeSize]byte
	SectorSignature  uint16
}

func decodeBPB(raw []byte) (b BPB, err error) {
	if len(raw) != sectorSize {
		return b, fmt.Errorf("BPB sector must be %d bytes, got %d", sectorSize, len(raw))
	}

	r := bytes.NewReader(raw)

	fields := []interface{}{
		&b.JumpBoot, &b.OEMName, &b.BytesPerSector, &b.SectorsPerCluster,
		&b.ReservedSectorCount, &b.NumFATs, &b.RootEntryCount, &b.TotalSectors16,
		&b.Media, &b.FATSize16, &b.SectorsPerTrack, &b.NumHeads, &b.HiddenSectors,
		&b.TotalSectors32, &b.FATSize32, &b.ExtFlags, &b.FSVersion, &b.RootCluster,
		&b.FSInfoSector, &b.BackupBPBSector, &b.Reserved, &b.DriveNumber,
		&b.Reserved1, &b.BootSignature, &b.VolumeID, &b.VolumeLabel,
		&b.FileSystemType, &b.BootCode, &b.SectorSignature,
	}

	for _, f := range fields {
		if err := binary.Read(r, defaultEncoding, f); err != nil {
			return b, err
		}
	}

	return b, nil
}

func encodeBPB(b BPB) ([]byte, error) {
	buf := new(bytes.Buffer)

	fields := []interface{}{
		b.JumpBoot, b.OEMName, b.BytesPerSector, b.SectorsPerCluster,
		b.ReservedSectorCount, b.NumFATs, b.RootEntryCount, b.TotalSectors16,
		b.Media, b.FATSize16, b.SectorsPerTrack, b.NumHeads, b.HiddenSectors,
		b.TotalSectors32, b.FATSize32, b.ExtFlags, b.FSVersion, b.RootCluster,
		b.FSInfoSector, b.BackupBPBSector, b.Reserved, b.DriveNumber,
		b.Reserved1, b.BootSignature, b.VolumeID, b.VolumeLabel,
		b.FileSystemType, b.BootCode, b.SectorSignature,
	}

	for _, f := range fields {
		if err := binary.Write(buf, defaultEncoding, f); err != nil {
			return nil, err
		}
	}

	out := buf.Bytes()
	if len(out) != sectorSize {
		return nil, fmt.Errorf("encoded BPB is %d bytes, expected %d", len(out), sectorSize)
	}

	return out, nil
}

// SectorSizeValue returns the BPB's declared bytes-per-sector.
func (b BPB) SectorSizeValue() uint32 {
	return uint32(b.BytesPerSector)
}

// DirEntry is a 32-byte FAT32 directory entry.
type DirEntry struct {
	Name            [11]byte
	Attr            uint8
	NTRes           uint8
	CrtTimeTenth    uint8
	CrtTime         uint16
	CrtDate         uint16
	LastAccessDate  uint16
	FirstClusterHi  uint16
	WriteTime       uint16
	WriteDate       uint16
	FirstClusterLo  uint16
	FileSize        uint32
}

const (
	dirEntryFree        = 0x00
	dirEntryDeleted     = 0xE5
	dirEntryLiteralE5   = 0x05
	attrDirectoryBit    = 0x10
	attrLongName        = 0x0F
)

// StartCluster reassembles the 32-bit start cluster from its hi/lo halves.
func (d DirEntry) StartCluster() uint32 {
	return uint32(d.FirstClusterHi)<<16 | uint32(d.FirstClusterLo)
}

// SetStartCluster splits a 32-bit cluster number back into hi/lo halves.
func (d *DirEntry) SetStartCluster(cluster uint32) {
	d.FirstClusterHi = uint16(cluster >> 16)
	d.FirstClusterLo = uint16(cluster & 0xFFFF)
}

// IsDirectory reports whether the directory attribute bit is set.
func (d DirEntry) IsDirectory() bool {
	return d.Attr&attrDirectoryBit != 0
}

// IsLongNameFragment reports whether this entry is an LFN continuation,
// which the engine ignores entirely per the Non-goals.
func (d DirEntry) IsLongNameFragment() bool {
	return d.Attr == attrLongName
}

// IsEndOfDirectory reports the terminal record convention: byte 0 == 0x00.
func (d DirEntry) IsEndOfDirectory() bool {
	return d.Name[0] == dirEntryFree
}

// IsDeleted reports whether byte 0 carries the deleted-entry marker.
func (d DirEntry) IsDeleted() bool {
	return d.Name[0] == dirEntryDeleted
}

// ShortName renders the 11-byte packed short name as a readable string,
// collapsing the literal-0xE5 convention (byte 0 == 0x05 means the first
// character is actually 0xE5, not a deletion marker).
func (d DirEntry) ShortName() string {
	name := make([]byte, 11)
	copy(name, d.Name[:])

	if name[0] == dirEntryLiteralE5 {
		name[0] = 0xE5
	}

	base := bytes.TrimRight(name[:8], " ")
	ext := bytes.TrimRight(name[8:], " ")

	if len(ext) == 0 {
		return string(base)
	}

	return fmt.Sprintf("%s.%s", base, ext)
}

func decodeDirEntry(raw []byte) (d DirEntry, err error) {
	if len(raw) != dirEntrySize {
		return d, fmt.Errorf("directory entry must be %d bytes, got %d", dirEntrySize, len(raw))
	}

	if err := restruct.Unpack(raw, defaultEncoding, &d); err != nil {
		return d, err
	}

	return d, nil
}

func encodeDirEntry(d DirEntry) ([]byte, error) {
	return restruct.Pack(defaultEncoding, &d)
}
