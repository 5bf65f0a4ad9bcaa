// Package bpb parses the BIOS Parameter Block from sector 0 of a FAT32
// image and derives the constants every other layer needs. It is grounded
// on disko's drivers/fat/common.go (NewFATBootSectorFromStream), narrowed
// to the fields spec.md §3 names and to FAT32 only.
package bpb

import (
	"encoding/binary"
	"fmt"
	"log"
	"math/bits"

	"github.com/dargueta/fatmod/block"
	"github.com/dargueta/fatmod/ferrors"
	"github.com/dargueta/fatmod/geometry"
)

// BootSector is the immutable projection of the fields spec.md §3 lists,
// plus the derived quantities every other layer consults.
type BootSector struct {
	BytesPerSector       uint16
	SectorsPerCluster    uint8
	ReservedSectorCount  uint16
	NumFATs              uint8
	TotalSectors32       uint32
	SectorsPerFAT32      uint32
	RootCluster          uint32

	FirstFATSector  uint32
	FirstDataSector uint32
	BytesPerCluster uint32
}

// expectedBytesPerSector and expectedBytesPerCluster are the geometry this
// tool assumes per spec.md §3's invariant. A BootSector that contradicts
// them is still usable -- callers just get a GeometryMismatch warning
// logged the first time Load is called on it.
const (
	expectedBytesPerSector  = 512
	expectedBytesPerCluster = 1024
)

// Load reads sector 0 of dev and parses it into a BootSector, validating
// the fields per spec.md §4.2. It returns ErrBadBootSector if
// bytes-per-sector is zero or not a power of two, sectors-per-cluster is
// zero, num-FATs is zero, or root-cluster is less than 2.
func Load(dev block.SectorDevice) (*BootSector, error) {
	raw, err := dev.ReadSector(0)
	if err != nil {
		return nil, err
	}
	if len(raw) < 48 {
		return nil, ferrors.ErrBadBootSector.WithMessage("boot sector shorter than BPB region")
	}

	bytesPerSector := binary.LittleEndian.Uint16(raw[11:13])
	sectorsPerCluster := raw[13]
	reservedSectorCount := binary.LittleEndian.Uint16(raw[14:16])
	numFATs := raw[16]
	totalSectors32 := binary.LittleEndian.Uint32(raw[32:36])
	sectorsPerFAT32 := binary.LittleEndian.Uint32(raw[36:40])
	rootCluster := binary.LittleEndian.Uint32(raw[44:48])

	if bytesPerSector == 0 || bits.OnesCount16(bytesPerSector) != 1 {
		return nil, ferrors.ErrBadBootSector.WithMessage(
			fmt.Sprintf("bytes-per-sector must be a nonzero power of two, got %d", bytesPerSector))
	}
	if sectorsPerCluster == 0 {
		return nil, ferrors.ErrBadBootSector.WithMessage("sectors-per-cluster must not be zero")
	}
	if numFATs == 0 {
		return nil, ferrors.ErrBadBootSector.WithMessage("number of FATs must not be zero")
	}
	if rootCluster < 2 {
		return nil, ferrors.ErrBadBootSector.WithMessage(
			fmt.Sprintf("root cluster must be >= 2, got %d", rootCluster))
	}

	firstFATSector := uint32(reservedSectorCount)
	firstDataSector := firstFATSector + uint32(numFATs)*sectorsPerFAT32
	bytesPerCluster := uint32(bytesPerSector) * uint32(sectorsPerCluster)

	bs := &BootSector{
		BytesPerSector:      bytesPerSector,
		SectorsPerCluster:   sectorsPerCluster,
		ReservedSectorCount: reservedSectorCount,
		NumFATs:             numFATs,
		TotalSectors32:      totalSectors32,
		SectorsPerFAT32:     sectorsPerFAT32,
		RootCluster:         rootCluster,
		FirstFATSector:      firstFATSector,
		FirstDataSector:     firstDataSector,
		BytesPerCluster:     bytesPerCluster,
	}

	if bytesPerSector != expectedBytesPerSector || bytesPerCluster != expectedBytesPerCluster {
		log.Printf(
			"%s: geometry (sector=%dB cluster=%dB) does not match the 512B/1024B "+
				"assumption this tool is built around",
			ferrors.ErrGeometryMismatch, bytesPerSector, bytesPerCluster)
	} else if _, known := geometry.Lookup(
		bytesPerSector, sectorsPerCluster, reservedSectorCount, numFATs, sectorsPerFAT32, rootCluster,
	); !known {
		log.Printf("%s: volume geometry isn't one of the cataloged presets", ferrors.ErrGeometryMismatch)
	}

	return bs, nil
}

// TotalClusters returns the number of addressable data clusters, used by
// fat.Table to bound its allocation scan and chain-traversal depth cap.
func (bs *BootSector) TotalClusters(totalSectors uint32) uint32 {
	dataSectors := totalSectors - bs.FirstDataSector
	return dataSectors / uint32(bs.SectorsPerCluster)
}
