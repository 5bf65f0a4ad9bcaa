// Package cluster implements whole-cluster read/write on top of the block
// and bpb packages, grounded on disko's drivers/common/clusterio.go and the
// readCluster/readSectorsInCluster helpers in drivers/fat/driverbase.go.
package cluster

import (
	"github.com/dargueta/fatmod/block"
	"github.com/dargueta/fatmod/bpb"
)

// ToFirstSector returns the sector number of the first sector of cluster c.
// Per spec.md §4.4: first_data_sector + (c - 2) * sectors_per_cluster.
func ToFirstSector(bs *bpb.BootSector, c uint32) uint32 {
	return bs.FirstDataSector + (c-2)*uint32(bs.SectorsPerCluster)
}

// Read reads the full contents of cluster c as sectorsPerCluster
// back-to-back sector reads.
func Read(dev block.SectorDevice, bs *bpb.BootSector, c uint32) ([]byte, error) {
	firstSector := ToFirstSector(bs, c)
	out := make([]byte, 0, bs.BytesPerCluster)

	for i := uint8(0); i < bs.SectorsPerCluster; i++ {
		sector, err := dev.ReadSector(firstSector + uint32(i))
		if err != nil {
			return nil, err
		}
		out = append(out, sector...)
	}
	return out, nil
}

// Write writes the full contents of cluster c as sectorsPerCluster
// back-to-back sector writes. data must be exactly bs.BytesPerCluster
// bytes. Failure partway through leaves whichever sectors already wrote as
// they are -- there is no rollback, per spec.md §4.4.
func Write(dev block.SectorDevice, bs *bpb.BootSector, c uint32, data []byte) error {
	firstSector := ToFirstSector(bs, c)

	for i := uint8(0); i < bs.SectorsPerCluster; i++ {
		start := uint32(i) * uint32(bs.BytesPerSector)
		end := start + uint32(bs.BytesPerSector)
		if err := dev.WriteSector(firstSector+uint32(i), data[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// ReadSector reads the index'th sector (0-based) within cluster c.
func ReadSector(dev block.SectorDevice, bs *bpb.BootSector, c uint32, index uint8) ([]byte, error) {
	return dev.ReadSector(ToFirstSector(bs, c) + uint32(index))
}

// WriteSector writes the index'th sector (0-based) within cluster c.
func WriteSector(dev block.SectorDevice, bs *bpb.BootSector, c uint32, index uint8, data []byte) error {
	return dev.WriteSector(ToFirstSector(bs, c)+uint32(index), data)
}
