package bpb_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/fatmod/block"
	"github.com/dargueta/fatmod/bpb"
)

// buildBootSector returns a 512-byte sector 0 matching spec.md scenario S1:
// an 8 MiB FAT32 image, 512B sectors, 2 sectors/cluster, reserved=32,
// 1 FAT of 1024 sectors, root cluster 2.
func buildBootSector() []byte {
	sector := make([]byte, block.SectorSize)
	binary.LittleEndian.PutUint16(sector[11:13], 512)
	sector[13] = 2
	binary.LittleEndian.PutUint16(sector[14:16], 32)
	sector[16] = 1
	binary.LittleEndian.PutUint32(sector[32:36], 16384)
	binary.LittleEndian.PutUint32(sector[36:40], 1024)
	binary.LittleEndian.PutUint32(sector[44:48], 2)
	return sector
}

func newDevice(t *testing.T, sector0 []byte) *block.Device {
	t.Helper()
	buf := make([]byte, 8*block.SectorSize)
	copy(buf, sector0)
	return block.New(bytesextra.NewReadWriteSeeker(buf), 8)
}

func TestLoad_ParsesS1Geometry(t *testing.T) {
	dev := newDevice(t, buildBootSector())

	bs, err := bpb.Load(dev)
	require.NoError(t, err)

	assert.EqualValues(t, 512, bs.BytesPerSector)
	assert.EqualValues(t, 2, bs.SectorsPerCluster)
	assert.EqualValues(t, 32, bs.ReservedSectorCount)
	assert.EqualValues(t, 1, bs.NumFATs)
	assert.EqualValues(t, 16384, bs.TotalSectors32)
	assert.EqualValues(t, 1024, bs.SectorsPerFAT32)
	assert.EqualValues(t, 2, bs.RootCluster)
	assert.EqualValues(t, 32, bs.FirstFATSector)
	assert.EqualValues(t, 32+1024, bs.FirstDataSector)
	assert.EqualValues(t, 1024, bs.BytesPerCluster)
}

func TestLoad_RejectsZeroBytesPerSector(t *testing.T) {
	sector := buildBootSector()
	binary.LittleEndian.PutUint16(sector[11:13], 0)
	dev := newDevice(t, sector)

	_, err := bpb.Load(dev)
	assert.Error(t, err)
}

func TestLoad_RejectsNonPowerOfTwoBytesPerSector(t *testing.T) {
	sector := buildBootSector()
	binary.LittleEndian.PutUint16(sector[11:13], 513)
	dev := newDevice(t, sector)

	_, err := bpb.Load(dev)
	assert.Error(t, err)
}

func TestLoad_RejectsZeroSectorsPerCluster(t *testing.T) {
	sector := buildBootSector()
	sector[13] = 0
	dev := newDevice(t, sector)

	_, err := bpb.Load(dev)
	assert.Error(t, err)
}

func TestLoad_RejectsZeroNumFATs(t *testing.T) {
	sector := buildBootSector()
	sector[16] = 0
	dev := newDevice(t, sector)

	_, err := bpb.Load(dev)
	assert.Error(t, err)
}

func TestLoad_RejectsRootClusterBelowTwo(t *testing.T) {
	sector := buildBootSector()
	binary.LittleEndian.PutUint32(sector[44:48], 1)
	dev := newDevice(t, sector)

	_, err := bpb.Load(dev)
	assert.Error(t, err)
}
