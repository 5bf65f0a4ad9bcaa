package cluster_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/fatmod/block"
	"github.com/dargueta/fatmod/bpb"
	"github.com/dargueta/fatmod/cluster"
)

func s1BootSector() *bpb.BootSector {
	return &bpb.BootSector{
		BytesPerSector:      512,
		SectorsPerCluster:   2,
		ReservedSectorCount: 32,
		NumFATs:             1,
		SectorsPerFAT32:     1024,
		RootCluster:          2,
		FirstFATSector:       32,
		FirstDataSector:      32 + 1024,
		BytesPerCluster:      1024,
	}
}

func TestToFirstSector_MatchesRootClusterFormula(t *testing.T) {
	bs := s1BootSector()
	assert.EqualValues(t, bs.FirstDataSector, cluster.ToFirstSector(bs, 2))
	assert.EqualValues(t, bs.FirstDataSector+2, cluster.ToFirstSector(bs, 3))
}

func TestWriteThenRead_RoundTripsWholeCluster(t *testing.T) {
	bs := s1BootSector()
	buf := make([]byte, 16384*block.SectorSize)
	dev := block.New(bytesextra.NewReadWriteSeeker(buf), 16384)

	data := make([]byte, bs.BytesPerCluster)
	for i := range data {
		data[i] = byte(i % 256)
	}

	require.NoError(t, cluster.Write(dev, bs, 2, data))

	got, err := cluster.Read(dev, bs, 2)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReadWriteSector_AddressesCorrectSectorWithinCluster(t *testing.T) {
	bs := s1BootSector()
	buf := make([]byte, 16384*block.SectorSize)
	dev := block.New(bytesextra.NewReadWriteSeeker(buf), 16384)

	second := make([]byte, block.SectorSize)
	for i := range second {
		second[i] = 0xAB
	}
	require.NoError(t, cluster.WriteSector(dev, bs, 3, 1, second))

	got, err := cluster.ReadSector(dev, bs, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	first, err := cluster.ReadSector(dev, bs, 3, 0)
	require.NoError(t, err)
	for _, b := range first {
		assert.Zero(t, b)
	}
}
