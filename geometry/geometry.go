// Package geometry holds a small catalog of known-good FAT32 geometries,
// the way disko's disks package catalogs physical disk geometries. fatmod
// uses it to decide whether a volume's parsed BPB describes a recognized
// shape, purely for the advisory GeometryMismatch warning described in
// spec §3 -- it never drives parsing or validation decisions.
package geometry

import (
	_ "embed"
	"strings"

	"github.com/gocarina/gocsv"
)

//go:embed presets.csv
var presetsRawCSV string

// Preset describes one recognized FAT32 volume geometry.
type Preset struct {
	Slug              string `csv:"slug"`
	Description       string `csv:"description"`
	BytesPerSector    uint16 `csv:"bytes_per_sector"`
	SectorsPerCluster uint8  `csv:"sectors_per_cluster"`
	ReservedSectors   uint16 `csv:"reserved_sectors"`
	NumFATs           uint8  `csv:"num_fats"`
	SectorsPerFAT     uint32 `csv:"sectors_per_fat"`
	RootCluster       uint32 `csv:"root_cluster"`
}

var presets []Preset

func init() {
	reader := strings.NewReader(presetsRawCSV)
	if err := gocsv.Unmarshal(reader, &presets); err != nil {
		panic(err)
	}
}

// Lookup returns the preset whose geometry fields exactly match the given
// values, if any is cataloged.
func Lookup(bytesPerSector uint16, sectorsPerCluster uint8, reservedSectors uint16, numFATs uint8, sectorsPerFAT uint32, rootCluster uint32) (Preset, bool) {
	for _, p := range presets {
		if p.BytesPerSector == bytesPerSector &&
			p.SectorsPerCluster == sectorsPerCluster &&
			p.ReservedSectors == reservedSectors &&
			p.NumFATs == numFATs &&
			p.SectorsPerFAT == sectorsPerFAT &&
			p.RootCluster == rootCluster {
			return p, true
		}
	}
	return Preset{}, false
}

// All returns every cataloged preset.
func All() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}
