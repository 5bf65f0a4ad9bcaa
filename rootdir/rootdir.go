// Package rootdir implements the root directory operations spec.md §4.6
// names: iterating live entries, locating one by name, finding a free
// slot, and writing a slot back with per-sector read-modify-write
// discipline. It assumes the root directory fits in a single cluster, per
// spec.md §4.6 and §9's Open Question 4 -- a limitation this tool
// documents rather than works around.
//
// Grounded on disko's drivers/fat/driverbase.go (ReadDirFromDirent) and
// drivers/common/basedriver/dirent.go.
package rootdir

import (
	"github.com/dargueta/fatmod/block"
	"github.com/dargueta/fatmod/bpb"
	"github.com/dargueta/fatmod/cluster"
	"github.com/dargueta/fatmod/dirent"
	"github.com/dargueta/fatmod/ferrors"
)

// Root is a handle to one volume's root directory.
type Root struct {
	dev block.SectorDevice
	bs  *bpb.BootSector
}

// New creates a Root bound to dev and bs.
func New(dev block.SectorDevice, bs *bpb.BootSector) *Root {
	return &Root{dev: dev, bs: bs}
}

func (r *Root) slotCount() int {
	return int(r.bs.BytesPerCluster) / dirent.Size
}

func (r *Root) entriesPerSector() int {
	return int(r.bs.BytesPerSector) / dirent.Size
}

// readAll re-reads the whole root cluster fresh from disk, per spec.md
// §4.6's read-modify-write discipline: nothing is cached across calls.
func (r *Root) readAll() ([]byte, error) {
	return cluster.Read(r.dev, r.bs, r.bs.RootCluster)
}

// Slot pairs a directory entry with the index of the 32-byte slot it came
// from, which List/Find callers need for Write's "update size" step and
// Delete's "mark slot deleted" step.
type Slot struct {
	Index int
	Entry dirent.Entry
}

// List decodes every live directory entry in the root cluster, from slot 0
// upward, stopping at the end-of-directory sentinel. VFAT long-name
// entries and deleted slots are skipped, per spec.md §3/§4.6.
func (r *Root) List() ([]Slot, error) {
	data, err := r.readAll()
	if err != nil {
		return nil, err
	}

	var out []Slot
	for i := 0; i < r.slotCount(); i++ {
		raw := data[i*dirent.Size : (i+1)*dirent.Size]
		switch dirent.Classify(raw) {
		case dirent.KindEndOfDir:
			return out, nil
		case dirent.KindFree, dirent.KindLongName:
			continue
		default:
			out = append(out, Slot{Index: i, Entry: dirent.Decode(raw)})
		}
	}
	return out, nil
}

// Find scans for the first live entry whose name matches name (see
// dirent.NameMatches), returning ErrNotFound if none does.
func (r *Root) Find(name string) (Slot, error) {
	slots, err := r.List()
	if err != nil {
		return Slot{}, err
	}
	for _, s := range slots {
		if dirent.NameMatches(s.Entry.NameBytes, name) {
			return s, nil
		}
	}
	return Slot{}, ferrors.ErrNotFound.WithMessage(name)
}

// FindFreeSlot returns the index of the first slot whose byte 0 is 0x00 or
// 0xE5, or ErrFull if every slot in the (single) root cluster is occupied
// by a live or VFAT entry.
func (r *Root) FindFreeSlot() (int, error) {
	data, err := r.readAll()
	if err != nil {
		return 0, err
	}

	for i := 0; i < r.slotCount(); i++ {
		raw := data[i*dirent.Size : (i+1)*dirent.Size]
		switch dirent.Classify(raw) {
		case dirent.KindEndOfDir, dirent.KindFree:
			return i, nil
		}
	}
	return 0, ferrors.ErrFull
}

// WriteSlot overwrites the 32-byte region for slotIndex with raw and
// persists only the sector containing that slot, re-read fresh from disk
// immediately beforehand, per spec.md §4.6.
func (r *Root) WriteSlot(slotIndex int, raw []byte) error {
	if len(raw) != dirent.Size {
		return ferrors.ErrArgument.WithMessage("directory entry record must be 32 bytes")
	}

	perSector := r.entriesPerSector()
	sectorIndex := uint8(slotIndex / perSector)
	offsetInSector := (slotIndex % perSector) * dirent.Size

	sector, err := cluster.ReadSector(r.dev, r.bs, r.bs.RootCluster, sectorIndex)
	if err != nil {
		return err
	}
	copy(sector[offsetInSector:offsetInSector+dirent.Size], raw)
	return cluster.WriteSector(r.dev, r.bs, r.bs.RootCluster, sectorIndex, sector)
}

// ReadSlotRaw returns the fresh 32-byte record for slotIndex, for callers
// that need to patch one field (MarkDeleted, SetSize, SetStartCluster) and
// write it back rather than constructing a record from scratch.
func (r *Root) ReadSlotRaw(slotIndex int) ([]byte, error) {
	perSector := r.entriesPerSector()
	sectorIndex := uint8(slotIndex / perSector)
	offsetInSector := (slotIndex % perSector) * dirent.Size

	sector, err := cluster.ReadSector(r.dev, r.bs, r.bs.RootCluster, sectorIndex)
	if err != nil {
		return nil, err
	}

	out := make([]byte, dirent.Size)
	copy(out, sector[offsetInSector:offsetInSector+dirent.Size])
	return out, nil
}
