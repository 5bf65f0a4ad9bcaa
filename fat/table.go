// Package fat implements the File Allocation Table layer: reading and
// writing 32-bit FAT entries, following and mutating cluster chains, and
// recognizing the end-of-chain sentinel. It is grounded on disko's
// drivers/fat/driverbase.go (listClusters, getClusterInChain) and
// drivers/common/allocatormap.go (the free-scan allocator pattern).
package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/hashicorp/go-multierror"

	"github.com/dargueta/fatmod/block"
	"github.com/dargueta/fatmod/bpb"
	"github.com/dargueta/fatmod/ferrors"
)

// EOCThreshold is the lowest FAT entry value that marks end-of-chain, per
// spec.md §9: legal EOC values form the range 0x0FFFFFF8..=0x0FFFFFFF, so
// chain traversal must compare with >=, never equality against one
// sentinel.
const EOCThreshold uint32 = 0x0FFFFFF8

// FATEOC is the value written to mark a cluster as the (new) end of a
// chain.
const FATEOC uint32 = 0x0FFFFFFF

const entryMask uint32 = 0x0FFFFFFF
const reservedBitsMask uint32 = 0xF0000000
const bytesPerEntry = 4

// Table is a handle to the on-disk FAT(s) of one volume.
type Table struct {
	dev           block.SectorDevice
	bs            *bpb.BootSector
	totalClusters uint32

	freeIndex      bitmap.Bitmap
	freeIndexReady bool
}

// New creates a Table bound to dev and bs. totalSectors is the volume's
// total sector count (BPB offset 32), used to bound the allocation scan
// and chain-traversal depth cap per spec.md §9.
func New(dev block.SectorDevice, bs *bpb.BootSector, totalSectors uint32) *Table {
	return &Table{
		dev:           dev,
		bs:            bs,
		totalClusters: bs.TotalClusters(totalSectors),
	}
}

// IsEndOfChain reports whether value is an end-of-chain sentinel.
func IsEndOfChain(value uint32) bool {
	return value >= EOCThreshold
}

func (t *Table) entryLocation(fatIndex uint8, cluster uint32) (sector uint32, offset uint32) {
	fatOffset := cluster * bytesPerEntry
	fatSector := t.bs.FirstFATSector + uint32(fatIndex)*t.bs.SectorsPerFAT32
	sector = fatSector + fatOffset/block.SectorSize
	offset = fatOffset % block.SectorSize
	return
}

// rawGet reads the raw (unmasked) 32-bit entry for cluster from FAT copy 0.
func (t *Table) rawGet(cluster uint32) (uint32, error) {
	sector, offset := t.entryLocation(0, cluster)
	buf, err := t.dev.ReadSector(sector)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[offset : offset+bytesPerEntry]), nil
}

// Get returns the low 28 bits of the FAT entry for cluster. Per spec.md
// §7, a read failure during chain traversal is downgraded to EOC so
// traversal terminates deterministically instead of looping or panicking.
func (t *Table) Get(cluster uint32) uint32 {
	raw, err := t.rawGet(cluster)
	if err != nil {
		return FATEOC
	}
	return raw & entryMask
}

// Set writes value (masked to 28 bits) into the FAT entry for cluster,
// preserving the reserved high 4 bits of the existing entry (spec.md §9,
// Open Question 2), and mirrors the write to every FAT copy (Open
// Question 1). The write is considered successful once FAT #0 -- the copy
// every other layer reads from -- is durably written; failures mirroring
// to the remaining copies are aggregated and returned as a non-nil error
// even though the logical write already took effect.
func (t *Table) Set(cluster uint32, value uint32) error {
	var mirrorErrors *multierror.Error

	for fatIndex := uint8(0); fatIndex < t.bs.NumFATs; fatIndex++ {
		sector, offset := t.entryLocation(fatIndex, cluster)
		buf, err := t.dev.ReadSector(sector)
		if err != nil {
			if fatIndex == 0 {
				return err
			}
			mirrorErrors = multierror.Append(mirrorErrors, fmt.Errorf("FAT %d: %w", fatIndex, err))
			continue
		}

		existing := binary.LittleEndian.Uint32(buf[offset : offset+bytesPerEntry])
		newEntry := (existing & reservedBitsMask) | (value & entryMask)
		binary.LittleEndian.PutUint32(buf[offset:offset+bytesPerEntry], newEntry)

		if err := t.dev.WriteSector(sector, buf); err != nil {
			if fatIndex == 0 {
				return err
			}
			mirrorErrors = multierror.Append(mirrorErrors, fmt.Errorf("FAT %d: %w", fatIndex, err))
			continue
		}
	}

	if t.freeIndexReady {
		t.freeIndex.Set(int(cluster), (value&entryMask) != 0)
	}

	if mirrorErrors != nil {
		return mirrorErrors.ErrorOrNil()
	}
	return nil
}

// buildFreeIndex does one linear scan of FAT #0 to populate a free/used
// bitmap, so repeated Allocate calls within a single multi-cluster write
// don't rescan from cluster 2 every time. It never changes on-disk state.
func (t *Table) buildFreeIndex() error {
	bm := bitmap.New(int(2 + t.totalClusters))
	for cluster := uint32(2); cluster < 2+t.totalClusters; cluster++ {
		raw, err := t.rawGet(cluster)
		if err != nil {
			return err
		}
		bm.Set(int(cluster), (raw&entryMask) != 0)
	}
	t.freeIndex = bm
	t.freeIndexReady = true
	return nil
}

// Allocate scans for the first free cluster (starting at cluster 2),
// marks it FATEOC, and returns its number. It fails with ErrNoSpace if the
// scan reaches the total cluster count without finding one.
func (t *Table) Allocate() (uint32, error) {
	if !t.freeIndexReady {
		if err := t.buildFreeIndex(); err != nil {
			return 0, err
		}
	}

	for cluster := uint32(2); cluster < 2+t.totalClusters; cluster++ {
		if !t.freeIndex.Get(int(cluster)) {
			if err := t.Set(cluster, FATEOC); err != nil {
				return 0, err
			}
			return cluster, nil
		}
	}
	return 0, ferrors.ErrNoSpace
}

// Append links tailCluster to newCluster. The caller must have already
// marked newCluster as EOC via Allocate -- per spec.md §4.3/§5, the new
// cluster is always marked EOC in the FAT before the predecessor is
// re-pointed to it, so a crash between the two writes leaks a cluster
// rather than leaving a dangling pointer into free space.
func (t *Table) Append(tailCluster, newCluster uint32) error {
	return t.Set(tailCluster, newCluster)
}

// FreeChain follows the chain from start, zeroing every visited cluster's
// FAT entry. It stops when the next pointer is an end-of-chain sentinel or
// 0 (a 0 mid-chain indicates corruption and is treated defensively as the
// end of the chain rather than looped on).
func (t *Table) FreeChain(start uint32) error {
	current := start
	steps := uint32(0)

	for current != 0 && !IsEndOfChain(current) {
		if steps > t.totalClusters {
			return ferrors.ErrIO.WithMessage("cluster chain did not terminate within total cluster count")
		}

		next := t.Get(current)
		if err := t.Set(current, 0); err != nil {
			return err
		}
		current = next
		steps++
	}
	return nil
}

// ListChain returns every cluster number in the chain starting at start,
// capped at totalClusters steps to guard against a corrupt image
// introducing a cycle (spec.md §9).
func (t *Table) ListChain(start uint32) ([]uint32, error) {
	chain := []uint32{}
	current := start
	steps := uint32(0)

	for !IsEndOfChain(current) && current != 0 {
		chain = append(chain, current)
		if steps >= t.totalClusters {
			return chain, ferrors.ErrIO.WithMessage("cluster chain exceeds total cluster count; likely corrupt")
		}
		current = t.Get(current)
		steps++
	}
	return chain, nil
}
