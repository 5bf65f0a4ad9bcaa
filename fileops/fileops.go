// Package fileops composes the block, bpb, fat, cluster, dirent, and
// rootdir layers into the five user-facing operations spec.md §4.7 names:
// list, read-as-text, read-as-hex-dump, create, delete, and byte-pattern
// write. Grounded on the thin composing style of disko's api.go and
// driver/driver.go, and on original_source/fatmod.c for the exact
// user-visible byte-for-byte behavior (message text, truncation
// semantics, hex-dump formatting) this tool must reproduce.
package fileops

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/dargueta/fatmod/block"
	"github.com/dargueta/fatmod/bpb"
	"github.com/dargueta/fatmod/cluster"
	"github.com/dargueta/fatmod/dirent"
	"github.com/dargueta/fatmod/fat"
	"github.com/dargueta/fatmod/ferrors"
	"github.com/dargueta/fatmod/rootdir"

	"github.com/dustin/go-humanize"
)

// Volume bundles the block device with its parsed Volume Descriptor and
// the FAT/root-directory handles built on top of it, mirroring the
// "Volume" handle spec.md §3 describes.
type Volume struct {
	Dev  block.SectorDevice
	BS   *bpb.BootSector
	FAT  *fat.Table
	Root *rootdir.Root
}

// Open parses dev's boot sector and builds the FAT and root directory
// handles needed by every file operation below.
func Open(dev block.SectorDevice) (*Volume, error) {
	bs, err := bpb.Load(dev)
	if err != nil {
		return nil, err
	}

	return &Volume{
		Dev:  dev,
		BS:   bs,
		FAT:  fat.New(dev, bs, bs.TotalSectors32),
		Root: rootdir.New(dev, bs),
	}, nil
}

// ListLines renders the output of the `-l` command: seven BPB summary
// lines followed by one "NAME.EXT SIZE" line per live root entry, exactly
// as spec.md §6 specifies.
func (v *Volume) ListLines() ([]string, error) {
	lines := []string{
		fmt.Sprintf("Sector Size: %d", v.BS.BytesPerSector),
		fmt.Sprintf("Sectors per Cluster: %d", v.BS.SectorsPerCluster),
		fmt.Sprintf("Reserved Sector Count: %d", v.BS.ReservedSectorCount),
		fmt.Sprintf("Number of FATs: %d", v.BS.NumFATs),
		fmt.Sprintf("Total Sectors: %d", v.BS.TotalSectors32),
		fmt.Sprintf("Sectors per FAT: %d", v.BS.SectorsPerFAT32),
		fmt.Sprintf("Root Cluster: %d", v.BS.RootCluster),
	}

	slots, err := v.Root.List()
	if err != nil {
		return lines, err
	}
	for _, s := range slots {
		lines = append(lines, fmt.Sprintf("%s %d", dirent.FormatName(s.Entry.NameBytes), s.Entry.Size))
	}
	return lines, nil
}

// readFileBytes reads a live entry's full chain, stopping at end-of-chain
// or entry.Size bytes, whichever comes first. A chain that ends before
// entry.Size bytes is truncated silently, per spec.md §4.7.
func (v *Volume) readFileBytes(entry dirent.Entry) ([]byte, error) {
	out := make([]byte, 0, entry.Size)
	remaining := entry.Size
	current := entry.StartCluster

	for remaining > 0 && current != 0 && !fat.IsEndOfChain(current) {
		data, err := cluster.Read(v.Dev, v.BS, current)
		if err != nil {
			return out, err
		}

		n := uint32(len(data))
		if n > remaining {
			n = remaining
		}
		out = append(out, data[:n]...)
		remaining -= n
		current = v.FAT.Get(current)
	}
	return out, nil
}

// ReadASCII returns the raw bytes of name, up to its recorded size. The
// CLI writes these directly to stdout with no escaping, per spec.md §4.7.
func (v *Volume) ReadASCII(name string) ([]byte, error) {
	slot, err := v.Root.Find(name)
	if err != nil {
		return nil, err
	}
	return v.readFileBytes(slot.Entry)
}

// ReadHex returns the hex-dump rendering of name's contents: a leading
// blank line, then "%08x: " followed by up to sixteen "%02x " tokens per
// line, a fresh offset header every 16 bytes, and a trailing newline, per
// spec.md §6 scenario S6.
func (v *Volume) ReadHex(name string) (string, error) {
	slot, err := v.Root.Find(name)
	if err != nil {
		return "", err
	}

	data, err := v.readFileBytes(slot.Entry)
	if err != nil {
		return "", err
	}
	return FormatHexDump(data), nil
}

// FormatHexDump renders data the way spec.md §6 specifies for `-r -b`.
func FormatHexDump(data []byte) string {
	var b strings.Builder
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		b.WriteByte('\n')
		fmt.Fprintf(&b, "%08x: ", i)
		for _, c := range data[i:end] {
			fmt.Fprintf(&b, "%02x ", c)
		}
	}
	b.WriteByte('\n')
	return b.String()
}

// Create adds a new, empty directory entry for name. It fails with
// ErrExists if a live entry already matches name case-insensitively, and
// ErrFull if the root directory has no free slot.
func (v *Volume) Create(name string) error {
	if err := dirent.ValidateName(name); err != nil {
		return err
	}

	if _, err := v.Root.Find(name); err == nil {
		return ferrors.ErrExists.WithMessage(name)
	} else if !errors.Is(err, ferrors.ErrNotFound) {
		return err
	}

	idx, err := v.Root.FindFreeSlot()
	if err != nil {
		return err
	}

	raw := dirent.NewLiveRecord(name)
	return v.Root.WriteSlot(idx, raw[:])
}

// Delete frees name's cluster chain (if it has one) and marks its
// directory slot deleted. Per spec.md §5, the chain is freed before the
// slot is marked deleted, so a crash between the two never leaks the slot
// while losing the chain pointer.
func (v *Volume) Delete(name string) error {
	slot, err := v.Root.Find(name)
	if err != nil {
		return err
	}

	if slot.Entry.StartCluster >= 2 {
		if err := v.FAT.FreeChain(slot.Entry.StartCluster); err != nil {
			return err
		}
	}

	raw, err := v.Root.ReadSlotRaw(slot.Index)
	if err != nil {
		return err
	}
	dirent.MarkDeleted(raw)
	return v.Root.WriteSlot(slot.Index, raw)
}

// Write stamps data, N times, into name starting at offset, extending the
// file's cluster chain and recorded size as needed. Implements spec.md
// §4.7's six-step algorithm, including the Open-Question-3 choice that
// offset == size is a valid append point but offset > size is not.
func (v *Volume) Write(name string, offset, n uint32, data byte) error {
	slot, err := v.Root.Find(name)
	if err != nil {
		return err
	}
	entry := slot.Entry

	if offset > entry.Size {
		return ferrors.ErrOffsetBeyondEnd.WithMessage(
			fmt.Sprintf("File size: %d bytes", entry.Size))
	}
	if n == 0 {
		return nil
	}

	bytesPerCluster := v.BS.BytesPerCluster
	clusterIndex := offset / bytesPerCluster
	intra := offset % bytesPerCluster

	startCluster := entry.StartCluster
	var current uint32

	if startCluster == 0 {
		// Brand-new file: no clusters allocated yet. offset must be 0,
		// since offset <= size and size is 0 for a file with no chain.
		newCluster, err := v.FAT.Allocate()
		if err != nil {
			return err
		}
		startCluster = newCluster
		current = newCluster
		log.Printf("fatmod: allocated first cluster %d for %q", newCluster, name)
	} else {
		current = startCluster
		for i := uint32(0); i < clusterIndex; i++ {
			next := v.FAT.Get(current)
			if fat.IsEndOfChain(next) {
				next, err = v.allocateAndAppend(current, name)
				if err != nil {
					return err
				}
			}
			current = next
		}
	}

	bytesWritten := uint32(0)
	intraPos := intra

	for bytesWritten < n {
		clusterData, err := cluster.Read(v.Dev, v.BS, current)
		if err != nil {
			return err
		}

		for intraPos < bytesPerCluster && bytesWritten < n {
			clusterData[intraPos] = data
			intraPos++
			bytesWritten++
		}

		if err := cluster.Write(v.Dev, v.BS, current, clusterData); err != nil {
			return err
		}

		if bytesWritten < n {
			next := v.FAT.Get(current)
			if fat.IsEndOfChain(next) {
				next, err = v.allocateAndAppend(current, name)
				if err != nil {
					return err
				}
			}
			current = next
			intraPos = 0
		}
	}

	newSize := entry.Size
	if offset+n > entry.Size {
		newSize = offset + n
	}

	raw, err := v.Root.ReadSlotRaw(slot.Index)
	if err != nil {
		return err
	}
	if startCluster != entry.StartCluster {
		dirent.SetStartCluster(raw, startCluster)
	}
	if newSize != entry.Size {
		dirent.SetSize(raw, newSize)
	}
	return v.Root.WriteSlot(slot.Index, raw)
}

// allocateAndAppend allocates a new cluster and links it after tail. Per
// spec.md §4.3/§5, the new cluster is marked EOC before the predecessor is
// re-pointed to it.
func (v *Volume) allocateAndAppend(tail uint32, name string) (uint32, error) {
	newCluster, err := v.FAT.Allocate()
	if err != nil {
		return 0, err
	}
	if err := v.FAT.Append(tail, newCluster); err != nil {
		return 0, err
	}
	log.Printf(
		"fatmod: extended %q with cluster %d (%s)",
		name, newCluster, humanize.Bytes(uint64(v.BS.BytesPerCluster)))
	return newCluster, nil
}
