// Package block provides sector-addressed read/write over a seekable byte
// container, the leaf layer of the FAT32 driver. It is grounded on disko's
// drivers/common/blockdevice.go, narrowed to the fixed 512-byte sector size
// this tool assumes and extended with the durable-flush contract spec.md
// §4.1 requires: every completed WriteSector call means the sector is
// persisted.
package block

import (
	"io"

	"github.com/dargueta/fatmod/ferrors"
)

// SectorSize is the only sector size this driver understands, per spec.md
// §3's invariant.
const SectorSize = 512

// SectorDevice is the interface every layer above block depends on, rather
// than *Device directly, so that fat/bpb/cluster/rootdir can be exercised
// in tests against a mock (see MockSectorDevice) without a real or
// in-memory image.
type SectorDevice interface {
	ReadSector(n uint32) ([]byte, error)
	WriteSector(n uint32, buf []byte) error
}

// Device is a sector-addressed view over a seekable byte stream.
type Device struct {
	stream       io.ReadWriteSeeker
	TotalSectors uint
}

// New wraps stream as a Device with totalSectors addressable sectors.
// stream is typically an *os.File opened read-write, or, in tests, an
// io.ReadWriteSeeker backed by an in-memory buffer (see
// github.com/xaionaro-go/bytesextra).
func New(stream io.ReadWriteSeeker, totalSectors uint) *Device {
	return &Device{stream: stream, TotalSectors: totalSectors}
}

func (d *Device) offsetOf(n uint32) int64 {
	return int64(n) * SectorSize
}

// ReadSector reads exactly one 512-byte sector at sector index n.
func (d *Device) ReadSector(n uint32) ([]byte, error) {
	if _, err := d.stream.Seek(d.offsetOf(n), io.SeekStart); err != nil {
		return nil, ferrors.ErrIO.WithMessage(err.Error())
	}

	buf := make([]byte, SectorSize)
	read, err := io.ReadFull(d.stream, buf)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, ferrors.ErrShortRead.WithMessage(err.Error())
		}
		return nil, ferrors.ErrIO.WithMessage(err.Error())
	}
	if read != SectorSize {
		return nil, ferrors.ErrShortRead
	}
	return buf, nil
}

// WriteSector writes exactly one 512-byte sector at sector index n and
// durably flushes it before returning. buf must be exactly SectorSize
// bytes long.
func (d *Device) WriteSector(n uint32, buf []byte) error {
	if len(buf) != SectorSize {
		return ferrors.ErrShortWrite.WithMessage("buffer is not one sector long")
	}

	if _, err := d.stream.Seek(d.offsetOf(n), io.SeekStart); err != nil {
		return ferrors.ErrIO.WithMessage(err.Error())
	}

	written, err := d.stream.Write(buf)
	if err != nil {
		return ferrors.ErrIO.WithMessage(err.Error())
	}
	if written != SectorSize {
		return ferrors.ErrShortWrite
	}

	if err := flush(d.stream); err != nil {
		return ferrors.ErrIO.WithMessage("flush failed: " + err.Error())
	}
	return nil
}
