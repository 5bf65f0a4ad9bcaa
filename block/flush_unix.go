//go:build unix

package block

import (
	"io"

	"golang.org/x/sys/unix"
)

type fdHolder interface {
	Fd() uintptr
}

type syncer interface {
	Sync() error
}

// flush durably persists whatever was just written to stream. For a real
// file this calls fdatasync(2) directly via golang.org/x/sys/unix, which is
// cheaper than fsync(2) since it skips flushing file metadata that doesn't
// affect the bytes we just wrote. Anything that isn't backed by a file
// descriptor (the bytesextra in-memory streams used in tests) is assumed to
// be synchronous already.
func flush(stream io.ReadWriteSeeker) error {
	if f, ok := stream.(fdHolder); ok {
		if err := unix.Fdatasync(int(f.Fd())); err == nil {
			return nil
		}
		// Fall through to Sync() for filesystems that don't support
		// fdatasync (e.g. some FUSE mounts); it's a superset of the
		// guarantee we need.
	}
	if s, ok := stream.(syncer); ok {
		return s.Sync()
	}
	return nil
}
