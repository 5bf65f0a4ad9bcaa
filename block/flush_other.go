//go:build !unix

package block

import "io"

type syncer interface {
	Sync() error
}

// flush durably persists whatever was just written to stream. On non-Unix
// platforms we don't have fdatasync, so we fall back to the stream's own
// Sync method if it has one.
func flush(stream io.ReadWriteSeeker) error {
	if s, ok := stream.(syncer); ok {
		return s.Sync()
	}
	return nil
}
