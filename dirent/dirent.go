// Package dirent implements the 8.3 short directory entry codec: decoding
// and encoding the 32-byte on-disk record, and normalizing between
// user-visible "NAME.EXT" names and the padded on-disk form. Grounded on
// disko's drivers/fat/dirent.go, but reads fields by explicit
// little-endian offset extraction rather than binary.Read into a packed
// struct, per spec.md §9's note that a systems-language reimplementation
// must not rely on compiler-specific struct packing.
package dirent

import (
	"encoding/binary"
	"strings"

	"github.com/noxer/bytewriter"

	"github.com/dargueta/fatmod/ferrors"
)

// Size is the length in bytes of one directory entry record.
const Size = 32

// Attribute flags, per spec.md §3.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20

	// AttrLongName marks a VFAT long-filename entry, which must be skipped
	// by listing and lookup.
	AttrLongName = 0x0F
)

// Byte offsets within a 32-byte directory entry, per spec.md §3.
const (
	offName      = 0
	offExt       = 8
	offAttr      = 11
	offStartHi   = 20
	offStartLo   = 26
	offSize      = 28
)

// Kind classifies a 32-byte slot without fully decoding it.
type Kind int

const (
	// KindLive is a normal, in-use directory entry.
	KindLive Kind = iota
	// KindFree is a deleted slot (byte 0 == 0xE5), reusable by Create.
	KindFree
	// KindEndOfDir means byte 0 == 0x00: this slot and everything after it
	// in the directory is free, and no further slots need scanning.
	KindEndOfDir
	// KindLongName is a VFAT long-filename entry (attr == 0x0F), which
	// listing and lookup must skip.
	KindLongName
)

// Classify reports what kind of slot raw (a Size-byte directory entry
// record) represents, without building a full Entry.
func Classify(raw []byte) Kind {
	switch raw[0] {
	case 0x00:
		return KindEndOfDir
	case 0xE5:
		return KindFree
	}
	if raw[offAttr] == AttrLongName {
		return KindLongName
	}
	return KindLive
}

// Entry is the decoded, user-friendly projection of a live directory
// entry's fields, per spec.md §3.
type Entry struct {
	NameBytes    [11]byte
	Attributes   uint8
	StartCluster uint32
	Size         uint32
}

// Decode parses a Size-byte slot into an Entry. Callers should call
// Classify first and only call Decode on a KindLive slot.
func Decode(raw []byte) Entry {
	var name [11]byte
	copy(name[:], raw[offName:offName+11])

	startHi := binary.LittleEndian.Uint16(raw[offStartHi : offStartHi+2])
	startLo := binary.LittleEndian.Uint16(raw[offStartLo : offStartLo+2])

	return Entry{
		NameBytes:    name,
		Attributes:   raw[offAttr],
		StartCluster: (uint32(startHi) << 16) | uint32(startLo),
		Size:         binary.LittleEndian.Uint32(raw[offSize : offSize+4]),
	}
}

// SetStartCluster patches only the start-cluster fields of an existing
// Size-byte record in place, leaving every other byte (including the
// timestamps spec.md §3 says are preserved but not interpreted) untouched.
func SetStartCluster(raw []byte, cluster uint32) {
	binary.LittleEndian.PutUint16(raw[offStartHi:offStartHi+2], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(raw[offStartLo:offStartLo+2], uint16(cluster&0xFFFF))
}

// SetSize patches only the size field of an existing Size-byte record in
// place.
func SetSize(raw []byte, size uint32) {
	binary.LittleEndian.PutUint32(raw[offSize:offSize+4], size)
}

// MarkDeleted sets byte 0 of an existing Size-byte record to the deleted
// sentinel 0xE5, leaving the rest of the record unchanged per spec.md §3.
func MarkDeleted(raw []byte) {
	raw[0] = 0xE5
}

// NewLiveRecord builds a brand-new Size-byte directory entry record for a
// freshly created file: encoded name, ARCHIVE attribute, zero start
// cluster, zero size, and zeroed timestamp fields. Built with
// noxer/bytewriter the way file_systems/unixv1/format.go in the teacher
// repo lays out on-disk structures field by field.
func NewLiveRecord(userName string) [Size]byte {
	var raw [Size]byte
	w := bytewriter.New(raw[:])

	name := EncodeName(userName)
	_, _ = w.Write(name[:])                         // bytes 0..11: name+ext
	_, _ = w.Write([]byte{AttrArchive})             // byte 11: attr
	_, _ = w.Write(make([]byte, offStartHi-12))      // bytes 12..20: NTRes + timestamps, zeroed
	_ = binary.Write(w, binary.LittleEndian, uint16(0)) // starthi
	_, _ = w.Write(make([]byte, offStartLo-(offStartHi+2))) // mtime/mdate, zeroed
	_ = binary.Write(w, binary.LittleEndian, uint16(0)) // startlo
	_ = binary.Write(w, binary.LittleEndian, uint32(0)) // size

	return raw
}

// EncodeName converts a user-supplied "NAME.EXT" (or "NAME") string into
// the 11-byte padded 8.3 on-disk form, per spec.md §4.5: split on the last
// '.', truncate base to 8 bytes and extension to 3, uppercase ASCII
// letters, right-pad both with spaces.
func EncodeName(userName string) [11]byte {
	base := userName
	ext := ""

	if dot := strings.LastIndex(userName, "."); dot >= 0 {
		base = userName[:dot]
		ext = userName[dot+1:]
	}

	base = upperASCII(truncate(base, 8))
	ext = upperASCII(truncate(ext, 3))

	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[0:8], base)
	copy(out[8:11], ext)
	return out
}

// FormatName converts an 11-byte padded 8.3 name back into "NAME.EXT" (or
// just "NAME" if the extension is empty), per spec.md §4.5.
func FormatName(nameBytes [11]byte) string {
	base := strings.TrimRight(string(nameBytes[0:8]), " ")
	ext := strings.TrimRight(string(nameBytes[8:11]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// NameMatches reports whether the name stored in nameBytes matches
// userName, case-insensitively and padding-insensitively, per spec.md
// §4.5: round-trip userName through Encode/Format before comparing.
func NameMatches(nameBytes [11]byte, userName string) bool {
	roundTripped := FormatName(EncodeName(userName))
	return FormatName(nameBytes) == roundTripped
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// ValidateName reports ErrArgument if userName can't reasonably be encoded
// (empty after stripping the dot, for instance). fileops.Create calls this
// before writing a record, to give a clearer diagnostic than a
// silently-truncated empty name.
func ValidateName(userName string) error {
	if FormatName(EncodeName(userName)) == "" {
		return ferrors.ErrArgument.WithMessage("file name must not be empty")
	}
	return nil
}
