// Package gpt reads GUID Partition Tables straight from a block device.
// It is the only place in the codebase that interprets the on-disk
// binary format; everything above it works with decoded entries.
package gpt

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"unicode/utf16"

	"github.com/google/uuid"

	"github.com/diskwarden/diskwarden/pkg/api"
)

const (
	// LogicalBlockSize is the sector size the header addresses are
	// expressed in. 4Kn drives expose 512-byte emulation for the
	// addressing used here.
	LogicalBlockSize = 512

	headerOffset  = 1 * LogicalBlockSize
	minHeaderSize = 92
	minEntrySize  = 128

	// maxEntryCount guards against reading gigabytes because a
	// corrupted header announced an absurd array size. Real tables
	// carry 128 entries.
	maxEntryCount = 4096
)

var signature = [8]byte{'E', 'F', 'I', ' ', 'P', 'A', 'R', 'T'}

// ReadError reports a device whose partition table could not be read
// or did not validate.
type ReadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ReadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gpt: %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("gpt: %s: %s", e.Path, e.Reason)
}

func (e *ReadError) Unwrap() error { return e.Err }

func readErrf(path string, err error, format string, args ...interface{}) error {
	return &ReadError{Path: path, Reason: fmt.Sprintf(format, args...), Err: err}
}

// Header is the primary GPT header at LBA 1.
type Header struct {
	Revision       uint32
	HeaderSize     uint32
	CurrentLBA     uint64
	BackupLBA      uint64
	FirstUsableLBA uint64
	LastUsableLBA  uint64
	DiskGUID       string
	EntriesStart   uint64
	EntryCount     uint32
	EntrySize      uint32
	EntriesCRC     uint32
}

// ReadHeader reads and validates the primary header of the device.
func ReadHeader(devicePath string) (*Header, error) {
	f, err := os.Open(devicePath)
	if err != nil {
		return nil, readErrf(devicePath, err, "open device")
	}
	defer f.Close()
	return readHeader(f, devicePath)
}

func readHeader(f *os.File, devicePath string) (*Header, error) {
	block := make([]byte, LogicalBlockSize)
	if _, err := f.ReadAt(block, headerOffset); err != nil {
		return nil, readErrf(devicePath, err, "device too short for a gpt header")
	}

	for i := range signature {
		if block[i] != signature[i] {
			return nil, readErrf(devicePath, nil, "bad signature %q", block[:8])
		}
	}

	h := &Header{
		Revision:       binary.LittleEndian.Uint32(block[8:12]),
		HeaderSize:     binary.LittleEndian.Uint32(block[12:16]),
		CurrentLBA:     binary.LittleEndian.Uint64(block[24:32]),
		BackupLBA:      binary.LittleEndian.Uint64(block[32:40]),
		FirstUsableLBA: binary.LittleEndian.Uint64(block[40:48]),
		LastUsableLBA:  binary.LittleEndian.Uint64(block[48:56]),
		DiskGUID:       decodeGUID(block[56:72]),
		EntriesStart:   binary.LittleEndian.Uint64(block[72:80]),
		EntryCount:     binary.LittleEndian.Uint32(block[80:84]),
		EntrySize:      binary.LittleEndian.Uint32(block[84:88]),
		EntriesCRC:     binary.LittleEndian.Uint32(block[88:92]),
	}
	if h.HeaderSize < minHeaderSize || h.HeaderSize > LogicalBlockSize {
		return nil, readErrf(devicePath, nil, "implausible header size %d", h.HeaderSize)
	}

	// The stored CRC covers HeaderSize bytes with its own field zeroed.
	stored := binary.LittleEndian.Uint32(block[16:20])
	scratch := make([]byte, h.HeaderSize)
	copy(scratch, block[:h.HeaderSize])
	scratch[16], scratch[17], scratch[18], scratch[19] = 0, 0, 0, 0
	if sum := crc32.ChecksumIEEE(scratch); sum != stored {
		return nil, readErrf(devicePath, nil, "header crc mismatch: stored %08x, computed %08x", stored, sum)
	}

	if h.EntrySize < minEntrySize {
		return nil, readErrf(devicePath, nil, "implausible entry size %d", h.EntrySize)
	}
	if h.EntryCount > maxEntryCount {
		return nil, readErrf(devicePath, nil, "implausible entry count %d", h.EntryCount)
	}
	return h, nil
}

// ReadPartitions reads the entry array the header points at and
// returns the in-use entries in on-disk order.
func ReadPartitions(devicePath string, h *Header) ([]api.Partition, error) {
	f, err := os.Open(devicePath)
	if err != nil {
		return nil, readErrf(devicePath, err, "open device")
	}
	defer f.Close()
	return readPartitions(f, devicePath, h)
}

func readPartitions(f *os.File, devicePath string, h *Header) ([]api.Partition, error) {
	raw := make([]byte, int(h.EntryCount)*int(h.EntrySize))
	if _, err := f.ReadAt(raw, int64(h.EntriesStart)*LogicalBlockSize); err != nil {
		return nil, readErrf(devicePath, err, "device too short for %d partition entries", h.EntryCount)
	}
	if sum := crc32.ChecksumIEEE(raw); sum != h.EntriesCRC {
		return nil, readErrf(devicePath, nil, "entry array crc mismatch: stored %08x, computed %08x", h.EntriesCRC, sum)
	}

	parts := []api.Partition{}
	for i := uint32(0); i < h.EntryCount; i++ {
		entry := raw[i*h.EntrySize : (i+1)*h.EntrySize]
		if zeroed(entry[:16]) {
			// Unused slot.
			continue
		}
		first := binary.LittleEndian.Uint64(entry[32:40])
		last := binary.LittleEndian.Uint64(entry[40:48])
		if first > last {
			return nil, readErrf(devicePath, nil, "entry %d: first lba %d beyond last lba %d", i, first, last)
		}
		parts = append(parts, api.Partition{
			UUID:     decodeGUID(entry[:16]),
			FirstLBA: first,
			LastLBA:  last,
			Flags:    binary.LittleEndian.Uint64(entry[48:56]),
			Name:     decodeName(entry[56:128]),
		})
	}
	return parts, nil
}

// Extract reads the full table of the device in one call.
func Extract(devicePath string) ([]api.Partition, error) {
	f, err := os.Open(devicePath)
	if err != nil {
		return nil, readErrf(devicePath, err, "open device")
	}
	defer f.Close()

	h, err := readHeader(f, devicePath)
	if err != nil {
		return nil, err
	}
	return readPartitions(f, devicePath, h)
}

// decodeGUID renders the mixed-endian on-disk layout as the usual
// hyphenated lowercase string. The first three fields are stored
// little-endian, the rest as-is.
func decodeGUID(b []byte) string {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:16])
	return u.String()
}

// decodeName decodes the 36 UTF-16LE code units of an entry name up to
// the first NUL.
func decodeName(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i : i+2])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

func zeroed(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
