// Package crcpatch rewrites the checksum table embedded in a firmware
// image before transmission. The bootloader verifies a set of image
// sub-ranges against stored checksums at boot; images are built with
// placeholder values, and this package replaces them with checksums
// computed over the actual content.
//
// Table layout at the hardware profile's scan offset, little-endian,
// packed:
//
//	off 0   16  ident string, NUL padded
//	off 16  2   version
//	off 18  1   day
//	off 19  1   month
//	off 20  1   year
//	off 21  1   mode
//	off 22  2   entry count
//	off 24  10n entries of {address u32, length u32, checksum u16}
package crcpatch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/peak-linux/pcanflash/pkg/fwimage"
)

// IdentString gates table parsing: a scan position not carrying it is
// not a checksum table.
const IdentString = "PCAN-CRC-ARRAY"

const (
	identSize  = 16
	headerSize = 24
	entrySize  = 10
	// entryChecksumOff is the checksum field position within an entry.
	entryChecksumOff = 8
)

var (
	ErrNoIdent   = errors.New("crcpatch: no ident string at scan offset")
	ErrTruncated = errors.New("crcpatch: table truncated")
)

// Entry is one verified sub-range of the image.
type Entry struct {
	Address  uint32
	Length   uint32
	Checksum uint16
}

// Table is the parsed checksum table header plus its entries.
type Table struct {
	Version    uint16
	Day, Month uint8
	Year       uint8
	Mode       uint8
	Entries    []Entry
}

// ModeSupported reports whether a table mode is one this tool knows how
// to patch. Unknown modes are left untouched as a forward-compatibility
// measure.
func ModeSupported(mode uint8) bool {
	switch mode {
	case 1, 3, 4:
		return true
	}
	return false
}

// ParseTable extracts a checksum table from the start of buf. Every
// field is read at its fixed offset with bounds checks; the buffer is
// never reinterpreted in place.
func ParseTable(buf []byte) (*Table, error) {
	if len(buf) < identSize {
		return nil, ErrTruncated
	}
	ident := bytes.TrimRight(buf[:identSize], "\x00")
	if string(ident) != IdentString {
		return nil, ErrNoIdent
	}
	if len(buf) < headerSize {
		return nil, ErrTruncated
	}
	t := &Table{
		Version: binary.LittleEndian.Uint16(buf[16:18]),
		Day:     buf[18],
		Month:   buf[19],
		Year:    buf[20],
		Mode:    buf[21],
	}
	count := int(binary.LittleEndian.Uint16(buf[22:24]))
	if len(buf) < headerSize+count*entrySize {
		return nil, ErrTruncated
	}
	for i := 0; i < count; i++ {
		e := buf[headerSize+i*entrySize:]
		t.Entries = append(t.Entries, Entry{
			Address:  binary.LittleEndian.Uint32(e[0:4]),
			Length:   binary.LittleEndian.Uint32(e[4:8]),
			Checksum: binary.LittleEndian.Uint16(e[8:10]),
		})
	}
	return t, nil
}

// Overlaps reports whether a block of blockSize bytes at file offset
// fileOff contains the scan offset. A scan offset of zero means the
// hardware variant carries no checksum table.
func Overlaps(scanOff, fileOff, blockSize uint32) bool {
	return scanOff != 0 && scanOff >= fileOff && scanOff < fileOff+blockSize
}

// PatchBlock looks for a checksum table at scanOff inside the block
// that starts at file offset fileOff and rewrites the stored checksum
// of every entry from the original image content. Only the in-memory
// block is modified.
//
// A missing ident string or an unsupported mode leaves the block as is;
// both are logged and non-fatal. A table that overruns the block is an
// error, since a partial rewrite would flash a corrupt table.
func PatchBlock(block []byte, fileOff, scanOff uint32, img *fwimage.Image) error {
	if !Overlaps(scanOff, fileOff, uint32(len(block))) {
		return nil
	}
	rel := scanOff - fileOff
	t, err := ParseTable(block[rel:])
	switch {
	case errors.Is(err, ErrNoIdent):
		glog.Warningf("no CRC ident string found at 0x%X - omit patching of CRC value", scanOff)
		return nil
	case err != nil:
		return fmt.Errorf("checksum table at 0x%X: %w", scanOff, err)
	}

	glog.Infof("CRC array ver=0x%X D/M/Y=%d/%d/%d mode=%d found at 0x%X",
		t.Version, t.Day, t.Month, t.Year, t.Mode, scanOff)
	if !ModeSupported(t.Mode) {
		glog.Warningf("CRC array mode=%d is not supported - omit patching of CRC value", t.Mode)
		return nil
	}

	for i, e := range t.Entries {
		crc := Checksum(img.Range(e.Address, e.Length))
		pos := int(rel) + headerSize + i*entrySize + entryChecksumOff
		binary.LittleEndian.PutUint16(block[pos:pos+2], crc)
		glog.Infof("CRC block[%d] .address=0x%X .len=0x%X .crc=0x%X", i, e.Address, e.Length, crc)
	}
	return nil
}
