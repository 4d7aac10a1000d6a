package crcpatch

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/peak-linux/pcanflash/pkg/fwimage"
)

func tableBytes(mode uint8, entries []Entry) []byte {
	buf := make([]byte, headerSize+len(entries)*entrySize)
	copy(buf, IdentString)
	binary.LittleEndian.PutUint16(buf[16:18], 0x101)
	buf[18] = 12
	buf[19] = 6
	buf[20] = 25
	buf[21] = mode
	binary.LittleEndian.PutUint16(buf[22:24], uint16(len(entries)))
	for i, e := range entries {
		off := headerSize + i*entrySize
		binary.LittleEndian.PutUint32(buf[off:off+4], e.Address)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], e.Length)
		binary.LittleEndian.PutUint16(buf[off+8:off+10], e.Checksum)
	}
	return buf
}

func TestChecksumDeterministic(t *testing.T) {
	data := []byte("the quick brown fox")
	if Checksum(data) != Checksum(data) {
		t.Errorf("checksum not deterministic")
	}
	if Checksum(data) == Checksum(data[1:]) {
		t.Errorf("checksum insensitive to content")
	}
	if Checksum(nil) != 0xFFFF {
		t.Errorf("initial value changed: %04X", Checksum(nil))
	}
}

func TestParseTable(t *testing.T) {
	src := tableBytes(3, []Entry{
		{Address: 0x2000, Length: 0x100, Checksum: 0xAAAA},
		{Address: 0x3000, Length: 0x80, Checksum: 0xBBBB},
	})
	tab, err := ParseTable(src)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if tab.Version != 0x101 || tab.Day != 12 || tab.Month != 6 || tab.Year != 25 || tab.Mode != 3 {
		t.Errorf("header fields wrong: %+v", tab)
	}
	if len(tab.Entries) != 2 || tab.Entries[1].Address != 0x3000 || tab.Entries[1].Checksum != 0xBBBB {
		t.Errorf("entries wrong: %+v", tab.Entries)
	}
}

func TestParseTableNoIdent(t *testing.T) {
	if _, err := ParseTable(make([]byte, 64)); err != ErrNoIdent {
		t.Errorf("got %v, want ErrNoIdent", err)
	}
}

func TestParseTableTruncated(t *testing.T) {
	src := tableBytes(1, []Entry{{Address: 0, Length: 4}})
	if _, err := ParseTable(src[:headerSize+2]); err != ErrTruncated {
		t.Errorf("got %v, want ErrTruncated", err)
	}
}

func TestPatchBlockRewritesChecksums(t *testing.T) {
	img := make([]byte, 0x400)
	for i := range img {
		img[i] = byte(i * 7)
	}
	const scanOff = 0x100
	entries := []Entry{
		{Address: 0x0, Length: 0x40},
		{Address: 0x200, Length: 0x100},
	}
	copy(img[scanOff:], tableBytes(1, entries))
	image := fwimage.FromBytes(img)

	block := image.Block(0, 0x400)
	if err := PatchBlock(block, 0, scanOff, image); err != nil {
		t.Fatalf("PatchBlock: %v", err)
	}

	tab, err := ParseTable(block[scanOff:])
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	for i, e := range entries {
		want := Checksum(image.Range(e.Address, e.Length))
		if got := tab.Entries[i].Checksum; got != want {
			t.Errorf("entry %d: stored %04X, want %04X", i, got, want)
		}
	}
}

func TestPatchBlockUnsupportedMode(t *testing.T) {
	img := make([]byte, 0x200)
	copy(img[0x80:], tableBytes(2, []Entry{{Address: 0, Length: 8, Checksum: 0x1234}}))
	image := fwimage.FromBytes(img)

	block := image.Block(0, 0x200)
	before := bytes.Clone(block)
	if err := PatchBlock(block, 0, 0x80, image); err != nil {
		t.Fatalf("PatchBlock: %v", err)
	}
	if !bytes.Equal(block, before) {
		t.Errorf("block modified despite unsupported mode")
	}
}

func TestPatchBlockNoIdent(t *testing.T) {
	image := fwimage.FromBytes(make([]byte, 0x200))
	block := image.Block(0, 0x200)
	before := bytes.Clone(block)
	if err := PatchBlock(block, 0, 0x80, image); err != nil {
		t.Fatalf("PatchBlock: %v", err)
	}
	if !bytes.Equal(block, before) {
		t.Errorf("block modified without ident string")
	}
}

func TestOverlaps(t *testing.T) {
	if Overlaps(0, 0, 0x100) {
		t.Errorf("zero scan offset must never overlap")
	}
	if !Overlaps(0x180, 0x100, 0x100) {
		t.Errorf("offset inside block not detected")
	}
	if Overlaps(0x200, 0x100, 0x100) {
		t.Errorf("offset one past block detected")
	}
	if Overlaps(0x80, 0x100, 0x100) {
		t.Errorf("offset before block detected")
	}
}

func TestModeSupported(t *testing.T) {
	for _, mode := range []uint8{1, 3, 4} {
		if !ModeSupported(mode) {
			t.Errorf("mode %d should be supported", mode)
		}
	}
	for _, mode := range []uint8{0, 2, 5, 255} {
		if ModeSupported(mode) {
			t.Errorf("mode %d should not be supported", mode)
		}
	}
}
