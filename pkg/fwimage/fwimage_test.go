package fwimage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ulikunitz/xz"
)

func TestBlockPadsTail(t *testing.T) {
	im := FromBytes([]byte{1, 2, 3})
	b := im.Block(0, 8)
	want := []byte{1, 2, 3, Empty, Empty, Empty, Empty, Empty}
	if !bytes.Equal(b, want) {
		t.Errorf("Block(0, 8) = % X, want % X", b, want)
	}
}

func TestBlockPastEnd(t *testing.T) {
	im := FromBytes([]byte{1, 2, 3})
	if !EmptyBlock(im.Block(8, 4)) {
		t.Errorf("block past end of content not erased")
	}
}

func TestBlockIsACopy(t *testing.T) {
	im := FromBytes([]byte{1, 2, 3, 4})
	b := im.Block(0, 4)
	b[0] = 0xAA
	if im.Block(0, 4)[0] != 1 {
		t.Errorf("Block aliases image content")
	}
}

func TestEmptyBlock(t *testing.T) {
	if !EmptyBlock([]byte{Empty, Empty}) {
		t.Errorf("all-sentinel block reported non-empty")
	}
	if EmptyBlock([]byte{Empty, 0x00}) {
		t.Errorf("non-empty block reported empty")
	}
}

func TestHasSection(t *testing.T) {
	im := FromBytes([]byte("....ch_pcan_router...."))
	if !im.HasSection("ch_") {
		t.Errorf("channel marker not found")
	}
	if im.HasSection("ch2_") {
		t.Errorf("absent marker found")
	}
	if !im.HasSection("") {
		t.Errorf("empty marker must always match")
	}
}

func TestLoadPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.bin")
	content := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	im, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if im.Size() != 4 || !bytes.Equal(im.Block(0, 4), content) {
		t.Errorf("loaded content mismatch")
	}
}

func TestLoadXZ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.bin.xz")
	content := bytes.Repeat([]byte{0x55, 0xAA}, 512)

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w, err := xz.NewWriter(f)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	im, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if im.Size() != uint32(len(content)) || !bytes.Equal(im.Block(0, uint32(len(content))), content) {
		t.Errorf("decompressed content mismatch")
	}
}

func TestLoadRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Errorf("empty image accepted")
	}
}
