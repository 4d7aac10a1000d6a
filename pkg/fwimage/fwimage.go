// Package fwimage reads firmware images for flashing. An image is a
// flat byte sequence; positions past its end count as erased flash and
// read back as the empty sentinel.
package fwimage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
)

// Empty is the fill value of erased flash.
const Empty byte = 0xFF

// Image is an in-memory firmware image.
type Image struct {
	data []byte
	name string
}

// Load reads a firmware image from a file. Files ending in .xz are
// decompressed transparently.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open image: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		r, err = xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("could not open xz stream: %w", err)
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image %s is empty", path)
	}
	return &Image{data: data, name: path}, nil
}

// FromBytes wraps raw image content. Used by tests and callers that
// already hold the image in memory.
func FromBytes(data []byte) *Image {
	return &Image{data: data, name: "(memory)"}
}

func (im *Image) Name() string {
	return im.name
}

// Size is the declared image content length in bytes.
func (im *Image) Size() uint32 {
	return uint32(len(im.data))
}

// Block returns a copy of size bytes of the image starting at offset,
// padded with the empty sentinel past the end of content.
func (im *Image) Block(offset, size uint32) []byte {
	block := bytes.Repeat([]byte{Empty}, int(size))
	if offset < uint32(len(im.data)) {
		copy(block, im.data[offset:])
	}
	return block
}

// Range returns length bytes starting at address, padded with the empty
// sentinel past the end of content. Checksum sub-ranges are read this
// way so that they always cover the original, unpadded content plus
// erased tail.
func (im *Image) Range(address, length uint32) []byte {
	return im.Block(address, length)
}

// EmptyBlock reports whether every byte of a block equals the empty
// sentinel. Fully empty blocks are skipped during the write phase: the
// module retains the erased state for untouched regions.
func EmptyBlock(block []byte) bool {
	for _, b := range block {
		if b != Empty {
			return false
		}
	}
	return true
}

// HasSection reports whether the image contains the given marker
// string anywhere in its content. Some hardware variants require a
// named channel section in their firmware.
func (im *Image) HasSection(marker string) bool {
	if marker == "" {
		return true
	}
	return bytes.Contains(im.data, []byte(marker))
}
