// Package hw carries the static capability table for the supported
// hardware variants: which bootloader commands a variant needs, how its
// flash is laid out, and which flash parts it may legally be paired
// with. All variant-specific behavior in the flashing flow reads from
// this table instead of testing raw capability bits inline.
package hw

import "fmt"

// Flags is the capability bit set of a hardware variant.
type Flags uint8

const (
	// SwitchToBootloader marks variants that boot into the
	// application and need an explicit command to enter the
	// bootloader.
	SwitchToBootloader Flags = 1 << iota
	// EndProgramming marks variants whose bootloader wants an
	// explicit end-of-programming signal after the last block.
	EndProgramming
	// InvertAlternating marks variants whose bootloader expects the
	// data bytes of every second flash data frame XORed with 0xFF.
	InvertAlternating
	// ResetAfterFlash marks variants that must be reset as part of
	// the flashing process and still answer the bootloader status
	// protocol afterwards.
	ResetAfterFlash
	// DataMode8 marks variants that take eight data bytes per frame
	// instead of six.
	DataMode8
)

// Profile describes one hardware variant. Profiles are immutable
// process-wide data.
type Profile struct {
	Type uint8
	Name string

	Flags Flags

	// BlockSize and BlockCount describe the erase/write geometry of
	// the program flash.
	BlockSize  uint32
	BlockCount int
	// FlashOffset is added to every file offset to form the
	// destination flash address.
	FlashOffset uint32
	// CRCOffset is the file offset at which the embedded checksum
	// table is expected, zero when the variant carries none.
	CRCOffset uint32
	// ChannelPrefix, when non-empty, is a marker string the firmware
	// image must contain for this variant.
	ChannelPrefix string
}

func (p *Profile) SwitchesToBootloader() bool { return p.Flags&SwitchToBootloader != 0 }
func (p *Profile) EndsProgramming() bool      { return p.Flags&EndProgramming != 0 }
func (p *Profile) InvertsAlternating() bool   { return p.Flags&InvertAlternating != 0 }
func (p *Profile) ResetsAfterFlash() bool     { return p.Flags&ResetAfterFlash != 0 }

// TransferLen is the default number of data bytes per flash data frame,
// used when the module did not report one itself.
func (p *Profile) TransferLen() uint8 {
	if p.Flags&DataMode8 != 0 {
		return 8
	}
	return 6
}

// FlashSize is the total number of addressable program flash bytes.
func (p *Profile) FlashSize() uint32 {
	return p.BlockSize * uint32(p.BlockCount)
}

var profiles = map[uint8]*Profile{
	4: {
		Type: 4, Name: "PCAN-MicroMod",
		Flags:     SwitchToBootloader,
		BlockSize: 0x1000, BlockCount: 16,
	},
	16: {
		Type: 16, Name: "PCAN-Router",
		Flags:     SwitchToBootloader | ResetAfterFlash,
		BlockSize: 0x2000, BlockCount: 15,
		FlashOffset: 0x2000, CRCOffset: 0x2100,
	},
	19: {
		Type: 19, Name: "PCAN-MIO",
		Flags:     SwitchToBootloader | InvertAlternating,
		BlockSize: 0x2000, BlockCount: 28,
		FlashOffset: 0x2000, CRCOffset: 0x2100,
	},
	21: {
		Type: 21, Name: "PCAN-Router Pro",
		Flags:     SwitchToBootloader | InvertAlternating | ResetAfterFlash,
		BlockSize: 0x2000, BlockCount: 28,
		FlashOffset: 0x2000, CRCOffset: 0x2100,
		ChannelPrefix: "ch_",
	},
	25: {
		Type: 25, Name: "PCAN-RouterDR",
		Flags:     SwitchToBootloader | EndProgramming | DataMode8,
		BlockSize: 0x8000, BlockCount: 15,
		FlashOffset: 0x4000, CRCOffset: 0x4100,
	},
	31: {
		Type: 31, Name: "PCAN-Router FD",
		Flags:     EndProgramming | DataMode8,
		BlockSize: 0x8000, BlockCount: 15,
		FlashOffset: 0x4000, CRCOffset: 0x4100,
	},
	35: {
		Type: 35, Name: "PCAN-Router Pro FD",
		Flags:     EndProgramming | DataMode8 | ResetAfterFlash,
		BlockSize: 0x8000, BlockCount: 31,
		FlashOffset: 0x4000, CRCOffset: 0x4100,
		ChannelPrefix: "ch_",
	},
}

// ProfileFor resolves a hardware type to its profile.
func ProfileFor(hwType uint8) (*Profile, error) {
	p, ok := profiles[hwType]
	if !ok {
		return nil, fmt.Errorf("unknown hardware type %d", hwType)
	}
	return p, nil
}

var flashNames = map[uint8]string{
	1:  "MB90F497",
	10: "LPC2129",
	11: "LPC2194",
	12: "LPC2368",
	14: "LPC4078",
	20: "LPC54618",
}

// HardwareName returns a human-readable name for a hardware type.
func HardwareName(hwType uint8) string {
	if p, ok := profiles[hwType]; ok {
		return p.Name
	}
	return "unknown"
}

// FlashName returns a human-readable name for a flash type.
func FlashName(flashType uint8) string {
	if n, ok := flashNames[flashType]; ok {
		return n
	}
	return "unknown"
}

// compatible lists the flash types each hardware type may report.
var compatible = map[uint8][]uint8{
	4:  {1},
	16: {10, 11},
	19: {12},
	21: {12},
	25: {14},
	31: {14, 20},
	35: {20},
}

// Compatible reports whether a hardware/flash type pairing is valid. A
// module reporting a pairing outside the matrix is a protocol error.
func Compatible(hwType, flashType uint8) bool {
	for _, ft := range compatible[hwType] {
		if ft == flashType {
			return true
		}
	}
	return false
}
