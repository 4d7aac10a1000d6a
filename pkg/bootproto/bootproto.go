// Package bootproto implements the CAN bootloader protocol spoken by
// the router modules. All traffic, both directions, shares the single
// identifier ID; frames are distinguished by an opcode in the first
// payload byte, followed by the target module slot where applicable.
//
// Command frames:
//
//	announce     {0x00}                              broadcast, each module replies
//	status       {0x01, slot}                        typed reply
//	config       {0x02, slot}                        streamed JSON reply
//	boot         {0x10, slot}                        no reply
//	erase        {0x20, slot, block}                 echo reply with status byte
//	write start  {0x30, slot, addr:4, len:2}         no reply, data frames follow
//	end          {0x40, slot}                        no reply
//	reset        {0x50, slot}                        no reply
//
// An announce reply is {hwHi, hwLo, slot, day, month, year, ver, 0}
// with a BCD date, the 10-bit hardware id packed into the first two
// bytes and the bootloader version nibble-packed into ver. A status
// reply is {0x01, slot, flags, hwType, flashType, 0, 0, 0}.
package bootproto

import (
	"fmt"
	"time"

	"github.com/peak-linux/pcanflash/pkg/canbus"
)

// ID is the reserved CAN identifier all bootloader traffic uses.
const ID = 0x7E7

// MaxModules bounds the logical slot index space.
const MaxModules = 16

// ExtendedConfigType is the sentinel in the status reply's hardware or
// flash type byte that routes configuration to the extended exchange.
const ExtendedConfigType = 250

// Op is a protocol opcode.
type Op uint8

const (
	OpAnnounce   Op = 0x00
	OpStatus     Op = 0x01
	OpConfig     Op = 0x02
	OpBoot       Op = 0x10
	OpErase      Op = 0x20
	OpWriteStart Op = 0x30
	OpEnd        Op = 0x40
	OpReset      Op = 0x50
)

// Command builds an addressed command frame with no further payload.
func Command(op Op, slot uint8) canbus.Frame {
	return canbus.NewFrame(ID, []byte{byte(op), slot})
}

// EraseBlock builds the erase command for one flash block index.
func EraseBlock(slot, block uint8) canbus.Frame {
	return canbus.NewFrame(ID, []byte{byte(OpErase), slot, block})
}

// WriteStart announces a block write of length bytes at the given flash
// address. The data frames follow immediately.
func WriteStart(slot uint8, addr uint32, length uint16) canbus.Frame {
	return canbus.NewFrame(ID, []byte{
		byte(OpWriteStart), slot,
		byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr),
		byte(length >> 8), byte(length),
	})
}

// Version is the nibble-packed bootloader version byte: three bits of
// major, five of minor.
type Version uint8

func (v Version) Major() uint8 { return uint8(v) >> 5 }
func (v Version) Minor() uint8 { return uint8(v) & 0x1F }

func (v Version) String() string {
	return fmt.Sprintf("v%d.%d", v.Major(), v.Minor())
}

// Status is a parsed status reply.
type Status struct {
	Slot      uint8
	Flags     uint8
	HwType    uint8
	FlashType uint8
}

// NeedsExtendedConfig reports whether either type byte carries the
// sentinel that demands the extended configuration exchange.
func (s *Status) NeedsExtendedConfig() bool {
	return s.HwType == ExtendedConfigType || s.FlashType == ExtendedConfigType
}

// GetStatus queries one module for its status and blocks for the reply.
func GetStatus(bus canbus.Bus, slot uint8, timeout time.Duration) (*Status, error) {
	if err := bus.Send(Command(OpStatus, slot)); err != nil {
		return nil, fmt.Errorf("status request: %w", err)
	}
	f, err := bus.Receive(timeout)
	if err != nil {
		return nil, fmt.Errorf("status reply from module %d: %w", slot, err)
	}
	return parseStatus(f, slot)
}

func parseStatus(f canbus.Frame, slot uint8) (*Status, error) {
	if f.Len < 5 || Op(f.Data[0]) != OpStatus {
		return nil, fmt.Errorf("malformed status reply % X", f.Payload())
	}
	if f.Data[1] != slot {
		return nil, fmt.Errorf("status reply for slot %d, expected %d", f.Data[1], slot)
	}
	return &Status{
		Slot:      f.Data[1],
		Flags:     f.Data[2],
		HwType:    f.Data[3],
		FlashType: f.Data[4],
	}, nil
}
