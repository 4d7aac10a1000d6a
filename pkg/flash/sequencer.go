package flash

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/peak-linux/pcanflash/pkg/bootproto"
	"github.com/peak-linux/pcanflash/pkg/canbus"
	"github.com/peak-linux/pcanflash/pkg/crcpatch"
	"github.com/peak-linux/pcanflash/pkg/fwimage"
)

// EraseAll erases every flash block of the hardware profile, in
// ascending index order. Each erase command blocks for its echo reply.
func (s *Session) EraseAll() error {
	for i := 0; i < s.profile.BlockCount; i++ {
		glog.Infof("erasing flash block %d/%d", i+1, s.profile.BlockCount)
		if s.opts.DryRun {
			continue
		}
		if err := s.bus.Send(bootproto.EraseBlock(s.mod.Slot, uint8(i))); err != nil {
			return fmt.Errorf("erase block %d: %w", i, err)
		}
		f, err := s.bus.Receive(s.opts.ReplyTimeout)
		if err != nil {
			return fmt.Errorf("erase block %d: %w", i, err)
		}
		if f.Len < 4 || bootproto.Op(f.Data[0]) != bootproto.OpErase ||
			f.Data[1] != s.mod.Slot || f.Data[2] != uint8(i) {
			return fmt.Errorf("erase block %d: malformed reply % X", i, f.Payload())
		}
		if f.Data[3] != 0 {
			return fmt.Errorf("erase block %d: bootloader status %d", i, f.Data[3])
		}
	}
	return nil
}

// WriteAll walks the image at block-size-aligned offsets from zero,
// skips fully erased blocks, patches the embedded checksum table when
// its block comes up and transmits everything else.
func (s *Session) WriteAll() error {
	bs := s.profile.BlockSize
	size := s.img.Size()

	for off := uint32(0); off < size; off += bs {
		block := s.img.Block(off, bs)
		if fwimage.EmptyBlock(block) {
			glog.V(1).Infof("skipping empty block at 0x%X", off)
		} else {
			if err := crcpatch.PatchBlock(block, off, s.profile.CRCOffset, s.img); err != nil {
				return err
			}
			if err := s.writeBlock(off+s.profile.FlashOffset, block); err != nil {
				return err
			}
		}
		if s.opts.Progress != nil {
			s.opts.Progress(min(off+bs, size), size)
		}
	}
	return nil
}

// writeBlock transmits one non-empty block: a write-start command, then
// data frames of the module's transfer length. Six-byte transfers carry
// the byte offset within the block in front of the data; when the
// profile demands it, the data bytes of every second frame are XORed
// with 0xFF. Data frames are not acknowledged; the transmit queue depth
// checked at startup keeps the burst from dropping frames.
func (s *Session) writeBlock(addr uint32, block []byte) error {
	glog.Infof("writing 0x%X bytes at 0x%X", len(block), addr)
	if s.opts.DryRun {
		return nil
	}
	if err := s.bus.Send(bootproto.WriteStart(s.mod.Slot, addr, uint16(len(block)))); err != nil {
		return fmt.Errorf("write start at 0x%X: %w", addr, err)
	}

	step := int(s.transferLen)
	invert := false
	for i := 0; i < len(block); i += step {
		chunk := block[i:min(i+step, len(block))]
		data := make([]byte, 0, 8)
		if step == 6 {
			data = append(data, byte(i>>8), byte(i))
		}
		for _, b := range chunk {
			if invert {
				b ^= 0xFF
			}
			data = append(data, b)
		}
		if err := s.bus.Send(canbus.NewFrame(bootproto.ID, data)); err != nil {
			return fmt.Errorf("data frame at 0x%X+0x%X: %w", addr, i, err)
		}
		if s.profile.InvertsAlternating() {
			invert = !invert
		}
	}
	return nil
}
