// Package flash drives the erase/write sequence against one module.
// All state of a flashing run lives in a Session owned by the caller;
// nothing here is shared between runs.
package flash

import (
	"fmt"
	"time"

	"github.com/peak-linux/pcanflash/pkg/bootproto"
	"github.com/peak-linux/pcanflash/pkg/canbus"
	"github.com/peak-linux/pcanflash/pkg/fwimage"
	"github.com/peak-linux/pcanflash/pkg/hw"
)

// Options configure one flashing run.
type Options struct {
	// DryRun performs every computation, including discovery and
	// checksum patching, but suppresses all device-mutating
	// transmission.
	DryRun bool
	// ResetRequested resets the module after flashing even when the
	// hardware profile does not mandate it.
	ResetRequested bool
	// Settle is the wait after commands that have no reply.
	Settle time.Duration
	// ReplyTimeout bounds every blocking receive.
	ReplyTimeout time.Duration
	// Progress, when set, is called after each write-phase block with
	// the number of image bytes covered so far and the image size.
	Progress func(done, total uint32)
}

// Session is the state of one flashing run: the bus, the target module,
// its hardware profile, the image, and the run options.
type Session struct {
	bus     canbus.Bus
	mod     *bootproto.Module
	profile *hw.Profile
	img     *fwimage.Image
	opts    Options

	transferLen uint8
}

// New validates the module/image pairing and builds a session. The
// module's transfer length defaults from the hardware profile when the
// module did not report one.
func New(bus canbus.Bus, mod *bootproto.Module, img *fwimage.Image, opts Options) (*Session, error) {
	profile, err := hw.ProfileFor(mod.HwType)
	if err != nil {
		return nil, err
	}
	if profile.BlockCount == 0 {
		return nil, fmt.Errorf("no flash blocks known for hardware type %d (%s)", mod.HwType, profile.Name)
	}
	if !img.HasSection(profile.ChannelPrefix) {
		return nil, fmt.Errorf("no %q section in %s for hardware type %d (%s)",
			profile.ChannelPrefix, img.Name(), mod.HwType, profile.Name)
	}

	tl := mod.TransferLen
	if tl == 0 {
		tl = profile.TransferLen()
	}
	if tl != 6 && tl != 8 {
		return nil, fmt.Errorf("module %d reported unsupported transfer length %d", mod.Slot, tl)
	}

	if opts.Settle == 0 {
		opts.Settle = time.Second
	}
	if opts.ReplyTimeout == 0 {
		opts.ReplyTimeout = time.Second
	}

	return &Session{
		bus:         bus,
		mod:         mod,
		profile:     profile,
		img:         img,
		opts:        opts,
		transferLen: tl,
	}, nil
}

// Profile returns the resolved hardware profile.
func (s *Session) Profile() *hw.Profile {
	return s.profile
}

// TransferLen returns the effective data bytes per flash data frame.
func (s *Session) TransferLen() uint8 {
	return s.transferLen
}

// Run executes the full sequence: bootloader switch, erase, write, end
// programming and, when mandated or requested, reset. Any failure
// aborts the session; there is no partial-completion recovery.
func (s *Session) Run() error {
	if err := s.SwitchToBootloader(); err != nil {
		return err
	}
	if err := s.EraseAll(); err != nil {
		return err
	}
	if err := s.WriteAll(); err != nil {
		return err
	}
	if err := s.EndProgramming(); err != nil {
		return err
	}
	if s.profile.ResetsAfterFlash() || s.opts.ResetRequested {
		if err := s.Reset(); err != nil {
			return err
		}
	}
	return nil
}
