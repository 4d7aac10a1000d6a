package flash

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/peak-linux/pcanflash/pkg/bootproto"
)

// SwitchToBootloader moves the module out of the application into the
// bootloader. A no-op for variants that already sit in the bootloader.
func (s *Session) SwitchToBootloader() error {
	if !s.profile.SwitchesToBootloader() {
		return nil
	}
	return s.fireAndConfirm("switch to bootloader", bootproto.OpBoot, true)
}

// EndProgramming tells the bootloader the last block has been written.
// A no-op for variants that do not expect the signal.
func (s *Session) EndProgramming() error {
	if !s.profile.EndsProgramming() {
		return nil
	}
	return s.fireAndConfirm("end programming", bootproto.OpEnd, true)
}

// Reset restarts the module. The status confirm happens only when the
// profile mandates the reset: those modules stay in the bootloader and
// keep answering the status protocol. A reset requested by the operator
// starts the application firmware, which does not implement it.
func (s *Session) Reset() error {
	return s.fireAndConfirm("reset", bootproto.OpReset, s.profile.ResetsAfterFlash())
}

// fireAndConfirm sends a no-reply command, waits the settle period and
// optionally issues a status query, logging its result.
func (s *Session) fireAndConfirm(what string, op bootproto.Op, confirm bool) error {
	glog.Infof("%s: module %d", what, s.mod.Slot)
	if s.opts.DryRun {
		return nil
	}
	if err := s.bus.Send(bootproto.Command(op, s.mod.Slot)); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	time.Sleep(s.opts.Settle)
	if !confirm {
		return nil
	}
	st, err := bootproto.GetStatus(s.bus, s.mod.Slot, s.opts.ReplyTimeout)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	glog.V(1).Infof("%s: status flags %02X", what, st.Flags)
	return nil
}
